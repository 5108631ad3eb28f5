// Package codec turns typed values into the byte payloads cache drivers store.
//
// A Pool deletes an entry whose payload fails to Decode and reports a miss, so
// codecs should return errors rather than panic on foreign bytes.
package codec

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}
