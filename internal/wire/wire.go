package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"time"
)

const (
	version    byte = 1
	kindRecord byte = 1

	maxKeyLen = 0xFFFF
	maxTags   = 0xFFFF
)

var (
	ErrCorrupt    = errors.New("cachepool: corrupt record")
	ErrKeyLength  = errors.New("cachepool: record key length out of range")
	ErrTagLength  = errors.New("cachepool: record tag length out of range")
	ErrTooManyTag = errors.New("cachepool: too many tags in record")
	magic4        = [...]byte{'C', 'P', 'R', 'C'}
)

// Record is one persisted cache entry: value, expiry and tags travel together
// so a single read recovers the full entry.
type Record struct {
	Key     string
	Expiry  time.Time // zero => never expires
	Tags    []string
	Payload []byte
}

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// EncodeRecord frames r as:
//
//	magic(4) | ver(1) | kind(1) | expiry(i64 be, unix nanos, 0=never)
//	keyLen(u16 be) | key | nTags(u16 be) | (tagLen(u16 be) | tag) * nTags
//	vlen(u32 be) | payload(vlen)
func EncodeRecord(r Record) ([]byte, error) {
	if l := len(r.Key); l == 0 || l > maxKeyLen {
		return nil, ErrKeyLength
	}
	if len(r.Tags) > maxTags {
		return nil, ErrTooManyTag
	}

	total := 4 + 1 + 1 + 8 + 2 + len(r.Key) + 2 + 4 + len(r.Payload)
	for _, t := range r.Tags {
		if l := len(t); l == 0 || l > maxKeyLen {
			return nil, ErrTagLength
		}
		total += 2 + len(t)
	}

	var buf bytes.Buffer
	buf.Grow(total)

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(kindRecord)

	var u8 [8]byte
	var u4 [4]byte
	var u2 [2]byte

	var exp int64
	if !r.Expiry.IsZero() {
		exp = r.Expiry.UnixNano()
	}
	binary.BigEndian.PutUint64(u8[:], uint64(exp))
	buf.Write(u8[:])

	binary.BigEndian.PutUint16(u2[:], uint16(len(r.Key)))
	buf.Write(u2[:])
	buf.WriteString(r.Key)

	binary.BigEndian.PutUint16(u2[:], uint16(len(r.Tags)))
	buf.Write(u2[:])
	for _, t := range r.Tags {
		binary.BigEndian.PutUint16(u2[:], uint16(len(t)))
		buf.Write(u2[:])
		buf.WriteString(t)
	}

	binary.BigEndian.PutUint32(u4[:], uint32(len(r.Payload)))
	buf.Write(u4[:])
	buf.Write(r.Payload)

	return buf.Bytes(), nil
}

// DecodeRecord parses a frame produced by EncodeRecord. Trailing bytes are rejected.
// The returned Payload aliases b.
func DecodeRecord(b []byte) (Record, error) {
	const hdr = 4 + 1 + 1 + 8
	if len(b) < hdr || !hasMagic(b) || b[4] != version || b[5] != kindRecord {
		return Record{}, ErrCorrupt
	}
	off := 6

	var r Record
	if exp := int64(binary.BigEndian.Uint64(b[off : off+8])); exp != 0 {
		r.Expiry = time.Unix(0, exp)
	}
	off += 8

	key, off, err := readString(b, off)
	if err != nil {
		return Record{}, err
	}
	r.Key = key

	if off+2 > len(b) {
		return Record{}, ErrCorrupt
	}
	n := int(binary.BigEndian.Uint16(b[off : off+2]))
	off += 2
	if n > 0 {
		// each tag needs at least 3 bytes; don't trust n for preallocation
		if n*3 > len(b)-off {
			return Record{}, ErrCorrupt
		}
		r.Tags = make([]string, 0, n)
		for i := 0; i < n; i++ {
			var t string
			t, off, err = readString(b, off)
			if err != nil {
				return Record{}, err
			}
			r.Tags = append(r.Tags, t)
		}
	}

	if off+4 > len(b) {
		return Record{}, ErrCorrupt
	}
	vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if vlen < 0 || vlen != len(b)-off { // exact framing
		return Record{}, ErrCorrupt
	}
	r.Payload = b[off : off+vlen]
	return r, nil
}

func readString(b []byte, off int) (string, int, error) {
	if off+2 > len(b) {
		return "", off, ErrCorrupt
	}
	l := int(binary.BigEndian.Uint16(b[off : off+2]))
	off += 2
	if l <= 0 || l > len(b)-off {
		return "", off, ErrCorrupt
	}
	return string(b[off : off+l]), off + l, nil
}
