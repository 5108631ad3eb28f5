package codec

import (
	"errors"

	"google.golang.org/protobuf/proto"
)

// Protobuf stores proto messages in their binary wire format.
type Protobuf[T proto.Message] struct {
	new func() T // e.g. func() *pb.User { return &pb.User{} }
}

// NewProtobuf panics when ctor is nil.
func NewProtobuf[T proto.Message](ctor func() T) Protobuf[T] {
	if ctor == nil {
		panic("codec: NewProtobuf requires a constructor")
	}
	return Protobuf[T]{new: ctor}
}

func (c Protobuf[T]) Encode(v T) ([]byte, error) {
	return proto.MarshalOptions{Deterministic: true}.Marshal(v)
}

func (c Protobuf[T]) Decode(b []byte) (T, error) {
	if c.new == nil {
		var zero T
		return zero, errors.New("codec: zero Protobuf codec; use NewProtobuf")
	}
	m := c.new()
	err := proto.Unmarshal(b, m)
	return m, err
}
