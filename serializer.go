package prefixdb

import (
	"bytes"
	"encoding/binary"
)

// Serializer converts prefix payloads to and from a fixed-size binary form.
// Every value of a type must serialize to exactly Size() bytes so that the
// size of a database image is determined by its prefix count.
type Serializer[V any] interface {
	// ToBytes returns the binary form of the value.
	ToBytes(V) []byte
	// CopyBytes writes the binary form into the given slice of Size() bytes.
	CopyBytes(V, []byte)
	// FromBytes decodes a value from a slice of Size() bytes.
	FromBytes([]byte) V
	// Size returns the number of bytes of the binary form.
	Size() int
}

// NoValue is the payload of databases that only answer match/no-match.
type NoValue = struct{}

// NoValueSerializer is a Serializer of the NoValue type
type NoValueSerializer struct{}

func (NoValueSerializer) ToBytes(NoValue) []byte {
	return nil
}
func (NoValueSerializer) CopyBytes(NoValue, []byte) {}
func (NoValueSerializer) FromBytes([]byte) NoValue {
	return NoValue{}
}
func (NoValueSerializer) Size() int {
	return 0
}

// Uint32Serializer is a Serializer of uint32 payloads such as AS numbers
// or route labels, stored big-endian.
type Uint32Serializer struct{}

func (Uint32Serializer) ToBytes(value uint32) []byte {
	res := make([]byte, 4)
	binary.BigEndian.PutUint32(res, value)
	return res
}
func (Uint32Serializer) CopyBytes(value uint32, out []byte) {
	binary.BigEndian.PutUint32(out, value)
}
func (Uint32Serializer) FromBytes(bytes []byte) uint32 {
	return binary.BigEndian.Uint32(bytes)
}
func (Uint32Serializer) Size() int {
	return 4
}

// equalBySerializer returns an equality function comparing the binary
// forms of two values.
func equalBySerializer[V any](s Serializer[V]) func(a, b V) bool {
	return func(a, b V) bool {
		return bytes.Equal(s.ToBytes(a), s.ToBytes(b))
	}
}
