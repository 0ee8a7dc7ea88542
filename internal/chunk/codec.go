package chunk

import (
	"encoding/binary"
	"fmt"
	"math"
)

// EncodeFloat64s packs values as little-endian float64.
func EncodeFloat64s(values []float64) []byte {
	out := make([]byte, len(values)*8)
	for i, v := range values {
		binary.LittleEndian.PutUint64(out[i*8:], math.Float64bits(v))
	}
	return out
}

// DecodeFloat64s unpacks little-endian float64 values.
func DecodeFloat64s(data []byte) ([]float64, error) {
	if len(data)%8 != 0 {
		return nil, fmt.Errorf("float64 chunk has %d bytes, not a multiple of 8", len(data))
	}
	out := make([]float64, len(data)/8)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[i*8:]))
	}
	return out, nil
}

// EncodeInt32s packs values as little-endian int32.
func EncodeInt32s(values []int32) []byte {
	out := make([]byte, len(values)*4)
	for i, v := range values {
		binary.LittleEndian.PutUint32(out[i*4:], uint32(v))
	}
	return out
}

// DecodeInt32s unpacks little-endian int32 values.
func DecodeInt32s(data []byte) ([]int32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("int32 chunk has %d bytes, not a multiple of 4", len(data))
	}
	out := make([]int32, len(data)/4)
	for i := range out {
		out[i] = int32(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out, nil
}

// EncodeStrings packs strings as a uint32 count followed by uint32-length-prefixed bytes.
func EncodeStrings(values []string) []byte {
	size := 4
	for _, v := range values {
		size += 4 + len(v)
	}
	out := make([]byte, 0, size)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(values)))
	for _, v := range values {
		out = binary.LittleEndian.AppendUint32(out, uint32(len(v)))
		out = append(out, v...)
	}
	return out
}

// DecodeStrings unpacks strings written by EncodeStrings.
func DecodeStrings(data []byte) ([]string, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("string chunk too short: %d bytes", len(data))
	}
	n := int(binary.LittleEndian.Uint32(data))
	off := 4
	out := make([]string, n)
	for i := 0; i < n; i++ {
		if off+4 > len(data) {
			return nil, fmt.Errorf("string chunk truncated at item %d", i)
		}
		l := int(binary.LittleEndian.Uint32(data[off:]))
		off += 4
		if off+l > len(data) {
			return nil, fmt.Errorf("string chunk truncated at item %d", i)
		}
		out[i] = string(data[off : off+l])
		off += l
	}
	return out, nil
}

// PutFloat64s encodes and stores a float column chunk.
func (s *Store) PutFloat64s(key string, values []float64) error {
	return s.Put(key, EncodeFloat64s(values))
}

// Float64s loads a float column chunk.
func (s *Store) Float64s(key string) ([]float64, error) {
	data, err := s.Get(key)
	if err != nil {
		return nil, err
	}
	return DecodeFloat64s(data)
}

// PutInt32s encodes and stores an int32 column chunk.
func (s *Store) PutInt32s(key string, values []int32) error {
	return s.Put(key, EncodeInt32s(values))
}

// Int32s loads an int32 column chunk.
func (s *Store) Int32s(key string) ([]int32, error) {
	data, err := s.Get(key)
	if err != nil {
		return nil, err
	}
	return DecodeInt32s(data)
}

// PutStrings encodes and stores a string column chunk.
func (s *Store) PutStrings(key string, values []string) error {
	return s.Put(key, EncodeStrings(values))
}

// Strings loads a string column chunk.
func (s *Store) Strings(key string) ([]string, error) {
	data, err := s.Get(key)
	if err != nil {
		return nil, err
	}
	return DecodeStrings(data)
}
