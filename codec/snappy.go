package codec

import (
	"github.com/golang/snappy"
)

// Snappy compresses the output of Inner with snappy block encoding. Pair it
// with Binding.Compressed so the stored flags carry the compressed bit.
type Snappy[V any] struct {
	Inner Codec[V]
}

func (c Snappy[V]) Encode(v V) ([]byte, error) {
	raw, err := c.Inner.Encode(v)
	if err != nil {
		return nil, err
	}
	return snappy.Encode(nil, raw), nil
}

func (c Snappy[V]) Decode(b []byte) (V, error) {
	raw, err := snappy.Decode(nil, b)
	if err != nil {
		var zero V
		return zero, err
	}
	return c.Inner.Decode(raw)
}
