package codec

import (
	client "github.com/jsp-lqk/bmemcached"
)

// Binding ties a Codec to the flag bits it is stored under.
type Binding[V any] struct {
	codec Codec[V]
	flags client.StoredType
}

// Bind stores values encoded by c under flag, normally one of the
// client.TypeUserDefined bits.
func Bind[V any](c Codec[V], flag client.StoredType) Binding[V] {
	return Binding[V]{codec: c, flags: flag}
}

// Compressed returns a binding whose values are snappy compressed and carry
// client.TypeCompressed next to the bound flag. Reads require both bits.
func (b Binding[V]) Compressed() Binding[V] {
	return Binding[V]{
		codec: Snappy[V]{Inner: b.codec},
		flags: b.flags | client.TypeCompressed,
	}
}

// Flags is what the binding writes on every value.
func (b Binding[V]) Flags() client.StoredType { return b.flags }

// Value wraps v so it can be passed to Set, Add or Replace.
func (b Binding[V]) Value(v V) client.Encodable {
	return encodable[V]{b: b, v: v}
}

// Get fetches key from g and decodes it.
func (b Binding[V]) Get(g client.Getter, key string) (V, error) {
	d := &decodable[V]{b: b}
	err := g.GetInto(key, d)
	return d.v, err
}

// Decode checks flags and decodes payload, for values read with GetItem.
func (b Binding[V]) Decode(flags client.StoredType, payload []byte) (V, error) {
	d := &decodable[V]{b: b}
	err := d.DecodeValue(flags, payload)
	return d.v, err
}

func (b Binding[V]) accepts(flags client.StoredType) bool {
	base := b.flags &^ client.TypeCompressed
	if base != 0 && !flags.Has(base) {
		return false
	}
	return !b.flags.Has(client.TypeCompressed) || flags.Has(client.TypeCompressed)
}

type encodable[V any] struct {
	b Binding[V]
	v V
}

func (e encodable[V]) EncodeValue() ([]byte, client.StoredType, error) {
	payload, err := e.b.codec.Encode(e.v)
	if err != nil {
		return nil, 0, err
	}
	return payload, e.b.flags, nil
}

type decodable[V any] struct {
	b Binding[V]
	v V
}

func (d *decodable[V]) DecodeValue(flags client.StoredType, payload []byte) error {
	if !d.b.accepts(flags) {
		return &client.TypeMismatchError{Flags: flags}
	}
	v, err := d.b.codec.Decode(payload)
	if err != nil {
		return err
	}
	d.v = v
	return nil
}
