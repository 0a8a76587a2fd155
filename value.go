package client

import (
	"encoding/binary"
	"fmt"
	"strings"
	"unicode/utf8"
)

// StoredType is the 32 bit flags word written next to every stored value.
// It is a bitset: a value may be, say, TypeU32|TypeCompressed at once.
type StoredType uint32

const (
	TypeString     StoredType = 1 << 0
	TypeU8         StoredType = 1 << 1
	TypeU16        StoredType = 1 << 2
	TypeU32        StoredType = 1 << 3
	TypeU64        StoredType = 1 << 4
	TypeVector     StoredType = 1 << 5
	TypeCompressed StoredType = 1 << 6

	TypeUserDefined1 StoredType = 1 << 10
	TypeUserDefined2 StoredType = 1 << 11
	// bit 12 is left unassigned
	TypeUserDefined3  StoredType = 1 << 13
	TypeUserDefined4  StoredType = 1 << 14
	TypeUserDefined5  StoredType = 1 << 15
	TypeUserDefined6  StoredType = 1 << 16
	TypeUserDefined7  StoredType = 1 << 17
	TypeUserDefined8  StoredType = 1 << 18
	TypeUserDefined9  StoredType = 1 << 19
	TypeUserDefined10 StoredType = 1 << 20
	TypeUserDefined11 StoredType = 1 << 21
	TypeUserDefined12 StoredType = 1 << 22
	TypeUserDefined13 StoredType = 1 << 23
	TypeUserDefined14 StoredType = 1 << 24
	TypeUserDefined15 StoredType = 1 << 25
	TypeUserDefined16 StoredType = 1 << 26
	TypeUserDefined17 StoredType = 1 << 27
	TypeUserDefined18 StoredType = 1 << 28
	TypeUserDefined19 StoredType = 1 << 29
	TypeUserDefined20 StoredType = 1 << 30
)

var typeNames = map[StoredType]string{
	TypeString:     "string",
	TypeU8:         "u8",
	TypeU16:        "u16",
	TypeU32:        "u32",
	TypeU64:        "u64",
	TypeVector:     "vector",
	TypeCompressed: "compressed",
}

// Has reports whether t and b share at least one bit.
func (t StoredType) Has(b StoredType) bool { return t&b != 0 }

func (t StoredType) String() string {
	if t == 0 {
		return "none"
	}
	var parts []string
	for bit := 0; bit < 32; bit++ {
		b := StoredType(1) << bit
		if t&b == 0 {
			continue
		}
		if name, ok := typeNames[b]; ok {
			parts = append(parts, name)
		} else if n := userDefinedIndex(bit); n > 0 {
			parts = append(parts, fmt.Sprintf("user%d", n))
		} else {
			parts = append(parts, fmt.Sprintf("bit%d", bit))
		}
	}
	return strings.Join(parts, "|")
}

func userDefinedIndex(bit int) int {
	switch {
	case bit == 10 || bit == 11:
		return bit - 9
	case bit >= 13 && bit <= 30:
		return bit - 10
	}
	return 0
}

// Encodable is implemented by values that know how to store themselves.
type Encodable interface {
	EncodeValue() (payload []byte, flags StoredType, err error)
}

// Decodable is implemented (usually on a pointer) by values that can be
// rebuilt from a stored payload. Implementations should return a
// *TypeMismatchError when flags do not carry the bit they expect.
type Decodable interface {
	DecodeValue(flags StoredType, payload []byte) error
}

// Item is a stored value as it came off the wire.
type Item struct {
	Flags StoredType
	Value []byte
}

func (it Item) EncodeValue() ([]byte, StoredType, error) { return it.Value, it.Flags, nil }

func (it *Item) DecodeValue(flags StoredType, payload []byte) error {
	it.Flags = flags
	it.Value = payload
	return nil
}

// Bytes stores raw bytes under caller-chosen flags, typically TypeVector or
// one of the user defined bits.
type Bytes struct {
	Data  []byte
	Flags StoredType
}

func (b Bytes) EncodeValue() ([]byte, StoredType, error) { return b.Data, b.Flags, nil }

// Encode maps a Go value to its payload and flags. Unsigned integers are
// big-endian, strings are UTF-8 and []byte is stored as TypeVector.
func Encode(v any) ([]byte, StoredType, error) {
	switch x := v.(type) {
	case Encodable:
		return x.EncodeValue()
	case uint8:
		return []byte{x}, TypeU8, nil
	case uint16:
		return binary.BigEndian.AppendUint16(nil, x), TypeU16, nil
	case uint32:
		return binary.BigEndian.AppendUint32(nil, x), TypeU32, nil
	case uint64:
		return binary.BigEndian.AppendUint64(nil, x), TypeU64, nil
	case string:
		return []byte(x), TypeString, nil
	case []byte:
		return x, TypeVector, nil
	}
	return nil, 0, fmt.Errorf("%w: %T", ErrUnsupportedType, v)
}

// DecodeInto fills dst, which must be a pointer to one of the built-in
// types, a *Item, or a Decodable.
func DecodeInto(dst any, flags StoredType, payload []byte) error {
	switch d := dst.(type) {
	case Decodable:
		return d.DecodeValue(flags, payload)
	case *uint8:
		b, err := scalar(flags, TypeU8, payload, 1)
		if err != nil {
			return err
		}
		*d = b[0]
	case *uint16:
		b, err := scalar(flags, TypeU16, payload, 2)
		if err != nil {
			return err
		}
		*d = binary.BigEndian.Uint16(b)
	case *uint32:
		b, err := scalar(flags, TypeU32, payload, 4)
		if err != nil {
			return err
		}
		*d = binary.BigEndian.Uint32(b)
	case *uint64:
		b, err := scalar(flags, TypeU64, payload, 8)
		if err != nil {
			return err
		}
		*d = binary.BigEndian.Uint64(b)
	case *string:
		if !flags.Has(TypeString) {
			return &TypeMismatchError{Flags: flags}
		}
		if !utf8.Valid(payload) {
			return ErrInvalidUTF8
		}
		*d = string(payload)
	case *[]byte:
		*d = payload
	default:
		return fmt.Errorf("%w: %T", ErrUnsupportedType, dst)
	}
	return nil
}

func scalar(flags, want StoredType, payload []byte, width int) ([]byte, error) {
	if !flags.Has(want) {
		return nil, &TypeMismatchError{Flags: flags}
	}
	if len(payload) != width {
		return nil, fmt.Errorf("%w: %s payload is %d bytes, want %d", ErrValueLength, want, len(payload), width)
	}
	return payload, nil
}

// Getter is implemented by *Conn and *Client.
type Getter interface {
	GetInto(key string, dst any) error
}

// Get fetches key and decodes it as T.
//
//	s, err := client.Get[string](c, "Hello Set")
func Get[T any](g Getter, key string) (T, error) {
	var v T
	err := g.GetInto(key, &v)
	return v, err
}
