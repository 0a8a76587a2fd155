package binprot

import "encoding/binary"

const (
	StoreExtrasLen   = 8  // flags:u32 expiration:u32
	CounterExtrasLen = 20 // amount:u64 initial:u64 expiration:u32
	GetExtrasLen     = 4  // flags:u32
	CounterValueLen  = 8
)

// AppendStoreExtras appends the set/add/replace extras.
func AppendStoreExtras(b []byte, flags, expiration uint32) []byte {
	b = binary.BigEndian.AppendUint32(b, flags)
	return binary.BigEndian.AppendUint32(b, expiration)
}

// AppendCounterExtras appends the increment/decrement extras.
func AppendCounterExtras(b []byte, amount, initial uint64, expiration uint32) []byte {
	b = binary.BigEndian.AppendUint64(b, amount)
	b = binary.BigEndian.AppendUint64(b, initial)
	return binary.BigEndian.AppendUint32(b, expiration)
}

func ParseStoreExtras(b []byte) (flags, expiration uint32, ok bool) {
	if len(b) != StoreExtrasLen {
		return 0, 0, false
	}
	return binary.BigEndian.Uint32(b[0:4]), binary.BigEndian.Uint32(b[4:8]), true
}

func ParseCounterExtras(b []byte) (amount, initial uint64, expiration uint32, ok bool) {
	if len(b) != CounterExtrasLen {
		return 0, 0, 0, false
	}
	return binary.BigEndian.Uint64(b[0:8]), binary.BigEndian.Uint64(b[8:16]), binary.BigEndian.Uint32(b[16:20]), true
}
