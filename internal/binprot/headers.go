package binprot

import (
	"encoding/binary"
	"io"
)

type RequestHeader struct {
	Magic           uint8 // always 0x80
	Opcode          Opcode
	KeyLength       uint16
	ExtraLength     uint8
	DataType        uint8  // always 0
	Reserved        uint16 // vbucket on the server side, unused
	TotalBodyLength uint32
	OpaqueToken     uint32
	CASToken        uint64
}

type ResponseHeader struct {
	Magic           uint8 // always 0x81
	Opcode          Opcode
	KeyLength       uint16
	ExtraLength     uint8
	DataType        uint8
	Status          Status
	TotalBodyLength uint32
	OpaqueToken     uint32
	CASToken        uint64
}

// ValueLength is the part of the body that follows extras and key. It is
// negative when the header lengths are inconsistent.
func (rh ResponseHeader) ValueLength() int {
	return int(rh.TotalBodyLength) - int(rh.ExtraLength) - int(rh.KeyLength)
}

func (rh RequestHeader) ValueLength() int {
	return int(rh.TotalBodyLength) - int(rh.ExtraLength) - int(rh.KeyLength)
}

// MakeRequestHeader builds a request header. The body length is always
// extras + key + value.
func MakeRequestHeader(opcode Opcode, keyLength, valueLength, extraLength int, cas uint64) (RequestHeader, error) {
	if keyLength <= 0 || keyLength > MaxKeyLength {
		return RequestHeader{}, &KeyLengthError{Len: keyLength}
	}
	return RequestHeader{
		Magic:           MagicRequest,
		Opcode:          opcode,
		KeyLength:       uint16(keyLength),
		ExtraLength:     uint8(extraLength),
		TotalBodyLength: uint32(keyLength + valueLength + extraLength),
		CASToken:        cas,
	}, nil
}

func MakeResponseHeader(opcode Opcode, status Status, keyLength, valueLength, extraLength int, opaque uint32) ResponseHeader {
	return ResponseHeader{
		Magic:           MagicResponse,
		Opcode:          opcode,
		KeyLength:       uint16(keyLength),
		ExtraLength:     uint8(extraLength),
		Status:          status,
		TotalBodyLength: uint32(keyLength + valueLength + extraLength),
		OpaqueToken:     opaque,
	}
}

func WriteRequestHeader(w io.Writer, rh RequestHeader) error {
	var buf [HeaderLen]byte
	buf[0] = rh.Magic
	buf[1] = uint8(rh.Opcode)
	binary.BigEndian.PutUint16(buf[2:4], rh.KeyLength)
	buf[4] = rh.ExtraLength
	buf[5] = rh.DataType
	binary.BigEndian.PutUint16(buf[6:8], rh.Reserved)
	binary.BigEndian.PutUint32(buf[8:12], rh.TotalBodyLength)
	binary.BigEndian.PutUint32(buf[12:16], rh.OpaqueToken)
	binary.BigEndian.PutUint64(buf[16:24], rh.CASToken)
	_, err := w.Write(buf[:])
	return err
}

// ReadResponseHeader reads 24 bytes and validates the magic byte. Every other
// field is returned as is; interpreting the status is up to the caller.
func ReadResponseHeader(r io.Reader) (ResponseHeader, error) {
	var buf [HeaderLen]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return ResponseHeader{}, err
	}
	if buf[0] != MagicResponse {
		return ResponseHeader{}, ErrBadMagic
	}
	return ResponseHeader{
		Magic:           buf[0],
		Opcode:          Opcode(buf[1]),
		KeyLength:       binary.BigEndian.Uint16(buf[2:4]),
		ExtraLength:     buf[4],
		DataType:        buf[5],
		Status:          Status(binary.BigEndian.Uint16(buf[6:8])),
		TotalBodyLength: binary.BigEndian.Uint32(buf[8:12]),
		OpaqueToken:     binary.BigEndian.Uint32(buf[12:16]),
		CASToken:        binary.BigEndian.Uint64(buf[16:24]),
	}, nil
}

func ReadRequestHeader(r io.Reader) (RequestHeader, error) {
	var buf [HeaderLen]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return RequestHeader{}, err
	}
	if buf[0] != MagicRequest {
		return RequestHeader{}, ErrBadMagic
	}
	return RequestHeader{
		Magic:           buf[0],
		Opcode:          Opcode(buf[1]),
		KeyLength:       binary.BigEndian.Uint16(buf[2:4]),
		ExtraLength:     buf[4],
		DataType:        buf[5],
		Reserved:        binary.BigEndian.Uint16(buf[6:8]),
		TotalBodyLength: binary.BigEndian.Uint32(buf[8:12]),
		OpaqueToken:     binary.BigEndian.Uint32(buf[12:16]),
		CASToken:        binary.BigEndian.Uint64(buf[16:24]),
	}, nil
}

func WriteResponseHeader(w io.Writer, rh ResponseHeader) error {
	var buf [HeaderLen]byte
	buf[0] = rh.Magic
	buf[1] = uint8(rh.Opcode)
	binary.BigEndian.PutUint16(buf[2:4], rh.KeyLength)
	buf[4] = rh.ExtraLength
	buf[5] = rh.DataType
	binary.BigEndian.PutUint16(buf[6:8], uint16(rh.Status))
	binary.BigEndian.PutUint32(buf[8:12], rh.TotalBodyLength)
	binary.BigEndian.PutUint32(buf[12:16], rh.OpaqueToken)
	binary.BigEndian.PutUint64(buf[16:24], rh.CASToken)
	_, err := w.Write(buf[:])
	return err
}
