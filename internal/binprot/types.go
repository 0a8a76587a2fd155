package binprot

import "fmt"

const (
	MagicRequest  = 0x80
	MagicResponse = 0x81

	HeaderLen    = 24
	MaxKeyLength = 250
)

// Opcode identifies a binary protocol command.
type Opcode uint8

const (
	OpGet       Opcode = 0x00
	OpSet       Opcode = 0x01
	OpAdd       Opcode = 0x02
	OpReplace   Opcode = 0x03
	OpDelete    Opcode = 0x04
	OpIncrement Opcode = 0x05
	OpDecrement Opcode = 0x06
)

func (o Opcode) String() string {
	switch o {
	case OpGet:
		return "get"
	case OpSet:
		return "set"
	case OpAdd:
		return "add"
	case OpReplace:
		return "replace"
	case OpDelete:
		return "delete"
	case OpIncrement:
		return "increment"
	case OpDecrement:
		return "decrement"
	}
	return fmt.Sprintf("opcode(0x%02x)", uint8(o))
}

// Status is the 16 bit response status code.
type Status uint16

const (
	StatusSuccess        Status = 0x00
	StatusKeyNotFound    Status = 0x01
	StatusKeyExists      Status = 0x02
	StatusAuthError      Status = 0x08
	StatusUnknownCommand Status = 0x81
)

// Known reports whether s is one of the statuses this client understands.
// Anything else on a response is a decoding failure.
func (s Status) Known() bool {
	switch s {
	case StatusSuccess, StatusKeyNotFound, StatusKeyExists, StatusAuthError, StatusUnknownCommand:
		return true
	}
	return false
}

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusKeyNotFound:
		return "key not found"
	case StatusKeyExists:
		return "key exists"
	case StatusAuthError:
		return "auth error"
	case StatusUnknownCommand:
		return "unknown command"
	}
	return fmt.Sprintf("status(0x%04x)", uint16(s))
}
