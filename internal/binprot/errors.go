package binprot

import (
	"errors"
	"fmt"
)

var (
	// ErrDesync marks a frame that fails structural validation.
	ErrDesync = errors.New("protocol desync")

	ErrBadMagic = fmt.Errorf("%w: bad magic", ErrDesync)
)

// KeyLengthError is returned before any I/O when a key is empty or longer
// than MaxKeyLength.
type KeyLengthError struct {
	Len int
}

func (e *KeyLengthError) Error() string {
	return fmt.Sprintf("key length %d out of range (1..%d)", e.Len, MaxKeyLength)
}
