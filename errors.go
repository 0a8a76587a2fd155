package client

import (
	"errors"
	"fmt"
	"net"
	"os"

	"github.com/jsp-lqk/bmemcached/internal/binprot"
)

type Status = binprot.Status

const (
	StatusSuccess        = binprot.StatusSuccess
	StatusKeyNotFound    = binprot.StatusKeyNotFound
	StatusKeyExists      = binprot.StatusKeyExists
	StatusAuthError      = binprot.StatusAuthError
	StatusUnknownCommand = binprot.StatusUnknownCommand
)

// StatusError is a well formed response carrying a non-success status.
// errors.Is matches any StatusError with the same status, so
// errors.Is(err, ErrKeyExists) works for every returned instance.
type StatusError struct {
	Status Status
}

func (e *StatusError) Error() string { return "bmemcached: " + e.Status.String() }

func (e *StatusError) Is(target error) bool {
	t, ok := target.(*StatusError)
	return ok && t.Status == e.Status
}

var (
	ErrKeyNotFound    = &StatusError{Status: StatusKeyNotFound}
	ErrKeyExists      = &StatusError{Status: StatusKeyExists}
	ErrAuthError      = &StatusError{Status: StatusAuthError}
	ErrUnknownCommand = &StatusError{Status: StatusUnknownCommand}
)

var (
	// ErrProtocolDesync means a response failed structural validation. The
	// connection it came from is no longer usable.
	ErrProtocolDesync = binprot.ErrDesync

	ErrInvalidUTF8          = errors.New("bmemcached: value is not valid utf-8")
	ErrUnsupportedType      = errors.New("bmemcached: unsupported value type")
	ErrValueLength          = errors.New("bmemcached: value has the wrong length")
	ErrConnectionOverloaded = errors.New("bmemcached: connection overloaded")
	ErrTimeout              = errors.New("bmemcached: i/o timeout")
	ErrClosed               = errors.New("bmemcached: connection closed")
)

// KeyTooLongError is returned, without any I/O, for keys that are empty or
// longer than 250 bytes.
type KeyTooLongError = binprot.KeyLengthError

// TypeMismatchError carries the flags that were actually stored.
type TypeMismatchError struct {
	Flags StoredType
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("bmemcached: stored type %s does not match the requested type", e.Flags)
}

// TransportError wraps a failed read, write or connect on a backend stream.
type TransportError struct {
	Addr string
	Op   string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("bmemcached: %s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool {
	return target == ErrTimeout && isTimeout(e.Err)
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
