package bigfile

import (
	"fmt"

	"github.com/pkg/errors"
)

// Error kinds. Every error returned by this package matches exactly one of
// them through errors.Is.
var (
	// ErrFormat is fatal: bad signature, out-of-range header offset or an
	// unsupported version.
	ErrFormat = errors.New("bigfile: format error")
	// ErrIO covers short reads, seek failures and undecodable payload streams.
	ErrIO = errors.New("bigfile: io error")
	// ErrNotFound is returned for keys absent from the file table or stubs.
	ErrNotFound = errors.New("bigfile: not found")
	// ErrParse is returned when an asset payload cannot be decoded.
	ErrParse = errors.New("bigfile: parse error")
	// ErrEncoding marks a fixed-width name with non-ASCII bytes.
	ErrEncoding = errors.New("bigfile: encoding error")
	// ErrCycle is returned when a folder chain loops back on itself.
	ErrCycle = errors.New("bigfile: cycle detected")
)

// Error carries the failing operation and, for per-asset failures, the key.
type Error struct {
	Op   string
	Kind error
	Key  Key
	Err  error
}

func (e *Error) Error() string {
	msg := e.Op
	if e.Key != NoKey {
		msg += fmt.Sprintf(" key=%s", e.Key)
	}
	msg += ": " + e.Kind.Error()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(op string, kind error, key Key, err error) *Error {
	return &Error{Op: op, Kind: kind, Key: key, Err: err}
}

// KeyError builds a per-asset error. Collaborators such as the object store
// use it so every asset failure carries its key.
func KeyError(op string, kind error, key Key, err error) error {
	return newError(op, kind, key, err)
}

func formatErrorf(op string, format string, args ...any) error {
	return newError(op, ErrFormat, NoKey, errors.Errorf(format, args...))
}

func ioError(op string, err error) error {
	return newError(op, ErrIO, NoKey, errors.WithStack(err))
}

// KeyOf returns the key attached to err, or NoKey.
func KeyOf(err error) Key {
	var e *Error
	if errors.As(err, &e) {
		return e.Key
	}
	return NoKey
}
