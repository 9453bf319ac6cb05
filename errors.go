package isobox

import (
	"errors"
	"fmt"
)

func asError(err error, target **Error) bool {
	return errors.As(err, target)
}

// Kind classifies the error conditions a caller of this package can see.
type Kind int

const (
	// KindInvalidArgument signals a null handle, empty path, or
	// otherwise inconsistent caller parameter.
	KindInvalidArgument Kind = iota
	// KindNotFound signals an absent track ID, a sample-by-time query
	// with no candidate, or a seek target out of range.
	KindNotFound
	// KindProtocolError signals a file that parses but violates an
	// invariant (size mismatch, bad descriptor tag, non-monotonic dts,
	// truncated descriptor).
	KindProtocolError
	// KindBufferExhausted signals a caller-supplied output buffer
	// smaller than the sample, or a mux header region too small.
	KindBufferExhausted
	// KindUnsupported signals an unknown stsd codec or an unsupported
	// recovery file version.
	KindUnsupported
	// KindIoError signals an underlying filesystem call failure.
	KindIoError
	// KindAlreadyExists signals an attempt to rebuild a sample table
	// that was already built.
	KindAlreadyExists
)

func (k Kind) String() string {
	switch k {
	case KindInvalidArgument:
		return "invalid argument"
	case KindNotFound:
		return "not found"
	case KindProtocolError:
		return "protocol error"
	case KindBufferExhausted:
		return "buffer exhausted"
	case KindUnsupported:
		return "unsupported"
	case KindIoError:
		return "io error"
	case KindAlreadyExists:
		return "already exists"
	default:
		return "unknown"
	}
}

// Error is the error type returned across package boundaries. Op names the
// failing operation (e.g. "demux.Open", "mux.AddSample") for diagnostics.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same Kind, so that
// errors.Is(err, isobox.NewError(KindNotFound, "", nil)) matches any
// *Error of kind KindNotFound regardless of Op/Err.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}

// NewError constructs an *Error.
func NewError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the Kind from err if it is (or wraps) an *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if !asError(err, &e) {
		return 0, false
	}
	return e.Kind, true
}
