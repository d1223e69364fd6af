package oer

import (
	stderrors "errors"

	"github.com/go-errors/errors"
)

// ErrKind classifies a codec failure. The codec never panics; every
// malformed-input or out-of-range condition is reported through one of
// these two kinds.
type ErrKind uint8

const (
	// ErrUnderflow is returned when a read would require more bytes than
	// remain in the buffer.
	ErrUnderflow ErrKind = iota

	// ErrOutOfRange is returned when a VarUInt length prefix declares
	// zero or more than eight trailing bytes. A length prefix that runs
	// past the end of the buffer is reported as ErrUnderflow instead; the
	// Write* functions take fixed-width Go types and never fail.
	ErrOutOfRange
)

func (k ErrKind) String() string {
	switch k {
	case ErrUnderflow:
		return "underflow"
	case ErrOutOfRange:
		return "out of range"
	default:
		return "unknown codec error"
	}
}

// CodecError wraps an ErrKind with the operation that produced it, so
// callers further up the stack can log or retry based on the kind without
// string-matching error text.
type CodecError struct {
	Kind Kind
	Op   string
	err  error
}

// Kind is an alias retained for readability at call sites
// (oer.CodecError{Kind: oer.ErrUnderflow, ...}).
type Kind = ErrKind

func (e *CodecError) Error() string {
	return e.Op + ": " + e.Kind.String()
}

func (e *CodecError) Unwrap() error {
	return e.err
}

func newUnderflow(op string) error {
	return &CodecError{
		Kind: ErrUnderflow,
		Op:   op,
		err:  errors.Errorf("%s: buffer underflow", op),
	}
}

func newOutOfRange(op string) error {
	return &CodecError{
		Kind: ErrOutOfRange,
		Op:   op,
		err:  errors.Errorf("%s: value out of range", op),
	}
}

// IsUnderflow reports whether err is a CodecError of kind ErrUnderflow.
func IsUnderflow(err error) bool {
	var ce *CodecError
	return stderrors.As(err, &ce) && ce.Kind == ErrUnderflow
}

// IsOutOfRange reports whether err is a CodecError of kind ErrOutOfRange.
func IsOutOfRange(err error) bool {
	var ce *CodecError
	return stderrors.As(err, &ce) && ce.Kind == ErrOutOfRange
}
