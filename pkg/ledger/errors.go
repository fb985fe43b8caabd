package ledger

import (
	"errors"
	"fmt"
)

// Kind is the machine-readable classification of a ledger error.
type Kind string

const (
	KindNotFound   Kind = "NOT_FOUND"
	KindValidation Kind = "VALIDATION"
	KindConflict   Kind = "CONFLICT"
	KindStore      Kind = "STORE"
)

// Error carries a kind for callers plus a human-readable message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func validationf(format string, args ...any) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func conflictf(format string, args ...any) error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

func storeErr(op string, err error) error {
	return &Error{Kind: KindStore, Message: fmt.Sprintf("%s: %v", op, err), Err: err}
}

// ErrKind reports the kind of err, or KindStore for anything that is not a
// ledger error.
func ErrKind(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindStore
}
