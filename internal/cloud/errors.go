package cloud

import (
	"errors"
	"fmt"
)

// Sentinels for the remote error taxonomy. Use errors.Is against these.
var (
	ErrNetwork       = errors.New("network failure")
	ErrAuth          = errors.New("not authenticated")
	ErrPartialRecord = errors.New("partial record")
	ErrNotFound      = errors.New("record not found")
)

type Kind int

const (
	KindNetwork Kind = iota + 1
	KindAuth
	KindPartialRecord
	KindNotFound
)

func (k Kind) sentinel() error {
	switch k {
	case KindNetwork:
		return ErrNetwork
	case KindAuth:
		return ErrAuth
	case KindPartialRecord:
		return ErrPartialRecord
	case KindNotFound:
		return ErrNotFound
	}
	return nil
}

func (k Kind) String() string {
	if s := k.sentinel(); s != nil {
		return s.Error()
	}
	return "unknown"
}

// Error is a classified failure of a remote operation.
type Error struct {
	Op         string // e.g. "query", "create", "update", "fetch asset", "decode"
	Kind       Kind
	RecordType RecordType // optional
	RecordID   string     // optional
	Err        error      // optional underlying error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("cloud %s", e.Op)
	if e.RecordType != "" {
		msg += " " + string(e.RecordType)
	}
	if e.RecordID != "" {
		msg += " " + e.RecordID
	}
	msg += ": " + e.Kind.String()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the error's kind.
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

func NewError(op string, kind Kind, rt RecordType, id string, err error) *Error {
	return &Error{Op: op, Kind: kind, RecordType: rt, RecordID: id, Err: err}
}

// Retryable reports whether err is a transient remote failure.
func Retryable(err error) bool {
	return errors.Is(err, ErrNetwork)
}
