// Package apperr defines the error kinds shared by all layers. Handlers map a
// kind to a transport status; domain code tags its errors with a kind instead
// of building type hierarchies.
package apperr

import (
	"fmt"
	"strings"

	"github.com/go-faster/errors"
)

// Kind classifies an error for the outer layers.
type Kind uint8

const (
	// KindInternal is the zero kind: storage failures, bugs, anything untagged.
	KindInternal Kind = iota
	// KindNotFound marks a missing user or order.
	KindNotFound
	// KindValidation marks malformed or semantically invalid input.
	KindValidation
	// KindConflict marks a uniqueness violation, e.g. a duplicate email.
	KindConflict
	// KindRewardsEngine marks a failed call to the external rewards engine.
	KindRewardsEngine
	// KindInconsistentState marks an order that was persisted while a later
	// placement step failed.
	KindInconsistentState
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindRewardsEngine:
		return "rewards_engine"
	case KindInconsistentState:
		return "inconsistent_state"
	default:
		return "internal"
	}
}

// Error is a kind-tagged error. Op names the operation that failed, Msg is an
// optional human readable detail and Err the wrapped cause.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
	}
	if e.Msg != "" {
		if b.Len() > 0 {
			b.WriteString(": ")
		}
		b.WriteString(e.Msg)
	}
	if e.Err != nil {
		if b.Len() > 0 {
			b.WriteString(": ")
		}
		b.WriteString(e.Err.Error())
	}
	if b.Len() == 0 {
		return e.Kind.String()
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// New returns a kind-tagged error without a cause.
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap tags err with kind. It returns nil if err is nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Validation is shorthand for a KindValidation error with a formatted message.
func Validation(format string, args ...any) error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

// KindOf reports the kind of the outermost tagged error in the chain, or
// KindInternal if there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
