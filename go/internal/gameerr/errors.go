package gameerr

import (
	"errors"
	"fmt"
)

// Kind classifies an operational error. The string value is the wire code
// carried by error events.
type Kind string

const (
	KindValidation       Kind = "VALIDATION_ERROR"
	KindInvalidOperation Kind = "INVALID_OPERATION"
	KindNotFound         Kind = "NOT_FOUND"
	KindGameFull         Kind = "GAME_FULL"
	KindMessageParse     Kind = "MESSAGE_PARSE_ERROR"
	KindInternal         Kind = "INTERNAL_ERROR"
)

// InternalMessage is the only text a client sees for non-operational failures.
const InternalMessage = "Internal server error"

// Error is an operational game error. Operational errors are recoverable: they
// are reported to the acting connection and leave session state untouched.
type Error struct {
	Kind    Kind
	Op      string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Is lets errors.Is match on kind alone, e.g. errors.Is(err, ErrNotFound).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Kind == e.Kind
}

// Sentinels for errors.Is comparisons by kind.
var (
	ErrValidation       = &Error{Kind: KindValidation}
	ErrInvalidOperation = &Error{Kind: KindInvalidOperation}
	ErrNotFound         = &Error{Kind: KindNotFound}
	ErrGameFull         = &Error{Kind: KindGameFull}
	ErrMessageParse     = &Error{Kind: KindMessageParse}
)

func Validation(format string, args ...any) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func InvalidOperation(op, reason string) error {
	return &Error{
		Kind:    KindInvalidOperation,
		Op:      op,
		Message: fmt.Sprintf("Invalid operation: %s. %s", op, reason),
	}
}

func NotFound(resource, id string) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s with id %s not found", resource, id)}
}

func GameFull(max int) error {
	return &Error{Kind: KindGameFull, Message: fmt.Sprintf("Game is full (max %d players)", max)}
}

func MessageParse(reason string) error {
	return &Error{Kind: KindMessageParse, Message: reason}
}

// KindOf reports the kind of err, or KindInternal when err is not an
// operational game error.
func KindOf(err error) Kind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return KindInternal
}

// IsOperational reports whether err is a recoverable game error.
func IsOperational(err error) bool {
	return KindOf(err) != KindInternal
}
