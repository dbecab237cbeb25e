// Package apierr implements the coordination engine's recoverable error
// taxonomy (spec §7). Recoverable errors are returned as structured values
// rather than surfaced as transport failures; callers type-assert with
// errors.As to inspect Kind/Data.
package apierr

import "fmt"

// Kind is a machine-readable error category.
type Kind string

const (
	NotFound                 Kind = "NOT_FOUND"
	RecipientNotFound        Kind = "RECIPIENT_NOT_FOUND"
	ContactRequired          Kind = "CONTACT_REQUIRED"
	ContactBlocked           Kind = "CONTACT_BLOCKED"
	FileReservationConflict  Kind = "FILE_RESERVATION_CONFLICT"
	InvalidArgument          Kind = "INVALID_ARGUMENT"
	CapabilityDenied         Kind = "CAPABILITY_DENIED"
	UnhandledException       Kind = "UNHANDLED_EXCEPTION"
)

// recoverableKinds mirrors the table in spec §7.
var recoverableKinds = map[Kind]bool{
	NotFound:                true,
	RecipientNotFound:       true,
	ContactRequired:         true,
	ContactBlocked:          false,
	FileReservationConflict: true,
	InvalidArgument:         true,
	CapabilityDenied:        false,
	UnhandledException:      false,
}

// Error is the structured payload shape: {type, message, recoverable, data}.
type Error struct {
	Kind        Kind
	Message     string
	Recoverable bool
	Data        map[string]any
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// New builds an *Error with recoverability derived from Kind.
func New(kind Kind, message string, data map[string]any) *Error {
	return &Error{
		Kind:        kind,
		Message:     message,
		Recoverable: recoverableKinds[kind],
		Data:        data,
	}
}

// Is allows errors.Is(err, apierr.New(kind, "", nil)) to match on Kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}
