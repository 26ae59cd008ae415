package ledger

import (
	"github.com/upb/securestarter/services"
)

// Kind classifies why an ephemeral token was rejected
type Kind string

const (
	KindNotFound    Kind = "not_found"
	KindExpired     Kind = "expired"
	KindAlreadyUsed Kind = "already_used"
	KindSameSecret  Kind = "same_secret"
)

var messages = map[Kind]string{
	KindNotFound:    "Invalid or expired token",
	KindExpired:     "Token has expired",
	KindAlreadyUsed: "Token has already been used",
	KindSameSecret:  "New password cannot be the same as the old password",
}

// LedgerError is a client-facing token rejection. It unwraps to a validation
// DomainError so the HTTP layer answers 400 with the safe message.
type LedgerError struct {
	Kind Kind
	err  *services.DomainError
}

func newError(kind Kind) *LedgerError {
	return &LedgerError{
		Kind: kind,
		err:  services.Validation(messages[kind]),
	}
}

func (e *LedgerError) Error() string {
	return e.err.Error()
}

func (e *LedgerError) Unwrap() error {
	return e.err
}

// Is matches another *LedgerError of the same kind
func (e *LedgerError) Is(target error) bool {
	t, ok := target.(*LedgerError)
	return ok && t.Kind == e.Kind
}

// Sentinels for errors.Is
var (
	ErrNotFound    = newError(KindNotFound)
	ErrExpired     = newError(KindExpired)
	ErrAlreadyUsed = newError(KindAlreadyUsed)
	ErrSameSecret  = newError(KindSameSecret)
)
