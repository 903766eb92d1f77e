package ecorelease

import (
	"errors"
	"fmt"
)

// Kind classifies contract failures.
type Kind uint8

const (
	KindUnknown Kind = iota
	// KindValidation marks malformed or out-of-range input and corrupted data.
	KindValidation
	// KindAuthorization marks a caller that is not the required owner or oracle.
	KindAuthorization
	// KindBusinessState marks operations disallowed by the contract lifecycle.
	KindBusinessState
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthorization:
		return "authorization"
	case KindBusinessState:
		return "business_state"
	default:
		return "unknown"
	}
}

// Error is a classified contract failure. Sentinel values are compared by
// identity, so errors.Is works on wrapped instances.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

var (
	ErrExpiredOnCreate  = &Error{Kind: KindValidation, Msg: "creating expired contract"}
	ErrNegativeSupply   = &Error{Kind: KindValidation, Msg: "total tokens must not be negative"}
	ErrCorruptedBalance = &Error{Kind: KindValidation, Msg: "corrupted data found: 16 byte expected"}
	ErrBalanceOverflow  = &Error{Kind: KindValidation, Msg: "balance exceeds 128 bits"}
	ErrEcostateOverflow = &Error{Kind: KindValidation, Msg: "ecostate arithmetic overflow"}
	ErrUnauthorized     = &Error{Kind: KindAuthorization, Msg: "unauthorized"}
	ErrNotStarted       = &Error{Kind: KindBusinessState, Msg: "the contract has not been started"}
	ErrExpired          = &Error{Kind: KindBusinessState, Msg: "the contract has expired"}
	ErrLocked           = &Error{Kind: KindBusinessState, Msg: "the contract is locked"}
	ErrDone             = &Error{Kind: KindBusinessState, Msg: "the contract status is DONE"}
	ErrUnknownMessage   = &Error{Kind: KindValidation, Msg: "unknown message"}

	// ErrNotInitialized is returned when the singleton state has not been saved.
	ErrNotInitialized = errors.New("ecorelease: contract state not found")
)

func invalid(msg string, err error) *Error {
	return &Error{Kind: KindValidation, Msg: msg, Err: err}
}

// KindOf returns the classification of err or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
