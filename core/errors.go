package core

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation is matched by every *ValidationError
	ErrValidation = errors.New("validation failed")

	// ErrWeakPassword is returned when a password is below the minimum length
	ErrWeakPassword = errors.New("password too weak")

	// ErrWrongPassword is returned when a password cannot unlock the current keystore
	ErrWrongPassword = errors.New("wrong password")

	// ErrDecryptionFailed is returned on a wrong password or a corrupted keystore entry
	ErrDecryptionFailed = errors.New("decryption failed")

	// ErrHandshakeFailed is returned when the challenge/verify exchange fails
	ErrHandshakeFailed = errors.New("handshake failed")

	// ErrStorage wraps every failure of the persistent store
	ErrStorage = errors.New("storage error")

	// ErrNotFound is returned by stores for missing or expired keys
	ErrNotFound = errors.New("not found")

	// ErrNoSession is returned when an operation needs a live session
	ErrNoSession = errors.New("no active session")

	// ErrSessionSuperseded is returned by a refresh whose session was replaced or cleared meanwhile
	ErrSessionSuperseded = errors.New("session superseded")

	// ErrNoKeystore is returned when no keystore entry is available
	ErrNoKeystore = errors.New("no local keystore")

	// ErrNoCurrentAccount is returned when no current account is selected
	ErrNoCurrentAccount = errors.New("no current account selected")

	// ErrAddressMismatch is returned when a decrypted secret does not belong to the current account
	ErrAddressMismatch = errors.New("address mismatch")

	// ErrInvalidAddress is returned for malformed account addresses
	ErrInvalidAddress = errors.New("invalid address")

	// ErrUnknownNamespace is returned for forward namespaces not in the registry
	ErrUnknownNamespace = errors.New("unknown forward namespace")

	// ErrRelayFailed is returned when the relayer cannot be reached or answers non-2xx
	ErrRelayFailed = errors.New("relay request failed")

	// ErrRelayRejected is returned when the relayer refuses a forward request
	ErrRelayRejected = errors.New("relay request rejected")

	// ErrDispatch is matched by every *DispatchError
	ErrDispatch = errors.New("dispatch error")

	ErrInvalidSignature = errors.New("invalid signature")
	ErrInvalidChallenge = errors.New("invalid challenge")
	ErrChallengeExpired = errors.New("challenge has expired")
	ErrInvalidToken     = errors.New("invalid token")
	ErrTokenExpired     = errors.New("token has expired")
	ErrTokenRevoked     = errors.New("token has been revoked")
)

// ValidationError describes a malformed request. It is a caller bug and is never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// DispatchError is a call rejected by the chain runtime. It is surfaced verbatim.
type DispatchError struct {
	Module string   `json:"module,omitempty"`
	Name   string   `json:"name,omitempty"`
	Docs   []string `json:"docs,omitempty"`
	Raw    string   `json:"raw,omitempty"`
}

func (e *DispatchError) Error() string {
	if e.Module == "" && e.Name == "" {
		if e.Raw == "" {
			return "dispatch error"
		}
		return e.Raw
	}
	msg := e.Module + "." + e.Name
	if len(e.Docs) > 0 {
		msg += ": " + strings.Join(e.Docs, " ")
	}
	return msg
}

func (e *DispatchError) Is(target error) bool {
	return target == ErrDispatch
}
