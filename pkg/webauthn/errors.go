// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of crypto-toolkit.
//
// crypto-toolkit is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package webauthn

import (
	"errors"
	"fmt"
)

// Sentinel errors for ceremony and challenge operations.
var (
	// ErrChallengeNotFound is returned when no live challenge matches the
	// reference, the bound user, and the ceremony type.
	ErrChallengeNotFound = errors.New("challenge not found")

	// ErrChallengeExpired is returned when the challenge exists but its
	// TTL has elapsed.
	ErrChallengeExpired = errors.New("challenge expired")

	// ErrChallengeConsumed is returned when the challenge was already
	// consumed by an earlier verification attempt.
	ErrChallengeConsumed = errors.New("challenge already consumed")

	// ErrCredentialNotFound is returned when a credential cannot be found.
	ErrCredentialNotFound = errors.New("credential not found")

	// ErrCredentialExists is returned when registering a duplicate credential.
	ErrCredentialExists = errors.New("credential already exists")

	// ErrNoCredentials is returned when a user has no registered credentials.
	ErrNoCredentials = errors.New("user has no registered credentials")

	// ErrCredentialUnknown is returned when an assertion references a
	// credential this service has never registered.
	ErrCredentialUnknown = errors.New("unknown credential")

	// ErrSignatureInvalid is returned when the authenticator response
	// fails cryptographic verification.
	ErrSignatureInvalid = errors.New("signature verification failed")

	// ErrOriginMismatch is returned when the client data origin does not
	// match a configured relying party origin.
	ErrOriginMismatch = errors.New("origin mismatch")

	// ErrRPIDMismatch is returned when the response was produced for a
	// different relying party identifier.
	ErrRPIDMismatch = errors.New("relying party id mismatch")

	// ErrCounterRegression is returned when an assertion's signature
	// counter is not strictly greater than the stored counter. A
	// non-increasing counter is the cloning-detection signal and is
	// always a hard failure.
	ErrCounterRegression = errors.New("signature counter regression")

	// ErrNotConfigured is returned when the service is not properly configured.
	ErrNotConfigured = errors.New("webauthn service not configured")
)

// CeremonyError wraps an error with the operation that produced it.
type CeremonyError struct {
	Op  string // Operation that failed
	Err error  // Underlying error
}

// Error returns the error message.
func (e *CeremonyError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *CeremonyError) Unwrap() error {
	return e.Err
}

// Is reports whether the target error matches.
func (e *CeremonyError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewError creates a new CeremonyError with the given operation and error.
func NewError(op string, err error) error {
	return &CeremonyError{
		Op:  op,
		Err: err,
	}
}

// WrapError wraps an error with an operation name if it's not nil.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	return NewError(op, err)
}

// IsChallengeFailure returns true if the error belongs to the challenge
// taxonomy (not found, expired, or consumed).
func IsChallengeFailure(err error) bool {
	return errors.Is(err, ErrChallengeNotFound) ||
		errors.Is(err, ErrChallengeExpired) ||
		errors.Is(err, ErrChallengeConsumed)
}

// IsVerificationFailure returns true if the error indicates the signed
// response itself failed verification.
func IsVerificationFailure(err error) bool {
	return errors.Is(err, ErrSignatureInvalid) ||
		errors.Is(err, ErrOriginMismatch) ||
		errors.Is(err, ErrRPIDMismatch)
}
