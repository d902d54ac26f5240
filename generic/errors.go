/*
errors.go - Centralized error types for the coverage engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Domain packages wrap these errors with additional context.

ERROR CATEGORIES:
  1. Input errors - Malformed claim or decision data (InvalidInput)
  2. State errors - Caller asked for an impossible transition (StateInconsistency)
  3. Catalog errors - Unknown plan tier or denial code
  4. Store errors - Persistence failures, missing records, duplicate keys

  Business-rule rejections (waiting period, cap exceeded, ...) are NOT errors.
  They come back as structured eligibility results carrying a denial code.

USAGE:
  if errors.Is(err, generic.ErrStateInconsistency) {
      // caller bug: e.g. approving an already-paid claim
  }

SEE ALSO:
  - claims/errors.go: InvalidInputError and StateError wrap these sentinels
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidInput is returned when claim or decision data is malformed
	// (non-positive amount, unparseable date, missing ticket number).
	ErrInvalidInput = errors.New("invalid input")

	// ErrStateInconsistency is returned when a claim or ledger operation is
	// not valid for the current state, e.g. approving a paid claim.
	ErrStateInconsistency = errors.New("state inconsistency")

	// ErrUnknownPlan is returned when a plan tier is not in the catalog.
	ErrUnknownPlan = errors.New("unknown plan")

	// ErrUnknownDenialCode is returned when a denial code is not in the catalog.
	ErrUnknownDenialCode = errors.New("unknown denial code")

	// ErrDuplicateIdempotencyKey is returned when a transaction with the same
	// idempotency key already exists. This is expected behavior for retries.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// ErrTransactionFailed is returned when a transaction cannot be persisted.
	ErrTransactionFailed = errors.New("transaction failed")

	// ErrInvariantViolation is returned when a ledger would break
	// 0 <= used <= cap or 0 <= tickets <= max.
	ErrInvariantViolation = errors.New("coverage invariant violated")

	ErrUserNotFound   = errors.New("user not found")
	ErrClaimNotFound  = errors.New("claim not found")
	ErrLedgerNotFound = errors.New("coverage ledger not found")

	// ErrInvalidPeriod is returned when a period is malformed (end not after start).
	ErrInvalidPeriod = errors.New("invalid period: end not after start")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InvariantError describes which ledger bound was broken.
type InvariantError struct {
	EntityID EntityID
	Field    string
	Value    string
	Bound    string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("coverage invariant violated for %s: %s=%s outside %s",
		e.EntityID, e.Field, e.Value, e.Bound)
}

func (e *InvariantError) Unwrap() error {
	return ErrInvariantViolation
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrUnknownPlan) ||
		errors.Is(err, ErrInvalidPeriod)
}

// IsConflict returns true if the request conflicts with current state.
func IsConflict(err error) bool {
	return errors.Is(err, ErrStateInconsistency) ||
		errors.Is(err, ErrDuplicateIdempotencyKey)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrClaimNotFound) ||
		errors.Is(err, ErrLedgerNotFound)
}
