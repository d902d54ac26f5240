package claims

import (
	"fmt"

	"github.com/warp/ticket-cover/generic"
)

// InvalidInputError reports a malformed submission or decision field.
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *InvalidInputError) Unwrap() error {
	return generic.ErrInvalidInput
}

// StateError reports an action that is not valid for a claim's status.
type StateError struct {
	ClaimID string
	From    Status
	Action  string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s claim %s: status is %s", e.Action, e.ClaimID, e.From)
}

func (e *StateError) Unwrap() error {
	return generic.ErrStateInconsistency
}
