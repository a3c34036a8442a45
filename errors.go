package arbiter

import (
	"errors"

	"github.com/xraph/arbiter/decisionlog"
	"github.com/xraph/arbiter/policy"
)

var (
	// ErrAccessDenied is returned by Enforce when the decision is deny.
	ErrAccessDenied = errors.New("arbiter: access denied")

	// ErrPolicyNotFound is returned when a policy cannot be found.
	ErrPolicyNotFound = policy.ErrNotFound

	// ErrInvalidPolicy is returned when a policy fails validation.
	ErrInvalidPolicy = policy.ErrInvalid

	// ErrDuplicatePolicy is returned when a tenant already has a policy
	// with the same name.
	ErrDuplicatePolicy = policy.ErrDuplicateName

	// ErrInvalidCondition describes an attribute rule that cannot be
	// evaluated. Matchers surface it as a mismatch reason, never as an
	// error from evaluation.
	ErrInvalidCondition = errors.New("arbiter: invalid policy condition")

	// ErrDecisionLogNotFound is returned when a decision log entry cannot
	// be found.
	ErrDecisionLogNotFound = decisionlog.ErrNotFound

	// ErrInvalidContext is returned when an evaluation context lacks a
	// resource type or an action.
	ErrInvalidContext = errors.New("arbiter: invalid evaluation context")

	// ErrStoreRequired is returned by NewEngine without a store.
	ErrStoreRequired = errors.New("arbiter: store is required")
)
