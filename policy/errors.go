package policy

import "errors"

var (
	// ErrNotFound is returned by stores when a policy does not exist.
	ErrNotFound = errors.New("arbiter: policy not found")

	// ErrInvalid is returned when a policy fails validation.
	ErrInvalid = errors.New("arbiter: invalid policy")

	// ErrDuplicateName is returned when a tenant already has a policy with
	// the same name.
	ErrDuplicateName = errors.New("arbiter: policy name already exists")
)
