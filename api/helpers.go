package api

import (
	"errors"

	"github.com/xraph/forge"

	"github.com/xraph/arbiter"
)

// mapError maps domain errors to Forge HTTP errors.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if isNotFound(err) {
		return forge.NotFound(err.Error())
	}
	if errors.Is(err, arbiter.ErrInvalidPolicy) || errors.Is(err, arbiter.ErrDuplicatePolicy) {
		return forge.BadRequest(err.Error())
	}
	if errors.Is(err, arbiter.ErrInvalidContext) || errors.Is(err, arbiter.ErrInvalidCondition) {
		return forge.BadRequest(err.Error())
	}
	if errors.Is(err, arbiter.ErrAccessDenied) {
		return forge.Forbidden(err.Error())
	}
	return err
}

func isNotFound(err error) bool {
	return errors.Is(err, arbiter.ErrPolicyNotFound) ||
		errors.Is(err, arbiter.ErrDecisionLogNotFound)
}

func defaultLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > 1000 {
		return 1000
	}
	return limit
}
