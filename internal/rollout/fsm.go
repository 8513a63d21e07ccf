// Package rollout owns the model version lifecycle: registration, canary,
// promotion, rollback, and traffic routing.
package rollout

import (
	"errors"
	"fmt"

	"github.com/driftlock-systems/driftlock/pkg/types"
)

// ErrInvalidTransition is returned for lifecycle moves outside the
// transition table.
var ErrInvalidTransition = errors.New("invalid model status transition")

// Transition table: from -> allowed tos
var validTransitions = map[types.ModelStatus][]types.ModelStatus{
	types.ModelCandidate: {types.ModelCanary, types.ModelRetired},
	types.ModelCanary:    {types.ModelActive, types.ModelRetired},
	types.ModelActive:    {types.ModelRetired},
	types.ModelRetired:   {},
}

// CanTransition checks if moving from one model status to another is valid.
func CanTransition(from, to types.ModelStatus) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// Transition validates a lifecycle move, returning ErrInvalidTransition for
// anything outside the table.
func Transition(from, to types.ModelStatus) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// IsTerminal returns true if the status is a terminal (final) state.
func IsTerminal(status types.ModelStatus) bool {
	return status == types.ModelRetired
}
