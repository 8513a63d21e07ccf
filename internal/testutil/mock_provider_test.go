package testutil

import (
	"testing"

	"github.com/driftlock-systems/driftlock/internal/provider/providertest"
)

// The mock must satisfy the same behavioral contract as the real backends so
// engine and controller tests built on it stay honest.
func TestMockProviderConformance(t *testing.T) {
	providertest.RunAll(t, NewMockProvider())
}
