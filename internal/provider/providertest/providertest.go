// Package providertest provides shared conformance tests for provider.Provider
// implementations. Call RunAll from a test function to verify a provider
// satisfies the full behavioral contract.
package providertest

import (
	"testing"

	"github.com/driftlock-systems/driftlock/internal/provider"
)

// RunAll runs the complete provider conformance suite as subtests.
func RunAll(t *testing.T, prov provider.Provider) {
	t.Helper()

	t.Run("ModelVersionCRUD", func(t *testing.T) { TestModelVersionCRUD(t, prov) })
	t.Run("CompareAndSwap", func(t *testing.T) { TestCompareAndSwap(t, prov) })
	t.Run("FeatureSnapshots", func(t *testing.T) { TestFeatureSnapshots(t, prov) })
	t.Run("PredictionRoundTrip", func(t *testing.T) { TestPredictionRoundTrip(t, prov) })
	t.Run("GroundTruthRoundTrip", func(t *testing.T) { TestGroundTruthRoundTrip(t, prov) })
	t.Run("DriftReports", func(t *testing.T) { TestDriftReports(t, prov) })
	t.Run("PerformanceSummary", func(t *testing.T) { TestPerformanceSummary(t, prov) })
	t.Run("Decisions", func(t *testing.T) { TestDecisions(t, prov) })
	t.Run("EventAppendAndList", func(t *testing.T) { TestEventAppendAndList(t, prov) })
	t.Run("ReadEventsSince", func(t *testing.T) { TestReadEventsSince(t, prov) })
	t.Run("Staleness", func(t *testing.T) { TestStaleness(t, prov) })
	t.Run("Locking", func(t *testing.T) { TestLocking(t, prov) })
}
