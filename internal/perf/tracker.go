// Package perf maintains rolling prediction-quality metrics from matched
// prediction/ground-truth pairs.
package perf

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/driftlock-systems/driftlock/internal/metrics"
	"github.com/driftlock-systems/driftlock/pkg/types"
)

// ErrInsufficientMatchedData is returned when too few matched pairs exist for
// a meaningful metric. Callers get an explicit "not enough data" signal
// rather than a misleading number.
var ErrInsufficientMatchedData = errors.New("insufficient matched data for performance metrics")

// Tracker defaults applied when the config leaves fields zero.
const (
	defaultWindowSize      = 1000
	defaultWindowSpan      = 24 * time.Hour
	defaultMaxLabelLatency = 72 * time.Hour
	defaultMinMatchedPairs = 100
	defaultPositiveLabel   = "1"
)

// pending is a prediction awaiting its ground truth.
type pending struct {
	predictedLabel string
	latencyMillis  int64
	timestamp      time.Time
}

// pair is one fully matched observation inside the rolling window.
type pair struct {
	matchedAt         time.Time
	predictedPositive bool
	actualPositive    bool
	latencyMillis     int64
}

// Tracker maintains confusion-matrix counts over an eviction-bounded window
// of matched pairs for a single model version. Ingest and snapshot are safe
// under concurrent serving replicas; counts are adjusted incrementally on
// insert and evict so Snapshot never rescans the window.
type Tracker struct {
	mu sync.Mutex

	modelVersion    string
	windowSize      int
	windowSpan      time.Duration
	maxLabelLatency time.Duration
	minMatched      int
	positiveLabel   string

	pendings map[string]pending
	pairs    []pair
	tp, fp   int64
	tn, fn   int64
	latencySum int64

	unmatchedExpired int64
	nextSweep        time.Time
}

// NewTracker creates a Tracker for one model version, filling config
// defaults for zero fields.
func NewTracker(modelVersion string, cfg types.PerformanceConfig) *Tracker {
	t := &Tracker{
		modelVersion:    modelVersion,
		windowSize:      cfg.WindowSize,
		windowSpan:      parseDurationDefault(cfg.WindowSpan, defaultWindowSpan),
		maxLabelLatency: parseDurationDefault(cfg.MaxLabelLatency, defaultMaxLabelLatency),
		minMatched:      cfg.MinMatchedPairs,
		positiveLabel:   cfg.PositiveLabel,
		pendings:        make(map[string]pending),
	}
	if t.windowSize <= 0 {
		t.windowSize = defaultWindowSize
	}
	if t.minMatched <= 0 {
		t.minMatched = defaultMinMatchedPairs
	}
	if t.positiveLabel == "" {
		t.positiveLabel = defaultPositiveLabel
	}
	return t
}

// Observe records a prediction awaiting ground truth. Unmatched predictions
// are never scored; they simply wait up to the max label latency.
func (t *Tracker) Observe(rec types.PredictionRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	t.sweepPendingLocked(now)
	t.pendings[rec.ID] = pending{
		predictedLabel: rec.PredictedLabel,
		latencyMillis:  rec.LatencyMillis,
		timestamp:      rec.Timestamp,
	}
}

// Resolve joins a ground-truth record to its pending prediction. Returns
// true if the pair entered the window; false if no pending prediction exists
// or the label arrived past the max label latency.
func (t *Tracker) Resolve(truth types.GroundTruthRecord) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.pendings[truth.ID]
	if !ok {
		return false
	}
	delete(t.pendings, truth.ID)

	if truth.ObservedAt.Sub(p.timestamp) > t.maxLabelLatency {
		t.unmatchedExpired++
		metrics.PairsExpired.Add(1)
		return false
	}

	now := time.Now()
	t.appendPairLocked(pair{
		matchedAt:         now,
		predictedPositive: p.predictedLabel == t.positiveLabel,
		actualPositive:    truth.ActualLabel == t.positiveLabel,
		latencyMillis:     p.latencyMillis,
	})
	t.evictLocked(now)
	metrics.PairsMatched.Add(1)
	return true
}

// Snapshot derives metrics from the current counts. Fails with
// ErrInsufficientMatchedData below the configured matched-pair floor.
func (t *Tracker) Snapshot() (*types.PerformanceSummary, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	t.evictLocked(now)

	matched := len(t.pairs)
	if matched < t.minMatched {
		return nil, fmt.Errorf("%w: %d pairs, need %d", ErrInsufficientMatchedData, matched, t.minMatched)
	}

	total := float64(t.tp + t.fp + t.tn + t.fn)
	summary := &types.PerformanceSummary{
		ModelVersion:   t.modelVersion,
		MatchedPairs:   matched,
		TruePositives:  t.tp,
		FalsePositives: t.fp,
		TrueNegatives:  t.tn,
		FalseNegatives: t.fn,
		Accuracy:       float64(t.tp+t.tn) / total,
		Precision:      ratio(t.tp, t.tp+t.fp),
		Recall:         ratio(t.tp, t.tp+t.fn),
		OldestPair:     t.pairs[0].matchedAt,
		NewestPair:     t.pairs[matched-1].matchedAt,
		GeneratedAt:    now,
	}
	if summary.Precision+summary.Recall > 0 {
		summary.F1 = 2 * summary.Precision * summary.Recall / (summary.Precision + summary.Recall)
	}
	summary.AvgLatencyMillis = float64(t.latencySum) / float64(matched)
	return summary, nil
}

// MatchedPairs returns the current window size without deriving metrics.
func (t *Tracker) MatchedPairs() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.evictLocked(time.Now())
	return len(t.pairs)
}

// Reset clears the window and pending predictions. Primarily for testing.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pendings = make(map[string]pending)
	t.pairs = nil
	t.tp, t.fp, t.tn, t.fn = 0, 0, 0, 0
	t.latencySum = 0
}

func (t *Tracker) appendPairLocked(p pair) {
	t.pairs = append(t.pairs, p)
	t.applyLocked(p, 1)
}

// evictLocked drops the oldest pairs once the size or time bound is exceeded.
func (t *Tracker) evictLocked(now time.Time) {
	cutoff := now.Add(-t.windowSpan)
	drop := 0
	for drop < len(t.pairs) {
		if len(t.pairs)-drop > t.windowSize || t.pairs[drop].matchedAt.Before(cutoff) {
			t.applyLocked(t.pairs[drop], -1)
			drop++
			continue
		}
		break
	}
	if drop > 0 {
		t.pairs = t.pairs[drop:]
	}
}

func (t *Tracker) applyLocked(p pair, delta int64) {
	switch {
	case p.predictedPositive && p.actualPositive:
		t.tp += delta
	case p.predictedPositive && !p.actualPositive:
		t.fp += delta
	case !p.predictedPositive && !p.actualPositive:
		t.tn += delta
	default:
		t.fn += delta
	}
	t.latencySum += delta * p.latencyMillis
}

// sweepPendingLocked drops predictions whose label never arrived within the
// max label latency. Throttled so hot ingest paths don't rescan the map.
func (t *Tracker) sweepPendingLocked(now time.Time) {
	if now.Before(t.nextSweep) {
		return
	}
	t.nextSweep = now.Add(time.Minute)
	cutoff := now.Add(-t.maxLabelLatency)
	for id, p := range t.pendings {
		if p.timestamp.Before(cutoff) {
			delete(t.pendings, id)
			t.unmatchedExpired++
			metrics.PairsExpired.Add(1)
		}
	}
}

func ratio(num, den int64) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

func parseDurationDefault(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
