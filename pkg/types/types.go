package types

import "time"

// FeatureSnapshot is the immutable reference distribution for one feature,
// captured at training time. Numeric features carry bin edges (len = bins+1);
// categorical features carry the known category table. ReferenceFreqs are the
// training-set proportions per bin or category and sum to 1. A snapshot is
// frozen once stored for a model version and is never mutated by the detector.
type FeatureSnapshot struct {
	FeatureName    string      `json:"featureName"`
	Kind           FeatureKind `json:"kind"`
	BinEdges       []float64   `json:"binEdges,omitempty"`
	Categories     []string    `json:"categories,omitempty"`
	ReferenceFreqs []float64   `json:"referenceFreqs"`
	BuiltAt        time.Time   `json:"builtAt"`
	ModelVersion   string      `json:"modelVersion"`
}

// PredictionRecord is one inference call as reported by the serving layer.
// Records are retained for a bounded window and then archived.
type PredictionRecord struct {
	ID                   string             `json:"id"`
	Timestamp            time.Time          `json:"timestamp"`
	Features             map[string]float64 `json:"features,omitempty"`
	Categoricals         map[string]string  `json:"categoricals,omitempty"`
	PredictedLabel       string             `json:"predictedLabel"`
	PredictedProbability float64            `json:"predictedProbability"`
	ModelVersion         string             `json:"modelVersion"`
	LatencyMillis        int64              `json:"latencyMillis"`
}

// GroundTruthRecord is the later-observed actual outcome for a prediction.
// It joins to a PredictionRecord by ID.
type GroundTruthRecord struct {
	ID          string    `json:"id"`
	ActualLabel string    `json:"actualLabel"`
	ObservedAt  time.Time `json:"observedAt"`
}

// FeatureDrift is the per-feature result within a DriftReport.
type FeatureDrift struct {
	PSI    float64     `json:"psi"`
	Status DriftStatus `json:"status"`
	Reason string      `json:"reason,omitempty"`
}

// DriftReport is the outcome of comparing a live window against the
// training-time snapshots for one model version.
type DriftReport struct {
	ModelVersion string                  `json:"modelVersion"`
	EvaluatedAt  time.Time               `json:"evaluatedAt"`
	Features     map[string]FeatureDrift `json:"features"`
	Aggregate    DriftStatus             `json:"aggregate"`
	SampleSize   int                     `json:"sampleSize"`
	Stale        bool                    `json:"stale,omitempty"`
}

// PerformanceSummary is a point-in-time snapshot of the rolling matched-pair
// window for one model version. Metrics are derived only from fully matched
// prediction/ground-truth pairs.
type PerformanceSummary struct {
	ModelVersion     string    `json:"modelVersion"`
	MatchedPairs     int       `json:"matchedPairs"`
	TruePositives    int64     `json:"truePositives"`
	FalsePositives   int64     `json:"falsePositives"`
	TrueNegatives    int64     `json:"trueNegatives"`
	FalseNegatives   int64     `json:"falseNegatives"`
	Accuracy         float64   `json:"accuracy"`
	Precision        float64   `json:"precision"`
	Recall           float64   `json:"recall"`
	F1               float64   `json:"f1"`
	AvgLatencyMillis float64   `json:"avgLatencyMillis"`
	OldestPair       time.Time `json:"oldestPair,omitempty"`
	NewestPair       time.Time `json:"newestPair,omitempty"`
	GeneratedAt      time.Time `json:"generatedAt"`
	Stale            bool      `json:"stale,omitempty"`
}

// MetricsSnapshot is the frozen quality metrics attached to a model version
// at registration time (offline held-out evaluation). It doubles as the
// degradation baseline for the decision engine.
type MetricsSnapshot struct {
	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
}

// RetrainDecision is one evaluation of the retrain policy. Triggered implies
// at least one reason. A triggered decision stays open (unresolved) until a
// training cycle completes or the decision is cancelled; while open it
// debounces further triggers.
type RetrainDecision struct {
	DecisionID   string                 `json:"decisionId"`
	ModelVersion string                 `json:"modelVersion"`
	EvaluatedAt  time.Time              `json:"evaluatedAt"`
	Reasons      []DecisionReason       `json:"reasons,omitempty"`
	Triggered    bool                   `json:"triggered"`
	Details      map[string]interface{} `json:"details,omitempty"`
	Resolved     bool                   `json:"resolved"`
	ResolvedAt   *time.Time             `json:"resolvedAt,omitempty"`
	Resolution   string                 `json:"resolution,omitempty"`
}

// ModelVersion is a versioned model lifecycle record. Status transitions are
// owned exclusively by the rollout controller; the serving layer reads the
// active version only through an accessor. Version is a CAS counter.
type ModelVersion struct {
	ID              string          `json:"id"`
	TrainedAt       time.Time       `json:"trainedAt"`
	Status          ModelStatus     `json:"status"`
	Metrics         MetricsSnapshot `json:"metrics"`
	Version         int             `json:"version"`
	PreviousActive  string          `json:"previousActive,omitempty"`
	CanaryStartedAt *time.Time      `json:"canaryStartedAt,omitempty"`
	SoakExtensions  int             `json:"soakExtensions,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// RetrainJob is the message enqueued to the external training collaborator
// when a decision triggers. Decision-making is decoupled from execution:
// Driftlock only ever enqueues, it never trains.
type RetrainJob struct {
	JobID        string           `json:"jobId"`
	ModelVersion string           `json:"modelVersion"`
	DecisionID   string           `json:"decisionId"`
	Reasons      []DecisionReason `json:"reasons"`
	EnqueuedAt   time.Time        `json:"enqueuedAt"`
}

// Alert represents an alert event to be dispatched.
type Alert struct {
	Level        AlertLevel             `json:"level"`
	ModelVersion string                 `json:"modelVersion,omitempty"`
	Feature      string                 `json:"feature,omitempty"`
	Message      string                 `json:"message"`
	Details      map[string]interface{} `json:"details,omitempty"`
	Timestamp    time.Time              `json:"timestamp"`
}

// Event is an append-only audit log entry recording what happened and when.
type Event struct {
	Kind         EventKind              `json:"kind"`
	ModelVersion string                 `json:"modelVersion,omitempty"`
	DecisionID   string                 `json:"decisionId,omitempty"`
	Feature      string                 `json:"feature,omitempty"`
	Status       string                 `json:"status,omitempty"`
	Message      string                 `json:"message,omitempty"`
	Details      map[string]interface{} `json:"details,omitempty"`
	Timestamp    time.Time              `json:"timestamp"`
}

// EventRecord pairs a stream cursor with an event for cursor-based reading.
type EventRecord struct {
	StreamID string `json:"streamId"`
	Event    Event  `json:"event"`
}
