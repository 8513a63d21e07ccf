// Package types defines the public domain types for the Driftlock
// model-monitoring and retraining-decision subsystem.
package types

// FeatureKind distinguishes numeric (binned) from categorical features.
type FeatureKind string

// FeatureKind values enumerate the supported feature encodings.
const (
	FeatureNumeric     FeatureKind = "numeric"
	FeatureCategorical FeatureKind = "categorical"
)

// DriftStatus represents the drift classification of a feature or report.
type DriftStatus string

// DriftStatus values enumerate the PSI classification bands.
const (
	DriftStable  DriftStatus = "STABLE"
	DriftWatch   DriftStatus = "WATCH"
	DriftDrift   DriftStatus = "DRIFT"
	DriftUnknown DriftStatus = "UNKNOWN"
)

// ModelStatus represents the lifecycle state of a model version.
type ModelStatus string

// ModelStatus values represent the rollout lifecycle states.
const (
	ModelCandidate ModelStatus = "CANDIDATE"
	ModelCanary    ModelStatus = "CANARY"
	ModelActive    ModelStatus = "ACTIVE"
	ModelRetired   ModelStatus = "RETIRED"
)

// DecisionReason identifies a signal that contributed to a retrain decision.
type DecisionReason string

// DecisionReason values enumerate the retrain trigger signals, in the order
// the engine evaluates them.
const (
	ReasonDistributionDrift      DecisionReason = "distribution_drift"
	ReasonPerformanceDegradation DecisionReason = "performance_degradation"
	ReasonScheduled              DecisionReason = "scheduled"
)

// AlertType defines the alert sink type.
type AlertType string

// AlertType values enumerate the supported alert sink backends.
const (
	AlertConsole AlertType = "console"
	AlertWebhook AlertType = "webhook"
	AlertFile    AlertType = "file"
	AlertSNS     AlertType = "sns"
)

// AlertLevel replaces string-typed alert levels with a proper enum.
type AlertLevel string

const (
	AlertLevelError   AlertLevel = "error"
	AlertLevelWarning AlertLevel = "warning"
	AlertLevelInfo    AlertLevel = "info"
)

// QueueType defines the retrain job queue backend.
type QueueType string

// QueueType values enumerate the supported queue backends.
const (
	QueueSQS    QueueType = "sqs"
	QueueMemory QueueType = "memory"
)

// EventKind classifies the type of audit event.
type EventKind string

// EventKind values enumerate the categories of recorded events.
const (
	EventSnapshotStored      EventKind = "SNAPSHOT_STORED"
	EventDriftEvaluated      EventKind = "DRIFT_EVALUATED"
	EventDriftDetected       EventKind = "DRIFT_DETECTED"
	EventPerformanceDegraded EventKind = "PERFORMANCE_DEGRADED"
	EventDecisionEvaluated   EventKind = "DECISION_EVALUATED"
	EventRetrainTriggered    EventKind = "RETRAIN_TRIGGERED"
	EventRetrainEnqueued     EventKind = "RETRAIN_ENQUEUED"
	EventDecisionResolved    EventKind = "DECISION_RESOLVED"
	EventDecisionCancelled   EventKind = "DECISION_CANCELLED"
	EventModelRegistered     EventKind = "MODEL_REGISTERED"
	EventModelCanary         EventKind = "MODEL_CANARY"
	EventModelPromoted       EventKind = "MODEL_PROMOTED"
	EventModelRetired        EventKind = "MODEL_RETIRED"
	EventModelRolledBack     EventKind = "MODEL_ROLLED_BACK"
	EventCanaryExtended      EventKind = "CANARY_EXTENDED"
	EventMonitorEvaluation   EventKind = "MONITOR_EVALUATION"
	EventRecordsArchived     EventKind = "RECORDS_ARCHIVED"
)
