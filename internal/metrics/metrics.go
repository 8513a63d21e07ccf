// Package metrics exposes runtime counters via expvar.
package metrics

import "expvar"

var (
	DriftEvaluations     = expvar.NewInt("drift_evaluations_total")
	DriftDetected        = expvar.NewInt("drift_detected_total")
	PredictionsIngested  = expvar.NewInt("predictions_ingested_total")
	GroundTruthsIngested = expvar.NewInt("ground_truths_ingested_total")
	PairsMatched         = expvar.NewInt("pairs_matched_total")
	PairsExpired         = expvar.NewInt("pairs_expired_total")
	DecisionEvaluations  = expvar.NewInt("decision_evaluations_total")
	RetrainsTriggered    = expvar.NewInt("retrains_triggered_total")
	RetrainsEnqueued     = expvar.NewInt("retrains_enqueued_total")
	DecisionConflicts    = expvar.NewInt("decision_conflicts_total")
	Promotions           = expvar.NewInt("promotions_total")
	Rollbacks            = expvar.NewInt("rollbacks_total")
	CandidatesRetired    = expvar.NewInt("candidates_retired_total")
	AlertsDispatched     = expvar.NewInt("alerts_dispatched_total")
	AlertsFailed         = expvar.NewInt("alerts_failed_total")
	MonitorCycles        = expvar.NewInt("monitor_cycles_total")
	MonitorCycleErrors   = expvar.NewInt("monitor_cycle_errors_total")
	RecordsArchived      = expvar.NewInt("records_archived_total")
)
