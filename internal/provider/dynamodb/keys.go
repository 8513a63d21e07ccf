package dynamodb

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// PK/SK prefix constants.
const (
	prefixModel       = "MODEL#"
	prefixSnapshot    = "SNAPSHOT#"
	prefixPrediction  = "PRED#"
	prefixGroundTruth = "TRUTH#"
	prefixDriftReport = "DRIFT#"
	prefixDecision    = "DECISION#"
	prefixEvent       = "EVENT#"
	prefixLock        = "LOCK#"
	prefixStale       = "STALE#"
	prefixType        = "TYPE#"

	skMeta        = "META"
	skRecord      = "RECORD"
	skPerformance = "PERFORMANCE"
	skLock        = "LOCK"
)

func modelPK(id string) string         { return prefixModel + id }
func predictionPK(id string) string    { return prefixPrediction + id }
func groundTruthPK(id string) string   { return prefixGroundTruth + id }
func decisionPK(id string) string      { return prefixDecision + id }
func lockPK(key string) string         { return prefixLock + key }
func eventPK(modelVersion string) string {
	if modelVersion == "" {
		modelVersion = "_global"
	}
	return prefixEvent + modelVersion
}

func snapshotSK(feature string) string { return prefixSnapshot + feature }

func predictionListSK(ts time.Time, id string) string {
	return prefixPrediction + ts.UTC().Format(time.RFC3339Nano) + "#" + id
}

func decisionListSK(ts time.Time, id string) string {
	return prefixDecision + ts.UTC().Format(time.RFC3339Nano) + "#" + id
}

func driftReportSK(ts time.Time) string {
	millis := ts.UnixMilli()
	nonce := make([]byte, 4)
	_, _ = rand.Read(nonce)
	return fmt.Sprintf("%s%013d#%s", prefixDriftReport, millis, hex.EncodeToString(nonce))
}

func eventSK(ts time.Time) string {
	millis := ts.UnixMilli()
	nonce := make([]byte, 4)
	_, _ = rand.Read(nonce)
	return fmt.Sprintf("%s%013d#%s", prefixEvent, millis, hex.EncodeToString(nonce))
}

func staleSK(component string) string { return prefixStale + component }

func ttlEpoch(d time.Duration) int64 {
	return time.Now().Add(d).Unix()
}

func isExpired(epoch int64) bool {
	return epoch > 0 && time.Now().Unix() > epoch
}
