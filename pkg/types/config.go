package types

// DriftConfig holds PSI thresholds and sampling floors for the detector.
type DriftConfig struct {
	Epsilon        float64 `yaml:"epsilon,omitempty" json:"epsilon,omitempty"`               // additive smoothing, default 1e-4
	MinSampleSize  int     `yaml:"minSampleSize,omitempty" json:"minSampleSize,omitempty"`   // default 100
	WatchThreshold float64 `yaml:"watchThreshold,omitempty" json:"watchThreshold,omitempty"` // default 0.1
	DriftThreshold float64 `yaml:"driftThreshold,omitempty" json:"driftThreshold,omitempty"` // default 0.25
	WindowLimit    int     `yaml:"windowLimit,omitempty" json:"windowLimit,omitempty"`       // max predictions read per evaluation, default 5000
}

// PerformanceConfig bounds the rolling matched-pair window and sets the
// degradation policy.
type PerformanceConfig struct {
	WindowSize           int     `yaml:"windowSize,omitempty" json:"windowSize,omitempty"`                     // default 1000 pairs
	WindowSpan           string  `yaml:"windowSpan,omitempty" json:"windowSpan,omitempty"`                     // default "24h"
	MaxLabelLatency      string  `yaml:"maxLabelLatency,omitempty" json:"maxLabelLatency,omitempty"`           // default "72h"
	MinMatchedPairs      int     `yaml:"minMatchedPairs,omitempty" json:"minMatchedPairs,omitempty"`           // default 100
	DegradationThreshold float64 `yaml:"degradationThreshold,omitempty" json:"degradationThreshold,omitempty"` // default 0.05
	PositiveLabel        string  `yaml:"positiveLabel,omitempty" json:"positiveLabel,omitempty"`               // default "1"
}

// DecisionConfig holds the retrain policy settings not owned by drift/perf.
type DecisionConfig struct {
	MaxInterval string `yaml:"maxInterval,omitempty" json:"maxInterval,omitempty"` // default "720h" (30 days)
	LeaseTTL    string `yaml:"leaseTtl,omitempty" json:"leaseTtl,omitempty"`       // default "60s"
}

// RolloutConfig governs canary promotion and rollback.
type RolloutConfig struct {
	CanaryPercent      int     `yaml:"canaryPercent,omitempty" json:"canaryPercent,omitempty"`           // default 10
	SoakDuration       string  `yaml:"soakDuration,omitempty" json:"soakDuration,omitempty"`             // default "24h"
	MinCanarySamples   int     `yaml:"minCanarySamples,omitempty" json:"minCanarySamples,omitempty"`     // default 100
	Tolerance          float64 `yaml:"tolerance,omitempty" json:"tolerance,omitempty"`                   // default 0.02
	ErrorRateThreshold float64 `yaml:"errorRateThreshold,omitempty" json:"errorRateThreshold,omitempty"` // default 0.10
}

// MonitorConfig configures the periodic monitoring loop.
type MonitorConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Interval string `yaml:"interval,omitempty" json:"interval,omitempty"` // default "5m"
}

// ArchiverConfig configures the background Postgres archiver.
type ArchiverConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Interval string `yaml:"interval,omitempty" json:"interval,omitempty"` // default "5m"
	DSN      string `yaml:"dsn,omitempty" json:"dsn,omitempty"`
}

// QueueConfig configures the retrain job queue backend.
type QueueConfig struct {
	Type     QueueType `yaml:"type" json:"type"`
	QueueURL string    `yaml:"queueUrl,omitempty" json:"queueUrl,omitempty"`
}

// AlertConfig defines an alert sink configuration.
type AlertConfig struct {
	Type     AlertType `yaml:"type" json:"type"`
	URL      string    `yaml:"url,omitempty" json:"url,omitempty"`
	Path     string    `yaml:"path,omitempty" json:"path,omitempty"`
	TopicARN string    `yaml:"topicArn,omitempty" json:"topicArn,omitempty"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr           string `yaml:"addr,omitempty" json:"addr,omitempty"`
	APIKey         string `yaml:"apiKey,omitempty" json:"apiKey,omitempty"`
	MaxRequestBody int64  `yaml:"maxRequestBody,omitempty" json:"maxRequestBody,omitempty"`
}

// RedisConfig holds Redis/Valkey connection settings.
type RedisConfig struct {
	Addr          string `yaml:"addr" json:"addr"`
	Password      string `yaml:"password,omitempty" json:"password,omitempty"`
	DB            int    `yaml:"db,omitempty" json:"db,omitempty"`
	KeyPrefix     string `yaml:"keyPrefix,omitempty" json:"keyPrefix,omitempty"`
	RetentionTTL  string `yaml:"retentionTtl,omitempty" json:"retentionTtl,omitempty"` // default "168h" (7 days)
	PredictionMax int64  `yaml:"predictionMax,omitempty" json:"predictionMax,omitempty"`
	EventMax      int64  `yaml:"eventMax,omitempty" json:"eventMax,omitempty"`
}

// DynamoDBConfig holds DynamoDB connection and table settings.
type DynamoDBConfig struct {
	TableName    string `yaml:"tableName" json:"tableName"`
	Region       string `yaml:"region" json:"region"`
	Endpoint     string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	RetentionTTL string `yaml:"retentionTtl,omitempty" json:"retentionTtl,omitempty"`
}

// ProjectConfig represents the top-level driftlock.yaml configuration.
type ProjectConfig struct {
	Provider    string             `yaml:"provider"`
	Redis       *RedisConfig       `yaml:"redis,omitempty"`
	DynamoDB    *DynamoDBConfig    `yaml:"dynamodb,omitempty"`
	Server      *ServerConfig      `yaml:"server,omitempty"`
	Drift       *DriftConfig       `yaml:"drift,omitempty"`
	Performance *PerformanceConfig `yaml:"performance,omitempty"`
	Decision    *DecisionConfig    `yaml:"decision,omitempty"`
	Rollout     *RolloutConfig     `yaml:"rollout,omitempty"`
	Monitor     *MonitorConfig     `yaml:"monitor,omitempty"`
	Archiver    *ArchiverConfig    `yaml:"archiver,omitempty"`
	Queue       *QueueConfig       `yaml:"queue,omitempty"`
	Alerts      []AlertConfig      `yaml:"alerts,omitempty"`
}
