package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftlock-systems/driftlock/pkg/types"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0o644))
	return dir
}

func TestLoad(t *testing.T) {
	dir := writeConfig(t, `provider: redis
redis:
  addr: localhost:6379
  keyPrefix: "driftlock:"
server:
  addr: ":3000"
drift:
  minSampleSize: 200
  driftThreshold: 0.3
monitor:
  enabled: true
  interval: 2m
alerts:
  - type: console
  - type: webhook
    url: https://hooks.example.com/driftlock
`)

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "redis", cfg.Provider)
	require.NotNil(t, cfg.Redis)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "driftlock:", cfg.Redis.KeyPrefix)
	assert.Equal(t, ":3000", cfg.Server.Addr)
	require.NotNil(t, cfg.Drift)
	assert.Equal(t, 200, cfg.Drift.MinSampleSize)
	assert.Equal(t, 0.3, cfg.Drift.DriftThreshold)
	require.NotNil(t, cfg.Monitor)
	assert.True(t, cfg.Monitor.Enabled)
	assert.Len(t, cfg.Alerts, 2)
}

func TestLoadAppliesDefaults(t *testing.T) {
	dir := writeConfig(t, `provider: redis
redis:
  addr: localhost:6379
`)

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	require.NotNil(t, cfg.Queue)
	assert.Equal(t, types.QueueMemory, cfg.Queue.Type)
	require.Len(t, cfg.Alerts, 1)
	assert.Equal(t, types.AlertConsole, cfg.Alerts[0].Type)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent")
	assert.Error(t, err)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := writeConfig(t, "invalid: [yaml")
	_, err := Load(dir)
	assert.Error(t, err)
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "missing provider",
			content: "server:\n  addr: \":8080\"\n",
			wantErr: "provider is required",
		},
		{
			name:    "unknown provider",
			content: "provider: etcd\n",
			wantErr: "unknown provider",
		},
		{
			name:    "redis without config",
			content: "provider: redis\n",
			wantErr: "redis config is required",
		},
		{
			name:    "redis without addr",
			content: "provider: redis\nredis:\n  db: 1\n",
			wantErr: "redis.addr is required",
		},
		{
			name:    "dynamodb without table",
			content: "provider: dynamodb\ndynamodb:\n  region: us-east-1\n",
			wantErr: "dynamodb.tableName is required",
		},
		{
			name: "sqs queue without url",
			content: `provider: redis
redis:
  addr: localhost:6379
queue:
  type: sqs
`,
			wantErr: "queue.queueUrl is required",
		},
		{
			name: "webhook alert without url",
			content: `provider: redis
redis:
  addr: localhost:6379
alerts:
  - type: webhook
`,
			wantErr: "webhook URL is required",
		},
		{
			name: "archiver enabled without dsn",
			content: `provider: redis
redis:
  addr: localhost:6379
archiver:
  enabled: true
`,
			wantErr: "archiver.dsn is required",
		},
		{
			name: "bad monitor interval",
			content: `provider: redis
redis:
  addr: localhost:6379
monitor:
  interval: often
`,
			wantErr: "invalid duration",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := writeConfig(t, tt.content)
			_, err := Load(dir)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
