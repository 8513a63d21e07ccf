package commands

import (
	"log/slog"
	"testing"

	"github.com/driftlock-systems/driftlock/pkg/types"
)

func TestNewProvider_Redis(t *testing.T) {
	cfg := &types.ProjectConfig{
		Provider: "redis",
		Redis:    &types.RedisConfig{Addr: "localhost:6379"},
	}
	p, err := newProvider(cfg, slog.Default())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if p == nil {
		t.Fatal("expected non-nil provider")
	}
}

func TestNewProvider_RedisWithoutConfig(t *testing.T) {
	cfg := &types.ProjectConfig{Provider: "redis"}
	_, err := newProvider(cfg, slog.Default())
	if err == nil {
		t.Fatal("expected error for missing redis config")
	}
}

func TestNewProvider_Unknown(t *testing.T) {
	cfg := &types.ProjectConfig{Provider: "etcd"}
	_, err := newProvider(cfg, slog.Default())
	if err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestBuildStack(t *testing.T) {
	cfg := &types.ProjectConfig{
		Provider: "redis",
		Redis:    &types.RedisConfig{Addr: "localhost:6379"},
		Queue:    &types.QueueConfig{Type: types.QueueMemory},
		Alerts:   []types.AlertConfig{{Type: types.AlertConsole}},
	}
	prov, err := newProvider(cfg, slog.Default())
	if err != nil {
		t.Fatalf("creating provider: %v", err)
	}

	st, err := buildStack(cfg, prov, slog.Default())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.detector == nil || st.perf == nil || st.engine == nil || st.rollout == nil {
		t.Fatal("expected all stack components to be wired")
	}
}

func TestBuildStack_BadAlertConfig(t *testing.T) {
	cfg := &types.ProjectConfig{
		Provider: "redis",
		Redis:    &types.RedisConfig{Addr: "localhost:6379"},
		Queue:    &types.QueueConfig{Type: types.QueueMemory},
		Alerts:   []types.AlertConfig{{Type: "pager"}},
	}
	prov, err := newProvider(cfg, slog.Default())
	if err != nil {
		t.Fatalf("creating provider: %v", err)
	}

	if _, err := buildStack(cfg, prov, slog.Default()); err == nil {
		t.Fatal("expected error for unknown alert type")
	}
}
