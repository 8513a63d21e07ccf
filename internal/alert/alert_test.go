package alert

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftlock-systems/driftlock/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testAlert() types.Alert {
	return types.Alert{
		Level:        types.AlertLevelError,
		ModelVersion: "fraud-v3",
		Message:      "aggregate drift detected",
		Timestamp:    time.Now(),
	}
}

func TestConsoleSinkSend(t *testing.T) {
	sink := NewConsoleSink()
	assert.Equal(t, "console", sink.Name())

	ctx := context.Background()
	for _, level := range []types.AlertLevel{types.AlertLevelError, types.AlertLevelWarning, types.AlertLevelInfo} {
		a := testAlert()
		a.Level = level
		assert.NoError(t, sink.Send(ctx, a))
	}
}

func TestWebhookSinkSendSuccess(t *testing.T) {
	var received []byte
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		buf := make([]byte, 4096)
		n, _ := r.Body.Read(buf)
		received = buf[:n]
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	sink := NewWebhookSink(ts.URL)
	require.NoError(t, sink.Send(context.Background(), testAlert()))

	var got types.Alert
	require.NoError(t, json.Unmarshal(received, &got))
	assert.Equal(t, "fraud-v3", got.ModelVersion)
	assert.Equal(t, types.AlertLevelError, got.Level)
}

func TestWebhookSinkSendServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	sink := NewWebhookSink(ts.URL)
	err := sink.Send(context.Background(), testAlert())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestWebhookSinkBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	sink := NewWebhookSink(ts.URL)
	sink.breaker = newBreaker(BreakerConfig{FailThreshold: 3, Cooldown: time.Hour})

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		err := sink.Send(ctx, testAlert())
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrCircuitOpen)
	}

	// Breaker now fails fast without hitting the endpoint
	err := sink.Send(ctx, testAlert())
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestWebhookSinkBreakerProbesAfterCooldown(t *testing.T) {
	healthy := false
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if healthy {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	sink := NewWebhookSink(ts.URL)
	sink.breaker = newBreaker(BreakerConfig{FailThreshold: 2, Cooldown: 50 * time.Millisecond})

	ctx := context.Background()
	require.Error(t, sink.Send(ctx, testAlert()))
	require.Error(t, sink.Send(ctx, testAlert()))
	assert.ErrorIs(t, sink.Send(ctx, testAlert()), ErrCircuitOpen)

	healthy = true
	time.Sleep(60 * time.Millisecond)

	// Half-open probe succeeds and closes the circuit
	assert.NoError(t, sink.Send(ctx, testAlert()))
	assert.NoError(t, sink.Send(ctx, testAlert()))
}

func TestFileSinkAppendsJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerts.jsonl")
	sink, err := NewFileSink(path)
	require.NoError(t, err)
	assert.Equal(t, "file", sink.Name())

	ctx := context.Background()
	require.NoError(t, sink.Send(ctx, testAlert()))
	second := testAlert()
	second.Level = types.AlertLevelInfo
	second.Message = "model promoted"
	require.NoError(t, sink.Send(ctx, second))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)

	var got types.Alert
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &got))
	assert.Equal(t, "model promoted", got.Message)
}

// failingSink always errors, for dispatcher fan-out tests.
type failingSink struct{ calls int }

func (s *failingSink) Send(context.Context, types.Alert) error {
	s.calls++
	return errors.New("sink down")
}
func (s *failingSink) Name() string { return "failing" }

type recordingSink struct{ alerts []types.Alert }

func (s *recordingSink) Send(_ context.Context, a types.Alert) error {
	s.alerts = append(s.alerts, a)
	return nil
}
func (s *recordingSink) Name() string { return "recording" }

func TestDispatcherFansOutPastFailures(t *testing.T) {
	failing := &failingSink{}
	recording := &recordingSink{}
	d := &Dispatcher{sinks: []Sink{failing, recording}, logger: testLogger()}

	d.Dispatch(testAlert())

	assert.Equal(t, 1, failing.calls)
	require.Len(t, recording.alerts, 1)
	assert.Equal(t, "fraud-v3", recording.alerts[0].ModelVersion)
}

func TestNewDispatcherRejectsUnknownType(t *testing.T) {
	_, err := NewDispatcher([]types.AlertConfig{{Type: "pager"}}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown alert type")
}

func TestNewDispatcherRequiresWebhookURL(t *testing.T) {
	_, err := NewDispatcher([]types.AlertConfig{{Type: types.AlertWebhook}}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "webhook URL required")
}
