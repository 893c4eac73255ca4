package observability

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/askdb/askdb/internal/config"
)

func TestRunIDContextHelpers(t *testing.T) {
	ctx := ContextWithRunID(context.Background(), "abc123")
	if got := RunIDFromContext(ctx); got != "abc123" {
		t.Fatalf("RunIDFromContext() = %q", got)
	}
	if got := RunIDFromContext(context.Background()); got != "" {
		t.Fatalf("RunIDFromContext() on empty context = %q", got)
	}
}

func TestNewLoggerCarriesServiceName(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.Config{
		Service:       config.ServiceConfig{Name: "askdb-test"},
		Observability: config.ObservabilityConfig{LogLevel: slog.LevelInfo, LogJSON: true},
	}
	logger := NewLogger(cfg, &buf)
	logger.Info("hello")
	if !strings.Contains(buf.String(), `"service":"askdb-test"`) {
		t.Fatalf("log line missing service attribute: %s", buf.String())
	}
}

func TestMetricsHandlerExposesCounters(t *testing.T) {
	IncrementGenerationAttempts()
	IncrementIntents("succeeded")
	IncrementExtractionFailures()
	ObserveProviderRequest("openai", "ok", 120*time.Millisecond)
	ObserveExecution("ok", 3*time.Millisecond)

	rr := httptest.NewRecorder()
	MetricsHandler().ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rr.Result().Body)
	if err != nil {
		t.Fatalf("read metrics body: %v", err)
	}
	for _, name := range []string{
		"askdb_generation_attempts_total",
		"askdb_intents_total",
		"askdb_provider_request_seconds",
		"askdb_execution_seconds",
		"askdb_extraction_failures_total",
	} {
		if !strings.Contains(string(body), name) {
			t.Fatalf("metrics output missing %s", name)
		}
	}
}

func TestServeMetricsStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if err := ServeMetrics(ctx, "127.0.0.1:0", logger); err != nil {
		t.Fatalf("ServeMetrics() error = %v", err)
	}
}
