package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func testTrace(blockNumber int64, valueWei string) bidTrace {
	return bidTrace{
		Slot:          fmt.Sprintf("%d", blockNumber+1_000_000),
		BlockNumber:   fmt.Sprintf("%d", blockNumber),
		Value:         valueWei,
		BuilderPubkey: "0xbuilder",
		GasUsed:       "15000000",
		GasLimit:      "30000000",
		BlockHash:     "0xhash",
		relaySource:   "flashbots",
	}
}

func TestTraceToSample(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// 0.05 ETH in wei.
	sample, err := traceToSample(testTrace(20_000_000, "50000000000000000"), now)
	if err != nil {
		t.Fatalf("traceToSample: %v", err)
	}

	if sample.BlockNumber != 20_000_000 {
		t.Errorf("BlockNumber = %d, want 20000000", sample.BlockNumber)
	}
	if sample.Slot != 21_000_000 {
		t.Errorf("Slot = %d, want 21000000", sample.Slot)
	}
	if math.Abs(sample.RevenueETH-0.05) > 1e-12 {
		t.Errorf("RevenueETH = %v, want 0.05", sample.RevenueETH)
	}
	if sample.RelaySource != "flashbots" {
		t.Errorf("RelaySource = %q, want flashbots", sample.RelaySource)
	}
	if math.Abs(sample.GasUtilization-50) > 1e-9 {
		t.Errorf("GasUtilization = %v, want 50", sample.GasUtilization)
	}
	if sample.SandwichCount != 0 {
		t.Errorf("SandwichCount = %d, want 0 for a modest block", sample.SandwichCount)
	}
	if !sample.Timestamp.Equal(now) {
		t.Errorf("Timestamp = %v, want %v", sample.Timestamp, now)
	}
}

func TestTraceToSample_SandwichProxy(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// 2 ETH revenue from a 95%-full block trips the proxy.
	trace := testTrace(20_000_000, "2000000000000000000")
	trace.GasUsed = "28500000"

	sample, err := traceToSample(trace, now)
	if err != nil {
		t.Fatalf("traceToSample: %v", err)
	}
	if sample.SandwichCount != 1 {
		t.Errorf("SandwichCount = %d, want 1", sample.SandwichCount)
	}

	// High revenue alone is not enough.
	loose, err := traceToSample(testTrace(20_000_001, "2000000000000000000"), now)
	if err != nil {
		t.Fatalf("traceToSample: %v", err)
	}
	if loose.SandwichCount != 0 {
		t.Errorf("SandwichCount = %d, want 0 at 50%% utilization", loose.SandwichCount)
	}
}

func TestTraceToSample_Malformed(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	bad := testTrace(20_000_000, "not-a-number")
	if _, err := traceToSample(bad, now); err == nil {
		t.Error("expected error for malformed value")
	}

	zero := testTrace(0, "1000")
	if _, err := traceToSample(zero, now); err == nil {
		t.Error("expected error for block number 0")
	}
}

func TestTraceToSample_ZeroGasLimit(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	trace := testTrace(20_000_000, "1000")
	trace.GasLimit = "0"
	sample, err := traceToSample(trace, now)
	if err != nil {
		t.Fatalf("traceToSample: %v", err)
	}
	if sample.GasUtilization != 0 {
		t.Errorf("GasUtilization = %v, want 0 with zero gas limit", sample.GasUtilization)
	}
}

// relayServer serves bid traces at the delivered-payload path.
func relayServer(t *testing.T, traces []bidTrace) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != bidTracePath {
			t.Errorf("unexpected path %s", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(traces); err != nil {
			t.Fatalf("encode traces: %v", err)
		}
	}))
}

func TestRelayCollector_Collect(t *testing.T) {
	traces := []bidTrace{
		testTrace(20_000_001, "50000000000000000"),
		testTrace(20_000_002, "60000000000000000"),
	}
	server := relayServer(t, traces)
	defer server.Close()

	collector := NewRelayCollector(map[string]string{"testrelay": server.URL}, nil, nil)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	samples, err := collector.Collect(context.Background(), now)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(samples) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(samples))
	}
	// Newest block first after sorting.
	if samples[0].BlockNumber != 20_000_002 {
		t.Errorf("samples[0].BlockNumber = %d, want 20000002", samples[0].BlockNumber)
	}
	for _, s := range samples {
		if s.RelaySource != "testrelay" {
			t.Errorf("RelaySource = %q, want testrelay", s.RelaySource)
		}
	}
}

type countingRecorder struct {
	mu     sync.Mutex
	relays []string
}

func (r *countingRecorder) RecordRelayError(relay string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.relays = append(r.relays, relay)
}

func TestRelayCollector_FailingRelaySkipped(t *testing.T) {
	good := relayServer(t, []bidTrace{testTrace(20_000_001, "1000")})
	defer good.Close()
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer bad.Close()

	recorder := &countingRecorder{}
	collector := NewRelayCollector(map[string]string{
		"good": good.URL,
		"bad":  bad.URL,
	}, nil, recorder)

	samples, err := collector.Collect(context.Background(), time.Now().UTC())
	if err != nil {
		t.Fatalf("Collect with one live relay: %v", err)
	}
	if len(samples) != 1 {
		t.Errorf("expected 1 sample from the live relay, got %d", len(samples))
	}
	if len(recorder.relays) != 1 || recorder.relays[0] != "bad" {
		t.Errorf("recorded relay errors = %v, want [bad]", recorder.relays)
	}
}

func TestRelayCollector_AllRelaysFailing(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer bad.Close()

	collector := NewRelayCollector(map[string]string{"only": bad.URL}, nil, nil)
	if _, err := collector.Collect(context.Background(), time.Now().UTC()); err == nil {
		t.Error("expected error when every relay fails")
	}
}

func TestRelayCollector_CapsTracesPerCycle(t *testing.T) {
	traces := make([]bidTrace, 0, maxTracesPerCycle+30)
	for i := 0; i < maxTracesPerCycle+30; i++ {
		traces = append(traces, testTrace(20_000_000+int64(i), "1000"))
	}
	server := relayServer(t, traces)
	defer server.Close()

	collector := NewRelayCollector(map[string]string{"testrelay": server.URL}, nil, nil)
	samples, err := collector.Collect(context.Background(), time.Now().UTC())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(samples) != maxTracesPerCycle {
		t.Errorf("expected cap of %d samples, got %d", maxTracesPerCycle, len(samples))
	}
	// The newest blocks survive the trim.
	if samples[0].BlockNumber != 20_000_000+int64(maxTracesPerCycle+29) {
		t.Errorf("samples[0].BlockNumber = %d, want the newest block", samples[0].BlockNumber)
	}
}
