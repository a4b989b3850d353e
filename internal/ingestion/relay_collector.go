package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/big"
	"net/http"
	"sort"
	"strconv"
	"time"

	"ethpulse/internal/domain"
)

// DefaultRelays are the MEV-Boost relays polled for delivered payloads.
var DefaultRelays = map[string]string{
	"flashbots":     "https://boost-relay.flashbots.net",
	"bloxroute_max": "https://bloxroute.max-profit.blxrbdn.com",
	"agnostic":      "https://agnostic-relay.net",
}

const (
	bidTracePath = "/relay/v1/data/bidtraces/proposer_payload_delivered"
	// tracesPerRelay is the page size requested from each relay.
	tracesPerRelay = 100
	// maxTracesPerCycle bounds how many traces one cycle turns into samples,
	// newest blocks first.
	maxTracesPerCycle = 50

	// Thresholds for the block-level sandwich proxy. Relay bid traces carry
	// no transaction data, so a full-but-lucrative block is the closest
	// observable signal.
	sandwichRevenueETH     = 1.0
	sandwichUtilizationPct = 90.0
)

// RelayErrorRecorder receives per-relay fetch failures.
type RelayErrorRecorder interface {
	RecordRelayError(relay string)
}

// RelayCollector polls MEV-Boost relay APIs for delivered payload bid traces
// and converts them to MEV samples.
type RelayCollector struct {
	relays   map[string]string
	client   *http.Client
	logger   *log.Logger
	recorder RelayErrorRecorder
}

// NewRelayCollector creates a collector over the given relays. Nil relays
// uses DefaultRelays.
func NewRelayCollector(relays map[string]string, logger *log.Logger, recorder RelayErrorRecorder) *RelayCollector {
	if relays == nil {
		relays = DefaultRelays
	}
	if logger == nil {
		logger = log.Default()
	}
	return &RelayCollector{
		relays:   relays,
		client:   &http.Client{Timeout: 30 * time.Second},
		logger:   logger,
		recorder: recorder,
	}
}

// bidTrace is the relay API response item. All numeric fields arrive as
// decimal strings.
type bidTrace struct {
	Slot          string `json:"slot"`
	BlockNumber   string `json:"block_number"`
	Value         string `json:"value"`
	BuilderPubkey string `json:"builder_pubkey"`
	GasUsed       string `json:"gas_used"`
	GasLimit      string `json:"gas_limit"`
	BlockHash     string `json:"block_hash"`

	relaySource string
}

// Collect fetches bid traces from every configured relay. A failing relay is
// logged and skipped; Collect only errors when no relay responded.
func (c *RelayCollector) Collect(ctx context.Context, now time.Time) ([]*domain.MEVSample, error) {
	var traces []bidTrace
	responded := 0

	for name, base := range c.relays {
		relayTraces, err := c.fetchRelay(ctx, name, base)
		if err != nil {
			c.logger.Printf("[ingestion] relay %s: %v", name, err)
			if c.recorder != nil {
				c.recorder.RecordRelayError(name)
			}
			continue
		}
		responded++
		traces = append(traces, relayTraces...)
	}

	if responded == 0 && len(c.relays) > 0 {
		return nil, fmt.Errorf("all %d relays failed", len(c.relays))
	}

	// Newest blocks first, then trim to the per-cycle cap.
	sort.Slice(traces, func(i, j int) bool {
		return parseDecimal(traces[i].BlockNumber) > parseDecimal(traces[j].BlockNumber)
	})
	if len(traces) > maxTracesPerCycle {
		traces = traces[:maxTracesPerCycle]
	}

	samples := make([]*domain.MEVSample, 0, len(traces))
	for _, trace := range traces {
		sample, err := traceToSample(trace, now)
		if err != nil {
			c.logger.Printf("[ingestion] malformed bid trace from %s: %v", trace.relaySource, err)
			continue
		}
		samples = append(samples, sample)
	}
	return samples, nil
}

func (c *RelayCollector) fetchRelay(ctx context.Context, name, base string) ([]bidTrace, error) {
	url := fmt.Sprintf("%s%s?limit=%d", base, bidTracePath, tracesPerRelay)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var traces []bidTrace
	if err := json.Unmarshal(body, &traces); err != nil {
		return nil, fmt.Errorf("unmarshal bid traces: %w", err)
	}
	for i := range traces {
		traces[i].relaySource = name
	}
	return traces, nil
}

// traceToSample decodes one bid trace into an MEV sample.
func traceToSample(trace bidTrace, now time.Time) (*domain.MEVSample, error) {
	blockNumber := parseDecimal(trace.BlockNumber)
	if blockNumber <= 0 {
		return nil, fmt.Errorf("invalid block number %q", trace.BlockNumber)
	}

	valueWei, ok := new(big.Int).SetString(trace.Value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid value %q", trace.Value)
	}
	revenue, _ := new(big.Float).Quo(
		new(big.Float).SetInt(valueWei),
		big.NewFloat(1e18),
	).Float64()

	gasUsed := parseDecimal(trace.GasUsed)
	gasLimit := parseDecimal(trace.GasLimit)
	utilization := 0.0
	if gasLimit > 0 {
		utilization = float64(gasUsed) / float64(gasLimit) * 100
	}

	sample := &domain.MEVSample{
		Timestamp:      now,
		BlockNumber:    blockNumber,
		Slot:           parseDecimal(trace.Slot),
		RevenueETH:     revenue,
		BuilderPubkey:  trace.BuilderPubkey,
		RelaySource:    trace.relaySource,
		GasUsed:        gasUsed,
		GasLimit:       gasLimit,
		GasUtilization: utilization,
	}

	if revenue > sandwichRevenueETH && utilization > sandwichUtilizationPct {
		sample.SandwichCount = 1
	}

	return sample, nil
}

func parseDecimal(s string) int64 {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return v
}
