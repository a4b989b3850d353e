// Package health implements the network health scoring and anomaly
// detection engine: six weighted component scorers over time-windowed metric
// samples, combined z-score/IQR outlier detection, and the aggregation into
// a single immutable HealthScoreRecord per scoring cycle.
package health

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"ethpulse/internal/domain"
	"ethpulse/internal/storage"
)

// CalculationVersion tags records with the calculator revision that
// produced them.
const CalculationVersion = "2.0"

// anomalyWindow is the lookback for all three anomaly-detection streams.
const anomalyWindow = 24 * time.Hour

// componentWeights combine the six component scores into the overall score.
// The weights sum to exactly 1.0, which keeps the overall score a convex
// combination of its components.
var componentWeights = map[string]float64{
	domain.ComponentGasEfficiency:        0.25,
	domain.ComponentNetworkStability:     0.20,
	domain.ComponentMEVFairness:          0.15,
	domain.ComponentBlockProduction:      0.15,
	domain.ComponentMempoolHealth:        0.15,
	domain.ComponentValidatorPerformance: 0.10,
}

// componentAdvisories are appended for every component scoring below 60.
var componentAdvisories = map[string]string{
	domain.ComponentGasEfficiency:        "Gas prices are elevated - consider delaying non-urgent transactions",
	domain.ComponentNetworkStability:     "Block times are unstable - network may be experiencing congestion",
	domain.ComponentMEVFairness:          "High MEV extraction detected - consider private transaction relays",
	domain.ComponentBlockProduction:      "Block production is below target - validator participation may be degraded",
	domain.ComponentMempoolHealth:        "Mempool congestion is high - expect slower transaction inclusion",
	domain.ComponentValidatorPerformance: "Builder diversity is low - block production is concentrated",
}

// maxRecommendations caps the advisory list on every record.
const maxRecommendations = 5

// Calculator computes health score records from the metric sample stores.
// It keeps no state across cycles: every call recomputes baselines fresh
// from its windows, so overlapping cycles are safe.
type Calculator struct {
	gasStore   storage.GasMetricStore
	blockStore storage.BlockMetricStore
	mevStore   storage.MEVMetricStore
	detector   *Detector
	logger     *log.Logger
}

// NewCalculator creates a Calculator over the given sample stores. logger
// may be nil, in which case a default stderr logger is used.
func NewCalculator(gas storage.GasMetricStore, blocks storage.BlockMetricStore, mev storage.MEVMetricStore, logger *log.Logger) *Calculator {
	if logger == nil {
		logger = log.New(os.Stderr, "[health] ", log.LstdFlags)
	}
	return &Calculator{
		gasStore:   gas,
		blockStore: blocks,
		mevStore:   mev,
		detector:   NewDetector(),
		logger:     logger,
	}
}

// Calculate runs one full scoring cycle ending at now and always returns a
// usable record: any failure inside the cycle degrades to DefaultRecord
// rather than surfacing an error or a partially populated record. A stale
// but well-formed score beats no response.
func (c *Calculator) Calculate(ctx context.Context, now time.Time) *domain.HealthScoreRecord {
	record, err := c.calculate(ctx, now)
	if err != nil {
		c.logger.Printf("scoring cycle failed, returning default record: %v", err)
		return DefaultRecord(now)
	}
	return record
}

// calculate is the fallible cycle body. Errors escalate whole: either every
// component populated, or none.
func (c *Calculator) calculate(ctx context.Context, now time.Time) (*domain.HealthScoreRecord, error) {
	scorers := []func(context.Context, time.Time) (domain.ComponentScore, error){
		c.gasEfficiency,
		c.networkStability,
		c.mevFairness,
		c.blockProduction,
		c.mempoolHealth,
		c.validatorPerformance,
	}

	components := make([]domain.ComponentScore, 0, len(scorers))
	for _, score := range scorers {
		cs, err := score(ctx, now)
		if err != nil {
			return nil, err
		}
		components = append(components, cs)
	}

	scores := make(map[string]float64, len(components))
	overall := 0.0
	for _, cs := range components {
		scores[cs.Name] = cs.Score
		overall += componentWeights[cs.Name] * cs.Score
	}

	anomalies, err := c.detectAnomalies(ctx, now)
	if err != nil {
		return nil, err
	}

	return &domain.HealthScoreRecord{
		Timestamp:          now,
		OverallScore:       overall,
		ConfidenceLevel:    confidenceLevel(components),
		ComponentScores:    scores,
		Components:         components,
		HealthStatus:       healthStatus(overall, anomalies),
		Anomalies:          anomalies,
		Recommendations:    recommendations(components, anomalies, overall),
		Features:           ExtractFeatures(components, anomalies),
		CalculationVersion: CalculationVersion,
	}, nil
}

// detectAnomalies runs the detector over the three independent metric
// streams: gas price, block-time deltas (against the 12s target), and MEV
// revenue. Streams below the minimum sample count are skipped, not errors.
func (c *Calculator) detectAnomalies(ctx context.Context, now time.Time) ([]domain.Anomaly, error) {
	start := now.Add(-anomalyWindow)
	var anomalies []domain.Anomaly

	gasSamples, err := c.gasStore.GetByTimeRange(ctx, start, now)
	if err != nil {
		return nil, fmt.Errorf("query gas anomaly window: %w", err)
	}
	if len(gasSamples) >= minDetectionSamples {
		values := make([]float64, len(gasSamples))
		timestamps := make([]time.Time, len(gasSamples))
		for i, s := range gasSamples {
			values[i] = s.GasPriceGwei
			timestamps[i] = s.Timestamp
		}
		anomalies = append(anomalies, c.detector.Detect(values, timestamps, domain.MetricGasPrice, nil)...)
	}

	blockSamples, err := c.blockStore.GetByTimeRange(ctx, start, now)
	if err != nil {
		return nil, fmt.Errorf("query block anomaly window: %w", err)
	}
	if len(blockSamples) >= minDetectionSamples {
		deltas := domain.BlockTimeDeltas(blockSamples)
		timestamps := make([]time.Time, len(deltas))
		for i := range deltas {
			timestamps[i] = blockSamples[i+1].Timestamp
		}
		expected := expectedBlockTime
		anomalies = append(anomalies, c.detector.Detect(deltas, timestamps, domain.MetricBlockTime, &expected)...)
	}

	mevSamples, err := c.mevStore.GetByTimeRange(ctx, start, now)
	if err != nil {
		return nil, fmt.Errorf("query mev anomaly window: %w", err)
	}
	if len(mevSamples) >= minDetectionSamples {
		values := make([]float64, len(mevSamples))
		timestamps := make([]time.Time, len(mevSamples))
		for i, s := range mevSamples {
			values[i] = s.RevenueETH
			timestamps[i] = s.Timestamp
		}
		anomalies = append(anomalies, c.detector.Detect(values, timestamps, domain.MetricMEVRevenue, nil)...)
	}

	return anomalies, nil
}

// healthStatus labels a record. Anomaly severity can override the pure
// score bucket: a single critical anomaly forces the emergency label, and a
// high-severity anomaly on an already-shaky score forces the warning label.
func healthStatus(overall float64, anomalies []domain.Anomaly) string {
	worst := domain.SeverityLow
	for _, a := range anomalies {
		worst = worst.Max(a.Severity)
	}
	if worst == domain.SeverityCritical {
		return domain.StatusEmergency
	}
	if worst.AtLeast(domain.SeverityHigh) && overall < 70 {
		return domain.StatusWarning
	}

	switch {
	case overall >= 90:
		return domain.StatusExcellent
	case overall >= 80:
		return domain.StatusGood
	case overall >= 70:
		return domain.StatusFair
	case overall >= 60:
		return domain.StatusDegraded
	case overall >= 50:
		return domain.StatusPoor
	default:
		return domain.StatusCritical
	}
}

// confidenceLevel measures data completeness: each component with a strictly
// positive score contributes its confidence factor, and the sum is reported
// as a percentage of the six-component maximum.
func confidenceLevel(components []domain.ComponentScore) float64 {
	total := 0.0
	for _, cs := range components {
		if cs.Score > 0 {
			total += confidenceFactor(cs)
		}
	}
	return clamp(total/float64(len(domain.ComponentNames))*100, 0, 100)
}

// confidenceFactor weighs one component's contribution: 0.9 for a component
// backed by multi-window time-based analysis, 0.5 when its detail indicates
// insufficient data, 0.8 otherwise.
func confidenceFactor(cs domain.ComponentScore) float64 {
	switch d := cs.Detail.(type) {
	case domain.GasEfficiencyDetail:
		if len(d.Windows) > 0 {
			return 0.9
		}
		return 0.5
	case domain.NetworkStabilityDetail:
		if d.Insufficient {
			return 0.5
		}
	case domain.MEVFairnessDetail:
		if d.Insufficient {
			return 0.5
		}
	case domain.ValidatorPerformanceDetail:
		if d.Insufficient {
			return 0.5
		}
	}
	return 0.8
}

// recommendations builds the advisory list: one fixed advisory per component
// below 60 (in aggregation order), a count-based advisory when high-severity
// anomalies are present, and a healthy message when nothing else applied.
// The list never exceeds maxRecommendations.
func recommendations(components []domain.ComponentScore, anomalies []domain.Anomaly, overall float64) []string {
	var recs []string
	for _, cs := range components {
		if cs.Score < 60 {
			recs = append(recs, componentAdvisories[cs.Name])
		}
	}

	highCount := 0
	for _, a := range anomalies {
		if a.Severity == domain.SeverityHigh {
			highCount++
		}
	}
	if highCount >= 1 {
		recs = append(recs, fmt.Sprintf("%d high-severity anomalies detected - monitor network conditions closely", highCount))
	}

	if len(recs) == 0 {
		if overall > 85 {
			recs = append(recs, "Network operating at excellent levels - all metrics normal")
		} else {
			recs = append(recs, "Network health within normal parameters")
		}
	}

	if len(recs) > maxRecommendations {
		recs = recs[:maxRecommendations]
	}
	return recs
}

// DefaultRecord is the degrade-gracefully fallback returned when a scoring
// cycle fails: neutral 50 everywhere, Unknown status, a single retry
// advisory. Callers cannot distinguish it from a computed record except via
// the status and confidence fields, which is deliberate.
func DefaultRecord(now time.Time) *domain.HealthScoreRecord {
	components := make([]domain.ComponentScore, 0, len(domain.ComponentNames))
	scores := make(map[string]float64, len(domain.ComponentNames))
	for _, name := range domain.ComponentNames {
		components = append(components, domain.ComponentScore{Name: name, Score: 50.0})
		scores[name] = 50.0
	}

	return &domain.HealthScoreRecord{
		Timestamp:          now,
		OverallScore:       50.0,
		ConfidenceLevel:    0,
		ComponentScores:    scores,
		Components:         components,
		HealthStatus:       domain.StatusUnknown,
		Recommendations:    []string{"Unable to calculate network health - please try again later"},
		Features:           ExtractFeatures(components, nil),
		CalculationVersion: CalculationVersion,
	}
}
