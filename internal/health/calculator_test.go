package health

import (
	"context"
	"errors"
	"fmt"
	"math"
	"reflect"
	"testing"
	"time"

	"ethpulse/internal/domain"
	"ethpulse/internal/storage"
	"ethpulse/internal/storage/memory"
)

var errStoreDown = errors.New("store down")

// failingGasStore errors on every call.
type failingGasStore struct{}

func (failingGasStore) Insert(context.Context, *domain.GasSample) error { return errStoreDown }

func (failingGasStore) InsertBulk(context.Context, []*domain.GasSample) error { return errStoreDown }
func (failingGasStore) GetByTimeRange(context.Context, time.Time, time.Time) ([]*domain.GasSample, error) {
	return nil, errStoreDown
}

var _ storage.GasMetricStore = failingGasStore{}

// seedSteadyNetwork fills the stores with 24h of uneventful data: constant
// 30 gwei gas, perfectly spaced 12s blocks, and modest MEV revenue from a
// different builder every block.
func seedSteadyNetwork(t *testing.T, gas *memory.GasMetricStore, blocks *memory.BlockMetricStore, mev *memory.MEVMetricStore, now time.Time) {
	t.Helper()
	ctx := context.Background()

	for i := 0; i < 289; i++ {
		err := gas.Insert(ctx, &domain.GasSample{
			Timestamp:    now.Add(-time.Duration(i) * 5 * time.Minute),
			GasPriceWei:  30_000_000_000,
			GasPriceGwei: 30,
		})
		if err != nil {
			t.Fatalf("seed gas: %v", err)
		}
	}

	for i := 1; i <= 300; i++ {
		ts := now.Add(-time.Duration(i) * 12 * time.Second)
		err := blocks.Insert(ctx, &domain.BlockSample{
			Timestamp:      ts,
			BlockNumber:    20_000_000 - int64(i),
			BlockTimestamp: ts,
			GasUsed:        15_000_000,
			GasLimit:       30_000_000,
			TxCount:        150,
			BaseFeeGwei:    25,
		})
		if err != nil {
			t.Fatalf("seed block: %v", err)
		}
	}

	for i := 0; i < 24; i++ {
		err := mev.Insert(ctx, &domain.MEVSample{
			Timestamp:      now.Add(-time.Duration(i) * 10 * time.Minute),
			BlockNumber:    20_000_000 - int64(i)*3,
			Slot:           9_000_000 - int64(i)*3,
			RevenueETH:     0.05,
			BuilderPubkey:  fmt.Sprintf("0xbuilder%02d", i),
			RelaySource:    "flashbots",
			GasUsed:        15_000_000,
			GasLimit:       30_000_000,
			GasUtilization: 50,
		})
		if err != nil {
			t.Fatalf("seed mev: %v", err)
		}
	}
}

func TestCalculate_SteadyNetworkScoresExcellent(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	gas := memory.NewGasMetricStore()
	blocks := memory.NewBlockMetricStore()
	mev := memory.NewMEVMetricStore()
	seedSteadyNetwork(t, gas, blocks, mev, now)

	calc := NewCalculator(gas, blocks, mev, nil)
	record := calc.Calculate(ctx, now)

	// gas 100, stability 100, mev 100, production 100, mempool 75,
	// validator 100 under the component weights.
	if math.Abs(record.OverallScore-96.25) > 1e-9 {
		t.Errorf("OverallScore = %v, want 96.25", record.OverallScore)
	}
	if record.HealthStatus != domain.StatusExcellent {
		t.Errorf("HealthStatus = %q, want %q", record.HealthStatus, domain.StatusExcellent)
	}
	if len(record.Anomalies) != 0 {
		t.Errorf("expected no anomalies, got %d", len(record.Anomalies))
	}
	if len(record.Components) != len(domain.ComponentNames) {
		t.Fatalf("expected %d components, got %d", len(domain.ComponentNames), len(record.Components))
	}
	for i, cs := range record.Components {
		if cs.Name != domain.ComponentNames[i] {
			t.Errorf("component %d = %q, want %q", i, cs.Name, domain.ComponentNames[i])
		}
		if cs.Score < 0 || cs.Score > 100 {
			t.Errorf("component %q score %v outside [0,100]", cs.Name, cs.Score)
		}
	}
	if record.ComponentScores[domain.ComponentGasEfficiency] != 100 {
		t.Errorf("gas score = %v, want 100", record.ComponentScores[domain.ComponentGasEfficiency])
	}
	if record.ComponentScores[domain.ComponentNetworkStability] != 100 {
		t.Errorf("stability score = %v, want 100", record.ComponentScores[domain.ComponentNetworkStability])
	}
	if record.ComponentScores[domain.ComponentBlockProduction] != 100 {
		t.Errorf("production score = %v, want 100", record.ComponentScores[domain.ComponentBlockProduction])
	}
	if record.ComponentScores[domain.ComponentMempoolHealth] != 75 {
		t.Errorf("mempool score = %v, want neutral 75", record.ComponentScores[domain.ComponentMempoolHealth])
	}

	// 0.9 for the window-backed gas component, 0.8 for the other five.
	wantConfidence := (0.9 + 5*0.8) / 6 * 100
	if math.Abs(record.ConfidenceLevel-wantConfidence) > 1e-9 {
		t.Errorf("ConfidenceLevel = %v, want %v", record.ConfidenceLevel, wantConfidence)
	}

	if len(record.Recommendations) != 1 || record.Recommendations[0] != "Network operating at excellent levels - all metrics normal" {
		t.Errorf("Recommendations = %v", record.Recommendations)
	}
	if record.CalculationVersion != CalculationVersion {
		t.Errorf("CalculationVersion = %q", record.CalculationVersion)
	}
}

func TestCalculate_GasSpikeEscalatesStatus(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	gas := memory.NewGasMetricStore()
	blocks := memory.NewBlockMetricStore()
	mev := memory.NewMEVMetricStore()

	for i := 1; i < 289; i++ {
		err := gas.Insert(ctx, &domain.GasSample{
			Timestamp:    now.Add(-time.Duration(i) * 5 * time.Minute),
			GasPriceWei:  30_000_000_000,
			GasPriceGwei: 30,
		})
		if err != nil {
			t.Fatalf("seed gas: %v", err)
		}
	}
	err := gas.Insert(ctx, &domain.GasSample{
		Timestamp:    now,
		GasPriceWei:  500_000_000_000,
		GasPriceGwei: 500,
	})
	if err != nil {
		t.Fatalf("seed spike: %v", err)
	}

	calc := NewCalculator(gas, blocks, mev, nil)
	record := calc.Calculate(ctx, now)

	if record.HealthStatus != domain.StatusEmergency {
		t.Errorf("HealthStatus = %q, want %q", record.HealthStatus, domain.StatusEmergency)
	}

	var found bool
	for _, a := range record.Anomalies {
		if a.Metric == domain.MetricGasPrice && a.Severity == domain.SeverityCritical && a.Value == 500 {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a critical gas price anomaly, got %+v", record.Anomalies)
	}
	if record.Features.AnomalyCount != len(record.Anomalies) {
		t.Errorf("Features.AnomalyCount = %d, want %d", record.Features.AnomalyCount, len(record.Anomalies))
	}
}

func TestCalculate_EmptyStoresFallBackToNeutral(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	calc := NewCalculator(memory.NewGasMetricStore(), memory.NewBlockMetricStore(), memory.NewMEVMetricStore(), nil)
	record := calc.Calculate(ctx, now)

	// gas 50, stability 75, mev 75, production 50, mempool 75, validator 75.
	if math.Abs(record.OverallScore-65) > 1e-9 {
		t.Errorf("OverallScore = %v, want 65", record.OverallScore)
	}
	if record.HealthStatus != domain.StatusDegraded {
		t.Errorf("HealthStatus = %q, want %q", record.HealthStatus, domain.StatusDegraded)
	}
	if len(record.Anomalies) != 0 {
		t.Errorf("expected no anomalies on empty stores, got %d", len(record.Anomalies))
	}

	// Four components report insufficient data (0.5), two carry the plain
	// 0.8 factor.
	wantConfidence := (4*0.5 + 2*0.8) / 6 * 100
	if math.Abs(record.ConfidenceLevel-wantConfidence) > 1e-9 {
		t.Errorf("ConfidenceLevel = %v, want %v", record.ConfidenceLevel, wantConfidence)
	}

	want := []string{
		componentAdvisories[domain.ComponentGasEfficiency],
		componentAdvisories[domain.ComponentBlockProduction],
	}
	if !reflect.DeepEqual(record.Recommendations, want) {
		t.Errorf("Recommendations = %v, want %v", record.Recommendations, want)
	}
}

func TestCalculate_StoreFailureReturnsDefaultRecord(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	calc := NewCalculator(failingGasStore{}, memory.NewBlockMetricStore(), memory.NewMEVMetricStore(), nil)
	record := calc.Calculate(ctx, now)

	if record.HealthStatus != domain.StatusUnknown {
		t.Errorf("HealthStatus = %q, want %q", record.HealthStatus, domain.StatusUnknown)
	}
	if record.OverallScore != 50 {
		t.Errorf("OverallScore = %v, want 50", record.OverallScore)
	}
	if record.ConfidenceLevel != 0 {
		t.Errorf("ConfidenceLevel = %v, want 0", record.ConfidenceLevel)
	}
	for _, name := range domain.ComponentNames {
		if record.ComponentScores[name] != 50 {
			t.Errorf("component %q = %v, want 50", name, record.ComponentScores[name])
		}
	}
	if len(record.Recommendations) != 1 || record.Recommendations[0] != "Unable to calculate network health - please try again later" {
		t.Errorf("Recommendations = %v", record.Recommendations)
	}
	if !record.Timestamp.Equal(now) {
		t.Errorf("Timestamp = %v, want %v", record.Timestamp, now)
	}
}

func TestCalculate_Deterministic(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	gas := memory.NewGasMetricStore()
	blocks := memory.NewBlockMetricStore()
	mev := memory.NewMEVMetricStore()
	seedSteadyNetwork(t, gas, blocks, mev, now)

	calc := NewCalculator(gas, blocks, mev, nil)
	first := calc.Calculate(ctx, now)
	for run := 0; run < 3; run++ {
		again := calc.Calculate(ctx, now)
		if !reflect.DeepEqual(first, again) {
			t.Errorf("run %d: records differ", run)
		}
	}
}

func TestHealthStatus(t *testing.T) {
	critical := []domain.Anomaly{{Severity: domain.SeverityCritical}}
	high := []domain.Anomaly{{Severity: domain.SeverityHigh}}

	tests := []struct {
		name      string
		overall   float64
		anomalies []domain.Anomaly
		want      string
	}{
		{"excellent", 92, nil, domain.StatusExcellent},
		{"good", 85, nil, domain.StatusGood},
		{"fair", 72, nil, domain.StatusFair},
		{"degraded", 61, nil, domain.StatusDegraded},
		{"poor", 55, nil, domain.StatusPoor},
		{"critical bucket", 40, nil, domain.StatusCritical},
		{"critical anomaly overrides score", 95, critical, domain.StatusEmergency},
		{"high anomaly on shaky score", 65, high, domain.StatusWarning},
		{"high anomaly on solid score", 88, high, domain.StatusGood},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := healthStatus(tt.overall, tt.anomalies); got != tt.want {
				t.Errorf("healthStatus(%v) = %q, want %q", tt.overall, got, tt.want)
			}
		})
	}
}

func TestRecommendations_Capped(t *testing.T) {
	components := make([]domain.ComponentScore, 0, len(domain.ComponentNames))
	for _, name := range domain.ComponentNames {
		components = append(components, domain.ComponentScore{Name: name, Score: 30})
	}
	anomalies := []domain.Anomaly{
		{Severity: domain.SeverityHigh},
		{Severity: domain.SeverityHigh},
	}

	recs := recommendations(components, anomalies, 30)
	if len(recs) != maxRecommendations {
		t.Errorf("len(recs) = %d, want %d", len(recs), maxRecommendations)
	}
}

func TestRecommendations_HealthyFallback(t *testing.T) {
	components := []domain.ComponentScore{{Name: domain.ComponentGasEfficiency, Score: 80}}

	recs := recommendations(components, nil, 80)
	if len(recs) != 1 || recs[0] != "Network health within normal parameters" {
		t.Errorf("recs = %v", recs)
	}
}
