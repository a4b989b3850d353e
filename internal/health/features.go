package health

import (
	"ethpulse/internal/domain"
)

// ExtractFeatures flattens a cycle's component scores and anomalies into
// the numeric feature vector consumed by forecasting models and dashboards.
// It is a pure transform: same inputs, same vector, no error cases.
func ExtractFeatures(components []domain.ComponentScore, anomalies []domain.Anomaly) domain.MLFeatures {
	vector := make([]float64, len(components))
	scores := make(map[string]float64, len(components))
	for i, cs := range components {
		vector[i] = cs.Score
		scores[cs.Name] = cs.Score
	}

	var counts domain.SeverityCounts
	for _, a := range anomalies {
		switch a.Severity {
		case domain.SeverityCritical:
			counts.Critical++
		case domain.SeverityHigh:
			counts.High++
		case domain.SeverityMedium:
			counts.Medium++
		case domain.SeverityLow:
			counts.Low++
		}
	}

	return domain.MLFeatures{
		ScoreVector:          vector,
		ScoreVariance:        popVariance(vector),
		AnomalyCount:         len(anomalies),
		SeverityDistribution: counts,
		GasMEVCorrelation: pairSignal(
			scoreOrNeutral(scores, domain.ComponentGasEfficiency),
			scoreOrNeutral(scores, domain.ComponentMEVFairness),
		),
		StabilityBlockCorrelation: pairSignal(
			scoreOrNeutral(scores, domain.ComponentNetworkStability),
			scoreOrNeutral(scores, domain.ComponentBlockProduction),
		),
	}
}

// pairSignal is a coarse co-movement signal for two scores, normalized to
// [-1, 1]: positive when both sit on the same side of the neutral 50.
func pairSignal(x, y float64) float64 {
	return (x - 50) * (y - 50) / 2500
}

// scoreOrNeutral looks up a component score, defaulting to the neutral 50.
func scoreOrNeutral(scores map[string]float64, name string) float64 {
	if s, ok := scores[name]; ok {
		return s
	}
	return 50
}
