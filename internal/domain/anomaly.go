package domain

import "time"

// Severity classifies how far an anomalous sample deviates from its window.
type Severity string

// Severity levels, ordered low to critical.
const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// severityRank maps severities to a comparable order.
var severityRank = map[Severity]int{
	SeverityLow:      0,
	SeverityMedium:   1,
	SeverityHigh:     2,
	SeverityCritical: 3,
}

// AtLeast reports whether s is at least as severe as other.
func (s Severity) AtLeast(other Severity) bool {
	return severityRank[s] >= severityRank[other]
}

// Max returns the more severe of s and other.
func (s Severity) Max(other Severity) Severity {
	if severityRank[other] > severityRank[s] {
		return other
	}
	return s
}

// Direction tells which side of the window median an anomaly falls on.
type Direction string

const (
	DirectionSpike Direction = "spike"
	DirectionDrop  Direction = "drop"
)

// AnomalyContext carries the window statistics an anomaly was detected
// against, so consumers can interpret the deviation without re-querying.
type AnomalyContext struct {
	Median   float64 `json:"median"`
	StdDev   float64 `json:"std"`
	IQRLower float64 `json:"iqr_lower"`
	IQRUpper float64 `json:"iqr_upper"`
}

// Anomaly is one flagged outlier sample. Anomalies are produced fresh on
// every detection pass and are never mutated afterwards.
type Anomaly struct {
	Timestamp time.Time      `json:"timestamp"`
	Metric    string         `json:"metric"`
	Value     float64        `json:"value"`
	ZScore    float64        `json:"z_score"`
	Severity  Severity       `json:"severity"`
	Direction Direction      `json:"direction"`
	Context   AnomalyContext `json:"context"`
}

// Metric stream names used by the anomaly detector.
const (
	MetricGasPrice   = "gas_price"
	MetricBlockTime  = "block_time"
	MetricMEVRevenue = "mev_revenue"
)
