package domain

import (
	"encoding/json"
	"time"
)

// Component names. The set is fixed: every HealthScoreRecord carries exactly
// these six components.
const (
	ComponentGasEfficiency        = "gas_efficiency"
	ComponentNetworkStability     = "network_stability"
	ComponentMEVFairness          = "mev_fairness"
	ComponentBlockProduction      = "block_production"
	ComponentMempoolHealth        = "mempool_health"
	ComponentValidatorPerformance = "validator_performance"
)

// ComponentNames lists the six components in aggregation order.
var ComponentNames = []string{
	ComponentGasEfficiency,
	ComponentNetworkStability,
	ComponentMEVFairness,
	ComponentBlockProduction,
	ComponentMempoolHealth,
	ComponentValidatorPerformance,
}

// Health status labels derived from the overall score and anomaly set.
const (
	StatusExcellent = "Excellent"
	StatusGood      = "Good"
	StatusFair      = "Fair"
	StatusDegraded  = "Degraded"
	StatusPoor      = "Poor"
	StatusCritical  = "Critical"
	StatusWarning   = "Warning - Anomalies Detected"
	StatusEmergency = "Critical - Immediate Attention Required"
	StatusUnknown   = "Unknown"
)

// TrendDirection labels the slope of a metric window.
type TrendDirection string

const (
	TrendRising  TrendDirection = "rising"
	TrendFalling TrendDirection = "falling"
	TrendStable  TrendDirection = "stable"
)

// ComponentDetail is the scorer-specific half of a ComponentScore. Each
// scorer returns its own concrete type; consumers type-switch on it.
type ComponentDetail interface {
	isComponentDetail()
}

// WindowScore is the per-window breakdown inside GasEfficiencyDetail.
type WindowScore struct {
	Score        float64 `json:"score"`
	BaselineP50  float64 `json:"baseline_p50"`
	BaselineP95  float64 `json:"baseline_p95"`
	CurrentValue float64 `json:"current_value"`
	Volatility   float64 `json:"volatility"`
	SampleCount  int     `json:"sample_count"`
}

// GasEfficiencyDetail reports the multi-window baseline analysis.
type GasEfficiencyDetail struct {
	Windows map[string]WindowScore `json:"windows"`
	Trend   TrendDirection         `json:"trend"`
}

// NetworkStabilityDetail reports block-interval consistency.
type NetworkStabilityDetail struct {
	CoefficientOfVariation float64 `json:"coefficient_of_variation"`
	MeanBlockTime          float64 `json:"mean_block_time"`
	SampleCount            int     `json:"sample_count"`
	Insufficient           bool    `json:"insufficient"`
}

// MEVFairnessDetail reports extraction pressure and builder decentralization.
type MEVFairnessDetail struct {
	AvgMEVPerBlock   float64 `json:"avg_mev_per_block"`
	SandwichRate     float64 `json:"sandwich_rate"`
	BuilderDiversity float64 `json:"builder_diversity"`
	HarmfulMEVPct    float64 `json:"harmful_mev_percentage"`
	Insufficient     bool    `json:"insufficient"`
}

// BlockProductionDetail reports observed vs expected block throughput.
type BlockProductionDetail struct {
	ObservedBlocks int     `json:"observed_blocks"`
	ExpectedBlocks int     `json:"expected_blocks"`
	Ratio          float64 `json:"ratio"`
}

// MempoolHealthDetail is a placeholder until a pending-transaction data
// source is wired into scoring.
type MempoolHealthDetail struct {
	Note string `json:"note"`
}

// ValidatorPerformanceDetail reports builder participation breadth.
type ValidatorPerformanceDetail struct {
	UniqueBuilders int  `json:"unique_builders"`
	TotalBlocks    int  `json:"total_blocks"`
	Insufficient   bool `json:"insufficient"`
}

func (GasEfficiencyDetail) isComponentDetail()        {}
func (NetworkStabilityDetail) isComponentDetail()     {}
func (MEVFairnessDetail) isComponentDetail()          {}
func (BlockProductionDetail) isComponentDetail()      {}
func (MempoolHealthDetail) isComponentDetail()        {}
func (ValidatorPerformanceDetail) isComponentDetail() {}

// ComponentScore is the unit of output from one component scorer. Score is
// always present and clamped to [0,100]; Detail may be nil when the scorer
// fell back to its neutral default with nothing to report.
type ComponentScore struct {
	Name   string          `json:"name"`
	Score  float64         `json:"score"`
	Detail ComponentDetail `json:"detail,omitempty"`
}

// UnmarshalJSON decodes a ComponentScore, picking the concrete Detail type
// from the component name. Unknown names keep a nil Detail.
func (c *ComponentScore) UnmarshalJSON(data []byte) error {
	var raw struct {
		Name   string          `json:"name"`
		Score  float64         `json:"score"`
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	c.Name = raw.Name
	c.Score = raw.Score
	c.Detail = nil
	if len(raw.Detail) == 0 || string(raw.Detail) == "null" {
		return nil
	}

	switch raw.Name {
	case ComponentGasEfficiency:
		var d GasEfficiencyDetail
		if err := json.Unmarshal(raw.Detail, &d); err != nil {
			return err
		}
		c.Detail = d
	case ComponentNetworkStability:
		var d NetworkStabilityDetail
		if err := json.Unmarshal(raw.Detail, &d); err != nil {
			return err
		}
		c.Detail = d
	case ComponentMEVFairness:
		var d MEVFairnessDetail
		if err := json.Unmarshal(raw.Detail, &d); err != nil {
			return err
		}
		c.Detail = d
	case ComponentBlockProduction:
		var d BlockProductionDetail
		if err := json.Unmarshal(raw.Detail, &d); err != nil {
			return err
		}
		c.Detail = d
	case ComponentMempoolHealth:
		var d MempoolHealthDetail
		if err := json.Unmarshal(raw.Detail, &d); err != nil {
			return err
		}
		c.Detail = d
	case ComponentValidatorPerformance:
		var d ValidatorPerformanceDetail
		if err := json.Unmarshal(raw.Detail, &d); err != nil {
			return err
		}
		c.Detail = d
	}
	return nil
}

// SeverityCounts is the per-severity anomaly breakdown in MLFeatures.
type SeverityCounts struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
}

// MLFeatures is the flat numeric feature vector handed to downstream
// forecasting models and dashboards.
type MLFeatures struct {
	ScoreVector               []float64      `json:"score_vector"`
	ScoreVariance             float64        `json:"score_variance"`
	AnomalyCount              int            `json:"anomaly_count"`
	SeverityDistribution      SeverityCounts `json:"anomaly_severity_distribution"`
	GasMEVCorrelation         float64        `json:"gas_mev_correlation"`
	StabilityBlockCorrelation float64        `json:"stability_block_correlation"`
}

// HealthScoreRecord is the aggregate output of one scoring cycle. It is
// immutable after creation; ownership passes to the persistence and
// broadcast sinks as soon as the calculator returns it.
type HealthScoreRecord struct {
	Timestamp          time.Time          `json:"timestamp"`
	OverallScore       float64            `json:"overall_score"`
	ConfidenceLevel    float64            `json:"confidence_level"`
	ComponentScores    map[string]float64 `json:"component_scores"`
	Components         []ComponentScore   `json:"component_details"`
	HealthStatus       string             `json:"health_status"`
	Anomalies          []Anomaly          `json:"anomalies_detected"`
	Recommendations    []string           `json:"recommendations"`
	Features           MLFeatures         `json:"ml_features"`
	CalculationVersion string             `json:"calculation_version"`
}
