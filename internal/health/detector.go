package health

import (
	"math"
	"time"

	"ethpulse/internal/domain"
)

// Detection thresholds.
const (
	// zScoreThreshold flags values more than this many population standard
	// deviations from the window mean.
	zScoreThreshold = 3.0

	// iqrMultiplier widens the interquartile range into outlier bounds.
	iqrMultiplier = 1.5

	// minDetectionSamples is the smallest window the detector is invoked
	// on. Smaller populations produce degenerate percentiles, so callers
	// skip streams below this size.
	minDetectionSamples = 20
)

// Detector flags statistical outliers within a metric window using combined
// z-score and IQR criteria. It holds no state between calls: the same window
// always yields the same anomaly set.
type Detector struct{}

// NewDetector creates a Detector.
func NewDetector() *Detector {
	return &Detector{}
}

// Detect returns the anomalies in one metric window. values and timestamps
// must be parallel slices ordered by timestamp ASC. expected is an optional
// reference value for the metric (e.g. the 12s block-time target); pass nil
// when the window median is the only baseline.
//
// A value is anomalous when its population z-score exceeds the threshold OR
// it falls outside the IQR bounds. The union maximizes recall: either signal
// alone flags the sample.
func (d *Detector) Detect(values []float64, timestamps []time.Time, metric string, expected *float64) []domain.Anomaly {
	if len(values) == 0 || len(values) != len(timestamps) {
		return nil
	}

	scores := zScores(values)

	sorted := sortedCopy(values)
	q1 := percentile(sorted, 0.25)
	q3 := percentile(sorted, 0.75)
	iqr := q3 - q1
	lower := q1 - iqrMultiplier*iqr
	upper := q3 + iqrMultiplier*iqr

	med := median(sorted)
	sd := popStdDev(values)

	var anomalies []domain.Anomaly
	for i, v := range values {
		if math.Abs(scores[i]) <= zScoreThreshold && v >= lower && v <= upper {
			continue
		}

		direction := domain.DirectionDrop
		if v > med {
			direction = domain.DirectionSpike
		}

		anomalies = append(anomalies, domain.Anomaly{
			Timestamp: timestamps[i],
			Metric:    metric,
			Value:     v,
			ZScore:    scores[i],
			Severity:  classifySeverity(v, med, sd, expected),
			Direction: direction,
			Context: domain.AnomalyContext{
				Median:   med,
				StdDev:   sd,
				IQRLower: lower,
				IQRUpper: upper,
			},
		})
	}
	return anomalies
}

// classifySeverity grades a flagged value by the larger of two deviation
// signals: relative deviation from the expected value (or window median when
// none is given) against 1.0/0.5/0.25 thresholds, and absolute deviation
// from the median against 5σ/3σ/2σ. Whichever classification is worse wins.
func classifySeverity(value, med, sd float64, expected *float64) domain.Severity {
	var deviation float64
	switch {
	case expected != nil && *expected != 0:
		deviation = math.Abs(value-*expected) / *expected
	case med != 0:
		deviation = math.Abs(value-med) / med
	default:
		// Zero baseline: relative deviation is undefined, treat as 0.
		deviation = 0
	}

	var relative domain.Severity
	switch {
	case deviation > 1.0:
		relative = domain.SeverityCritical
	case deviation > 0.5:
		relative = domain.SeverityHigh
	case deviation > 0.25:
		relative = domain.SeverityMedium
	default:
		relative = domain.SeverityLow
	}

	absDev := math.Abs(value - med)
	var absolute domain.Severity
	switch {
	case absDev > 5*sd:
		absolute = domain.SeverityCritical
	case absDev > 3*sd:
		absolute = domain.SeverityHigh
	case absDev > 2*sd:
		absolute = domain.SeverityMedium
	default:
		absolute = domain.SeverityLow
	}

	return relative.Max(absolute)
}
