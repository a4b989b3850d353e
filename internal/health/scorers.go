package health

import (
	"context"
	"fmt"
	"math"
	"time"

	"ethpulse/internal/domain"
)

// Baseline windows and targets.
const (
	windowShort  = 1 * time.Hour
	windowMedium = 24 * time.Hour
	windowLong   = 7 * 24 * time.Hour

	stabilityWindow  = 24 * time.Hour
	mevWindow        = 6 * time.Hour
	productionWindow = 1 * time.Hour

	// expectedBlockTime is the post-merge slot time in seconds.
	expectedBlockTime = 12.0

	// expectedBlocksPerHour follows from the 12s slot time.
	expectedBlocksPerHour = 300

	// neutralScore is the fallback when a scorer has no data to work with.
	neutralScore = 75.0
)

// gasEfficiency scores the latest gas price against dynamic P50/P95
// baselines over short/medium/long windows, penalized by volatility and
// combined with 0.5/0.3/0.2 weights favoring recent data.
func (c *Calculator) gasEfficiency(ctx context.Context, now time.Time) (domain.ComponentScore, error) {
	windows := []struct {
		name string
		span time.Duration
	}{
		{"short", windowShort},
		{"medium", windowMedium},
		{"long", windowLong},
	}

	winScores := make(map[string]domain.WindowScore)
	var longSeries []float64

	for _, w := range windows {
		samples, err := c.gasStore.GetByTimeRange(ctx, now.Add(-w.span), now)
		if err != nil {
			return domain.ComponentScore{}, fmt.Errorf("query gas window %s: %w", w.name, err)
		}
		if len(samples) == 0 {
			continue
		}

		prices := make([]float64, len(samples))
		for i, s := range samples {
			prices[i] = s.GasPriceGwei
		}
		if w.name == "long" {
			longSeries = prices
		}

		sorted := sortedCopy(prices)
		p50 := percentile(sorted, 0.50)
		p95 := percentile(sorted, 0.95)
		current := prices[len(prices)-1]

		var score float64
		switch {
		case current <= p50:
			score = 100
		case current <= p95:
			if p95 > p50 {
				score = 100 - (current-p50)/(p95-p50)*50
			} else {
				score = 100
			}
		default:
			if p95 > 0 {
				score = math.Max(0, 50-(current-p95)/p95*50)
			} else {
				score = 50
			}
		}

		var volatility float64
		if m := mean(prices); m > 0 {
			volatility = popStdDev(prices) / m
		}
		penalty := math.Min(20, volatility*100)

		winScores[w.name] = domain.WindowScore{
			Score:        math.Max(0, score-penalty),
			BaselineP50:  p50,
			BaselineP95:  p95,
			CurrentValue: current,
			Volatility:   volatility,
			SampleCount:  len(samples),
		}
	}

	weighted := 50.0
	if len(winScores) > 0 {
		weighted = windowOrDefault(winScores, "short")*0.5 +
			windowOrDefault(winScores, "medium")*0.3 +
			windowOrDefault(winScores, "long")*0.2
	}

	trend := domain.TrendStable
	if len(longSeries) > 10 {
		trend = slopeTrend(longSeries)
	}

	return domain.ComponentScore{
		Name:  domain.ComponentGasEfficiency,
		Score: clamp(weighted, 0, 100),
		Detail: domain.GasEfficiencyDetail{
			Windows: winScores,
			Trend:   trend,
		},
	}, nil
}

// windowOrDefault returns the window score, or the neutral 50 when the
// window had no samples.
func windowOrDefault(winScores map[string]domain.WindowScore, name string) float64 {
	if ws, ok := winScores[name]; ok {
		return ws.Score
	}
	return 50
}

// networkStability scores the coefficient of variation of consecutive
// block-time deltas over 24h. Low CV means consistent block production.
func (c *Calculator) networkStability(ctx context.Context, now time.Time) (domain.ComponentScore, error) {
	samples, err := c.blockStore.GetByTimeRange(ctx, now.Add(-stabilityWindow), now)
	if err != nil {
		return domain.ComponentScore{}, fmt.Errorf("query block window: %w", err)
	}

	if len(samples) < 10 {
		return domain.ComponentScore{
			Name:  domain.ComponentNetworkStability,
			Score: neutralScore,
			Detail: domain.NetworkStabilityDetail{
				SampleCount:  len(samples),
				Insufficient: true,
			},
		}, nil
	}

	deltas := domain.BlockTimeDeltas(samples)
	meanDelta := mean(deltas)

	var cv float64
	if meanDelta != 0 {
		cv = popStdDev(deltas) / meanDelta
	}

	var score float64
	switch {
	case cv < 0.1:
		score = 100
	case cv < 0.2:
		score = 85
	case cv < 0.3:
		score = 70
	default:
		score = math.Max(50, 100-cv*100)
	}

	return domain.ComponentScore{
		Name:  domain.ComponentNetworkStability,
		Score: clamp(score, 0, 100),
		Detail: domain.NetworkStabilityDetail{
			CoefficientOfVariation: cv,
			MeanBlockTime:          meanDelta,
			SampleCount:            len(samples),
		},
	}, nil
}

// mevFairness scores user impact of MEV extraction over 6h: average revenue
// per block and sandwich-attack rate push the score down, builder diversity
// pulls it back up.
func (c *Calculator) mevFairness(ctx context.Context, now time.Time) (domain.ComponentScore, error) {
	samples, err := c.mevStore.GetByTimeRange(ctx, now.Add(-mevWindow), now)
	if err != nil {
		return domain.ComponentScore{}, fmt.Errorf("query mev window: %w", err)
	}

	if len(samples) == 0 {
		return domain.ComponentScore{
			Name:   domain.ComponentMEVFairness,
			Score:  neutralScore,
			Detail: domain.MEVFairnessDetail{Insufficient: true},
		}, nil
	}

	totalBlocks := float64(len(samples))
	var totalRevenue float64
	var totalSandwiches int
	builders := make(map[string]struct{})
	for _, s := range samples {
		totalRevenue += s.RevenueETH
		totalSandwiches += s.SandwichCount
		builders[s.BuilderPubkey] = struct{}{}
	}

	avgPerBlock := totalRevenue / totalBlocks
	sandwichRate := float64(totalSandwiches) / totalBlocks
	diversity := float64(len(builders)) / totalBlocks

	score := 100.0
	if avgPerBlock > 0.1 {
		score -= math.Min(30, avgPerBlock*100)
	}
	score -= math.Min(40, sandwichRate*1000)
	score += math.Min(10, diversity*20)

	return domain.ComponentScore{
		Name:  domain.ComponentMEVFairness,
		Score: clamp(score, 0, 100),
		Detail: domain.MEVFairnessDetail{
			AvgMEVPerBlock:   avgPerBlock,
			SandwichRate:     sandwichRate,
			BuilderDiversity: diversity,
			HarmfulMEVPct:    sandwichRate * 100,
		},
	}, nil
}

// blockProduction scores the observed block count over the last hour against
// the 300 blocks implied by the 12s slot time.
func (c *Calculator) blockProduction(ctx context.Context, now time.Time) (domain.ComponentScore, error) {
	samples, err := c.blockStore.GetByTimeRange(ctx, now.Add(-productionWindow), now)
	if err != nil {
		return domain.ComponentScore{}, fmt.Errorf("query production window: %w", err)
	}

	ratio := float64(len(samples)) / expectedBlocksPerHour

	var score float64
	switch {
	case ratio >= 0.95:
		score = 100
	case ratio >= 0.90:
		score = 90
	case ratio >= 0.85:
		score = 75
	default:
		score = math.Max(50, ratio*100)
	}

	return domain.ComponentScore{
		Name:  domain.ComponentBlockProduction,
		Score: clamp(score, 0, 100),
		Detail: domain.BlockProductionDetail{
			ObservedBlocks: len(samples),
			ExpectedBlocks: expectedBlocksPerHour,
			Ratio:          ratio,
		},
	}, nil
}

// mempoolHealth is a placeholder until a pending-transaction data source
// feeds scoring.
func (c *Calculator) mempoolHealth(_ context.Context, _ time.Time) (domain.ComponentScore, error) {
	return domain.ComponentScore{
		Name:  domain.ComponentMempoolHealth,
		Score: neutralScore,
		Detail: domain.MempoolHealthDetail{
			Note: "pending-transaction scoring not yet available",
		},
	}, nil
}

// validatorPerformance scores builder participation breadth over 6h: unique
// builders relative to observed blocks, capped at 10 blocks so thin windows
// are not over-rewarded.
func (c *Calculator) validatorPerformance(ctx context.Context, now time.Time) (domain.ComponentScore, error) {
	samples, err := c.mevStore.GetByTimeRange(ctx, now.Add(-mevWindow), now)
	if err != nil {
		return domain.ComponentScore{}, fmt.Errorf("query validator window: %w", err)
	}

	if len(samples) == 0 {
		return domain.ComponentScore{
			Name:   domain.ComponentValidatorPerformance,
			Score:  neutralScore,
			Detail: domain.ValidatorPerformanceDetail{Insufficient: true},
		}, nil
	}

	builders := make(map[string]struct{})
	for _, s := range samples {
		builders[s.BuilderPubkey] = struct{}{}
	}

	denom := len(samples)
	if denom > 10 {
		denom = 10
	}
	score := clamp(float64(len(builders))/float64(denom)*100, 0, 100)

	return domain.ComponentScore{
		Name:  domain.ComponentValidatorPerformance,
		Score: score,
		Detail: domain.ValidatorPerformanceDetail{
			UniqueBuilders: len(builders),
			TotalBlocks:    len(samples),
		},
	}, nil
}
