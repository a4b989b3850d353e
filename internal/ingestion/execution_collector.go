package ingestion

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"ethpulse/internal/domain"
	"ethpulse/internal/ethrpc"
	"ethpulse/internal/storage"
)

const (
	// percentileWindow is the trailing window for gas percentile enrichment.
	percentileWindow = time.Hour
	// minPercentilePoints is the number of points the window must hold
	// before percentiles are attached to a gas sample.
	minPercentilePoints = 4
	// maxBlockBackfill caps how many missed blocks one collection cycle
	// fetches after a gap.
	maxBlockBackfill = 10
)

// ExecutionCollector samples gas price, blocks, and mempool state from an
// execution node. It keeps the last seen block number so consecutive cycles
// backfill short gaps instead of skipping blocks.
type ExecutionCollector struct {
	client   ethrpc.Client
	gasStore storage.GasMetricStore
	logger   *log.Logger

	lastBlock uint64
}

// NewExecutionCollector creates a collector. gasStore is read for percentile
// enrichment only.
func NewExecutionCollector(client ethrpc.Client, gasStore storage.GasMetricStore, logger *log.Logger) *ExecutionCollector {
	if logger == nil {
		logger = log.Default()
	}
	return &ExecutionCollector{
		client:   client,
		gasStore: gasStore,
		logger:   logger,
	}
}

// CollectGas samples the current gas price and pending transaction count,
// attaching trailing-window percentiles when enough history exists.
func (c *ExecutionCollector) CollectGas(ctx context.Context, now time.Time) (*domain.GasSample, error) {
	price, err := c.client.GasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("gas price: %w", err)
	}

	sample := &domain.GasSample{
		Timestamp:    now,
		GasPriceWei:  price.Int64(),
		GasPriceGwei: ethrpc.WeiToGwei(price),
	}

	// txpool_status is not available on every provider; a missing count is
	// not fatal.
	if status, err := c.client.TxPoolStatus(ctx); err == nil {
		sample.PendingTxs = int(status.Pending)
	} else {
		c.logger.Printf("[ingestion] txpool status unavailable: %v", err)
	}

	c.enrichPercentiles(ctx, sample, now)
	return sample, nil
}

// enrichPercentiles fills the rolling percentile fields from the trailing
// window plus the current observation.
func (c *ExecutionCollector) enrichPercentiles(ctx context.Context, sample *domain.GasSample, now time.Time) {
	recent, err := c.gasStore.GetByTimeRange(ctx, now.Add(-percentileWindow), now)
	if err != nil {
		c.logger.Printf("[ingestion] percentile window query failed: %v", err)
		return
	}

	prices := make([]float64, 0, len(recent)+1)
	for _, r := range recent {
		prices = append(prices, r.GasPriceGwei)
	}
	prices = append(prices, sample.GasPriceGwei)

	if len(prices) < minPercentilePoints {
		return
	}

	sort.Float64s(prices)
	p25 := percentile(prices, 0.25)
	p50 := percentile(prices, 0.50)
	p75 := percentile(prices, 0.75)
	p95 := percentile(prices, 0.95)
	sample.GasPriceP25 = &p25
	sample.GasPriceP50 = &p50
	sample.GasPriceP75 = &p75
	sample.GasPriceP95 = &p95
}

// percentile computes the p-th percentile (0..1) over sorted values with
// linear interpolation between closest ranks.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}
	idx := p * float64(len(sorted)-1)
	lo := int(idx)
	hi := lo + 1
	if hi >= len(sorted) {
		return sorted[len(sorted)-1]
	}
	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// CollectBlocks fetches the latest block and backfills any blocks missed
// since the previous cycle, up to maxBlockBackfill.
func (c *ExecutionCollector) CollectBlocks(ctx context.Context, now time.Time) ([]*domain.BlockSample, error) {
	latest, err := c.client.LatestBlock(ctx)
	if err != nil {
		return nil, fmt.Errorf("latest block: %w", err)
	}
	if latest == nil {
		return nil, nil
	}

	from := latest.Number
	if c.lastBlock > 0 && latest.Number > c.lastBlock {
		from = c.lastBlock + 1
		if latest.Number-from >= maxBlockBackfill {
			from = latest.Number - maxBlockBackfill + 1
		}
	} else if c.lastBlock >= latest.Number {
		// No new block since last cycle.
		return nil, nil
	}

	var samples []*domain.BlockSample
	for number := from; number <= latest.Number; number++ {
		block := latest
		if number != latest.Number {
			block, err = c.client.BlockByNumber(ctx, number)
			if err != nil {
				c.logger.Printf("[ingestion] backfill block %d failed: %v", number, err)
				continue
			}
			if block == nil {
				continue
			}
		}
		samples = append(samples, blockToSample(block, now))
	}

	c.lastBlock = latest.Number
	return samples, nil
}

// SampleHead converts a newHeads notification into a block sample by
// fetching the full header for transaction count and base fee.
func (c *ExecutionCollector) SampleHead(ctx context.Context, head ethrpc.Head, now time.Time) (*domain.BlockSample, error) {
	block, err := c.client.BlockByNumber(ctx, head.Number)
	if err != nil {
		return nil, fmt.Errorf("fetch head block %d: %w", head.Number, err)
	}
	if block == nil {
		return nil, nil
	}
	if head.Number > c.lastBlock {
		c.lastBlock = head.Number
	}
	return blockToSample(block, now), nil
}

func blockToSample(block *ethrpc.Block, now time.Time) *domain.BlockSample {
	return &domain.BlockSample{
		Timestamp:      now,
		BlockNumber:    int64(block.Number),
		BlockTimestamp: time.Unix(int64(block.Timestamp), 0).UTC(),
		GasUsed:        int64(block.GasUsed),
		GasLimit:       int64(block.GasLimit),
		TxCount:        block.TxCount,
		BaseFeeGwei:    block.BaseFeeGwei(),
	}
}

// CollectMempool snapshots the pending transaction pool. Gas price spread is
// approximated from the trailing gas sample window since txpool_content is
// too heavy to poll.
func (c *ExecutionCollector) CollectMempool(ctx context.Context, now time.Time) (*domain.MempoolSample, error) {
	status, err := c.client.TxPoolStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("txpool status: %w", err)
	}

	sample := &domain.MempoolSample{
		Timestamp:    now,
		PendingCount: int(status.Pending),
	}

	recent, err := c.gasStore.GetByTimeRange(ctx, now.Add(-percentileWindow), now)
	if err != nil || len(recent) == 0 {
		return sample, nil
	}

	minPrice := recent[0].GasPriceGwei
	maxPrice := recent[0].GasPriceGwei
	var sum float64
	for _, r := range recent {
		sum += r.GasPriceGwei
		if r.GasPriceGwei < minPrice {
			minPrice = r.GasPriceGwei
		}
		if r.GasPriceGwei > maxPrice {
			maxPrice = r.GasPriceGwei
		}
	}
	sample.AvgGasPriceGwei = sum / float64(len(recent))
	sample.MinGasPriceGwei = minPrice
	sample.MaxGasPriceGwei = maxPrice

	return sample, nil
}
