package ingestion

import (
	"context"
	"errors"
	"log"
	"time"

	"ethpulse/internal/domain"
	"ethpulse/internal/ethrpc"
	"ethpulse/internal/observability"
	"ethpulse/internal/storage"
)

// Runner drives continuous sample collection. Execution node metrics are
// polled every CollectInterval; relay bid traces every RelayInterval. An
// optional newHeads channel stores block samples as heads arrive, with the
// poller backfilling gaps.
type Runner struct {
	execCollector  *ExecutionCollector
	relayCollector *RelayCollector
	heads          <-chan ethrpc.Head

	gasStore     storage.GasMetricStore
	blockStore   storage.BlockMetricStore
	mempoolStore storage.MempoolMetricStore
	mevStore     storage.MEVMetricStore

	collectInterval time.Duration
	relayInterval   time.Duration
	metrics         *observability.Metrics
	logger          *log.Logger
}

// RunnerOptions contains configuration for creating a Runner.
type RunnerOptions struct {
	ExecCollector  *ExecutionCollector
	RelayCollector *RelayCollector
	Heads          <-chan ethrpc.Head
	GasStore       storage.GasMetricStore
	BlockStore     storage.BlockMetricStore
	MempoolStore   storage.MempoolMetricStore
	MEVStore       storage.MEVMetricStore

	CollectInterval time.Duration // Default: 15s
	RelayInterval   time.Duration // Default: 60s
	Metrics         *observability.Metrics
	Logger          *log.Logger
}

// NewRunner creates a new ingestion runner.
func NewRunner(opts RunnerOptions) *Runner {
	collectInterval := opts.CollectInterval
	if collectInterval == 0 {
		collectInterval = 15 * time.Second
	}
	relayInterval := opts.RelayInterval
	if relayInterval == 0 {
		relayInterval = 60 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Runner{
		execCollector:   opts.ExecCollector,
		relayCollector:  opts.RelayCollector,
		heads:           opts.Heads,
		gasStore:        opts.GasStore,
		blockStore:      opts.BlockStore,
		mempoolStore:    opts.MempoolStore,
		mevStore:        opts.MEVStore,
		collectInterval: collectInterval,
		relayInterval:   relayInterval,
		metrics:         opts.Metrics,
		logger:          logger,
	}
}

// Run starts continuous collection. It blocks until context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Printf("[ingestion] runner started, collect interval %v, relay interval %v",
		r.collectInterval, r.relayInterval)

	// Collect immediately so the first scoring cycle has data.
	r.collectExecution(ctx)
	r.collectRelays(ctx)

	collectTicker := time.NewTicker(r.collectInterval)
	defer collectTicker.Stop()
	relayTicker := time.NewTicker(r.relayInterval)
	defer relayTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Println("[ingestion] runner stopping")
			return ctx.Err()

		case head, ok := <-r.heads:
			if !ok {
				r.heads = nil
				continue
			}
			r.handleHead(ctx, head)

		case <-collectTicker.C:
			r.collectExecution(ctx)

		case <-relayTicker.C:
			r.collectRelays(ctx)
		}
	}
}

// collectExecution runs one execution node collection cycle.
func (r *Runner) collectExecution(ctx context.Context) {
	now := time.Now().UTC()

	if r.execCollector == nil {
		return
	}

	gas, err := r.execCollector.CollectGas(ctx, now)
	if err != nil {
		r.logger.Printf("[ingestion] gas collection failed: %v", err)
		r.countError("gas")
	} else {
		r.storeGas(ctx, gas)
	}

	blocks, err := r.execCollector.CollectBlocks(ctx, now)
	if err != nil {
		r.logger.Printf("[ingestion] block collection failed: %v", err)
		r.countError("block")
	} else {
		r.storeBlocks(ctx, blocks)
	}

	mempool, err := r.execCollector.CollectMempool(ctx, now)
	if err != nil {
		// txpool namespace is optional on many providers
		r.countError("mempool")
	} else if mempool != nil {
		r.storeMempool(ctx, mempool)
	}

	if r.metrics != nil {
		r.metrics.LastSuccessfulCollection.Set(float64(now.Unix()))
	}
}

// collectRelays runs one relay collection cycle.
func (r *Runner) collectRelays(ctx context.Context) {
	if r.relayCollector == nil || r.mevStore == nil {
		return
	}

	now := time.Now().UTC()
	samples, err := r.relayCollector.Collect(ctx, now)
	if err != nil {
		r.logger.Printf("[ingestion] relay collection failed: %v", err)
		r.countError("mev")
		return
	}

	stored := 0
	for _, sample := range samples {
		if !validMEVSample(sample) {
			r.logger.Printf("[ingestion] rejected mev sample: negative revenue for block %d", sample.BlockNumber)
			continue
		}
		// Relays re-deliver old traces on every poll; duplicates are expected.
		if err := r.mevStore.Insert(ctx, sample); err != nil {
			if !errors.Is(err, storage.ErrDuplicateKey) {
				r.logger.Printf("[ingestion] store mev sample: %v", err)
				r.countError("mev")
			}
			continue
		}
		stored++
	}
	r.countSamples("mev", stored)
}

// handleHead stores a block sample for an incoming head notification.
func (r *Runner) handleHead(ctx context.Context, head ethrpc.Head) {
	if r.execCollector == nil || r.blockStore == nil {
		return
	}

	now := time.Now().UTC()
	sample, err := r.execCollector.SampleHead(ctx, head, now)
	if err != nil {
		r.logger.Printf("[ingestion] head sample failed: %v", err)
		r.countError("block")
		return
	}
	if sample == nil {
		return
	}
	r.storeBlocks(ctx, []*domain.BlockSample{sample})
}

func (r *Runner) storeGas(ctx context.Context, sample *domain.GasSample) {
	if r.gasStore == nil || sample == nil {
		return
	}

	ok, outlier := validGasSample(sample)
	if !ok {
		r.logger.Printf("[ingestion] rejected gas sample: negative price %.2f gwei", sample.GasPriceGwei)
		return
	}
	if outlier {
		r.logger.Printf("[ingestion] outlier gas price: %.2f gwei", sample.GasPriceGwei)
	}

	if err := r.gasStore.Insert(ctx, sample); err != nil {
		if !errors.Is(err, storage.ErrDuplicateKey) {
			r.logger.Printf("[ingestion] store gas sample: %v", err)
			r.countError("gas")
		}
		return
	}
	r.countSamples("gas", 1)
}

func (r *Runner) storeBlocks(ctx context.Context, samples []*domain.BlockSample) {
	if r.blockStore == nil || len(samples) == 0 {
		return
	}

	stored := 0
	for _, sample := range samples {
		if !validBlockSample(sample) {
			r.logger.Printf("[ingestion] rejected block sample: number %d", sample.BlockNumber)
			continue
		}
		// The head stream and the poller race for the same blocks.
		if err := r.blockStore.Insert(ctx, sample); err != nil {
			if !errors.Is(err, storage.ErrDuplicateKey) {
				r.logger.Printf("[ingestion] store block sample: %v", err)
				r.countError("block")
			}
			continue
		}
		stored++
	}
	r.countSamples("block", stored)
}

func (r *Runner) storeMempool(ctx context.Context, sample *domain.MempoolSample) {
	if r.mempoolStore == nil {
		return
	}
	if err := r.mempoolStore.Insert(ctx, sample); err != nil {
		r.logger.Printf("[ingestion] store mempool sample: %v", err)
		r.countError("mempool")
		return
	}
	r.countSamples("mempool", 1)
}

func (r *Runner) countSamples(kind string, n int) {
	if r.metrics == nil || n == 0 {
		return
	}
	r.metrics.SamplesCollected.WithLabelValues(kind).Add(float64(n))
}

func (r *Runner) countError(kind string) {
	if r.metrics == nil {
		return
	}
	r.metrics.CollectionErrors.WithLabelValues(kind).Inc()
}
