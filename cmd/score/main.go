// Package main provides a one-shot scoring run: load stores, compute one
// health score record, print it as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ethpulse/internal/domain"
	"ethpulse/internal/health"
	"ethpulse/internal/storage"
	"ethpulse/internal/storage/memory"
	"ethpulse/internal/storage/migrations"
	pgstore "ethpulse/internal/storage/postgres"
)

func main() {
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage")
	seed := flag.Bool("seed", false, "Seed synthetic sample data (requires --use-memory)")
	pretty := flag.Bool("pretty", true, "Indent JSON output")
	flag.Parse()

	logger := log.New(os.Stderr, "[score] ", log.LstdFlags)

	if *seed && !*useMemory {
		logger.Fatal("--seed requires --use-memory")
	}
	if !*useMemory && *postgresDSN == "" {
		logger.Fatal("--postgres-dsn is required (use --use-memory for in-memory storage)")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	var gasStore storage.GasMetricStore
	var blockStore storage.BlockMetricStore
	var mevStore storage.MEVMetricStore

	if *useMemory {
		memGas := memory.NewGasMetricStore()
		memBlock := memory.NewBlockMetricStore()
		memMEV := memory.NewMEVMetricStore()
		if *seed {
			if err := seedStores(ctx, memGas, memBlock, memMEV); err != nil {
				logger.Fatalf("Seed failed: %v", err)
			}
			logger.Println("Seeded synthetic samples")
		}
		gasStore, blockStore, mevStore = memGas, memBlock, memMEV
	} else {
		pool, err := pgstore.NewPool(ctx, *postgresDSN)
		if err != nil {
			logger.Fatalf("Connect to postgres: %v", err)
		}
		defer pool.Close()
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			logger.Fatalf("Postgres migrations: %v", err)
		}
		gasStore = pgstore.NewGasMetricStore(pool)
		blockStore = pgstore.NewBlockMetricStore(pool)
		mevStore = pgstore.NewMEVMetricStore(pool)
	}

	calculator := health.NewCalculator(gasStore, blockStore, mevStore, logger)
	record := calculator.Calculate(ctx, time.Now().UTC())

	enc := json.NewEncoder(os.Stdout)
	if *pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(record); err != nil {
		logger.Fatalf("Encode record: %v", err)
	}
}

// seedStores fills the memory stores with a plausible day of samples: gas
// prices around 30 gwei, 12s blocks, modest MEV revenue.
func seedStores(ctx context.Context, gas *memory.GasMetricStore, blocks *memory.BlockMetricStore, mev *memory.MEVMetricStore) error {
	rng := rand.New(rand.NewSource(42))
	now := time.Now().UTC()
	start := now.Add(-24 * time.Hour)

	// Gas samples every minute.
	for ts := start; ts.Before(now); ts = ts.Add(time.Minute) {
		gwei := 30 + rng.NormFloat64()*4
		if gwei < 1 {
			gwei = 1
		}
		if err := gas.Insert(ctx, seedGas(ts, gwei, rng)); err != nil {
			return fmt.Errorf("seed gas: %w", err)
		}
	}

	// Blocks every 12 seconds with small jitter, last hour only.
	blockNumber := int64(20_000_000)
	blockTime := now.Add(-time.Hour)
	for blockTime.Before(now) {
		jitter := rng.NormFloat64()
		blockTime = blockTime.Add(time.Duration((12 + jitter) * float64(time.Second)))
		blockNumber++
		sample := seedBlock(blockNumber, blockTime, rng)
		if err := blocks.Insert(ctx, sample); err != nil {
			return fmt.Errorf("seed block: %w", err)
		}
	}

	// Relay traces for every third block over the last 6 hours.
	for i := int64(0); i < 600; i++ {
		ts := now.Add(-time.Duration(i) * 36 * time.Second)
		sample := seedMEV(blockNumber-i*3, ts, rng)
		if err := mev.Insert(ctx, sample); err != nil {
			return fmt.Errorf("seed mev: %w", err)
		}
	}

	return nil
}

func seedGas(ts time.Time, gwei float64, rng *rand.Rand) *domain.GasSample {
	return &domain.GasSample{
		Timestamp:    ts,
		GasPriceWei:  int64(gwei * 1e9),
		GasPriceGwei: gwei,
		PendingTxs:   15000 + rng.Intn(5000),
	}
}

func seedBlock(number int64, blockTime time.Time, rng *rand.Rand) *domain.BlockSample {
	gasLimit := int64(30_000_000)
	gasUsed := int64(float64(gasLimit) * (0.4 + rng.Float64()*0.4))
	return &domain.BlockSample{
		Timestamp:      blockTime,
		BlockNumber:    number,
		BlockTimestamp: blockTime,
		GasUsed:        gasUsed,
		GasLimit:       gasLimit,
		TxCount:        120 + rng.Intn(120),
		BaseFeeGwei:    25 + rng.NormFloat64()*3,
	}
}

func seedMEV(blockNumber int64, ts time.Time, rng *rand.Rand) *domain.MEVSample {
	revenue := math.Abs(rng.NormFloat64()) * 0.05
	gasLimit := int64(30_000_000)
	gasUsed := int64(float64(gasLimit) * (0.5 + rng.Float64()*0.4))
	builders := []string{"0xa1b2", "0xc3d4", "0xe5f6", "0x9788"}
	return &domain.MEVSample{
		Timestamp:      ts,
		BlockNumber:    blockNumber,
		Slot:           blockNumber + 2_000_000,
		RevenueETH:     revenue,
		BuilderPubkey:  builders[rng.Intn(len(builders))],
		RelaySource:    "flashbots",
		GasUsed:        gasUsed,
		GasLimit:       gasLimit,
		GasUtilization: float64(gasUsed) / float64(gasLimit) * 100,
	}
}
