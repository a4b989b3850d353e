package domain

import "time"

// GasSample is one gas price observation from the execution node.
// Corresponds to the gas_metrics table.
type GasSample struct {
	Timestamp    time.Time // collection time (UTC)
	GasPriceWei  int64     // raw gas price in wei
	GasPriceGwei float64   // gas price in gwei
	PendingTxs   int       // pending transaction count at collection time

	// Rolling percentiles over the trailing 1h window, filled by the
	// collector when the window holds at least 4 points. Nil otherwise.
	GasPriceP25 *float64
	GasPriceP50 *float64
	GasPriceP75 *float64
	GasPriceP95 *float64
}

// BlockSample is one block observation from the execution node.
// Corresponds to the block_metrics table.
type BlockSample struct {
	Timestamp      time.Time // collection time (UTC)
	BlockNumber    int64     // execution layer block number
	BlockTimestamp time.Time // timestamp recorded in the block header
	GasUsed        int64
	GasLimit       int64
	TxCount        int
	BaseFeeGwei    float64 // EIP-1559 base fee, 0 if unavailable
}

// MempoolSample is one mempool snapshot.
// Corresponds to the mempool_metrics table.
type MempoolSample struct {
	Timestamp       time.Time
	PendingCount    int
	AvgGasPriceGwei float64
	MinGasPriceGwei float64
	MaxGasPriceGwei float64
}

// MEVSample is one block-level MEV observation from a relay bid trace.
// Corresponds to the mev_metrics table.
type MEVSample struct {
	Timestamp      time.Time
	BlockNumber    int64
	Slot           int64
	RevenueETH     float64 // value delivered to the proposer, in ETH
	BuilderPubkey  string  // BLS pubkey of the winning builder, hex
	RelaySource    string  // relay the bid trace came from
	GasUsed        int64
	GasLimit       int64
	GasUtilization float64 // gas_used / gas_limit, percentage
	SandwichCount  int     // sandwich attacks attributed to this block
}

// BlockTimeDeltas returns the consecutive block-interval durations in seconds
// for samples ordered by block number ASC. The result has len(samples)-1
// entries; fewer than two samples yield nil.
func BlockTimeDeltas(samples []*BlockSample) []float64 {
	if len(samples) < 2 {
		return nil
	}
	deltas := make([]float64, 0, len(samples)-1)
	for i := 1; i < len(samples); i++ {
		deltas = append(deltas, samples[i].BlockTimestamp.Sub(samples[i-1].BlockTimestamp).Seconds())
	}
	return deltas
}
