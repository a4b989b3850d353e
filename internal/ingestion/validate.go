package ingestion

import (
	"ethpulse/internal/domain"
)

// maxPlausibleGasGwei marks the threshold above which a gas price is kept
// but logged as an outlier.
const maxPlausibleGasGwei = 10000.0

// validGasSample reports whether the sample passes validation and whether it
// should be logged as an outlier. Negative prices are rejected outright.
func validGasSample(s *domain.GasSample) (ok, outlier bool) {
	if s.GasPriceGwei < 0 || s.GasPriceWei < 0 {
		return false, false
	}
	return true, s.GasPriceGwei > maxPlausibleGasGwei
}

// validBlockSample rejects impossible block data.
func validBlockSample(s *domain.BlockSample) bool {
	if s.BlockNumber <= 0 {
		return false
	}
	if s.TxCount < 0 || s.GasUsed < 0 || s.GasLimit < 0 {
		return false
	}
	return true
}

// validMEVSample rejects negative revenue.
func validMEVSample(s *domain.MEVSample) bool {
	return s.RevenueETH >= 0
}
