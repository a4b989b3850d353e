package ethrpc

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// Block is the decoded form of an eth_getBlockByNumber result, with hex
// quantities already parsed.
type Block struct {
	Number     uint64
	Hash       string
	ParentHash string
	Timestamp  uint64 // unix seconds
	GasUsed    uint64
	GasLimit   uint64
	BaseFeeWei *big.Int // nil pre-London
	TxCount    int
}

// BaseFeeGwei returns the base fee in gwei, 0 when absent.
func (b *Block) BaseFeeGwei() float64 {
	if b.BaseFeeWei == nil {
		return 0
	}
	return WeiToGwei(b.BaseFeeWei)
}

// Head is the decoded payload of a newHeads notification.
type Head struct {
	Number    uint64
	Hash      string
	Timestamp uint64
	GasUsed   uint64
	GasLimit  uint64
}

// TxPoolStatus is the decoded result of txpool_status.
type TxPoolStatus struct {
	Pending uint64
	Queued  uint64
}

const weiPerGwei = 1e9

// WeiToGwei converts a wei quantity to gwei as a float.
func WeiToGwei(wei *big.Int) float64 {
	f, _ := new(big.Float).SetInt(wei).Float64()
	return f / weiPerGwei
}

// parseHexUint64 parses an 0x-prefixed quantity into a uint64.
func parseHexUint64(s string) (uint64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty hex quantity")
	}
	v, err := strconv.ParseUint(strings.TrimPrefix(s, "0x"), 16, 64)
	if err != nil {
		return 0, fmt.Errorf("parse hex quantity %q: %w", s, err)
	}
	return v, nil
}

// parseHexBig parses an 0x-prefixed quantity into a big.Int. Values like gas
// prices in wei can exceed 64 bits.
func parseHexBig(s string) (*big.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("empty hex quantity")
	}
	v, ok := new(big.Int).SetString(strings.TrimPrefix(s, "0x"), 16)
	if !ok {
		return nil, fmt.Errorf("parse hex quantity %q", s)
	}
	return v, nil
}
