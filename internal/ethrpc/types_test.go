package ethrpc

import (
	"math"
	"math/big"
	"testing"
)

func TestParseHexUint64(t *testing.T) {
	tests := []struct {
		in      string
		want    uint64
		wantErr bool
	}{
		{"0x0", 0, false},
		{"0x1", 1, false},
		{"0x1312d00", 20_000_000, false},
		{"0xde0b6b3a7640000", 1_000_000_000_000_000_000, false},
		{"", 0, true},
		{"0x", 0, true},
		{"0xzz", 0, true},
	}

	for _, tt := range tests {
		got, err := parseHexUint64(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseHexUint64(%q): expected error, got %d", tt.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseHexUint64(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseHexUint64(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestParseHexBig(t *testing.T) {
	got, err := parseHexBig("0x6fc23ac00")
	if err != nil {
		t.Fatalf("parseHexBig: %v", err)
	}
	if got.Cmp(big.NewInt(30_000_000_000)) != 0 {
		t.Errorf("parseHexBig = %v, want 30000000000", got)
	}

	// Values past 64 bits must still parse.
	big256 := "0x10000000000000000"
	got, err = parseHexBig(big256)
	if err != nil {
		t.Fatalf("parseHexBig(%q): %v", big256, err)
	}
	want := new(big.Int).Lsh(big.NewInt(1), 64)
	if got.Cmp(want) != 0 {
		t.Errorf("parseHexBig(%q) = %v, want %v", big256, got, want)
	}

	if _, err := parseHexBig(""); err == nil {
		t.Error("parseHexBig(\"\"): expected error")
	}
	if _, err := parseHexBig("0xnope"); err == nil {
		t.Error("parseHexBig(invalid): expected error")
	}
}

func TestWeiToGwei(t *testing.T) {
	if got := WeiToGwei(big.NewInt(30_000_000_000)); got != 30 {
		t.Errorf("WeiToGwei(30e9) = %v, want 30", got)
	}
	if got := WeiToGwei(big.NewInt(1_500_000_000)); math.Abs(got-1.5) > 1e-12 {
		t.Errorf("WeiToGwei(1.5e9) = %v, want 1.5", got)
	}
	if got := WeiToGwei(big.NewInt(0)); got != 0 {
		t.Errorf("WeiToGwei(0) = %v, want 0", got)
	}
}

func TestGetBlockResult_Decode(t *testing.T) {
	raw := &getBlockResult{
		Number:        "0x1312d00",
		Hash:          "0xhash",
		ParentHash:    "0xparent",
		Timestamp:     "0x665aa100",
		GasUsed:       "0xe4e1c0",
		GasLimit:      "0x1c9c380",
		BaseFeePerGas: "0x6fc23ac00",
		Transactions:  []string{"0xt1", "0xt2", "0xt3"},
	}

	block, err := raw.decode()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if block.Number != 20_000_000 {
		t.Errorf("Number = %d, want 20000000", block.Number)
	}
	if block.GasUsed != 15_000_000 {
		t.Errorf("GasUsed = %d, want 15000000", block.GasUsed)
	}
	if block.GasLimit != 30_000_000 {
		t.Errorf("GasLimit = %d, want 30000000", block.GasLimit)
	}
	if block.TxCount != 3 {
		t.Errorf("TxCount = %d, want 3", block.TxCount)
	}
	if block.BaseFeeWei == nil || block.BaseFeeWei.Cmp(big.NewInt(30_000_000_000)) != 0 {
		t.Errorf("BaseFeeWei = %v, want 30000000000", block.BaseFeeWei)
	}
	if got := block.BaseFeeGwei(); got != 30 {
		t.Errorf("BaseFeeGwei = %v, want 30", got)
	}
}

func TestGetBlockResult_DecodePreLondon(t *testing.T) {
	raw := &getBlockResult{
		Number:    "0x1",
		Timestamp: "0x5f5e100",
		GasUsed:   "0x0",
		GasLimit:  "0x1c9c380",
	}

	block, err := raw.decode()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if block.BaseFeeWei != nil {
		t.Errorf("BaseFeeWei = %v, want nil without baseFeePerGas", block.BaseFeeWei)
	}
	if got := block.BaseFeeGwei(); got != 0 {
		t.Errorf("BaseFeeGwei = %v, want 0", got)
	}
}

func TestGetBlockResult_DecodeInvalidQuantity(t *testing.T) {
	raw := &getBlockResult{Number: "not-hex", Timestamp: "0x1", GasUsed: "0x1", GasLimit: "0x1"}
	if _, err := raw.decode(); err == nil {
		t.Error("expected error for malformed block number")
	}
}
