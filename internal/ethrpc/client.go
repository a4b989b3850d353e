package ethrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"sync/atomic"
	"time"
)

// Default configuration values.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 1 * time.Second
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0
)

// Client is the read-only view of an execution node the collectors need.
type Client interface {
	GasPrice(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	BlockByNumber(ctx context.Context, number uint64) (*Block, error)
	LatestBlock(ctx context.Context) (*Block, error)
	TxPoolStatus(ctx context.Context) (*TxPoolStatus, error)
}

// HTTPClient implements Client using HTTP JSON-RPC 2.0.
type HTTPClient struct {
	endpoint    string
	client      *http.Client
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
	requestID   atomic.Uint64
}

// Compile-time interface check.
var _ Client = (*HTTPClient)(nil)

// ClientOption configures HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) ClientOption {
	return func(c *HTTPClient) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.retryDelay = d
	}
}

// WithMaxDelay sets maximum retry delay.
func WithMaxDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.maxDelay = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.client = client
	}
}

// NewHTTPClient creates a new Ethereum JSON-RPC HTTP client.
func NewHTTPClient(endpoint string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		endpoint:    endpoint,
		client:      &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// rpcRequest represents a JSON-RPC 2.0 request.
type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

// rpcResponse represents a JSON-RPC 2.0 response.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// rpcError represents a JSON-RPC 2.0 error.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// call performs a JSON-RPC call with retries and exponential backoff.
func (c *HTTPClient) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	reqID := c.requestID.Add(1)
	reqBody := rpcRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  method,
		Params:  params,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			// Exponential backoff
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		// Handle rate limiting
		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limited (429)")
			continue
		}

		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
			continue
		}

		var rpcResp rpcResponse
		if err := json.Unmarshal(respBody, &rpcResp); err != nil {
			lastErr = fmt.Errorf("unmarshal response: %w", err)
			continue
		}

		if rpcResp.Error != nil {
			// RPC errors are not retried
			return rpcResp.Error
		}

		if result != nil && rpcResp.Result != nil {
			if err := json.Unmarshal(rpcResp.Result, result); err != nil {
				return fmt.Errorf("unmarshal result: %w", err)
			}
		}

		return nil
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// GasPrice retrieves the node's current gas price estimate in wei.
func (c *HTTPClient) GasPrice(ctx context.Context) (*big.Int, error) {
	var result string
	if err := c.call(ctx, "eth_gasPrice", nil, &result); err != nil {
		return nil, err
	}
	return parseHexBig(result)
}

// BlockNumber retrieves the latest block number.
func (c *HTTPClient) BlockNumber(ctx context.Context) (uint64, error) {
	var result string
	if err := c.call(ctx, "eth_blockNumber", nil, &result); err != nil {
		return 0, err
	}
	return parseHexUint64(result)
}

// BlockByNumber retrieves a block header with transaction count.
// Returns nil if the block does not exist yet.
func (c *HTTPClient) BlockByNumber(ctx context.Context, number uint64) (*Block, error) {
	return c.blockByTag(ctx, fmt.Sprintf("0x%x", number))
}

// LatestBlock retrieves the latest block.
func (c *HTTPClient) LatestBlock(ctx context.Context) (*Block, error) {
	return c.blockByTag(ctx, "latest")
}

func (c *HTTPClient) blockByTag(ctx context.Context, tag string) (*Block, error) {
	// Transaction bodies are not needed; hashes are enough to count them.
	params := []interface{}{tag, false}

	var result *getBlockResult
	if err := c.call(ctx, "eth_getBlockByNumber", params, &result); err != nil {
		return nil, err
	}
	if result == nil {
		return nil, nil
	}
	return result.decode()
}

// getBlockResult is the raw RPC response for eth_getBlockByNumber.
type getBlockResult struct {
	Number        string   `json:"number"`
	Hash          string   `json:"hash"`
	ParentHash    string   `json:"parentHash"`
	Timestamp     string   `json:"timestamp"`
	GasUsed       string   `json:"gasUsed"`
	GasLimit      string   `json:"gasLimit"`
	BaseFeePerGas string   `json:"baseFeePerGas"`
	Transactions  []string `json:"transactions"`
}

func (r *getBlockResult) decode() (*Block, error) {
	number, err := parseHexUint64(r.Number)
	if err != nil {
		return nil, fmt.Errorf("block number: %w", err)
	}
	timestamp, err := parseHexUint64(r.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("block timestamp: %w", err)
	}
	gasUsed, err := parseHexUint64(r.GasUsed)
	if err != nil {
		return nil, fmt.Errorf("block gas used: %w", err)
	}
	gasLimit, err := parseHexUint64(r.GasLimit)
	if err != nil {
		return nil, fmt.Errorf("block gas limit: %w", err)
	}

	b := &Block{
		Number:     number,
		Hash:       r.Hash,
		ParentHash: r.ParentHash,
		Timestamp:  timestamp,
		GasUsed:    gasUsed,
		GasLimit:   gasLimit,
		TxCount:    len(r.Transactions),
	}

	if r.BaseFeePerGas != "" {
		baseFee, err := parseHexBig(r.BaseFeePerGas)
		if err != nil {
			return nil, fmt.Errorf("block base fee: %w", err)
		}
		b.BaseFeeWei = baseFee
	}

	return b, nil
}

// TxPoolStatus retrieves pending and queued transaction counts. Not all
// providers expose the txpool namespace; callers treat errors as a missing
// mempool sample, not a fatal condition.
func (c *HTTPClient) TxPoolStatus(ctx context.Context) (*TxPoolStatus, error) {
	var result struct {
		Pending string `json:"pending"`
		Queued  string `json:"queued"`
	}
	if err := c.call(ctx, "txpool_status", nil, &result); err != nil {
		return nil, err
	}

	pending, err := parseHexUint64(result.Pending)
	if err != nil {
		return nil, fmt.Errorf("txpool pending: %w", err)
	}
	queued, err := parseHexUint64(result.Queued)
	if err != nil {
		return nil, fmt.Errorf("txpool queued: %w", err)
	}

	return &TxPoolStatus{Pending: pending, Queued: queued}, nil
}
