package ethrpc

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// WSConfig configures the newHeads subscriber.
type WSConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
}

// DefaultWSConfig returns default WebSocket configuration.
func DefaultWSConfig() WSConfig {
	return WSConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// HeadSubscriber maintains a single eth_subscribe("newHeads") stream over a
// WebSocket endpoint, reconnecting and resubscribing on connection loss.
type HeadSubscriber struct {
	endpoint string
	config   WSConfig
	logger   *log.Logger

	conn      *websocket.Conn
	connMu    sync.Mutex
	closed    atomic.Bool
	requestID atomic.Uint64

	// subID is the active subscription ID, guarded by subMu. Replaced on
	// every resubscribe.
	subID string
	subMu sync.RWMutex

	// pendingSubs maps request ID to channel waiting for subscription ID
	pendingSubs   map[uint64]chan string
	pendingSubsMu sync.Mutex

	heads chan Head

	done chan struct{}
	wg   sync.WaitGroup

	reconnecting atomic.Bool
}

// NewHeadSubscriber connects, subscribes to newHeads, and starts the read
// and ping loops.
func NewHeadSubscriber(ctx context.Context, endpoint string, config *WSConfig, logger *log.Logger) (*HeadSubscriber, error) {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}
	if logger == nil {
		logger = log.Default()
	}

	s := &HeadSubscriber{
		endpoint:    endpoint,
		config:      cfg,
		logger:      logger,
		pendingSubs: make(map[uint64]chan string),
		heads:       make(chan Head, 256),
		done:        make(chan struct{}),
	}

	if err := s.connect(ctx); err != nil {
		return nil, err
	}

	s.wg.Add(1)
	go s.readLoop()

	s.wg.Add(1)
	go s.pingLoop()

	subID, err := s.subscribe(ctx)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.subMu.Lock()
	s.subID = subID
	s.subMu.Unlock()

	return s, nil
}

// Heads returns the notification channel. Closed when the subscriber closes.
func (s *HeadSubscriber) Heads() <-chan Head {
	return s.heads
}

// connect establishes the WebSocket connection.
func (s *HeadSubscriber) connect(ctx context.Context) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, s.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	s.conn = conn
	return nil
}

// subscribe sends eth_subscribe and waits for the subscription ID.
func (s *HeadSubscriber) subscribe(ctx context.Context) (string, error) {
	if s.closed.Load() {
		return "", fmt.Errorf("subscriber closed")
	}

	reqID := s.requestID.Add(1)
	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  "eth_subscribe",
		Params:  []interface{}{"newHeads"},
	}

	confirmCh := make(chan string, 1)
	s.pendingSubsMu.Lock()
	s.pendingSubs[reqID] = confirmCh
	s.pendingSubsMu.Unlock()

	dropPending := func() {
		s.pendingSubsMu.Lock()
		delete(s.pendingSubs, reqID)
		s.pendingSubsMu.Unlock()
	}

	s.connMu.Lock()
	if s.conn == nil {
		s.connMu.Unlock()
		dropPending()
		return "", fmt.Errorf("not connected")
	}
	s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	err := s.conn.WriteJSON(req)
	s.connMu.Unlock()

	if err != nil {
		dropPending()
		return "", fmt.Errorf("write subscribe: %w", err)
	}

	select {
	case subID := <-confirmCh:
		if subID == "" {
			return "", fmt.Errorf("subscribe rejected")
		}
		return subID, nil
	case <-time.After(30 * time.Second):
		dropPending()
		return "", fmt.Errorf("subscription timeout after 30s")
	case <-s.done:
		return "", fmt.Errorf("subscriber closed")
	case <-ctx.Done():
		dropPending()
		return "", ctx.Err()
	}
}

// Close closes the connection and the heads channel.
func (s *HeadSubscriber) Close() error {
	if s.closed.Swap(true) {
		return nil // Already closed
	}

	close(s.done)

	s.connMu.Lock()
	if s.conn != nil {
		s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.conn.Close()
	}
	s.connMu.Unlock()

	s.pendingSubsMu.Lock()
	for id, ch := range s.pendingSubs {
		close(ch)
		delete(s.pendingSubs, id)
	}
	s.pendingSubsMu.Unlock()

	s.wg.Wait()
	close(s.heads)
	return nil
}

// readLoop reads messages and dispatches head notifications.
func (s *HeadSubscriber) readLoop() {
	defer s.wg.Done()

	reconnectDelay := s.config.ReconnectDelay

	for !s.closed.Load() {
		s.connMu.Lock()
		conn := s.conn
		s.connMu.Unlock()

		if conn == nil {
			select {
			case <-s.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if s.closed.Load() {
				return
			}

			if !s.reconnecting.Swap(true) {
				go s.reconnect(reconnectDelay)
			}

			// Exponential backoff
			reconnectDelay = reconnectDelay * 2
			if reconnectDelay > s.config.MaxReconnectDelay {
				reconnectDelay = s.config.MaxReconnectDelay
			}

			select {
			case <-s.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		// Reset delay on successful read
		reconnectDelay = s.config.ReconnectDelay

		s.handleMessage(message)
	}
}

// reconnect attempts to reconnect and resubscribe.
func (s *HeadSubscriber) reconnect(delay time.Duration) {
	defer s.reconnecting.Store(false)

	if s.closed.Load() {
		return
	}

	select {
	case <-s.done:
		return
	case <-time.After(delay):
	}

	s.connMu.Lock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.connMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.connect(ctx); err != nil {
		// Reconnect failed, will retry on next read error
		return
	}

	subID, err := s.subscribe(ctx)
	if err != nil {
		s.logger.Printf("[ethrpc] resubscribe failed: %v", err)
		return
	}

	s.subMu.Lock()
	s.subID = subID
	s.subMu.Unlock()
}

// handleMessage processes an incoming WebSocket message.
func (s *HeadSubscriber) handleMessage(message []byte) {
	// Subscription confirmation first: result is the subscription ID.
	var resp struct {
		ID     uint64    `json:"id"`
		Result string    `json:"result"`
		Error  *rpcError `json:"error"`
	}
	if err := json.Unmarshal(message, &resp); err == nil && resp.ID > 0 {
		s.pendingSubsMu.Lock()
		ch, ok := s.pendingSubs[resp.ID]
		if ok {
			delete(s.pendingSubs, resp.ID)
		}
		s.pendingSubsMu.Unlock()

		if ok {
			if resp.Error != nil {
				s.logger.Printf("[ethrpc] subscribe error: %v", resp.Error)
			}
			select {
			case ch <- resp.Result:
			default:
			}
		}
		return
	}

	var notif wsHeadNotification
	if err := json.Unmarshal(message, &notif); err != nil || notif.Method != "eth_subscription" || notif.Params == nil {
		return
	}

	s.subMu.RLock()
	active := s.subID
	s.subMu.RUnlock()
	if notif.Params.Subscription != active {
		return
	}

	head, err := notif.Params.Result.decode()
	if err != nil {
		s.logger.Printf("[ethrpc] malformed head notification: %v", err)
		return
	}

	// Drop on full buffer: heads are periodic, the poller backfills gaps.
	select {
	case s.heads <- head:
	default:
	}
}

// pingLoop sends periodic ping frames to keep the connection alive.
func (s *HeadSubscriber) pingLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.connMu.Lock()
			if s.conn != nil {
				s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
				if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					// Connection might be dead, reader will handle reconnect
				}
			}
			s.connMu.Unlock()
		}
	}
}

// WebSocket message types

type wsHeadNotification struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  *wsHeadParams `json:"params"`
}

type wsHeadParams struct {
	Subscription string     `json:"subscription"`
	Result       wsHeadBody `json:"result"`
}

type wsHeadBody struct {
	Number    string `json:"number"`
	Hash      string `json:"hash"`
	Timestamp string `json:"timestamp"`
	GasUsed   string `json:"gasUsed"`
	GasLimit  string `json:"gasLimit"`
}

func (b wsHeadBody) decode() (Head, error) {
	number, err := parseHexUint64(b.Number)
	if err != nil {
		return Head{}, fmt.Errorf("head number: %w", err)
	}
	timestamp, err := parseHexUint64(b.Timestamp)
	if err != nil {
		return Head{}, fmt.Errorf("head timestamp: %w", err)
	}
	gasUsed, err := parseHexUint64(b.GasUsed)
	if err != nil {
		return Head{}, fmt.Errorf("head gas used: %w", err)
	}
	gasLimit, err := parseHexUint64(b.GasLimit)
	if err != nil {
		return Head{}, fmt.Errorf("head gas limit: %w", err)
	}
	return Head{
		Number:    number,
		Hash:      b.Hash,
		Timestamp: timestamp,
		GasUsed:   gasUsed,
		GasLimit:  gasLimit,
	}, nil
}
