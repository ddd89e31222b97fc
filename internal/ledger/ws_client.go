package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// WSClientConfig configures WebSocket client behavior.
type WSClientConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
}

// DefaultWSConfig returns default WebSocket configuration.
func DefaultWSConfig() WSClientConfig {
	return WSClientConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// WSClientImpl implements ConfirmationClient using gorilla/websocket.
type WSClientImpl struct {
	endpoint string
	config   WSClientConfig

	conn      *websocket.Conn
	connMu    sync.Mutex
	closed    atomic.Bool
	requestID atomic.Uint64

	// subs maps subscription ID to channel
	subs   map[int64]chan Confirmation
	subsMu sync.RWMutex

	// activeFilters stores filters for resubscription after reconnect
	activeFilters   map[int64]ConfirmationFilter
	activeFiltersMu sync.RWMutex

	// pendingSubs maps request ID to channel waiting for subscription ID
	pendingSubs   map[uint64]chan int64
	pendingSubsMu sync.Mutex

	// done signals shutdown
	done chan struct{}
	wg   sync.WaitGroup
}

// NewWSClient creates a new WebSocket client and connects to the endpoint.
func NewWSClient(ctx context.Context, endpoint string, config *WSClientConfig) (*WSClientImpl, error) {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}

	c := &WSClientImpl{
		endpoint:      endpoint,
		config:        cfg,
		subs:          make(map[int64]chan Confirmation),
		activeFilters: make(map[int64]ConfirmationFilter),
		pendingSubs:   make(map[uint64]chan int64),
		done:          make(chan struct{}),
	}

	if err := c.connect(ctx); err != nil {
		return nil, err
	}

	c.wg.Add(1)
	go c.readLoop()

	c.wg.Add(1)
	go c.pingLoop()

	return c, nil
}

// Compile-time interface check.
var _ ConfirmationClient = (*WSClientImpl)(nil)

// connect establishes WebSocket connection.
func (c *WSClientImpl) connect(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	c.conn = conn
	return nil
}

// wsRequest is a JSON-RPC 2.0 request over the socket.
type wsRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

// wsMessage is either a subscription reply or a notification.
type wsMessage struct {
	ID     uint64          `json:"id,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Method string          `json:"method,omitempty"`
	Params *wsNotifyParams `json:"params,omitempty"`
}

type wsNotifyParams struct {
	Subscription int64           `json:"subscription"`
	Result       json.RawMessage `json:"result"`
}

// SubscribeConfirmations subscribes to transfer confirmations for the
// filter accounts.
func (c *WSClientImpl) SubscribeConfirmations(ctx context.Context, filter ConfirmationFilter) (<-chan Confirmation, error) {
	if c.closed.Load() {
		return nil, fmt.Errorf("client closed")
	}

	reqID := c.requestID.Add(1)
	req := wsRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  "confirmationSubscribe",
		Params: []interface{}{
			map[string]interface{}{"accounts": filter.Accounts},
		},
	}

	replyCh := make(chan int64, 1)
	c.pendingSubsMu.Lock()
	c.pendingSubs[reqID] = replyCh
	c.pendingSubsMu.Unlock()

	if err := c.writeJSON(req); err != nil {
		c.pendingSubsMu.Lock()
		delete(c.pendingSubs, reqID)
		c.pendingSubsMu.Unlock()
		return nil, fmt.Errorf("send subscribe request: %w", err)
	}

	var subID int64
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, fmt.Errorf("client closed")
	case subID = <-replyCh:
	}

	ch := make(chan Confirmation, 64)
	c.subsMu.Lock()
	c.subs[subID] = ch
	c.subsMu.Unlock()

	c.activeFiltersMu.Lock()
	c.activeFilters[subID] = filter
	c.activeFiltersMu.Unlock()

	return ch, nil
}

// Close closes the WebSocket connection and all subscription channels.
func (c *WSClientImpl) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	close(c.done)

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.Close()
	}
	c.connMu.Unlock()

	c.wg.Wait()

	c.subsMu.Lock()
	for id, ch := range c.subs {
		close(ch)
		delete(c.subs, id)
	}
	c.subsMu.Unlock()

	return nil
}

// readLoop reads messages and dispatches them to subscribers. On a read
// failure it reconnects with backoff and resubscribes active filters.
func (c *WSClientImpl) readLoop() {
	defer c.wg.Done()

	for {
		select {
		case <-c.done:
			return
		default:
		}

		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()
		if conn == nil {
			return
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return
			}
			if !c.reconnect() {
				return
			}
			continue
		}

		c.dispatch(data)
	}
}

// dispatch routes one raw message to the right subscriber or pending request.
func (c *WSClientImpl) dispatch(data []byte) {
	var msg wsMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}

	// Subscription reply: {id, result: <subscription id>}
	if msg.ID != 0 && msg.Result != nil {
		var subID int64
		if err := json.Unmarshal(msg.Result, &subID); err != nil {
			return
		}
		c.pendingSubsMu.Lock()
		if ch, ok := c.pendingSubs[msg.ID]; ok {
			ch <- subID
			delete(c.pendingSubs, msg.ID)
		}
		c.pendingSubsMu.Unlock()
		return
	}

	// Notification: {method: confirmationNotification, params: {subscription, result}}
	if msg.Method == "confirmationNotification" && msg.Params != nil {
		var conf Confirmation
		if err := json.Unmarshal(msg.Params.Result, &conf); err != nil {
			return
		}

		c.subsMu.RLock()
		ch, ok := c.subs[msg.Params.Subscription]
		c.subsMu.RUnlock()
		if !ok {
			return
		}

		// Drop rather than block: the feed is advisory and consumers
		// fall back to RPC lookups
		select {
		case ch <- conf:
		default:
		}
	}
}

// reconnect re-establishes the connection with backoff and resubscribes
// all active filters. Returns false if the client was closed meanwhile.
func (c *WSClientImpl) reconnect() bool {
	delay := c.config.ReconnectDelay

	for {
		select {
		case <-c.done:
			return false
		case <-time.After(delay):
		}

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		err := c.connect(ctx)
		cancel()
		if err == nil {
			break
		}

		delay *= 2
		if delay > c.config.MaxReconnectDelay {
			delay = c.config.MaxReconnectDelay
		}
	}

	c.resubscribeAll()
	return true
}

// resubscribeAll replays active filters on the fresh connection, remapping
// subscription ids so existing consumer channels keep receiving.
func (c *WSClientImpl) resubscribeAll() {
	c.activeFiltersMu.Lock()
	filters := make(map[int64]ConfirmationFilter, len(c.activeFilters))
	for id, f := range c.activeFilters {
		filters[id] = f
	}
	c.activeFiltersMu.Unlock()

	for oldID, filter := range filters {
		reqID := c.requestID.Add(1)
		req := wsRequest{
			JSONRPC: "2.0",
			ID:      reqID,
			Method:  "confirmationSubscribe",
			Params: []interface{}{
				map[string]interface{}{"accounts": filter.Accounts},
			},
		}

		replyCh := make(chan int64, 1)
		c.pendingSubsMu.Lock()
		c.pendingSubs[reqID] = replyCh
		c.pendingSubsMu.Unlock()

		if err := c.writeJSON(req); err != nil {
			continue
		}

		select {
		case <-c.done:
			return
		case newID := <-replyCh:
			c.remapSubscription(oldID, newID)
		case <-time.After(10 * time.Second):
		}
	}
}

// remapSubscription moves the consumer channel and filter to a new id.
func (c *WSClientImpl) remapSubscription(oldID, newID int64) {
	if oldID == newID {
		return
	}

	c.subsMu.Lock()
	if ch, ok := c.subs[oldID]; ok {
		c.subs[newID] = ch
		delete(c.subs, oldID)
	}
	c.subsMu.Unlock()

	c.activeFiltersMu.Lock()
	if f, ok := c.activeFilters[oldID]; ok {
		c.activeFilters[newID] = f
		delete(c.activeFilters, oldID)
	}
	c.activeFiltersMu.Unlock()
}

// pingLoop keeps the connection alive.
func (c *WSClientImpl) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.connMu.Lock()
			conn := c.conn
			if conn != nil {
				conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
				conn.WriteMessage(websocket.PingMessage, nil)
			}
			c.connMu.Unlock()
		}
	}
}

// writeJSON writes a JSON message under the connection lock.
func (c *WSClientImpl) writeJSON(v interface{}) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("not connected")
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	return c.conn.WriteJSON(v)
}
