package solana

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// ErrClientClosed is returned by calls on a closed client.
var ErrClientClosed = errors.New("ws client closed")

var errNotConnected = errors.New("ws client not connected")

// WSClientConfig tunes the websocket client. Zero fields take the defaults.
type WSClientConfig struct {
	ReconnectDelay    time.Duration // first reconnect delay, doubled per failure
	MaxReconnectDelay time.Duration
	PingInterval      time.Duration
	ReadTimeout       time.Duration // extended by every message and pong
	WriteTimeout      time.Duration
	SubscribeTimeout  time.Duration // wait for the logsSubscribe ack
	Buffer            int           // per-subscription channel capacity
	Logger            *zerolog.Logger
}

// DefaultWSConfig returns the defaults used for zero fields.
func DefaultWSConfig() WSClientConfig {
	return WSClientConfig{
		ReconnectDelay:    time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		SubscribeTimeout:  30 * time.Second,
		Buffer:            4096,
	}
}

func (c WSClientConfig) withDefaults() WSClientConfig {
	d := DefaultWSConfig()
	for _, f := range []struct{ v, def *time.Duration }{
		{&c.ReconnectDelay, &d.ReconnectDelay},
		{&c.MaxReconnectDelay, &d.MaxReconnectDelay},
		{&c.PingInterval, &d.PingInterval},
		{&c.ReadTimeout, &d.ReadTimeout},
		{&c.WriteTimeout, &d.WriteTimeout},
		{&c.SubscribeTimeout, &d.SubscribeTimeout},
	} {
		if *f.v <= 0 {
			*f.v = *f.def
		}
	}
	if c.Buffer <= 0 {
		c.Buffer = d.Buffer
	}
	return c
}

// logSub is one caller subscription. It outlives connections: after a
// reconnect it is re-sent and routed under the new server id.
type logSub struct {
	filter LogsFilter
	ch     chan LogNotification
}

// pendingAck is an outstanding logsSubscribe. ack is nil for resubscriptions
// issued by the reader after a reconnect.
type pendingAck struct {
	sub *logSub
	ack chan error
}

// WSClientImpl implements WSClient over gorilla/websocket. A single reader
// goroutine owns the connection lifecycle: it dispatches notifications,
// reconnects with exponential backoff and replays every subscription.
type WSClientImpl struct {
	endpoint string
	config   WSClientConfig
	logger   zerolog.Logger
	dialer   websocket.Dialer

	mu      sync.Mutex
	conn    *websocket.Conn
	subs    []*logSub
	routes  map[int64]*logSub // server subscription id, reset per connection
	pending map[uint64]pendingAck

	writeMu sync.Mutex
	nextID  atomic.Uint64
	closed  atomic.Bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewWSClient dials endpoint and starts the reader. A nil config takes the defaults.
func NewWSClient(ctx context.Context, endpoint string, config *WSClientConfig) (*WSClientImpl, error) {
	var cfg WSClientConfig
	if config != nil {
		cfg = *config
	}
	c := &WSClientImpl{
		endpoint: endpoint,
		config:   cfg.withDefaults(),
		logger:   zerolog.Nop(),
		dialer:   websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		routes:   make(map[int64]*logSub),
		pending:  make(map[uint64]pendingAck),
		done:     make(chan struct{}),
	}
	if cfg.Logger != nil {
		c.logger = cfg.Logger.With().Str("component", "ws_client").Logger()
	}

	conn, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	c.conn = conn

	c.wg.Add(2)
	go c.run(conn)
	go c.ping()
	return c, nil
}

func (c *WSClientImpl) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := c.dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial %s: %w", c.endpoint, err)
	}
	return conn, nil
}

// SubscribeLogs sends logsSubscribe and waits for the ack. The channel is
// closed by Close.
func (c *WSClientImpl) SubscribeLogs(ctx context.Context, filter LogsFilter) (<-chan LogNotification, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}
	sub := &logSub{filter: filter, ch: make(chan LogNotification, c.config.Buffer)}
	ack := make(chan error, 1)

	id := c.nextID.Add(1)
	c.mu.Lock()
	c.pending[id] = pendingAck{sub: sub, ack: ack}
	c.mu.Unlock()
	abandon := func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}

	if err := c.write(subscribeRequest(id, filter)); err != nil {
		abandon()
		return nil, fmt.Errorf("logsSubscribe: %w", err)
	}

	timer := time.NewTimer(c.config.SubscribeTimeout)
	defer timer.Stop()
	select {
	case err := <-ack:
		if err != nil {
			return nil, fmt.Errorf("logsSubscribe: %w", err)
		}
		c.logger.Debug().Strs("mentions", filter.Mentions).Msg("logs subscribed")
		return sub.ch, nil
	case <-timer.C:
		abandon()
		return nil, fmt.Errorf("logsSubscribe: no ack after %s", c.config.SubscribeTimeout)
	case <-ctx.Done():
		abandon()
		return nil, ctx.Err()
	case <-c.done:
		return nil, ErrClientClosed
	}
}

// Close stops the reader and closes every subscription channel. It is idempotent.
func (c *WSClientImpl) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	close(c.done)

	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = conn.Close()
	}

	// The reader is gone after Wait, so nothing sends on the channels.
	c.wg.Wait()
	c.mu.Lock()
	for _, sub := range c.subs {
		close(sub.ch)
	}
	c.subs = nil
	c.mu.Unlock()
	return nil
}

func (c *WSClientImpl) write(v any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		if c.closed.Load() {
			return ErrClientClosed
		}
		return errNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	return conn.WriteJSON(v)
}

// run reads conn until it fails, then reconnects until Close.
func (c *WSClientImpl) run(conn *websocket.Conn) {
	defer c.wg.Done()
	for {
		err := c.read(conn)
		if c.closed.Load() {
			return
		}
		c.logger.Warn().Err(err).Str("endpoint", c.endpoint).Msg("websocket read failed")

		if conn = c.reconnect(); conn == nil {
			return
		}
		c.resubscribe()
	}
}

func (c *WSClientImpl) read(conn *websocket.Conn) error {
	extend := func() error { return conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout)) }
	_ = extend()
	conn.SetPongHandler(func(string) error { return extend() })
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		_ = extend()
		c.dispatch(msg)
	}
}

// reconnect dials with backoff and installs the new connection. It returns
// nil once the client is closed.
func (c *WSClientImpl) reconnect() *websocket.Conn {
	c.mu.Lock()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()

	delay := c.config.ReconnectDelay
	for {
		select {
		case <-c.done:
			return nil
		case <-time.After(delay):
		}

		ctx, cancel := context.WithTimeout(context.Background(), c.config.WriteTimeout+c.dialer.HandshakeTimeout)
		conn, err := c.dial(ctx)
		cancel()
		if err != nil {
			c.logger.Warn().Err(err).Dur("retry_in", delay).Msg("reconnect failed")
			delay = min(delay*2, c.config.MaxReconnectDelay)
			continue
		}

		c.mu.Lock()
		if c.closed.Load() {
			c.mu.Unlock()
			_ = conn.Close()
			return nil
		}
		c.conn = conn
		c.mu.Unlock()
		c.logger.Info().Str("endpoint", c.endpoint).Msg("reconnected")
		return conn
	}
}

// resubscribe replays every subscription on the current connection. Acks
// arrive through dispatch and install the new routes.
func (c *WSClientImpl) resubscribe() {
	c.mu.Lock()
	c.routes = make(map[int64]*logSub)
	for id, p := range c.pending {
		if p.ack == nil {
			delete(c.pending, id) // replay sent on the dead connection
		}
	}
	reqs := make([]wsRequest, 0, len(c.subs))
	for _, sub := range c.subs {
		id := c.nextID.Add(1)
		c.pending[id] = pendingAck{sub: sub}
		reqs = append(reqs, subscribeRequest(id, sub.filter))
	}
	c.mu.Unlock()

	for _, req := range reqs {
		if err := c.write(req); err != nil {
			// The read on this connection fails too and triggers another round.
			c.logger.Warn().Err(err).Msg("resubscribe failed")
			return
		}
	}
}

type wsRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params,omitempty"`
}

func subscribeRequest(id uint64, filter LogsFilter) wsRequest {
	return wsRequest{
		JSONRPC: "2.0",
		ID:      id,
		Method:  "logsSubscribe",
		Params:  []any{filter.Params(), map[string]string{"commitment": "confirmed"}},
	}
}

// wsMessage covers both responses and notifications.
type wsMessage struct {
	ID     *uint64                 `json:"id"`
	Method string                  `json:"method"`
	Result json.RawMessage         `json:"result"`
	Error  *RPCError               `json:"error"`
	Params *LogsNotificationParams `json:"params"`
}

func (c *WSClientImpl) dispatch(raw []byte) {
	var msg wsMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.logger.Debug().Err(err).Msg("undecodable websocket message")
		return
	}
	switch {
	case msg.Method == "logsNotification" && msg.Params != nil:
		c.deliver(msg.Params)
	case msg.ID != nil:
		c.acknowledge(*msg.ID, msg.Result, msg.Error)
	}
}

func (c *WSClientImpl) acknowledge(id uint64, result json.RawMessage, rpcErr *RPCError) {
	c.mu.Lock()
	p, ok := c.pending[id]
	delete(c.pending, id)
	if !ok {
		c.mu.Unlock()
		return
	}

	var (
		subID int64
		err   error
	)
	if rpcErr != nil {
		err = rpcErr
	} else if jerr := json.Unmarshal(result, &subID); jerr != nil {
		err = fmt.Errorf("subscription id: %w", jerr)
	}
	if err == nil {
		c.routes[subID] = p.sub
		if p.ack != nil {
			c.subs = append(c.subs, p.sub)
		}
	}
	c.mu.Unlock()

	if p.ack != nil {
		p.ack <- err
	} else if err != nil {
		c.logger.Warn().Err(err).Strs("mentions", p.sub.filter.Mentions).Msg("resubscribe rejected")
	}
}

// deliver blocks while the subscriber's buffer is full; Close unblocks it.
func (c *WSClientImpl) deliver(params *LogsNotificationParams) {
	c.mu.Lock()
	sub := c.routes[params.Subscription]
	c.mu.Unlock()
	if sub == nil {
		return
	}

	v := params.Result.Value
	n := LogNotification{Signature: v.Signature, Logs: v.Logs, Err: v.Err}
	if params.Result.Context != nil {
		n.Slot = params.Result.Context.Slot
	}
	select {
	case sub.ch <- n:
	case <-c.done:
	}
}

func (c *WSClientImpl) ping() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
		}
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			continue
		}
		// A failed ping surfaces as a read error in run.
		if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.config.WriteTimeout)); err != nil {
			c.logger.Debug().Err(err).Msg("ping failed")
		}
	}
}

var _ WSClient = (*WSClientImpl)(nil)
