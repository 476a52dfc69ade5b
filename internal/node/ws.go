package node

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"solana-escrow-lab/internal/solana"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsOutboxSize   = 256
)

// wsSession is one websocket connection and the subscriptions it owns.
type wsSession struct {
	server *Server
	conn   *websocket.Conn
	outbox chan any
	done   chan struct{}

	mu   sync.Mutex
	subs map[int64]*Subscription
	wg   sync.WaitGroup
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket upgrade")
		return
	}

	sess := &wsSession{
		server: s,
		conn:   conn,
		outbox: make(chan any, wsOutboxSize),
		done:   make(chan struct{}),
		subs:   make(map[int64]*Subscription),
	}
	s.logger.Debug().Str("remote", r.RemoteAddr).Msg("websocket connected")

	go sess.writeLoop()
	sess.readLoop()

	close(sess.done)
	sess.unsubscribeAll()
	sess.wg.Wait()
	conn.Close()
	s.logger.Debug().Str("remote", r.RemoteAddr).Msg("websocket disconnected")
}

func (c *wsSession) readLoop() {
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var req solana.RPCRequest
		if err := json.Unmarshal(msg, &req); err != nil {
			c.send(solana.RPCResponse{JSONRPC: "2.0", Error: rpcError(solana.CodeParseError, "Parse error")})
			continue
		}
		c.handle(&req)
	}
}

func (c *wsSession) handle(req *solana.RPCRequest) {
	var (
		result any
		err    error
	)
	switch req.Method {
	case "logsSubscribe":
		result, err = c.subscribe(req.Params)
	case "logsUnsubscribe":
		result, err = c.unsubscribe(req.Params)
	default:
		var rpcErr *solana.RPCError
		result, rpcErr = c.server.dispatch(req)
		c.reply(req.ID, result, rpcErr)
		return
	}

	if err != nil {
		c.reply(req.ID, nil, toRPCError(err))
		return
	}
	c.reply(req.ID, result, nil)
}

func (c *wsSession) reply(id uint64, result any, rpcErr *solana.RPCError) {
	resp := solana.RPCResponse{JSONRPC: "2.0", ID: id, Error: rpcErr}
	if rpcErr == nil {
		raw, err := json.Marshal(result)
		if err != nil {
			resp.Error = rpcError(solana.CodeInternalError, err.Error())
		} else {
			resp.Result = raw
		}
	}
	c.send(resp)
}

func (c *wsSession) send(v any) {
	select {
	case c.outbox <- v:
	case <-c.done:
	}
}

// parseLogsFilter accepts "all", "allWithVotes" or {"mentions": [...]}.
func parseLogsFilter(params []json.RawMessage) ([]solana.PublicKey, error) {
	if len(params) == 0 {
		return nil, invalidParams("missing logs filter")
	}

	var word string
	if err := json.Unmarshal(params[0], &word); err == nil {
		if word == "all" || word == "allWithVotes" {
			return nil, nil
		}
		return nil, invalidParams("unknown logs filter %q", word)
	}

	var filter struct {
		Mentions []string `json:"mentions"`
	}
	if err := json.Unmarshal(params[0], &filter); err != nil || len(filter.Mentions) == 0 {
		return nil, invalidParams("logs filter must be \"all\" or {\"mentions\": [...]}")
	}
	keys := make([]solana.PublicKey, len(filter.Mentions))
	for i, m := range filter.Mentions {
		pk, err := solana.PublicKeyFromBase58(m)
		if err != nil {
			return nil, invalidParams("%v", err)
		}
		keys[i] = pk
	}
	return keys, nil
}

func (c *wsSession) subscribe(params []json.RawMessage) (any, error) {
	mentions, err := parseLogsFilter(params)
	if err != nil {
		return nil, err
	}

	sub := c.server.node.PubSub().Subscribe(mentions)
	c.mu.Lock()
	c.subs[sub.ID] = sub
	c.mu.Unlock()

	c.wg.Add(1)
	go c.forward(sub)
	return sub.ID, nil
}

func (c *wsSession) unsubscribe(params []json.RawMessage) (any, error) {
	var id int64
	if err := param(params, 0, &id, false); err != nil {
		return nil, err
	}

	c.mu.Lock()
	_, ok := c.subs[id]
	delete(c.subs, id)
	c.mu.Unlock()
	if !ok {
		return false, nil
	}
	return c.server.node.PubSub().Unsubscribe(id), nil
}

func (c *wsSession) unsubscribeAll() {
	c.mu.Lock()
	ids := make([]int64, 0, len(c.subs))
	for id := range c.subs {
		ids = append(ids, id)
	}
	c.subs = make(map[int64]*Subscription)
	c.mu.Unlock()

	for _, id := range ids {
		c.server.node.PubSub().Unsubscribe(id)
	}
}

// forward turns a subscription's feed into logsNotification messages.
// It ends when the subscription is closed.
func (c *wsSession) forward(sub *Subscription) {
	defer c.wg.Done()
	for n := range sub.C {
		c.send(solana.LogsNotification{
			JSONRPC: "2.0",
			Method:  "logsNotification",
			Params: &solana.LogsNotificationParams{
				Subscription: sub.ID,
				Result: solana.LogsResult{
					Context: &solana.RPCContext{Slot: n.Slot},
					Value:   solana.LogsValue{Signature: n.Signature, Logs: n.Logs, Err: n.Err},
				},
			},
		})
	}
}

// writeLoop is the only writer of data frames on the connection.
func (c *wsSession) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case v := <-c.outbox:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := c.conn.WriteJSON(v); err != nil {
				c.server.logger.Debug().Err(err).Msg("websocket write")
				c.conn.Close()
				return
			}
		}
	}
}
