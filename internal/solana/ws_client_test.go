package solana

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsServer runs serve on every upgraded connection and returns the ws:// URL.
func wsServer(t *testing.T, serve func(conn *websocket.Conn, n int32)) string {
	t.Helper()
	var conns atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		serve(conn, conns.Add(1))
	}))
	t.Cleanup(server.Close)
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

// drain keeps a connection open until the peer goes away.
func drain(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// readSubscribe reads one logsSubscribe request.
func readSubscribe(t *testing.T, conn *websocket.Conn) (wsRequest, bool) {
	var req wsRequest
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return req, false
	}
	if err := json.Unmarshal(msg, &req); err != nil {
		t.Errorf("unmarshal request: %v", err)
		return req, false
	}
	assert.Equal(t, "logsSubscribe", req.Method)
	return req, true
}

func ack(conn *websocket.Conn, id uint64, subID int64) error {
	return conn.WriteJSON(map[string]any{"jsonrpc": "2.0", "id": id, "result": subID})
}

func notify(conn *websocket.Conn, subID int64, slot int64, signature string) error {
	return conn.WriteJSON(LogsNotification{
		JSONRPC: "2.0",
		Method:  "logsNotification",
		Params: &LogsNotificationParams{
			Subscription: subID,
			Result: LogsResult{
				Context: &RPCContext{Slot: slot},
				Value:   LogsValue{Signature: signature, Logs: []string{"Program log: Test"}},
			},
		},
	})
}

func TestWSClient_ConnectAndClose(t *testing.T) {
	url := wsServer(t, func(conn *websocket.Conn, _ int32) { drain(conn) })

	client, err := NewWSClient(context.Background(), url, nil)
	require.NoError(t, err)
	assert.False(t, client.closed.Load())

	require.NoError(t, client.Close())
	assert.True(t, client.closed.Load())
	assert.NoError(t, client.Close(), "double close is a no-op")
}

func TestWSClient_SubscribeLogs(t *testing.T) {
	url := wsServer(t, func(conn *websocket.Conn, _ int32) {
		req, ok := readSubscribe(t, conn)
		if !ok {
			return
		}
		filter, _ := req.Params[0].(map[string]interface{})
		assert.Equal(t, []interface{}{"testprogram"}, filter["mentions"])

		if err := ack(conn, req.ID, 12345); err != nil {
			t.Errorf("write response: %v", err)
			return
		}
		time.Sleep(50 * time.Millisecond)
		if err := notify(conn, 12345, 100, "testsig"); err != nil {
			t.Errorf("write notification: %v", err)
			return
		}
		drain(conn)
	})

	ctx := context.Background()
	client, err := NewWSClient(ctx, url, nil)
	require.NoError(t, err)
	defer client.Close()

	ch, err := client.SubscribeLogs(ctx, LogsFilter{Mentions: []string{"testprogram"}})
	require.NoError(t, err)

	select {
	case notif := <-ch:
		assert.Equal(t, "testsig", notif.Signature)
		assert.Len(t, notif.Logs, 1)
		assert.Equal(t, int64(100), notif.Slot)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for notification")
	}
}

func TestWSClient_SubscribeAll(t *testing.T) {
	url := wsServer(t, func(conn *websocket.Conn, _ int32) {
		req, ok := readSubscribe(t, conn)
		if !ok {
			return
		}
		assert.Equal(t, "all", req.Params[0])
		ack(conn, req.ID, 1)
		drain(conn)
	})

	ctx := context.Background()
	client, err := NewWSClient(ctx, url, nil)
	require.NoError(t, err)
	defer client.Close()

	_, err = client.SubscribeLogs(ctx, LogsFilter{})
	require.NoError(t, err)
}

func TestWSClient_SubscribeErrorResponse(t *testing.T) {
	url := wsServer(t, func(conn *websocket.Conn, _ int32) {
		req, ok := readSubscribe(t, conn)
		if !ok {
			return
		}
		conn.WriteJSON(RPCResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &RPCError{Code: CodeInvalidParams, Message: "Invalid params"},
		})
		drain(conn)
	})

	client, err := NewWSClient(context.Background(), url, nil)
	require.NoError(t, err)
	defer client.Close()

	_, err = client.SubscribeLogs(context.Background(), LogsFilter{})
	var rpcErr *RPCError
	require.True(t, errors.As(err, &rpcErr), "got %v", err)
	assert.Equal(t, CodeInvalidParams, rpcErr.Code)
}

func TestWSClient_SubscribeTimesOutWithoutAck(t *testing.T) {
	url := wsServer(t, func(conn *websocket.Conn, _ int32) { drain(conn) })

	client, err := NewWSClient(context.Background(), url, &WSClientConfig{SubscribeTimeout: 50 * time.Millisecond})
	require.NoError(t, err)
	defer client.Close()

	_, err = client.SubscribeLogs(context.Background(), LogsFilter{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no ack")
	assert.Empty(t, client.pending, "abandoned request is forgotten")
}

func TestWSClient_CloseClosesSubscriptions(t *testing.T) {
	url := wsServer(t, func(conn *websocket.Conn, _ int32) {
		req, ok := readSubscribe(t, conn)
		if !ok {
			return
		}
		ack(conn, req.ID, 3)
		// Routed nowhere: unknown subscription ids are dropped.
		notify(conn, 99, 1, "stray")
		drain(conn)
	})

	client, err := NewWSClient(context.Background(), url, nil)
	require.NoError(t, err)
	ch, err := client.SubscribeLogs(context.Background(), LogsFilter{})
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, client.Close())
	_, open := <-ch
	assert.False(t, open)
}

func TestWSClient_SubscribeAfterClose(t *testing.T) {
	url := wsServer(t, func(conn *websocket.Conn, _ int32) { drain(conn) })

	ctx := context.Background()
	client, err := NewWSClient(ctx, url, nil)
	require.NoError(t, err)
	client.Close()

	_, err = client.SubscribeLogs(ctx, LogsFilter{})
	assert.ErrorIs(t, err, ErrClientClosed)
}

func TestWSClient_ResubscribesAfterReconnect(t *testing.T) {
	url := wsServer(t, func(conn *websocket.Conn, n int32) {
		req, ok := readSubscribe(t, conn)
		if !ok {
			return
		}
		subID := int64(n) * 10
		ack(conn, req.ID, subID)
		if n == 1 {
			// Drop the first connection right after the ack.
			time.Sleep(50 * time.Millisecond)
			return
		}
		time.Sleep(50 * time.Millisecond)
		notify(conn, subID, 7, "after-reconnect")
		drain(conn)
	})

	cfg := WSClientConfig{
		ReconnectDelay:    20 * time.Millisecond,
		MaxReconnectDelay: 200 * time.Millisecond,
		PingInterval:      5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      5 * time.Second,
	}
	ctx := context.Background()
	client, err := NewWSClient(ctx, url, &cfg)
	require.NoError(t, err)
	defer client.Close()
	assert.Equal(t, 30*time.Second, client.config.SubscribeTimeout, "zero subscribe timeout gets the default")

	ch, err := client.SubscribeLogs(ctx, LogsFilter{Mentions: []string{"prog"}})
	require.NoError(t, err)

	select {
	case notif := <-ch:
		assert.Equal(t, "after-reconnect", notif.Signature)
		assert.Equal(t, int64(7), notif.Slot)
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for notification after reconnect")
	}
}

func TestLogsFilter_Params(t *testing.T) {
	assert.Equal(t, "all", LogsFilter{}.Params())
	assert.Equal(t, map[string]interface{}{"mentions": []string{"a"}}, LogsFilter{Mentions: []string{"a"}}.Params())
}
