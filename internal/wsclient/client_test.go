package wsclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{}

// newEchoServer starts a WS server that, on every received subscribe frame,
// immediately pushes one frame back on the subscribed channel with a fixed
// payload, so tests can assert the round trip without a real exchange.
func newEchoServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var req map[string]any
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			sub, _ := req["subscription"].(map[string]any)
			channel, _ := sub["type"].(string)
			push := map[string]any{"channel": channel, "data": map[string]string{"ok": "1"}}
			if err := conn.WriteJSON(push); err != nil {
				return
			}
		}
	}))
}

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

func TestAllMidsReceivesPushAfterSubscribe(t *testing.T) {
	srv := newEchoServer(t)
	defer srv.Close()

	c := NewClient(wsURL(srv.URL))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	waitForState(t, c, StateConnected)

	ch, unsub, err := c.AllMids(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer unsub()

	select {
	case payload := <-ch:
		var data map[string]string
		if err := json.Unmarshal(payload, &data); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if data["ok"] != "1" {
			t.Fatalf("unexpected payload: %v", data)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for allMids push")
	}
}

func TestUnsubscribeRemovesLastSubscriber(t *testing.T) {
	srv := newEchoServer(t)
	defer srv.Close()

	c := NewClient(wsURL(srv.URL))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	waitForState(t, c, StateConnected)

	ch, unsub, err := c.UserEvents(ctx, "0xabc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	<-ch // drain the initial push so the subscription is registered and consumed

	unsub()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		c.mu.Lock()
		_, stillSubscribed := c.subs["userEvents:0xabc"]
		c.mu.Unlock()
		if !stillSubscribed {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("expected subscription to be removed after last unsubscribe")
}

func waitForState(t *testing.T, c *Client, want ConnState) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.State() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("client did not reach state %s before deadline (last: %s)", want, c.State())
}
