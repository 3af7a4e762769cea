// Package wsclient implements the exchange's push WebSocket client: a single
// durable upstream connection with reconnect/resubscribe, fanning typed
// channel pushes out to many internal subscribers.
//
// This is the inverse of a server-side broadcast hub: there is exactly one
// upstream connection here, and the register/unregister/broadcast shape
// instead multiplexes many internal subscriber channels keyed by
// subscription.
package wsclient

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ConnState is one of the client's lifecycle states.
type ConnState string

const (
	StateDisconnected ConnState = "disconnected"
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
	StateReconnecting ConnState = "reconnecting"
)

const (
	reconnectInitialDelay = 1 * time.Second
	reconnectMaxDelay     = 30 * time.Second
	reconnectMultiplier   = 2
)

// frame is the exchange's WS envelope: {channel, data}.
type frame struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

// subscription is one active channel subscription, fanning raw frame payloads
// out to every subscriber channel registered against its key.
type subscription struct {
	request     json.RawMessage // the {method:"subscribe",subscription:{...}} frame to (re)send
	subscribers map[chan json.RawMessage]bool
}

// dialer abstracts websocket.DefaultDialer for testing.
type dialer interface {
	Dial(url string, header map[string][]string) (*websocket.Conn, error)
}

type defaultDialer struct{}

func (defaultDialer) Dial(url string, header map[string][]string) (*websocket.Conn, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	return conn, err
}

// Client owns one connection to the exchange WS endpoint and replays all
// active subscriptions on every (re)connect.
type Client struct {
	url    string
	dialer dialer

	mu    sync.Mutex
	conn  *websocket.Conn
	state ConnState
	subs  map[string]*subscription

	register   chan registerReq
	unregister chan unregisterReq
}

type registerReq struct {
	key         string
	requestJSON json.RawMessage
	ch          chan json.RawMessage
}

type unregisterReq struct {
	key string
	ch  chan json.RawMessage
}

// NewClient builds a Client for the given WS url (e.g. "wss://api.hyperliquid.xyz/ws").
func NewClient(url string) *Client {
	return &Client{
		url:        url,
		dialer:     defaultDialer{},
		state:      StateDisconnected,
		subs:       make(map[string]*subscription),
		register:   make(chan registerReq),
		unregister: make(chan unregisterReq),
	}
}

// Run drives the connection loop until ctx is cancelled: connect, read
// frames, fan them out, and reconnect with exponential backoff on any
// read/dial failure, replaying every active subscription after reconnect.
func (c *Client) Run(ctx context.Context) {
	delay := reconnectInitialDelay
	for {
		select {
		case <-ctx.Done():
			c.setState(StateDisconnected)
			return
		default:
		}

		c.setState(StateConnecting)
		conn, err := c.dialer.Dial(c.url, nil)
		if err != nil {
			log.Printf("[wsclient] dial error, retrying in %s: %v", delay, err)
			if !c.sleepOrDone(ctx, delay) {
				return
			}
			delay = nextDelay(delay)
			continue
		}

		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()
		c.setState(StateConnected)
		delay = reconnectInitialDelay
		c.resubscribeAll()

		c.readLoop(ctx, conn)

		c.setState(StateReconnecting)
		_ = conn.Close()
	}
}

func (c *Client) sleepOrDone(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}

func nextDelay(d time.Duration) time.Duration {
	d *= reconnectMultiplier
	if d > reconnectMaxDelay {
		return reconnectMaxDelay
	}
	return d
}

// readLoop reads frames off conn and fans them out to subscribers, handling
// register/unregister requests from Subscribe/Unsubscribe concurrently, until
// a read error or ctx cancellation ends the connection.
func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) {
	frames := make(chan frame)
	errs := make(chan error, 1)
	go func() {
		for {
			var f frame
			if err := conn.ReadJSON(&f); err != nil {
				errs <- err
				close(frames)
				return
			}
			frames <- f
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-errs:
			log.Printf("[wsclient] read error: %v", err)
			return
		case f, ok := <-frames:
			if !ok {
				return
			}
			c.dispatch(f)
		case req := <-c.register:
			c.addSubscriber(req)
			c.sendSubscribeFrame(conn, req.requestJSON)
		case req := <-c.unregister:
			c.removeSubscriber(req)
		}
	}
}

func (c *Client) dispatch(f frame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sub, ok := c.subs[f.Channel]
	if !ok {
		return
	}
	for ch := range sub.subscribers {
		select {
		case ch <- f.Data:
		default:
			// slow subscriber: drop rather than stall the shared upstream connection.
		}
	}
}

func (c *Client) addSubscriber(req registerReq) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sub, ok := c.subs[req.key]
	if !ok {
		sub = &subscription{request: req.requestJSON, subscribers: make(map[chan json.RawMessage]bool)}
		c.subs[req.key] = sub
	}
	sub.subscribers[req.ch] = true
}

func (c *Client) removeSubscriber(req unregisterReq) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sub, ok := c.subs[req.key]
	if !ok {
		return
	}
	delete(sub.subscribers, req.ch)
	close(req.ch)
	if len(sub.subscribers) == 0 {
		delete(c.subs, req.key)
	}
}

func (c *Client) resubscribeAll() {
	c.mu.Lock()
	conn := c.conn
	reqs := make([]json.RawMessage, 0, len(c.subs))
	for _, sub := range c.subs {
		reqs = append(reqs, sub.request)
	}
	c.mu.Unlock()

	for _, r := range reqs {
		c.sendSubscribeFrame(conn, r)
	}
}

func (c *Client) sendSubscribeFrame(conn *websocket.Conn, requestJSON json.RawMessage) {
	if conn == nil {
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, requestJSON); err != nil {
		log.Printf("[wsclient] subscribe write error: %v", err)
	}
}

func (c *Client) setState(s ConnState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// State returns the client's current connection state.
func (c *Client) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// subscribe registers a new subscriber channel for the given subscription key
// and request frame, returning the channel of raw data payloads.
func (c *Client) subscribe(ctx context.Context, key string, requestJSON json.RawMessage) (chan json.RawMessage, error) {
	ch := make(chan json.RawMessage, 64)
	select {
	case c.register <- registerReq{key: key, requestJSON: requestJSON, ch: ch}:
		return ch, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// unsubscribe removes ch from key's subscriber set; unsubscribing the last
// subscriber removes key from the registry, so it is not replayed on the
// next reconnect. No unsubscribe frame is sent on the live connection.
func (c *Client) unsubscribe(key string, ch chan json.RawMessage) {
	c.unregister <- unregisterReq{key: key, ch: ch}
}

// UserEvents subscribes to the userEvents channel for address (fills,
// fundings, liquidations), returning raw per-event JSON payloads.
func (c *Client) UserEvents(ctx context.Context, address string) (<-chan json.RawMessage, func(), error) {
	key := "userEvents:" + address
	req, _ := json.Marshal(map[string]any{
		"method":       "subscribe",
		"subscription": map[string]string{"type": "userEvents", "user": address},
	})
	ch, err := c.subscribe(ctx, key, req)
	if err != nil {
		return nil, nil, err
	}
	return ch, func() { c.unsubscribe(key, ch) }, nil
}

// WebData2 subscribes to the webData2 channel for address (periodic
// clearinghouse snapshot).
func (c *Client) WebData2(ctx context.Context, address string) (<-chan json.RawMessage, func(), error) {
	key := "webData2:" + address
	req, _ := json.Marshal(map[string]any{
		"method":       "subscribe",
		"subscription": map[string]string{"type": "webData2", "user": address},
	})
	ch, err := c.subscribe(ctx, key, req)
	if err != nil {
		return nil, nil, err
	}
	return ch, func() { c.unsubscribe(key, ch) }, nil
}

// AllMids subscribes to the allMids channel (coin -> mid-price map pushes).
func (c *Client) AllMids(ctx context.Context) (<-chan json.RawMessage, func(), error) {
	key := "allMids"
	req, _ := json.Marshal(map[string]any{
		"method":       "subscribe",
		"subscription": map[string]string{"type": "allMids"},
	})
	ch, err := c.subscribe(ctx, key, req)
	if err != nil {
		return nil, nil, err
	}
	return ch, func() { c.unsubscribe(key, ch) }, nil
}
