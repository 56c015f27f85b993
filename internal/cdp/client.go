// Package cdp implements the CDP transport: a WebSocket-framed JSON-RPC
// client that correlates requests with replies by monotonic id and
// dispatches server-initiated events by method name.
package cdp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/workspace/cdp-debugger/internal/debugerr"
)

// Event is a server-initiated CDP notification: a message with a method
// but no id.
type Event struct {
	Method string
	Params json.RawMessage
}

// EventHandler receives events dispatched for a subscribed method name, or
// for the wildcard "event" channel.
type EventHandler func(Event)

// request is the wire shape of an outgoing CDP call.
type request struct {
	ID     int64       `json:"id"`
	Method string      `json:"method"`
	Params interface{} `json:"params,omitempty"`
}

// reply is the wire shape of an incoming response (has an id) or event
// (method set, no id).
type reply struct {
	ID     int64           `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *protocolError  `json:"error,omitempty"`
}

type protocolError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// pending is a suspension token awaiting the reply for one outgoing id.
type pending struct {
	resultCh chan json.RawMessage
	errCh    chan error
	deadline time.Time
}

// Client is a CDP WebSocket transport with at-most-one pending reply per
// request id and method-keyed event dispatch.
type Client struct {
	conn   *websocket.Conn
	nextID int64

	mu          sync.Mutex
	pendingByID map[int64]*pending
	connected   bool

	handlersMu sync.RWMutex
	handlers   map[string][]EventHandler
	wildcard   []EventHandler

	readLoopDone chan struct{}
	closeOnce    sync.Once

	// eventQueue decouples event dispatch from the reader: readLoop only
	// ever enqueues here and goes straight back to ReadMessage, so a
	// handler that issues a reentrant Send (e.g. evaluating a watched
	// variable on Debugger.paused) can still have its reply read and
	// resolved by readLoop while dispatchLoop is blocked inside that
	// handler. Events are still dispatched one at a time, in arrival
	// order, by the single dispatchLoop goroutine.
	eventQueue chan Event

	limiter *rate.Limiter
}

// New constructs an unconnected Client. Call Connect to establish the
// WebSocket session.
func New() *Client {
	return &Client{
		pendingByID:  make(map[int64]*pending),
		handlers:     make(map[string][]EventHandler),
		readLoopDone: make(chan struct{}),
		eventQueue:   make(chan Event, 256),
	}
}

// SetRateLimit bounds outgoing Send calls to r requests per second with
// burst capacity burst, so a caller issuing commands in a tight loop (a
// misbehaving BreakpointManager retry, a scripted evaluation loop) cannot
// flood the target's inspector socket. A zero or negative r disables
// limiting, which is also the default.
func (c *Client) SetRateLimit(r rate.Limit, burst int) {
	if r <= 0 {
		c.limiter = nil
		return
	}
	c.limiter = rate.NewLimiter(r, burst)
}

// Connect establishes the WebSocket connection to the target's inspector
// endpoint, bounded by the given timeout.
func (c *Client) Connect(ctx context.Context, wsURL string, timeout time.Duration) error {
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	dialer := websocket.Dialer{HandshakeTimeout: timeout}
	conn, _, err := dialer.DialContext(dialCtx, wsURL, nil)
	if err != nil {
		return debugerr.Wrap(debugerr.Transport, "connect to inspector endpoint", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	go c.dispatchLoop()
	go c.readLoop()
	return nil
}

// IsConnected reports whether the transport is currently usable.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Disconnect closes the WebSocket and rejects every pending request with
// debugerr.Transport. Safe to call more than once.
func (c *Client) Disconnect() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.connected = false
		conn := c.conn
		c.mu.Unlock()

		if conn != nil {
			err = conn.Close()
		}
		c.rejectAllPending(debugerr.New(debugerr.Transport, "disconnected"))
	})
	return err
}

// Send issues a CDP method call and blocks until the matching reply
// arrives, the timeout elapses, or the connection drops. result, if
// non-nil, receives the unmarshaled "result" payload.
func (c *Client) Send(ctx context.Context, method string, params interface{}, timeout time.Duration, result interface{}) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return debugerr.Wrap(debugerr.Timeout, fmt.Sprintf("rate limit wait for %s", method), err)
		}
	}

	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return debugerr.New(debugerr.Transport, "send after disconnect: not connected")
	}
	id := atomic.AddInt64(&c.nextID, 1)
	p := &pending{
		resultCh: make(chan json.RawMessage, 1),
		errCh:    make(chan error, 1),
		deadline: time.Now().Add(timeout),
	}
	c.pendingByID[id] = p
	conn := c.conn
	c.mu.Unlock()

	req := request{ID: id, Method: method, Params: params}
	payload, err := json.Marshal(req)
	if err != nil {
		c.removePending(id)
		return fmt.Errorf("marshal %s request: %w", method, err)
	}

	c.mu.Lock()
	writeErr := conn.WriteMessage(websocket.TextMessage, payload)
	c.mu.Unlock()
	if writeErr != nil {
		c.removePending(id)
		return debugerr.Wrap(debugerr.Transport, fmt.Sprintf("write %s request", method), writeErr)
	}

	select {
	case <-ctx.Done():
		c.removePending(id)
		return ctx.Err()
	case raw := <-p.resultCh:
		if result != nil && len(raw) > 0 {
			if err := json.Unmarshal(raw, result); err != nil {
				return fmt.Errorf("unmarshal %s result: %w", method, err)
			}
		}
		return nil
	case err := <-p.errCh:
		return err
	case <-time.After(timeout):
		c.removePending(id)
		return debugerr.New(debugerr.Timeout, fmt.Sprintf("%s timed out after %s", method, timeout))
	}
}

// On subscribes handler to every event whose method matches eventName, or
// every event if eventName is the literal "event".
func (c *Client) On(eventName string, handler EventHandler) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()

	if eventName == "event" {
		c.wildcard = append(c.wildcard, handler)
		return
	}
	c.handlers[eventName] = append(c.handlers[eventName], handler)
}

// Off removes every handler registered for eventName. It does not affect
// wildcard subscriptions.
func (c *Client) Off(eventName string) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	delete(c.handlers, eventName)
}

// Once subscribes a handler that runs only for the first matching event.
// Later events are ignored, but the registration itself stays in place
// until Off(eventName) removes it.
func (c *Client) Once(eventName string, handler EventHandler) {
	var fired int32
	c.On(eventName, func(e Event) {
		if atomic.CompareAndSwapInt32(&fired, 0, 1) {
			handler(e)
		}
	})
}

// readLoop is the receive loop: dispatches events and resolves pending
// replies. It exits when the connection errors or closes.
func (c *Client) readLoop() {
	defer close(c.readLoopDone)
	defer c.Disconnect()

	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			slog.Debug("cdp read loop ended", "error", err)
			return
		}

		var msg reply
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Warn("cdp: failed to parse message", "error", err)
			continue
		}

		if msg.ID != 0 {
			c.resolvePending(msg)
			continue
		}
		if msg.Method != "" {
			c.eventQueue <- Event{Method: msg.Method, Params: msg.Params}
		}
	}
}

// dispatchLoop drains eventQueue and dispatches one event at a time, in
// the order readLoop enqueued them. Running this on its own goroutine
// (rather than inline in readLoop) means a handler blocked on a reentrant
// Send never stalls the socket reader, which is the one goroutine that
// can deliver that Send's reply.
func (c *Client) dispatchLoop() {
	for {
		select {
		case e := <-c.eventQueue:
			c.dispatch(e)
		case <-c.readLoopDone:
			c.drainEventQueue()
			return
		}
	}
}

// drainEventQueue dispatches any events still queued after the reader has
// stopped, so a connection drop doesn't silently discard events that were
// already received.
func (c *Client) drainEventQueue() {
	for {
		select {
		case e := <-c.eventQueue:
			c.dispatch(e)
		default:
			return
		}
	}
}

func (c *Client) resolvePending(msg reply) {
	c.mu.Lock()
	p, ok := c.pendingByID[msg.ID]
	if ok {
		delete(c.pendingByID, msg.ID)
	}
	c.mu.Unlock()
	if !ok {
		return
	}

	if msg.Error != nil {
		p.errCh <- debugerr.New(debugerr.ProtocolError, fmt.Sprintf("cdp error %d: %s", msg.Error.Code, msg.Error.Message))
		return
	}
	p.resultCh <- msg.Result
}

func (c *Client) dispatch(e Event) {
	c.handlersMu.RLock()
	handlers := append([]EventHandler{}, c.handlers[e.Method]...)
	wildcard := append([]EventHandler{}, c.wildcard...)
	c.handlersMu.RUnlock()

	for _, h := range handlers {
		h(e)
	}
	for _, h := range wildcard {
		h(e)
	}
}

func (c *Client) removePending(id int64) {
	c.mu.Lock()
	delete(c.pendingByID, id)
	c.mu.Unlock()
}

func (c *Client) rejectAllPending(err error) {
	c.mu.Lock()
	pendingByID := c.pendingByID
	c.pendingByID = make(map[int64]*pending)
	c.mu.Unlock()

	for _, p := range pendingByID {
		p.errCh <- err
	}
}
