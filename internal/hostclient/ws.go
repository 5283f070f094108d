package hostclient

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"redgrab/internal/config"
	"redgrab/internal/logger"
	"redgrab/pkg/errors"
	"redgrab/pkg/metrics"
	"redgrab/pkg/retry"
)

const (
	frameTypeCall           = "call"
	frameTypeResult         = "result"
	frameTypeEvent          = "event"
	frameTypeSubscribe      = "subscribe"
	frameTypeUnsubscribeAll = "unsubscribeAll"
)

// frame is the wire envelope for both directions of the bridge. Calls
// and results are correlated by CallbackID.
type frame struct {
	Type       string                 `json:"type"`
	CallbackID string                 `json:"callbackId,omitempty"`
	Command    string                 `json:"command,omitempty"`
	Body       map[string]interface{} `json:"body,omitempty"`
	Result     map[string]interface{} `json:"result,omitempty"`
	Event      string                 `json:"event,omitempty"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
	Error      string                 `json:"error,omitempty"`
}

var subscribedEvents = []string{
	EventRecvMsg,
	EventRecentContactChanged,
	EventGroupListUpdate,
}

// WSClient talks to the host over a WebSocket bridge. It reconnects with
// exponential backoff and re-subscribes after every reconnect.
type WSClient struct {
	cfg config.HostConfig
	log logger.Logger

	connMu sync.Mutex
	conn   *websocket.Conn

	pendingMu sync.Mutex
	pending   map[string]chan frame

	handlerMu sync.RWMutex
	handler   EventHandler

	closed    chan struct{}
	closeOnce sync.Once
}

func NewWSClient(cfg config.HostConfig, log logger.Logger) (*WSClient, error) {
	c := &WSClient{
		cfg:     cfg,
		log:     log,
		pending: make(map[string]chan frame),
		closed:  make(chan struct{}),
	}

	conn, err := c.dial()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to host bridge: %w", err)
	}
	c.conn = conn

	go c.readLoop()

	return c, nil
}

func (c *WSClient) dial() (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: c.cfg.HandshakeTimeout,
	}
	if dialer.HandshakeTimeout <= 0 {
		dialer.HandshakeTimeout = 10 * time.Second
	}

	conn, _, err := dialer.Dial(c.cfg.URL, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (c *WSClient) Invoke(ctx context.Context, command string, body map[string]interface{}) (map[string]interface{}, error) {
	id := uuid.NewString()
	ch := make(chan frame, 1)

	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()

	start := time.Now()
	err := c.writeFrame(frame{
		Type:       frameTypeCall,
		CallbackID: id,
		Command:    command,
		Body:       body,
	})
	if err != nil {
		c.dropPending(id)
		metrics.HostCallsTotal.WithLabelValues(command, "write_error").Inc()
		return nil, fmt.Errorf("failed to send %s: %w", command, err)
	}

	select {
	case f := <-ch:
		metrics.ObserveHostCallDuration(command, time.Since(start))
		if f.Error != "" {
			metrics.HostCallsTotal.WithLabelValues(command, "error").Inc()
			return nil, errors.ErrServiceUnavailable.WithDetail("command", command).WithDetail("host_error", f.Error)
		}
		metrics.HostCallsTotal.WithLabelValues(command, "ok").Inc()
		return f.Result, nil
	case <-ctx.Done():
		// A late result finds no pending entry and is dropped.
		c.dropPending(id)
		metrics.HostCallsTotal.WithLabelValues(command, "cancelled").Inc()
		return nil, ctx.Err()
	case <-c.closed:
		c.dropPending(id)
		metrics.HostCallsTotal.WithLabelValues(command, "closed").Inc()
		return nil, errors.ErrServiceUnavailable.WithDetail("command", command).WithDetail("reason", "bridge_closed")
	}
}

// Subscribe installs handler as the only event listener. All previous
// subscriptions are dropped first so no event is ever delivered twice.
func (c *WSClient) Subscribe(handler EventHandler) error {
	c.handlerMu.Lock()
	c.handler = handler
	c.handlerMu.Unlock()

	return c.sendSubscriptions()
}

func (c *WSClient) sendSubscriptions() error {
	if err := c.writeFrame(frame{Type: frameTypeUnsubscribeAll}); err != nil {
		return fmt.Errorf("failed to clear subscriptions: %w", err)
	}
	for _, event := range subscribedEvents {
		if err := c.writeFrame(frame{Type: frameTypeSubscribe, Event: event}); err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", event, err)
		}
	}
	return nil
}

func (c *WSClient) Ping(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("bridge not connected")
	}

	deadline := time.Now().Add(5 * time.Second)
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}
	return c.conn.WriteControl(websocket.PingMessage, nil, deadline)
}

func (c *WSClient) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		c.connMu.Lock()
		if c.conn != nil {
			err = c.conn.Close()
		}
		c.connMu.Unlock()
	})
	return err
}

func (c *WSClient) writeFrame(f frame) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("bridge not connected")
	}
	return c.conn.WriteJSON(f)
}

func (c *WSClient) dropPending(id string) {
	c.pendingMu.Lock()
	delete(c.pending, id)
	c.pendingMu.Unlock()
}

// failPending flushes every in-flight call with an error frame. Called
// on disconnect so callers never hang on a dead connection.
func (c *WSClient) failPending(reason string) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	for id, ch := range c.pending {
		delete(c.pending, id)
		ch <- frame{CallbackID: id, Error: reason}
	}
}

func (c *WSClient) readLoop() {
	for {
		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			select {
			case <-c.closed:
				return
			default:
			}

			c.log.Warnw("Host bridge connection lost", "error", err)
			c.failPending("connection lost")

			if !c.reconnect() {
				return
			}
			continue
		}

		switch f.Type {
		case frameTypeResult:
			c.pendingMu.Lock()
			ch, ok := c.pending[f.CallbackID]
			if ok {
				delete(c.pending, f.CallbackID)
			}
			c.pendingMu.Unlock()
			if ok {
				ch <- f
			}
		case frameTypeEvent:
			c.handlerMu.RLock()
			handler := c.handler
			c.handlerMu.RUnlock()
			if handler != nil {
				go handler(f.Event, f.Payload)
			}
		}
	}
}

// reconnect dials until it succeeds or the client is closed, then
// restores subscriptions. Returns false when the client was closed.
func (c *WSClient) reconnect() bool {
	policy := retry.BridgePolicy(c.cfg.ReconnectInitial, c.cfg.ReconnectMax)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-c.closed:
			cancel()
		case <-ctx.Done():
		}
	}()

	err := retry.Retry(ctx, policy, func() error {
		conn, err := c.dial()
		if err != nil {
			c.log.Warnw("Host bridge reconnect failed", "error", err)
			return err
		}

		c.connMu.Lock()
		c.conn = conn
		c.connMu.Unlock()
		return nil
	})
	if err != nil {
		return false
	}

	c.log.Infow("Host bridge reconnected", "url", c.cfg.URL)

	c.handlerMu.RLock()
	hasHandler := c.handler != nil
	c.handlerMu.RUnlock()
	if hasHandler {
		if err := c.sendSubscriptions(); err != nil {
			c.log.Errorw("Failed to restore subscriptions after reconnect", "error", err)
		}
	}

	return true
}
