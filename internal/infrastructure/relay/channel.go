package relay

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"coedit/internal/core/domain"
	"coedit/internal/core/ports"
	"coedit/pkg/retry"
	"coedit/pkg/tracing"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Frame is one named event on the wire.
type Frame struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Options tunes the channel's websocket behavior.
type Options struct {
	PingInterval time.Duration
	PongTimeout  time.Duration
	WriteTimeout time.Duration
	Reconnect    retry.Config
}

// DefaultOptions returns conservative keepalive settings.
func DefaultOptions() Options {
	return Options{
		PingInterval: 30 * time.Second,
		PongTimeout:  60 * time.Second,
		WriteTimeout: 10 * time.Second,
		Reconnect: retry.Config{
			MaxAttempts:  3,
			InitialDelay: 500 * time.Millisecond,
			MaxDelay:     10 * time.Second,
			Multiplier:   2.0,
			Jitter:       true,
		},
	}
}

// Channel is the websocket implementation of the realtime relay channel.
// Event handlers run serially on a single dispatch goroutine, so a handler
// never races another handler of the same channel.
type Channel struct {
	url     string
	opts    Options
	metrics ports.Collector
	logger  *zap.SugaredLogger

	writeMu sync.Mutex // guards conn writes
	mu      sync.RWMutex
	conn    *websocket.Conn
	closed  bool

	handlersMu sync.RWMutex
	handlers   map[string][]ports.EventHandler

	done chan struct{}
}

var _ ports.RealtimeChannel = (*Channel)(nil)

func NewChannel(url string, opts Options, metrics ports.Collector, logger *zap.SugaredLogger) *Channel {
	return &Channel{
		url:      url,
		opts:     opts,
		metrics:  metrics,
		logger:   logger,
		handlers: make(map[string][]ports.EventHandler),
		done:     make(chan struct{}),
	}
}

// Connect dials the relay, retrying with backoff, and starts the read and
// ping loops. Handlers may be registered before or after Connect.
func (c *Channel) Connect(ctx context.Context) error {
	var conn *websocket.Conn
	err := retry.Do(ctx, c.opts.Reconnect, func() error {
		dialed, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
		if err != nil {
			c.logger.Warnw("relay dial failed", "url", c.url, "error", err)
			return err
		}
		conn = dialed
		return nil
	})
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	conn.SetReadDeadline(time.Now().Add(c.opts.PongTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(c.opts.PongTimeout))
		return nil
	})

	go c.readLoop(conn)
	go c.pingLoop(conn)

	c.logger.Infow("relay connected", "url", c.url)
	return nil
}

// Send marshals the payload and writes one event frame. No retry: a failed
// send is the caller's signal that the event was lost.
func (c *Channel) Send(event string, payload interface{}) error {
	c.mu.RLock()
	conn := c.conn
	closed := c.closed
	c.mu.RUnlock()

	if closed || conn == nil {
		return domain.ErrChannelClosed
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	if err := conn.WriteJSON(Frame{Event: event, Payload: raw}); err != nil {
		return err
	}
	c.metrics.RecordEventSent(event)
	return nil
}

// On registers a handler for a named event. Multiple handlers per event are
// invoked in registration order.
func (c *Channel) On(event string, handler ports.EventHandler) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.handlers[event] = append(c.handlers[event], handler)
}

// Connected reports whether the channel currently holds a live connection.
func (c *Channel) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil && !c.closed
}

// Close shuts the channel down for good; no reconnection is attempted.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.mu.Unlock()

	close(c.done)
	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (c *Channel) readLoop(conn *websocket.Conn) {
	for {
		var frame Frame
		if err := conn.ReadJSON(&frame); err != nil {
			c.mu.RLock()
			closed := c.closed
			c.mu.RUnlock()
			if closed {
				return
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warnw("relay read failed", "error", err)
			}
			c.reconnect()
			return
		}
		conn.SetReadDeadline(time.Now().Add(c.opts.PongTimeout))
		c.dispatch(frame)
	}
}

func (c *Channel) dispatch(frame Frame) {
	c.handlersMu.RLock()
	handlers := c.handlers[frame.Event]
	c.handlersMu.RUnlock()

	if len(handlers) == 0 {
		c.logger.Debugw("unhandled relay event", "event", frame.Event)
		return
	}

	_, span := tracing.TraceRelayEvent(context.Background(), frame.Event)
	defer span.End()

	c.metrics.RecordEventReceived(frame.Event)
	for _, handler := range handlers {
		handler(frame.Payload)
	}
}

func (c *Channel) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				c.logger.Warnw("relay ping failed", "error", err)
				return
			}
		}
	}
}

// reconnect re-dials after a dropped connection. Room membership is not
// replayed here: sessions re-join through their own intents, and the next
// successful edit broadcasts current content.
func (c *Channel) reconnect() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := c.Connect(ctx); err != nil {
		c.logger.Errorw("relay reconnect failed, channel closed", "error", err)
		c.Close()
	}
}
