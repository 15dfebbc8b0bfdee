// Package push manages the persistent bidirectional game connection.
package push

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/samdwyer/mudlink/internal/telemetry"
)

// State is the connection state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateOpen
	StateClosed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ErrMissingCredentials is returned by Connect without a token or character.
var ErrMissingCredentials = errors.New("push channel needs an access token and a character id")

var errSuperseded = errors.New("connection superseded")

// Handler receives everything the channel produces. Calls for one connection
// are made from a single goroutine, in arrival order.
type Handler interface {
	// HandleMessage receives one raw inbound payload.
	HandleMessage(payload []byte)
	// HandleClosed reports a close the client did not ask for.
	HandleClosed(code int, reason string)
	// HandleNotConnected reports a command that could not be sent.
	HandleNotConnected(commandText string)
}

// Outbound is the only message shape the client sends.
type Outbound struct {
	Type        string `json:"type"`
	CommandText string `json:"command_text"`
}

// Config holds push channel configuration.
type Config struct {
	BaseURL string
	// ReconnectAttempts is how many times a dropped connection is redialed.
	// 0 leaves reconnecting to the player.
	ReconnectAttempts int
	// ReconnectInterval is the first backoff interval between redials.
	ReconnectInterval time.Duration
}

// Client owns at most one connection at a time.
type Client struct {
	cfg     Config
	dialer  Dialer
	handler Handler

	mu     sync.Mutex
	state  State
	conn   Conn
	gen    uint64
	cancel context.CancelFunc

	writeMu sync.Mutex
}

// NewClient creates a disconnected client.
func NewClient(cfg Config, dialer Dialer, handler Handler) *Client {
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = 500 * time.Millisecond
	}
	return &Client{cfg: cfg, dialer: dialer, handler: handler}
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect starts connecting for the given session and returns immediately.
// It is a no-op while a connection is open or being opened.
func (c *Client) Connect(token, characterID string) error {
	if token == "" || characterID == "" {
		return ErrMissingCredentials
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateOpen || c.state == StateConnecting {
		return nil
	}
	c.gen++
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.state = StateConnecting

	go c.run(ctx, c.gen, ChannelURL(c.cfg.BaseURL, token, characterID))
	return nil
}

// Disconnect closes any connection and moves to Disconnected without waiting
// for the server.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.gen++
	conn, cancel := c.conn, c.cancel
	c.conn, c.cancel = nil, nil
	c.state = StateDisconnected
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		c.writeMu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "logout")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.writeMu.Unlock()
		_ = conn.Close()
	}
}

// Send writes a command. When the channel is not open the handler is told and
// false is returned; nothing is thrown at the caller.
func (c *Client) Send(commandText string) bool {
	c.mu.Lock()
	conn, state := c.conn, c.state
	c.mu.Unlock()

	if state != StateOpen || conn == nil {
		c.handler.HandleNotConnected(commandText)
		return false
	}

	c.writeMu.Lock()
	err := conn.WriteJSON(Outbound{Type: "command", CommandText: commandText})
	c.writeMu.Unlock()
	if err != nil {
		log.Warn().Err(err).Msg("push send failed")
		c.handler.HandleNotConnected(commandText)
		return false
	}
	return true
}

func (c *Client) run(ctx context.Context, gen uint64, url string) {
	conn, err := c.dial(ctx, url)
	for err == nil {
		if !c.markOpen(gen, conn) {
			_ = conn.Close()
			return
		}
		code, reason := c.readLoop(gen, conn)
		if !c.markClosed(gen) {
			return
		}
		log.Info().Int("code", code).Str("reason", reason).Msg("push channel closed")
		c.handler.HandleClosed(code, reason)

		if c.cfg.ReconnectAttempts <= 0 || !c.markConnecting(gen) {
			return
		}
		conn, err = c.redial(ctx, gen, url)
	}
	if errors.Is(err, errSuperseded) {
		return
	}
	code, reason := closeInfo(err)
	if c.markClosed(gen) {
		log.Warn().Err(err).Msg("push channel connect failed")
		c.handler.HandleClosed(code, reason)
	}
}

func (c *Client) dial(ctx context.Context, url string) (Conn, error) {
	tracer := telemetry.Tracer("push")
	ctx, span := tracer.Start(ctx, "push.connect")
	defer span.End()

	conn, err := c.dialer.Dial(ctx, url)
	if err != nil {
		telemetry.Fail(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.Bool("connected", true))
	return conn, nil
}

func (c *Client) redial(ctx context.Context, gen uint64, url string) (Conn, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.ReconnectInterval
	conn, err := backoff.Retry(ctx, func() (Conn, error) {
		if !c.current(gen) {
			return nil, backoff.Permanent(errSuperseded)
		}
		return c.dial(ctx, url)
	}, backoff.WithBackOff(b), backoff.WithMaxTries(uint(c.cfg.ReconnectAttempts)))
	if err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Err
		}
		if !c.current(gen) {
			return nil, errSuperseded
		}
		return nil, err
	}
	return conn, nil
}

// readLoop forwards payloads until the connection fails or is superseded.
func (c *Client) readLoop(gen uint64, conn Conn) (int, string) {
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return closeInfo(err)
		}
		if !c.current(gen) {
			return websocket.CloseNormalClosure, ""
		}
		c.handler.HandleMessage(payload)
	}
}

func (c *Client) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen == gen
}

func (c *Client) markOpen(gen uint64, conn Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return false
	}
	c.conn = conn
	c.state = StateOpen
	return true
}

func (c *Client) markConnecting(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return false
	}
	c.state = StateConnecting
	return true
}

func (c *Client) markClosed(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return false
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.conn = nil
	c.state = StateClosed
	return true
}
