package kinectmotion

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/url"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"
)

// Endpoint describes where the motion stream is served.
type Endpoint struct {
	// URL is the ws:// or wss:// stream address.
	URL string

	// Timeout bounds each receive. Nil blocks indefinitely.
	Timeout *time.Duration
}

// Validate checks the endpoint URL and timeout.
func (e Endpoint) Validate() error {
	u, err := url.Parse(e.URL)
	if err != nil {
		return fmt.Errorf("kinectmotion: invalid endpoint %q: %w", e.URL, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("kinectmotion: endpoint %q must use ws or wss", e.URL)
	}
	if e.Timeout != nil && *e.Timeout <= 0 {
		return fmt.Errorf("kinectmotion: receive timeout must be positive, got %v", *e.Timeout)
	}
	return nil
}

// Option configures a Client.
type Option func(*Client)

// WithHandshakeTimeout bounds the opening handshake.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.handshakeTimeout = d
	}
}

// WithTLSConfig sets the TLS configuration used for wss endpoints.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(c *Client) {
		c.tlsConfig = cfg
	}
}

// WithReadLimit sets the maximum accepted message size in bytes.
// Larger messages fail the receive with ErrProtocol.
func WithReadLimit(n int64) Option {
	return func(c *Client) {
		c.readLimit = n
	}
}

// WithMessageHook registers a function called with every decoded message
// envelope, including the ones the client discards.
func WithMessageHook(fn func(Message)) Option {
	return func(c *Client) {
		c.hook = fn
	}
}

// Client reads the motion stream. It keeps only the latest body frame.
//
// A Client is not safe for concurrent use; it is driven by a single tick loop.
type Client struct {
	endpoint         Endpoint
	handshakeTimeout time.Duration
	tlsConfig        *tls.Config
	readLimit        int64
	hook             func(Message)

	conn  *websocket.Conn
	raw   *handshakeConn
	frame *BodyFrame
}

// NewClient creates a Client for the endpoint. It does not connect.
func NewClient(endpoint Endpoint, opts ...Option) *Client {
	if endpoint.URL == "" {
		endpoint.URL = DefaultURL
	}
	c := &Client{endpoint: endpoint}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dial creates a Client and connects it.
func Dial(ctx context.Context, endpoint Endpoint, opts ...Option) (*Client, error) {
	c := NewClient(endpoint, opts...)
	if err := c.EnsureConnected(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Endpoint returns the endpoint the client connects to.
func (c *Client) Endpoint() Endpoint {
	return c.endpoint
}

// IsOpen reports whether the connection is established.
func (c *Client) IsOpen() bool {
	return c.conn != nil
}

// EnsureConnected connects if the client is not connected yet. It is a no-op
// on an open connection.
func (c *Client) EnsureConnected(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}
	return c.Connect(ctx)
}

// Connect performs the opening handshake and sends the client ready message.
// An already open connection is closed first.
func (c *Client) Connect(ctx context.Context) error {
	if c.conn != nil {
		c.Close()
	}
	if err := c.endpoint.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrConnection, err)
	}

	var hc *handshakeConn
	netDialer := &net.Dialer{}
	dialer := websocket.Dialer{
		Subprotocols:     []string{Subprotocol},
		HandshakeTimeout: c.handshakeTimeout,
		NetDialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			conn, err := netDialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			hc = newHandshakeConn(conn)
			return hc, nil
		},
		NetDialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			cfg := &tls.Config{}
			if c.tlsConfig != nil {
				cfg = c.tlsConfig.Clone()
			}
			if cfg.ServerName == "" {
				host, _, err := net.SplitHostPort(addr)
				if err != nil {
					return nil, err
				}
				cfg.ServerName = host
			}
			conn, err := (&tls.Dialer{NetDialer: netDialer, Config: cfg}).DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			hc = newHandshakeConn(conn)
			return hc, nil
		},
	}

	conn, resp, err := dialer.DialContext(ctx, c.endpoint.URL, nil)
	if err != nil {
		if hc != nil && errors.Is(hc.handshakeErr(), ErrProtocol) {
			return hc.handshakeErr()
		}
		if errors.Is(err, websocket.ErrBadHandshake) {
			status := 0
			if resp != nil {
				status = resp.StatusCode
			}
			return fmt.Errorf("%w: handshake rejected (status %d): %w", ErrProtocol, status, err)
		}
		return fmt.Errorf("%w: dial %s: %w", ErrConnection, c.endpoint.URL, err)
	}

	ready, err := json.Marshal(ClientReady{Types: []string{MessageBodyFrame}})
	if err != nil {
		conn.Close()
		return fmt.Errorf("%w: encode client ready: %w", ErrConnection, err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, ready); err != nil {
		conn.Close()
		return fmt.Errorf("%w: send client ready: %w", ErrConnection, err)
	}

	if c.readLimit > 0 {
		conn.SetReadLimit(c.readLimit)
	}
	// Receives block until a message arrives or the configured timeout passes.
	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		conn.Close()
		return fmt.Errorf("%w: set read deadline: %w", ErrConnection, err)
	}

	slog.Debug("kinectmotion: connected", "url", c.endpoint.URL, "subprotocol", Subprotocol)
	c.conn = conn
	c.raw = hc
	return nil
}

// ReceiveOnce blocks until exactly one message arrives, the receive timeout
// passes, or ctx is done. A BodyFrameData message replaces the held frame;
// any other message type is discarded. A message split over several frames
// is rejected with ErrProtocol and never replaces the held frame.
//
// Once ctx is done its error is returned, whatever the read reported.
func (c *Client) ReceiveOnce(ctx context.Context) error {
	if c.conn == nil {
		return ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var deadline time.Time
	if c.endpoint.Timeout != nil {
		deadline = time.Now().Add(*c.endpoint.Timeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	conn := c.conn
	if err := conn.SetReadDeadline(deadline); err != nil {
		return fmt.Errorf("%w: set read deadline: %w", ErrConnection, err)
	}
	stop := context.AfterFunc(ctx, func() {
		conn.SetReadDeadline(time.Now())
	})
	defer stop()

	data, err := c.readMessage()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		// The read deadline can fire before ctx observes its own.
		if d, ok := ctx.Deadline(); ok && !time.Now().Before(d) {
			return context.DeadlineExceeded
		}
		return err
	}

	if slog.Default().Enabled(ctx, slog.LevelDebug) {
		msgStr := string(data)
		if len(msgStr) > 1000 {
			msgStr = msgStr[:1000] + "..."
		}
		slog.Debug("kinectmotion: received message", "len", len(data), "content", msgStr)
	}

	return c.handleMessage(data)
}

// readMessage reads one message delivered in a single frame. A receive
// timeout is ErrTimeout even when part of the message has arrived; any
// other failure after the message started is an incomplete delivery.
func (c *Client) readMessage() ([]byte, error) {
	_, r, err := c.conn.NextReader()
	if err != nil {
		return nil, classifyReadError(err, false)
	}
	if c.raw != nil && !c.raw.nextMessageFinal() {
		return nil, fmt.Errorf("%w: fragmented message", ErrProtocol)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, classifyReadError(err, true)
	}
	return data, nil
}

func classifyReadError(err error, started bool) error {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	if started {
		return fmt.Errorf("%w: incomplete message: %w", ErrProtocol, err)
	}
	if errors.Is(err, websocket.ErrReadLimit) {
		return fmt.Errorf("%w: %w", ErrProtocol, err)
	}
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return fmt.Errorf("%w: connection closed (%d): %w", ErrConnection, ce.Code, err)
	}
	return fmt.Errorf("%w: read: %w", ErrConnection, err)
}

func (c *Client) handleMessage(data []byte) error {
	if !utf8.Valid(data) {
		return fmt.Errorf("%w: message is not valid UTF-8", ErrProtocol)
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("%w: decode message: %w", ErrProtocol, err)
	}
	if msg.Type == "" {
		return fmt.Errorf("%w: message has no type", ErrProtocol)
	}
	if c.hook != nil {
		c.hook(msg)
	}

	if msg.Type != MessageBodyFrame {
		return nil
	}

	frame := &BodyFrame{}
	if len(msg.Content) > 0 && string(msg.Content) != "null" {
		if err := json.Unmarshal(msg.Content, frame); err != nil {
			return fmt.Errorf("%w: decode %s: %w", ErrProtocol, MessageBodyFrame, err)
		}
	}
	c.frame = frame
	return nil
}

// Bodies returns the bodies of the latest frame, or nil before the first
// frame has been received.
func (c *Client) Bodies() []Body {
	if c.frame == nil {
		return nil
	}
	return c.frame.Bodies
}

// Frame returns the latest frame, or nil before the first frame.
func (c *Client) Frame() *BodyFrame {
	return c.frame
}

// Close closes the connection. Closing a closed client is a no-op.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	conn := c.conn
	c.conn = nil
	c.raw = nil

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	if err := conn.Close(); err != nil {
		return fmt.Errorf("kinectmotion: close: %w", err)
	}
	return nil
}
