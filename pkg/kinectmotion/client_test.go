package kinectmotion

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

const twoBodiesFrame = `{"type":"BodyFrameData","content":{"bodies":[` +
	`{"isTracked":false},` +
	`{"isTracked":true,"joints":{"head":{"position":{"x":0.1,"y":0.5,"z":2.0}}},` +
	`"jointOrientations":{"head":{"orientation":{"w":1,"x":0,"y":0,"z":0}}}}]}}`

const oneBodyFrame = `{"type":"BodyFrameData","content":{"bodies":[{"isTracked":false}]}}`

// testServer is a sensor stand-in that answers with the subprotocol name the
// real server uses, which the client must tolerate.
type testServer struct {
	url      string
	upgrades atomic.Int32
	ready    chan []byte
}

// startServer serves each connection with handle after reading the client
// ready message.
func startServer(t *testing.T, handle func(conn *websocket.Conn)) *testServer {
	t.Helper()
	ts := &testServer{ready: make(chan []byte, 4)}
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := http.Header{}
		header.Set("Sec-WebSocket-Protocol", "KinectV2MotionV1")
		conn, err := upgrader.Upgrade(w, r, header)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		ts.upgrades.Add(1)

		_, ready, err := conn.ReadMessage()
		if err != nil {
			return
		}
		ts.ready <- ready
		if handle != nil {
			handle(conn)
		}
		// Hold the connection until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	ts.url = "ws" + strings.TrimPrefix(srv.URL, "http")
	return ts
}

func sendText(msgs ...string) func(*websocket.Conn) {
	return func(conn *websocket.Conn) {
		for _, m := range msgs {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(m)); err != nil {
				return
			}
		}
	}
}

func durationPtr(d time.Duration) *time.Duration {
	return &d
}

func connectClient(t *testing.T, url string, timeout time.Duration, opts ...Option) *Client {
	t.Helper()
	c := NewClient(Endpoint{URL: url, Timeout: durationPtr(timeout)}, opts...)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.EnsureConnected(ctx); err != nil {
		t.Fatalf("EnsureConnected() error: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestEndpoint_Validate(t *testing.T) {
	tests := []struct {
		name     string
		endpoint Endpoint
		wantErr  bool
	}{
		{name: "default", endpoint: Endpoint{URL: DefaultURL}},
		{name: "wss with timeout", endpoint: Endpoint{URL: "wss://kinect.local:8521", Timeout: durationPtr(time.Second)}},
		{name: "http scheme", endpoint: Endpoint{URL: "http://localhost:8521"}, wantErr: true},
		{name: "zero timeout", endpoint: Endpoint{URL: DefaultURL, Timeout: durationPtr(0)}, wantErr: true},
		{name: "negative timeout", endpoint: Endpoint{URL: DefaultURL, Timeout: durationPtr(-time.Second)}, wantErr: true},
		{name: "garbage", endpoint: Endpoint{URL: "://"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.endpoint.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewClient_DefaultURL(t *testing.T) {
	c := NewClient(Endpoint{})
	if c.Endpoint().URL != DefaultURL {
		t.Errorf("URL = %q, want %q", c.Endpoint().URL, DefaultURL)
	}
	if c.IsOpen() {
		t.Error("new client must not be open")
	}
	if c.Bodies() != nil {
		t.Error("Bodies() before the first frame should be nil")
	}
}

func TestClient_SendsClientReady(t *testing.T) {
	ts := startServer(t, nil)
	connectClient(t, ts.url, time.Second)

	select {
	case ready := <-ts.ready:
		var got ClientReady
		if err := json.Unmarshal(ready, &got); err != nil {
			t.Fatalf("client ready is not JSON: %v", err)
		}
		if len(got.Types) != 1 || got.Types[0] != MessageBodyFrame {
			t.Errorf("client ready types = %v, want [%s]", got.Types, MessageBodyFrame)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server never received the client ready message")
	}
}

func TestClient_EnsureConnectedIsIdempotent(t *testing.T) {
	ts := startServer(t, nil)
	c := connectClient(t, ts.url, time.Second)

	if err := c.EnsureConnected(context.Background()); err != nil {
		t.Fatalf("second EnsureConnected() error: %v", err)
	}
	<-ts.ready
	if n := ts.upgrades.Load(); n != 1 {
		t.Errorf("handshakes = %d, want 1", n)
	}
	if !c.IsOpen() {
		t.Error("client should be open")
	}
}

func TestClient_ReceiveOnce_ReplacesFrame(t *testing.T) {
	ts := startServer(t, sendText(
		twoBodiesFrame,
		`{"type":"BodyIndexFrameData","content":{"pixels":"AAAA"}}`,
		`{"type":"SomethingElse","content":null}`,
		oneBodyFrame,
	))
	c := connectClient(t, ts.url, 2*time.Second)
	ctx := context.Background()

	if err := c.ReceiveOnce(ctx); err != nil {
		t.Fatalf("ReceiveOnce() error: %v", err)
	}
	if got := len(c.Bodies()); got != 2 {
		t.Fatalf("bodies = %d, want 2", got)
	}
	body, err := SelectTracked(c.Bodies())
	if err != nil || body == nil {
		t.Fatalf("SelectTracked() = %v, %v", body, err)
	}
	if pos, ok := body.Position(JointHead); !ok || pos != (Position{X: 0.1, Y: 0.5, Z: 2.0}) {
		t.Errorf("head position = %v, %v", pos, ok)
	}
	if rot, ok := body.Orientation(JointHead); !ok || rot != IdentityOrientation {
		t.Errorf("head orientation = %v, %v", rot, ok)
	}

	// The index frame and the unknown type are discarded.
	for i := 0; i < 2; i++ {
		if err := c.ReceiveOnce(ctx); err != nil {
			t.Fatalf("ReceiveOnce() error: %v", err)
		}
		if got := len(c.Bodies()); got != 2 {
			t.Fatalf("bodies after discarded message = %d, want 2", got)
		}
	}

	if err := c.ReceiveOnce(ctx); err != nil {
		t.Fatalf("ReceiveOnce() error: %v", err)
	}
	if got := len(c.Bodies()); got != 1 {
		t.Errorf("bodies after replacement = %d, want 1", got)
	}
}

func TestClient_ReceiveOnce_NullContent(t *testing.T) {
	ts := startServer(t, sendText(`{"type":"BodyFrameData","content":null}`))
	c := connectClient(t, ts.url, time.Second)

	if err := c.ReceiveOnce(context.Background()); err != nil {
		t.Fatalf("ReceiveOnce() error: %v", err)
	}
	if c.Frame() == nil {
		t.Fatal("frame should be set")
	}
	if len(c.Bodies()) != 0 {
		t.Errorf("bodies = %d, want 0", len(c.Bodies()))
	}
}

func TestClient_ReceiveOnce_Timeout(t *testing.T) {
	ts := startServer(t, nil)
	c := connectClient(t, ts.url, 100*time.Millisecond)

	start := time.Now()
	err := c.ReceiveOnce(context.Background())
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("ReceiveOnce() error = %v, want ErrTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("timeout took %v", elapsed)
	}
}

func TestClient_ReceiveOnce_ContextCanceled(t *testing.T) {
	ts := startServer(t, nil)
	c := NewClient(Endpoint{URL: ts.url})
	if err := c.EnsureConnected(context.Background()); err != nil {
		t.Fatalf("EnsureConnected() error: %v", err)
	}
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)
	if err := c.ReceiveOnce(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("ReceiveOnce() error = %v, want context.Canceled", err)
	}
}

func TestClient_ReceiveOnce_ContextDeadline(t *testing.T) {
	ts := startServer(t, nil)
	c := connectClient(t, ts.url, 5*time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := c.ReceiveOnce(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("ReceiveOnce() error = %v, want context.DeadlineExceeded", err)
	}
}

func TestClient_ReceiveOnce_Malformed(t *testing.T) {
	tests := []struct {
		name string
		send func(*websocket.Conn)
	}{
		{name: "not json", send: sendText("not json")},
		{name: "missing type", send: sendText(`{"content":{"bodies":[]}}`)},
		{name: "bad content", send: sendText(`{"type":"BodyFrameData","content":{"bodies":"nope"}}`)},
		{name: "invalid utf8", send: func(conn *websocket.Conn) {
			conn.WriteMessage(websocket.BinaryMessage, []byte{'"', 0xff, 0xfe, '"'})
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := startServer(t, tt.send)
			c := connectClient(t, ts.url, time.Second)
			err := c.ReceiveOnce(context.Background())
			if !errors.Is(err, ErrProtocol) {
				t.Errorf("ReceiveOnce() error = %v, want ErrProtocol", err)
			}
			if c.Frame() != nil {
				t.Error("malformed message must not set a frame")
			}
		})
	}
}

func TestClient_ReceiveOnce_ReadLimit(t *testing.T) {
	ts := startServer(t, sendText(twoBodiesFrame))
	c := connectClient(t, ts.url, time.Second, WithReadLimit(16))

	if err := c.ReceiveOnce(context.Background()); !errors.Is(err, ErrProtocol) {
		t.Errorf("ReceiveOnce() error = %v, want ErrProtocol", err)
	}
}

func TestClient_ReceiveOnce_ServerClosed(t *testing.T) {
	ts := startServer(t, func(conn *websocket.Conn) {
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "bye")
		conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		conn.Close()
	})
	c := connectClient(t, ts.url, time.Second)

	if err := c.ReceiveOnce(context.Background()); !errors.Is(err, ErrConnection) {
		t.Errorf("ReceiveOnce() error = %v, want ErrConnection", err)
	}
}

func TestClient_MessageHook(t *testing.T) {
	ts := startServer(t, sendText(`{"type":"BodyIndexFrameData","content":{}}`, oneBodyFrame))
	var types []string
	c := connectClient(t, ts.url, time.Second, WithMessageHook(func(m Message) {
		types = append(types, m.Type)
	}))

	for i := 0; i < 2; i++ {
		if err := c.ReceiveOnce(context.Background()); err != nil {
			t.Fatalf("ReceiveOnce() error: %v", err)
		}
	}
	if len(types) != 2 || types[0] != MessageBodyIndexFrame || types[1] != MessageBodyFrame {
		t.Errorf("hook saw %v", types)
	}
}

func TestClient_ReceiveBeforeConnect(t *testing.T) {
	c := NewClient(Endpoint{})
	err := c.ReceiveOnce(context.Background())
	if !errors.Is(err, ErrNotConnected) || !errors.Is(err, ErrConnection) {
		t.Errorf("ReceiveOnce() error = %v, want ErrNotConnected", err)
	}
}

func TestClient_DialRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	_, err = Dial(context.Background(), Endpoint{URL: "ws://" + addr})
	if !errors.Is(err, ErrConnection) {
		t.Errorf("Dial() error = %v, want ErrConnection", err)
	}
}

func TestClient_DialInvalidEndpoint(t *testing.T) {
	_, err := Dial(context.Background(), Endpoint{URL: "http://localhost:8521"})
	if !errors.Is(err, ErrConnection) {
		t.Errorf("Dial() error = %v, want ErrConnection", err)
	}
}

func TestClient_CloseIsIdempotent(t *testing.T) {
	ts := startServer(t, nil)
	c := connectClient(t, ts.url, time.Second)

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if c.IsOpen() {
		t.Error("client should be closed")
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close() error: %v", err)
	}
	if err := c.ReceiveOnce(context.Background()); !errors.Is(err, ErrConnection) {
		t.Errorf("ReceiveOnce() after Close = %v, want ErrConnection", err)
	}
}

// rawServer accepts one connection and answers the opening handshake with
// the response built by respond. After the handshake it reads the client
// ready frame and runs after.
func rawServer(t *testing.T, respond func(key string) string, after func(conn net.Conn)) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		br := bufio.NewReader(conn)
		req, err := http.ReadRequest(br)
		if err != nil {
			return
		}
		if _, err := io.WriteString(conn, respond(req.Header.Get("Sec-WebSocket-Key"))); err != nil {
			return
		}
		if _, err := readClientFrame(br); err != nil {
			return
		}
		if after != nil {
			after(conn)
		}
	}()
	return "ws://" + ln.Addr().String()
}

// readClientFrame reads one short masked frame and returns its payload.
func readClientFrame(r io.Reader) ([]byte, error) {
	var hdr [2]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	n := int(hdr[1] & 0x7f)
	if n >= 126 {
		return nil, errors.New("frame too long for test reader")
	}
	var mask [4]byte
	if _, err := io.ReadFull(r, mask[:]); err != nil {
		return nil, err
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	for i := range payload {
		payload[i] ^= mask[i%4]
	}
	return payload, nil
}

// writeFrame writes one unmasked server frame.
func writeFrame(w io.Writer, opcode byte, fin bool, payload []byte) error {
	b0 := opcode
	if fin {
		b0 |= 0x80
	}
	hdr := []byte{b0}
	switch n := len(payload); {
	case n < 126:
		hdr = append(hdr, byte(n))
	case n <= 0xffff:
		hdr = append(hdr, 126, byte(n>>8), byte(n))
	default:
		hdr = append(hdr, 127, 0, 0, 0, 0, byte(n>>24), byte(n>>16), byte(n>>8), byte(n))
	}
	if _, err := w.Write(hdr); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

func TestClient_HandshakeToleratesServerHeaders(t *testing.T) {
	url := rawServer(t, func(key string) string {
		return "HTTP/1.1 101 Switching Protocols\r\n" +
			"Upgrade: websocket\r\n" +
			"  Connection: Upgrade\r\n" +
			"Sec-WebSocket-Accept: " + computeAcceptKey(key) + "\r\n" +
			"SEC-WEBSOCKET-PROTOCOL: KinectV2MotionV1\r\n" +
			"\tSec-WebSocket-Extensions: permessage-deflate\r\n" +
			"Server: Microsoft-HTTPAPI/2.0\r\n" +
			"\r\n"
	}, func(conn net.Conn) {
		writeFrame(conn, websocket.TextMessage, true, []byte(oneBodyFrame))
		io.Copy(io.Discard, conn)
	})

	c := connectClient(t, url, 2*time.Second)
	if err := c.ReceiveOnce(context.Background()); err != nil {
		t.Fatalf("ReceiveOnce() error: %v", err)
	}
	if len(c.Bodies()) != 1 {
		t.Errorf("bodies = %d, want 1", len(c.Bodies()))
	}
}

func TestClient_HandshakeBadAccept(t *testing.T) {
	url := rawServer(t, func(string) string {
		return "HTTP/1.1 101 Switching Protocols\r\n" +
			"Upgrade: websocket\r\n" +
			"Connection: Upgrade\r\n" +
			"Sec-WebSocket-Accept: dGhpcyBpcyB3cm9uZw==\r\n" +
			"\r\n"
	}, nil)

	c := NewClient(Endpoint{URL: url})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := c.EnsureConnected(ctx)
	if !errors.Is(err, ErrProtocol) {
		t.Fatalf("EnsureConnected() error = %v, want ErrProtocol", err)
	}
	if c.IsOpen() {
		t.Error("client must stay closed after a failed handshake")
	}
}

func TestClient_HandshakeRejectedStatus(t *testing.T) {
	url := rawServer(t, func(string) string {
		return "HTTP/1.1 403 Forbidden\r\nContent-Length: 0\r\n\r\n"
	}, nil)

	c := NewClient(Endpoint{URL: url})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.EnsureConnected(ctx); !errors.Is(err, ErrProtocol) {
		t.Errorf("EnsureConnected() error = %v, want ErrProtocol", err)
	}
}

func TestClient_ReceiveOnce_IncompleteMessage(t *testing.T) {
	url := rawServer(t, func(key string) string {
		return "HTTP/1.1 101 Switching Protocols\r\n" +
			"Upgrade: websocket\r\n" +
			"Connection: Upgrade\r\n" +
			"Sec-WebSocket-Accept: " + computeAcceptKey(key) + "\r\n" +
			"\r\n"
	}, func(conn net.Conn) {
		// First fragment of a text message, then the peer goes away.
		writeFrame(conn, websocket.TextMessage, false, []byte(`{"type":"BodyFr`))
	})

	c := connectClient(t, url, 2*time.Second)
	if err := c.ReceiveOnce(context.Background()); !errors.Is(err, ErrProtocol) {
		t.Errorf("ReceiveOnce() error = %v, want ErrProtocol", err)
	}
}

func TestClient_ReceiveOnce_Fragmented(t *testing.T) {
	url := rawServer(t, func(key string) string {
		return "HTTP/1.1 101 Switching Protocols\r\n" +
			"Upgrade: websocket\r\n" +
			"Connection: Upgrade\r\n" +
			"Sec-WebSocket-Accept: " + computeAcceptKey(key) + "\r\n" +
			"\r\n"
	}, func(conn net.Conn) {
		writeFrame(conn, websocket.TextMessage, true, []byte(oneBodyFrame))
		half := len(twoBodiesFrame) / 2
		writeFrame(conn, websocket.TextMessage, false, []byte(twoBodiesFrame[:half]))
		writeFrame(conn, 0x0, true, []byte(twoBodiesFrame[half:]))
		writeFrame(conn, websocket.TextMessage, true, []byte(twoBodiesFrame))
		io.Copy(io.Discard, conn)
	})

	c := connectClient(t, url, 2*time.Second)
	if err := c.ReceiveOnce(context.Background()); err != nil {
		t.Fatalf("first ReceiveOnce() error: %v", err)
	}
	if len(c.Bodies()) != 1 {
		t.Fatalf("bodies = %d, want 1", len(c.Bodies()))
	}

	if err := c.ReceiveOnce(context.Background()); !errors.Is(err, ErrProtocol) {
		t.Fatalf("fragmented ReceiveOnce() error = %v, want ErrProtocol", err)
	}
	if len(c.Bodies()) != 1 {
		t.Errorf("bodies after fragmented message = %d, want the previous frame's 1", len(c.Bodies()))
	}

	if err := c.ReceiveOnce(context.Background()); err != nil {
		t.Fatalf("ReceiveOnce() after fragmented message error: %v", err)
	}
	if len(c.Bodies()) != 2 {
		t.Errorf("bodies = %d, want 2", len(c.Bodies()))
	}
}

func TestClient_ReceiveOnce_StalledMessage(t *testing.T) {
	url := rawServer(t, func(key string) string {
		return "HTTP/1.1 101 Switching Protocols\r\n" +
			"Upgrade: websocket\r\n" +
			"Connection: Upgrade\r\n" +
			"Sec-WebSocket-Accept: " + computeAcceptKey(key) + "\r\n" +
			"\r\n"
	}, func(conn net.Conn) {
		// A complete frame header announcing more payload than is sent.
		payload := []byte(oneBodyFrame)
		conn.Write([]byte{0x81, byte(len(payload))})
		conn.Write(payload[:10])
		io.Copy(io.Discard, conn)
	})

	c := connectClient(t, url, 200*time.Millisecond)
	err := c.ReceiveOnce(context.Background())
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("ReceiveOnce() error = %v, want ErrTimeout", err)
	}
	if c.Frame() != nil {
		t.Errorf("Frame() = %+v, want nil", c.Frame())
	}
}
