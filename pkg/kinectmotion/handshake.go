package kinectmotion

import (
	"bytes"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"net"
	"strings"

	"github.com/gobwas/ws"
)

// droppedHeaders are the handshake header families removed before
// validation. The sensor server answers with a subprotocol name and
// extension offers the client never asked for; the websocket client
// rejects both, so they are filtered out of the response.
var droppedHeaders = []string{
	"sec-websocket-protocol",
	"sec-websocket-extensions",
}

// maxHandshakeSize bounds the response head read during the handshake.
const maxHandshakeSize = 16 << 10

const acceptGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// NormalizeHandshakeHeaders splits a raw handshake response header block
// into lines, trims leading whitespace and lower-cases each line, and drops
// every line that begins with the subprotocol or extension header names.
// Empty lines are skipped. All other lines are returned in order.
func NormalizeHandshakeHeaders(raw string) []string {
	lines := strings.Split(raw, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		n := normalizeHeaderLine(line)
		if n == "" || isDroppedHeader(n) {
			continue
		}
		out = append(out, n)
	}
	return out
}

func normalizeHeaderLine(line string) string {
	line = strings.TrimRight(line, "\r")
	return strings.ToLower(strings.TrimLeft(line, " \t"))
}

func isDroppedHeader(normalized string) bool {
	for _, name := range droppedHeaders {
		if strings.HasPrefix(normalized, name) {
			return true
		}
	}
	return false
}

// computeAcceptKey returns the Sec-WebSocket-Accept value for a challenge key.
func computeAcceptKey(challengeKey string) string {
	h := sha1.New()
	h.Write([]byte(challengeKey))
	h.Write([]byte(acceptGUID))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// validateHandshake checks a normalized handshake response. Header names and
// values are compared in lower case, which is why the accept key is compared
// against the lower-cased expected value.
func validateHandshake(statusLine string, normalized []string, challengeKey string) error {
	fields := strings.Fields(statusLine)
	if len(fields) < 2 || !strings.HasPrefix(fields[0], "HTTP/") {
		return fmt.Errorf("%w: malformed status line %q", ErrProtocol, statusLine)
	}
	if fields[1] != "101" {
		return fmt.Errorf("%w: unexpected handshake status %s", ErrProtocol, strings.Join(fields[1:], " "))
	}

	headers := make(map[string]string, len(normalized))
	for _, line := range normalized {
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			return fmt.Errorf("%w: malformed header line %q", ErrProtocol, line)
		}
		name = strings.TrimSpace(name)
		value = strings.TrimSpace(value)
		if prev, dup := headers[name]; dup {
			value = prev + ", " + value
		}
		headers[name] = value
	}

	if !containsToken(headers["upgrade"], "websocket") {
		return fmt.Errorf("%w: missing upgrade: websocket", ErrProtocol)
	}
	if !containsToken(headers["connection"], "upgrade") {
		return fmt.Errorf("%w: missing connection: upgrade", ErrProtocol)
	}
	if challengeKey == "" {
		return fmt.Errorf("%w: no challenge key was sent", ErrProtocol)
	}
	if headers["sec-websocket-accept"] != strings.ToLower(computeAcceptKey(challengeKey)) {
		return fmt.Errorf("%w: sec-websocket-accept mismatch", ErrProtocol)
	}
	return nil
}

func containsToken(list, token string) bool {
	for _, t := range strings.Split(list, ",") {
		if strings.TrimSpace(t) == token {
			return true
		}
	}
	return false
}

// handshakeConn wraps the raw network connection during the opening
// handshake. It captures the challenge key from the outgoing request,
// intercepts the response head, validates its normalized form, and hands the
// websocket client a response with the dropped header families removed.
// Once the head has been served it passes the frame stream through and
// notes, for every data message, whether its first frame is final.
type handshakeConn struct {
	net.Conn

	request []byte
	key     string

	head     []byte
	pending  []byte
	headLeft int
	done     bool
	err      error

	frames frameScanner
}

func newHandshakeConn(conn net.Conn) *handshakeConn {
	return &handshakeConn{Conn: conn}
}

// Write captures the challenge key from the opening request.
func (c *handshakeConn) Write(p []byte) (int, error) {
	if !c.done && c.key == "" && len(c.request) < maxHandshakeSize {
		c.request = append(c.request, p...)
		if i := bytes.Index(c.request, []byte("\r\n\r\n")); i >= 0 {
			c.key = challengeKeyFrom(c.request[:i])
			c.request = nil
		}
	}
	return c.Conn.Write(p)
}

func (c *handshakeConn) Read(p []byte) (int, error) {
	if !c.done {
		if c.err != nil {
			return 0, c.err
		}
		if err := c.interceptHead(); err != nil {
			c.err = err
			return 0, err
		}
		c.done = true
	}
	if len(c.pending) > 0 {
		n := copy(p, c.pending)
		c.pending = c.pending[n:]
		c.scanFrames(p[:n])
		return n, nil
	}
	n, err := c.Conn.Read(p)
	c.scanFrames(p[:n])
	return n, err
}

func (c *handshakeConn) scanFrames(p []byte) {
	if c.headLeft > 0 {
		k := min(c.headLeft, len(p))
		c.headLeft -= k
		p = p[k:]
	}
	c.frames.scan(p)
}

// nextMessageFinal reports whether the oldest data message not yet taken
// arrived in a single frame.
func (c *handshakeConn) nextMessageFinal() bool {
	return c.frames.next()
}

// handshakeErr returns the validation error, if the response was rejected.
func (c *handshakeConn) handshakeErr() error {
	return c.err
}

func (c *handshakeConn) interceptHead() error {
	buf := make([]byte, 1024)
	for {
		if i := bytes.Index(c.head, []byte("\r\n\r\n")); i >= 0 {
			return c.rewriteHead(string(c.head[:i]), c.head[i+4:])
		}
		if len(c.head) > maxHandshakeSize {
			return fmt.Errorf("%w: handshake response exceeds %d bytes", ErrProtocol, maxHandshakeSize)
		}
		n, err := c.Conn.Read(buf)
		c.head = append(c.head, buf[:n]...)
		if err != nil && n == 0 {
			return err
		}
	}
}

func (c *handshakeConn) rewriteHead(block string, rest []byte) error {
	statusLine, headerBlock, _ := strings.Cut(block, "\r\n")
	if err := validateHandshake(statusLine, NormalizeHandshakeHeaders(headerBlock), c.key); err != nil {
		return err
	}

	var out bytes.Buffer
	out.WriteString(statusLine)
	out.WriteString("\r\n")
	for _, line := range strings.Split(headerBlock, "\r\n") {
		n := normalizeHeaderLine(line)
		if n == "" || isDroppedHeader(n) {
			continue
		}
		out.WriteString(strings.TrimLeft(line, " \t"))
		out.WriteString("\r\n")
	}
	out.WriteString("\r\n")
	c.headLeft = out.Len()
	out.Write(rest)

	c.pending = out.Bytes()
	c.head = nil
	return nil
}

func challengeKeyFrom(request []byte) string {
	for _, line := range strings.Split(string(request), "\r\n") {
		name, value, ok := strings.Cut(line, ":")
		if ok && strings.EqualFold(strings.TrimSpace(name), "Sec-WebSocket-Key") {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

// frameScanner follows websocket frame boundaries in the byte stream the
// websocket client reads. Payloads are skipped; only headers are parsed.
type frameScanner struct {
	header []byte
	skip   uint64
	starts []bool
}

func (s *frameScanner) scan(p []byte) {
	for len(p) > 0 {
		if s.skip > 0 {
			n := uint64(len(p))
			if n > s.skip {
				n = s.skip
			}
			p = p[n:]
			s.skip -= n
			continue
		}
		s.header = append(s.header, p[0])
		p = p[1:]
		if need := frameHeaderLen(s.header); need == 0 || len(s.header) < need {
			continue
		}
		s.endHeader()
	}
}

// frameHeaderLen returns the full header length once the first two bytes
// are known, or 0 before that.
func frameHeaderLen(h []byte) int {
	if len(h) < 2 {
		return 0
	}
	n := 2
	switch h[1] & 0x7f {
	case 126:
		n += 2
	case 127:
		n += 8
	}
	if h[1]&0x80 != 0 {
		n += 4
	}
	return n
}

func (s *frameScanner) endHeader() {
	h, err := ws.ReadHeader(bytes.NewReader(s.header))
	s.header = s.header[:0]
	if err != nil {
		// The websocket client fails the connection on the same bytes.
		return
	}
	s.skip = uint64(h.Length)
	if h.OpCode == ws.OpText || h.OpCode == ws.OpBinary {
		s.starts = append(s.starts, h.Fin)
	}
}

func (s *frameScanner) next() bool {
	if len(s.starts) == 0 {
		return true
	}
	fin := s.starts[0]
	s.starts = s.starts[1:]
	return fin
}
