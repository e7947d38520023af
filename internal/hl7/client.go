package hl7

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"
)

// MLLPClient sends messages to an MLLP listener and waits for the
// acknowledgement. It is used by the send command and by integration tests.
type MLLPClient struct {
	addr    string
	timeout time.Duration
}

func NewMLLPClient(addr string, timeout time.Duration) *MLLPClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &MLLPClient{
		addr:    addr,
		timeout: timeout,
	}
}

// SendMessage frames payload, writes it on a fresh connection and returns the
// parsed acknowledgement. A negative acknowledgement is not an error.
func (c *MLLPClient) SendMessage(ctx context.Context, payload []byte) (AckResult, error) {
	dialer := net.Dialer{Timeout: c.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return AckResult{}, fmt.Errorf("bağlantı hatası %s: %w", c.addr, err)
	}
	defer conn.Close()

	slog.Debug("HL7 sunucusuna bağlandı", "address", c.addr)
	return NewSession(conn, c.timeout).Send(payload)
}

// Session sends several messages over one connection, one at a time.
type Session struct {
	conn    net.Conn
	framer  *Framer
	timeout time.Duration
}

func NewSession(conn net.Conn, timeout time.Duration) *Session {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Session{conn: conn, framer: NewFramer(conn, 0), timeout: timeout}
}

// Send writes one framed payload and waits for its acknowledgement.
func (s *Session) Send(payload []byte) (AckResult, error) {
	s.conn.SetWriteDeadline(time.Now().Add(s.timeout))
	if _, err := s.conn.Write(Wrap(Unwrap(payload))); err != nil {
		return AckResult{}, fmt.Errorf("mesaj gönderme hatası: %w", err)
	}

	s.conn.SetReadDeadline(time.Now().Add(s.timeout))
	ack, err := s.framer.Next()
	if err != nil {
		return AckResult{}, fmt.Errorf("ACK okuma hatası: %w", err)
	}

	result, err := ParseACK(ack)
	if err != nil {
		return AckResult{}, fmt.Errorf("ACK parse hatası: %w", err)
	}

	slog.Debug("HL7 ACK alındı",
		"controlID", result.ControlID,
		"ackCode", result.Code(),
		"reason", result.Reason)
	return result, nil
}

// TestConnection tests if the HL7 server is reachable
func (c *MLLPClient) TestConnection() error {
	conn, err := net.DialTimeout("tcp", c.addr, 5*time.Second)
	if err != nil {
		return fmt.Errorf("bağlantı testi başarısız %s: %w", c.addr, err)
	}
	conn.Close()
	return nil
}
