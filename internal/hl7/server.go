package hl7

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/minasoft/ris-listener/internal/metrics"
)

// Processor handles one parsed message and decides its acknowledgement.
type Processor interface {
	Process(ctx context.Context, msg *Message) AckResult
}

// Exchange describes one request/acknowledgement round trip on a connection.
type Exchange struct {
	ID          string
	ReceivedAt  time.Time
	RemoteAddr  string
	ControlID   string
	MessageType string
	AckCode     string
	Reason      string
	Raw         []byte
	Duration    time.Duration
}

// ExchangeObserver is notified after the acknowledgement has been written.
// Observers must not block for long; the connection waits for them.
type ExchangeObserver interface {
	ObserveExchange(ctx context.Context, ex Exchange)
}

// ServerConfig holds the connection manager settings.
type ServerConfig struct {
	Port             int
	IdleTimeout      time.Duration
	WriteTimeout     time.Duration
	MaxMessageSize   int
	SegmentSeparator string
	Identity         Identity
}

type connState int

const (
	stateConnected connState = iota
	stateFraming
	stateProcessing
	stateAcknowledging
	stateClosed
)

func (s connState) String() string {
	switch s {
	case stateConnected:
		return "connected"
	case stateFraming:
		return "framing"
	case stateProcessing:
		return "processing"
	case stateAcknowledging:
		return "acknowledging"
	case stateClosed:
		return "closed"
	}
	return "unknown"
}

var errServerClosed = errors.New("sunucu kapatılıyor")

type MLLPServer struct {
	cfg       ServerConfig
	parser    *Parser
	processor Processor
	observers []ExchangeObserver
	metrics   *metrics.Metrics

	listener net.Listener
	mu       sync.Mutex
	conns    map[net.Conn]struct{}
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewMLLPServer(cfg ServerConfig, processor Processor, m *metrics.Metrics, observers ...ExchangeObserver) *MLLPServer {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	return &MLLPServer{
		cfg:       cfg,
		parser:    NewParser(cfg.SegmentSeparator),
		processor: processor,
		observers: observers,
		metrics:   m,
		conns:     make(map[net.Conn]struct{}),
		done:      make(chan struct{}),
	}
}

// Start begins listening. The accept loop runs in the background until ctx
// is cancelled or Stop is called.
func (s *MLLPServer) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port dinlenemedi %s: %w", addr, err)
	}
	s.listener = listener

	slog.Info("HL7 MLLP sunucu başlatıldı",
		"port", s.cfg.Port,
		"address", listener.Addr().String(),
		"idleTimeout", s.cfg.IdleTimeout)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.acceptConnections(ctx)
	}()

	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-s.done:
		}
	}()
	return nil
}

// Addr returns the bound listener address.
func (s *MLLPServer) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return fmt.Sprintf(":%d", s.cfg.Port)
}

func (s *MLLPServer) acceptConnections(ctx context.Context) {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			slog.Error("Bağlantı kabul hatası", "error", err)
			continue
		}

		if !s.track(conn, true) {
			conn.Close()
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.track(conn, false)
			defer conn.Close()
			s.handleConnection(ctx, conn)
		}()
	}
}

// track adds or removes conn from the live set. Adding fails once the server
// is stopping.
func (s *MLLPServer) track(conn net.Conn, add bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !add {
		delete(s.conns, conn)
		s.metrics.ConnectionClosed()
		return true
	}
	select {
	case <-s.done:
		return false
	default:
	}
	s.conns[conn] = struct{}{}
	s.metrics.ConnectionOpened()
	return true
}

func (s *MLLPServer) handleConnection(ctx context.Context, conn net.Conn) {
	remoteAddr := conn.RemoteAddr().String()
	log := slog.With("remoteAddr", remoteAddr)
	log.Info("Yeni HL7 bağlantısı")

	state := stateConnected
	transition := func(next connState) {
		log.Debug("Bağlantı durumu", "from", state.String(), "to", next.String())
		state = next
	}

	framer := NewFramer(&idleConn{Conn: conn, idle: s.cfg.IdleTimeout, done: s.done}, s.cfg.MaxMessageSize)
	for {
		if s.stopping() {
			transition(stateClosed)
			return
		}
		transition(stateFraming)
		payload, err := framer.Next()
		if err != nil {
			var frameErr *FrameError
			if errors.As(err, &frameErr) {
				s.metrics.FrameError()
				log.Warn("Bozuk MLLP çerçevesi", "error", frameErr)
				result := Rejected("", "FrameError: "+frameErr.Reason)
				if werr := s.writeACK(conn, nil, result); werr != nil {
					log.Error("ACK yazılamadı", "error", werr)
					transition(stateClosed)
					return
				}
				continue
			}

			transition(stateClosed)
			var netErr net.Error
			switch {
			case errors.Is(err, errServerClosed) || s.stopping():
				log.Info("Bağlantı sunucu kapanışı nedeniyle kapatıldı")
			case errors.Is(err, io.EOF):
				log.Info("Bağlantı kapatıldı")
			case errors.As(err, &netErr) && netErr.Timeout():
				log.Info("Bağlantı boşta kaldığı için kapatıldı", "idleTimeout", s.cfg.IdleTimeout)
			default:
				log.Error("Mesaj okuma hatası", "error", err)
			}
			return
		}

		transition(stateProcessing)
		started := time.Now()
		msg, result := s.processFrame(ctx, payload)

		transition(stateAcknowledging)
		var header *Segment
		if msg != nil {
			h := msg.Header()
			header = &h
		}
		if err := s.writeACK(conn, header, result); err != nil {
			log.Error("ACK yazılamadı", "error", err, "controlID", result.ControlID)
			transition(stateClosed)
			return
		}

		ex := Exchange{
			ID:         uuid.New().String(),
			ReceivedAt: started,
			RemoteAddr: remoteAddr,
			ControlID:  result.ControlID,
			AckCode:    result.Code(),
			Reason:     result.Reason,
			Raw:        payload,
			Duration:   time.Since(started),
		}
		if msg != nil {
			ex.MessageType = msg.Type()
		}
		s.metrics.ObserveAck(ex.AckCode, ex.Duration)
		log.Info("HL7 mesaj işlendi",
			"controlID", ex.ControlID,
			"messageType", ex.MessageType,
			"ackCode", ex.AckCode,
			"reason", ex.Reason,
			"duration", ex.Duration)

		for _, o := range s.observers {
			o.ObserveExchange(context.WithoutCancel(ctx), ex)
		}
	}
}

// processFrame parses and dispatches one payload. It never panics: an
// unexpected fault becomes a negative acknowledgement.
func (s *MLLPServer) processFrame(ctx context.Context, payload []byte) (msg *Message, result AckResult) {
	defer func() {
		if r := recover(); r != nil {
			controlID := ""
			if msg != nil {
				controlID = msg.ControlID()
			}
			slog.Error("Mesaj işlenirken beklenmeyen hata", "panic", r, "controlID", controlID)
			result = Rejected(controlID, "internal error while processing message")
		}
	}()

	msg, err := s.parser.Parse(payload)
	if err != nil {
		slog.Warn("Mesaj parse hatası", "error", err)
		return nil, Rejected("", parseFailureReason(err))
	}

	// In-flight messages finish even if the server is shutting down.
	result = s.processor.Process(context.WithoutCancel(ctx), msg)
	result.ControlID = msg.ControlID()
	return msg, result
}

func (s *MLLPServer) writeACK(conn net.Conn, header *Segment, result AckResult) error {
	ack := BuildACK(header, result, s.cfg.Identity, time.Now())
	if err := conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout)); err != nil {
		return err
	}
	_, err := conn.Write(Wrap(ack))
	return err
}

func (s *MLLPServer) stopping() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Stop closes the listener and interrupts idle reads. Messages already being
// processed are acknowledged before their connection closes.
func (s *MLLPServer) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		close(s.done)
		if s.listener != nil {
			err = s.listener.Close()
		}

		s.mu.Lock()
		for conn := range s.conns {
			conn.SetReadDeadline(time.Now())
		}
		s.mu.Unlock()

		s.wg.Wait()
		slog.Info("HL7 MLLP sunucu durduruldu", "port", s.cfg.Port)
	})
	return err
}

func parseFailureReason(err error) string {
	switch {
	case errors.Is(err, ErrMissingHeader):
		return "MissingHeader: message header (MSH) missing"
	case errors.Is(err, ErrInvalidEncoding):
		return "FrameError: payload is not valid text"
	case errors.Is(err, ErrEmptyMessage):
		return "FrameError: empty message"
	}
	return "FrameError: " + err.Error()
}

// idleConn refreshes the read deadline before every read so a connection is
// closed only after IdleTimeout without any bytes.
type idleConn struct {
	net.Conn
	idle time.Duration
	done <-chan struct{}
}

func (c *idleConn) Read(p []byte) (int, error) {
	if c.idle > 0 {
		if err := c.Conn.SetReadDeadline(time.Now().Add(c.idle)); err != nil {
			return 0, err
		}
	}
	select {
	case <-c.done:
		return 0, errServerClosed
	default:
	}
	return c.Conn.Read(p)
}
