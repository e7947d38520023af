package hl7

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type processorFunc func(ctx context.Context, msg *Message) AckResult

func (f processorFunc) Process(ctx context.Context, msg *Message) AckResult { return f(ctx, msg) }

func acceptAll() Processor {
	return processorFunc(func(_ context.Context, msg *Message) AckResult {
		return Accepted(msg.ControlID())
	})
}

type recordingObserver struct {
	mu        sync.Mutex
	exchanges []Exchange
}

func (r *recordingObserver) ObserveExchange(_ context.Context, ex Exchange) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exchanges = append(r.exchanges, ex)
}

func (r *recordingObserver) all() []Exchange {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Exchange(nil), r.exchanges...)
}

func startServer(t *testing.T, p Processor, idle time.Duration, observers ...ExchangeObserver) *MLLPServer {
	t.Helper()
	srv := NewMLLPServer(ServerConfig{
		Port:        0,
		IdleTimeout: idle,
		Identity:    Identity{Application: "LISTENER", Facility: "TEST"},
	}, p, nil, observers...)
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(func() { srv.Stop() })
	return srv
}

func loopbackAddr(t *testing.T, srv *MLLPServer) string {
	t.Helper()
	_, port, err := net.SplitHostPort(srv.Addr())
	require.NoError(t, err)
	return net.JoinHostPort("127.0.0.1", port)
}

func dial(t *testing.T, srv *MLLPServer) net.Conn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", loopbackAddr(t, srv), 2*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func oru(controlID string) []byte {
	return []byte("MSH|^~\\&|RIS|HOSP|PORTAL|CLINIC|20240101120000||ORU^R01|" + controlID + "|P|2.5\r" +
		"PID|1||P1\rOBR|1||ACC-1|^CT||||||||||||||||||||||F")
}

func TestServerAcknowledgesMessage(t *testing.T) {
	obs := &recordingObserver{}
	srv := startServer(t, acceptAll(), time.Minute, obs)
	session := NewSession(dial(t, srv), 2*time.Second)

	result, err := session.Send(oru("12345"))
	require.NoError(t, err)
	assert.True(t, result.Accepted)
	assert.Equal(t, "12345", result.ControlID)

	require.Eventually(t, func() bool { return len(obs.all()) == 1 }, time.Second, 10*time.Millisecond)
	ex := obs.all()[0]
	assert.Equal(t, "12345", ex.ControlID)
	assert.Equal(t, "ORU^R01", ex.MessageType)
	assert.Equal(t, AckAccepted, ex.AckCode)
	assert.Equal(t, oru("12345"), ex.Raw)
}

func TestServerAnswersInOrderOnOneConnection(t *testing.T) {
	srv := startServer(t, acceptAll(), time.Minute)
	session := NewSession(dial(t, srv), 2*time.Second)

	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("CTL%d", i)
		result, err := session.Send(oru(id))
		require.NoError(t, err)
		assert.Equal(t, id, result.ControlID)
	}
}

func TestServerKeepsControlIDFromMessage(t *testing.T) {
	p := processorFunc(func(_ context.Context, _ *Message) AckResult {
		return Rejected("something-else", "nope")
	})
	srv := startServer(t, p, time.Minute)

	result, err := NewSession(dial(t, srv), 2*time.Second).Send(oru("ORIG"))
	require.NoError(t, err)
	assert.False(t, result.Accepted)
	assert.Equal(t, "ORIG", result.ControlID)
	assert.Equal(t, "nope", result.Reason)
}

func TestServerRejectsMissingHeader(t *testing.T) {
	srv := startServer(t, acceptAll(), time.Minute)
	session := NewSession(dial(t, srv), 2*time.Second)

	result, err := session.Send([]byte("PID|1||P1"))
	require.NoError(t, err)
	assert.False(t, result.Accepted)
	assert.Contains(t, result.Reason, "MissingHeader")

	// The connection stays usable.
	result, err = session.Send(oru("AFTER"))
	require.NoError(t, err)
	assert.True(t, result.Accepted)
}

func TestServerRecoversFromFrameError(t *testing.T) {
	srv := startServer(t, acceptAll(), time.Minute)
	conn := dial(t, srv)
	framer := NewFramer(conn, 0)
	conn.SetDeadline(time.Now().Add(2 * time.Second))

	_, err := conn.Write([]byte{StartBlock, 'x', EndBlock, 'y'})
	require.NoError(t, err)
	ack, err := framer.Next()
	require.NoError(t, err)
	result, err := ParseACK(ack)
	require.NoError(t, err)
	assert.False(t, result.Accepted)
	assert.Contains(t, result.Reason, "FrameError")

	_, err = conn.Write(Wrap(oru("NEXT")))
	require.NoError(t, err)
	ack, err = framer.Next()
	require.NoError(t, err)
	result, err = ParseACK(ack)
	require.NoError(t, err)
	assert.True(t, result.Accepted)
	assert.Equal(t, "NEXT", result.ControlID)
}

func TestServerTurnsPanicIntoNAK(t *testing.T) {
	calls := 0
	p := processorFunc(func(_ context.Context, msg *Message) AckResult {
		calls++
		if calls == 1 {
			panic("boom")
		}
		return Accepted(msg.ControlID())
	})
	srv := startServer(t, p, time.Minute)
	session := NewSession(dial(t, srv), 2*time.Second)

	result, err := session.Send(oru("P1"))
	require.NoError(t, err)
	assert.False(t, result.Accepted)
	assert.Equal(t, "P1", result.ControlID)
	assert.Contains(t, result.Reason, "internal error")

	result, err = session.Send(oru("P2"))
	require.NoError(t, err)
	assert.True(t, result.Accepted)
}

func TestServerClosesIdleConnection(t *testing.T) {
	srv := startServer(t, acceptAll(), 100*time.Millisecond)
	conn := dial(t, srv)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err := conn.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.EOF)
}

func TestServerHandlesConcurrentConnections(t *testing.T) {
	srv := startServer(t, acceptAll(), time.Minute)

	const clients = 10
	addr := loopbackAddr(t, srv)
	var wg sync.WaitGroup
	errs := make(chan error, clients)
	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			client := NewMLLPClient(addr, 2*time.Second)
			id := fmt.Sprintf("C%d", i)
			result, err := client.SendMessage(context.Background(), oru(id))
			if err != nil {
				errs <- err
				return
			}
			if result.ControlID != id || !result.Accepted {
				errs <- fmt.Errorf("unexpected ack %+v for %s", result, id)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestServerStopClosesConnections(t *testing.T) {
	srv := NewMLLPServer(ServerConfig{IdleTimeout: time.Minute}, acceptAll(), nil)
	require.NoError(t, srv.Start(context.Background()))
	conn := dial(t, srv)

	// Make sure the connection is being served before stopping.
	_, err := NewSession(conn, 2*time.Second).Send(oru("S1"))
	require.NoError(t, err)

	require.NoError(t, srv.Stop())

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err = conn.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.EOF)
}
