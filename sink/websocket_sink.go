// Package sink holds the outbound side of client connections.
package sink

import (
	"chat-relay/domain/event"
	"chat-relay/errors"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	DefaultBufferSize   = 64
	DefaultWriteTimeout = 10 * time.Second
	DefaultPingInterval = 30 * time.Second
)

// FrameWriter is the write half of a websocket connection.
type FrameWriter interface {
	WriteJSON(v any) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

type Options struct {
	BufferSize   int
	WriteTimeout time.Duration
	PingInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.BufferSize <= 0 {
		o.BufferSize = DefaultBufferSize
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = DefaultWriteTimeout
	}
	if o.PingInterval <= 0 {
		o.PingInterval = DefaultPingInterval
	}
	return o
}

// WebSocketSink queues outbound frames of one connection.
// A single writer goroutine owns the socket: gorilla connections support one concurrent writer.
// Consume never waits on the peer, a full queue fails with ErrSlowConsumer.
type WebSocketSink struct {
	conn    FrameWriter
	toFrame func(e event.Event) any
	opts    Options
	log     *slog.Logger

	mu          sync.Mutex
	closed      bool
	closeCode   int
	closeReason string
	queue       chan any
	done        chan struct{}
	finished    chan struct{}
}

func NewWebSocketSink(conn FrameWriter, toFrame func(e event.Event) any, opts Options, log *slog.Logger) *WebSocketSink {
	opts = opts.withDefaults()
	return &WebSocketSink{
		conn:      conn,
		toFrame:   toFrame,
		opts:      opts,
		log:       log,
		closeCode: websocket.CloseNormalClosure,
		queue:     make(chan any, opts.BufferSize),
		done:      make(chan struct{}),
		finished:  make(chan struct{}),
	}
}

func (s *WebSocketSink) Consume(ctx context.Context, e event.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.Send(s.toFrame(e))
}

// Send queues a frame that isn't an event, an ack or an error.
func (s *WebSocketSink) Send(frame any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.ErrSinkClosed
	}
	select {
	case s.queue <- frame:
		return nil
	default:
		return errors.ErrSlowConsumer
	}
}

func (s *WebSocketSink) Close() error {
	return s.CloseWith(websocket.CloseNormalClosure, "")
}

// CloseWith stops the writer, the peer receives a close frame with code and reason.
// Frames still queued are flushed first. Only the first call counts.
func (s *WebSocketSink) CloseWith(code int, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.closeCode = code
	s.closeReason = reason
	close(s.done)
	return nil
}

// Done is closed once the writer has released the socket.
func (s *WebSocketSink) Done() <-chan struct{} {
	return s.finished
}

// Run is the writer loop, it returns when the sink is closed or a write fails.
func (s *WebSocketSink) Run() {
	ticker := time.NewTicker(s.opts.PingInterval)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
		close(s.finished)
	}()

	for {
		select {
		case frame := <-s.queue:
			if err := s.write(frame); err != nil {
				s.log.Debug("Unable to write frame", "error", err)
				_ = s.Close()
				return
			}
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, s.deadline()); err != nil {
				s.log.Debug("Unable to ping peer", "error", err)
				_ = s.Close()
				return
			}
		case <-s.done:
			s.flush()
			return
		}
	}
}

func (s *WebSocketSink) write(frame any) error {
	if err := s.conn.SetWriteDeadline(s.deadline()); err != nil {
		return err
	}
	return s.conn.WriteJSON(frame)
}

func (s *WebSocketSink) flush() {
	for {
		select {
		case frame := <-s.queue:
			if err := s.write(frame); err != nil {
				return
			}
		default:
			s.mu.Lock()
			message := websocket.FormatCloseMessage(s.closeCode, s.closeReason)
			s.mu.Unlock()
			_ = s.conn.WriteControl(websocket.CloseMessage, message, s.deadline())
			return
		}
	}
}

func (s *WebSocketSink) deadline() time.Time {
	return time.Now().Add(s.opts.WriteTimeout)
}
