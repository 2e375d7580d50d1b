package net

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/survarena/server/internal/net/packet"
)

// Conn is the part of *websocket.Conn a session uses.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetReadLimit(limit int64)
	RemoteAddr() net.Addr
	Close() error
}

// SessionOptions bounds a session's queues and rates.
type SessionOptions struct {
	InSize       int
	OutSize      int
	PktPerSec    int // 0 = unlimited
	MalformedMax int // malformed packets per second before kick, 0 = never
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Session represents a single client connection. Network I/O runs in
// dedicated goroutines; game state is accessed only from the game loop.
type Session struct {
	ID    uint64
	conn  Conn
	codec *Codec
	opts  SessionOptions
	state atomic.Int32 // packet.SessionState stored as int32

	InQueue  chan []byte // game loop reads packets from here
	OutQueue chan []byte // writer goroutine reads from here

	IP   string
	Name string

	outBuf [][]byte // buffered packets, flushed once per tick (game loop only)

	closeCh   chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool

	// Per-second packet rate limiter (readLoop goroutine only, no lock needed)
	pktCount   int
	pktResetAt int64

	// Malformed packet counter (game loop only)
	malformed   int
	malformedAt int64

	log *zap.Logger
}

func NewSession(conn Conn, id uint64, codec *Codec, opts SessionOptions, log *zap.Logger) *Session {
	if opts.InSize <= 0 {
		opts.InSize = 64
	}
	if opts.OutSize <= 0 {
		opts.OutSize = 64
	}
	s := &Session{
		ID:       id,
		conn:     conn,
		codec:    codec,
		opts:     opts,
		InQueue:  make(chan []byte, opts.InSize),
		OutQueue: make(chan []byte, opts.OutSize),
		closeCh:  make(chan struct{}),
		log:      log.With(zap.Uint64("session", id)),
	}
	if addr := conn.RemoteAddr(); addr != nil {
		s.IP = hostOnly(addr.String())
	}
	s.state.Store(int32(packet.StateConnected))
	return s
}

func hostOnly(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

func (s *Session) State() packet.SessionState {
	return packet.SessionState(s.state.Load())
}

func (s *Session) SetState(st packet.SessionState) {
	s.state.Store(int32(st))
}

// Start launches the reader and writer goroutines.
func (s *Session) Start() {
	s.conn.SetReadLimit(maxFrameSize)
	go s.readLoop()
	go s.writeLoop()
}

// Send buffers a packet body for sending. Nothing reaches the socket until
// FlushOutput runs at the end of the tick.
// Called only from the game loop goroutine: no lock needed on outBuf.
func (s *Session) Send(body []byte) {
	if s.closed.Load() {
		return
	}
	s.outBuf = append(s.outBuf, body)
}

// Pending returns the number of buffered, unflushed packets.
func (s *Session) Pending() int { return len(s.outBuf) }

// FlushOutput drains the output buffer to OutQueue for the writeLoop goroutine.
// Non-blocking: if OutQueue is full, the session is disconnected (backpressure).
func (s *Session) FlushOutput() {
	for _, data := range s.outBuf {
		select {
		case s.OutQueue <- data:
		default:
			s.log.Warn("output queue full, disconnecting slow client")
			s.Close()
			clear(s.outBuf)
			s.outBuf = s.outBuf[:0]
			return
		}
	}
	clear(s.outBuf)
	s.outBuf = s.outBuf[:0]
}

// RecordMalformed counts a discarded packet and reports whether the
// per-second threshold has been exceeded.
func (s *Session) RecordMalformed(now time.Time) bool {
	sec := now.Unix()
	if sec != s.malformedAt {
		s.malformed = 0
		s.malformedAt = sec
	}
	s.malformed++
	return s.opts.MalformedMax > 0 && s.malformed > s.opts.MalformedMax
}

// Kick sends a reason packet straight to the writer and closes the session.
func (s *Session) Kick(reason byte) {
	w := packet.NewWriterWithOpcode(packet.S_OPCODE_KICKED)
	w.WriteC(reason)
	s.Send(w.Bytes())
	s.FlushOutput()
	s.SetState(packet.StateDisconnecting)
	go func() {
		// Let the writer drain the kick packet before the socket goes away.
		select {
		case <-time.After(250 * time.Millisecond):
		case <-s.closeCh:
		}
		s.Close()
	}()
}

// Close gracefully shuts down the session.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.SetState(packet.StateDisconnecting)
		close(s.closeCh)
		s.conn.Close()
	})
}

func (s *Session) IsClosed() bool {
	return s.closed.Load()
}

// Done is closed when the session shuts down.
func (s *Session) Done() <-chan struct{} { return s.closeCh }

// readLoop runs in its own goroutine. It reads websocket frames, unwraps
// them, and pushes packet bodies onto InQueue for the game loop to consume.
func (s *Session) readLoop() {
	defer s.Close()

	for {
		if s.opts.ReadTimeout > 0 {
			_ = s.conn.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout))
		}
		mt, frame, err := s.conn.ReadMessage()
		if err != nil {
			if !s.closed.Load() {
				s.log.Debug("read error", zap.Error(err))
			}
			return
		}
		if mt != websocket.BinaryMessage {
			continue
		}

		// Per-second packet rate limiter
		if s.opts.PktPerSec > 0 {
			now := time.Now().Unix()
			if now != s.pktResetAt {
				s.pktCount = 0
				s.pktResetAt = now
			}
			s.pktCount++
			if s.pktCount > s.opts.PktPerSec {
				s.log.Warn("packet rate exceeded, disconnecting", zap.Int("pps", s.pktCount))
				return
			}
		}

		body, err := s.codec.DecodeFrame(frame)
		if err != nil {
			// Counted by the game loop like any other malformed packet.
			body = nil
		}

		select {
		case s.InQueue <- body:
		case <-s.closeCh:
			return
		}
	}
}

// writeLoop runs in its own goroutine. It frames queued packets and writes
// them to the websocket.
func (s *Session) writeLoop() {
	defer s.Close()

	for {
		select {
		case data := <-s.OutQueue:
			if !s.writeOne(data) {
				return
			}
		case <-s.closeCh:
			return
		}
	}
}

func (s *Session) writeOne(body []byte) bool {
	if s.opts.WriteTimeout > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
	}
	if err := s.conn.WriteMessage(websocket.BinaryMessage, s.codec.EncodeFrame(body)); err != nil {
		if !s.closed.Load() {
			s.log.Debug("write error", zap.Error(err))
		}
		return false
	}
	return true
}
