package net

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// AllowList gates which client IPs may connect. While not enforced every IP
// is admitted. Entries expire so a matchmaker grant does not live forever.
// Shared between HTTP goroutines and the game loop.
type AllowList struct {
	mu      sync.Mutex
	enforce bool
	until   map[string]time.Time
	now     func() time.Time
}

func NewAllowList(enforce bool) *AllowList {
	return &AllowList{enforce: enforce, until: make(map[string]time.Time), now: time.Now}
}

// Allow admits ip for ttl. A ttl <= 0 admits it until the process exits.
func (a *AllowList) Allow(ip string, ttl time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if ttl <= 0 {
		a.until[ip] = time.Time{}
		return
	}
	a.until[ip] = a.now().Add(ttl)
}

// Permit reports whether ip may connect now.
func (a *AllowList) Permit(ip string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.enforce {
		return true
	}
	exp, ok := a.until[ip]
	if !ok {
		return false
	}
	if !exp.IsZero() && a.now().After(exp) {
		delete(a.until, ip)
		return false
	}
	return true
}

// Server accepts websocket connections and creates Sessions.
// New/dead sessions are communicated to the game loop via channels.
type Server struct {
	httpSrv  *http.Server
	listener net.Listener
	upgrader websocket.Upgrader
	codec    *Codec
	allow    *AllowList
	opts     SessionOptions

	nextID   atomic.Uint64
	newConns chan *Session
	deadCh   chan uint64
	log      *zap.Logger
}

// NewServer listens on bindAddr and serves the websocket endpoint at path.
func NewServer(bindAddr, path string, codec *Codec, allow *AllowList, opts SessionOptions, log *zap.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", bindAddr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", bindAddr, err)
	}
	s := &Server{
		listener: ln,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		codec:    codec,
		allow:    allow,
		opts:     opts,
		newConns: make(chan *Session, 64),
		deadCh:   make(chan uint64, 64),
		log:      log,
	}
	mux := http.NewServeMux()
	mux.HandleFunc(path, s.handleWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	s.httpSrv = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	return s, nil
}

// Serve runs the HTTP server until Shutdown.
func (s *Server) Serve() error {
	err := s.httpSrv.Serve(s.listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ip := hostOnly(r.RemoteAddr)
	if !s.allow.Permit(ip) {
		s.log.Info("connection refused, ip not allowed", zap.String("ip", ip))
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	id := s.nextID.Add(1)
	sess := NewSession(conn, id, s.codec, s.opts, s.log)
	sess.Start()
	s.log.Info("client connected", zap.Uint64("session", id), zap.String("ip", sess.IP))

	select {
	case s.newConns <- sess:
	default:
		s.log.Warn("connection queue full, refusing client")
		sess.Close()
	}
}

// NewSessions returns the channel of newly connected sessions.
func (s *Server) NewSessions() <-chan *Session {
	return s.newConns
}

// NotifyDead reports a dead session ID.
func (s *Server) NotifyDead(sessionID uint64) {
	select {
	case s.deadCh <- sessionID:
	default:
	}
}

// DeadSessions returns the channel of dead session IDs.
func (s *Server) DeadSessions() <-chan uint64 {
	return s.deadCh
}

// Allow returns the IP allow list.
func (s *Server) Allow() *AllowList { return s.allow }

// Shutdown stops accepting new connections.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

// Addr returns the listener's address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}
