package system

import (
	"errors"
	"time"

	"go.uber.org/zap"

	coresys "github.com/survarena/server/internal/core/system"
	"github.com/survarena/server/internal/net"
	"github.com/survarena/server/internal/net/packet"
	"github.com/survarena/server/internal/sim"
)

// SessionSource hands connected and dead sessions to the game loop.
// *net.Server implements it.
type SessionSource interface {
	NewSessions() <-chan *net.Session
	DeadSessions() <-chan uint64
	NotifyDead(sessionID uint64)
}

// InputSystem drains packet queues from all sessions and dispatches them
// through the packet registry. Phase 0 (Input).
type InputSystem struct {
	src        SessionSource
	registry   *packet.Registry
	store      *net.SessionStore
	inst       *sim.Instance
	maxPerTick int
	log        *zap.Logger
	now        func() time.Time
}

func NewInputSystem(src SessionSource, registry *packet.Registry, store *net.SessionStore, inst *sim.Instance, maxPerTick int, log *zap.Logger) *InputSystem {
	if maxPerTick <= 0 {
		maxPerTick = 16
	}
	return &InputSystem{
		src:        src,
		registry:   registry,
		store:      store,
		inst:       inst,
		maxPerTick: maxPerTick,
		log:        log,
		now:        time.Now,
	}
}

func (s *InputSystem) Phase() coresys.Phase { return coresys.PhaseInput }

func (s *InputSystem) Update(_ time.Duration) {
	// Accept new sessions
	for {
		select {
		case sess := <-s.src.NewSessions():
			s.store.Add(sess)
		default:
			goto doneNew
		}
	}
doneNew:

	// Process dead sessions
	for {
		select {
		case id := <-s.src.DeadSessions():
			s.store.Remove(id)
		default:
			goto doneDead
		}
	}
doneDead:

	// Drain packets from each session (up to maxPerTick per session)
	s.store.ForEach(func(sess *net.Session) {
		if sess.IsClosed() {
			s.handleDisconnect(sess)
			return
		}
		for i := 0; i < s.maxPerTick; i++ {
			select {
			case data := <-sess.InQueue:
				s.dispatch(sess, data)
				if sess.State() == packet.StateDisconnecting {
					return
				}
			default:
				return
			}
		}
	})
}

// dispatch runs one packet. A malformed packet is discarded; the session
// is only kicked once malformed packets exceed the per-second threshold.
func (s *InputSystem) dispatch(sess *net.Session, data []byte) {
	err := s.registry.Dispatch(sess, sess.State(), data)
	if err == nil {
		return
	}
	s.log.Debug("packet discarded",
		zap.Uint64("session", sess.ID),
		zap.Error(err),
	)
	if !errors.Is(err, packet.ErrMalformed) {
		return
	}
	if sess.RecordMalformed(s.now()) {
		s.log.Warn("malformed packet threshold exceeded, kicking",
			zap.Uint64("session", sess.ID),
			zap.String("ip", sess.IP),
		)
		sess.Kick(packet.KickMalformed)
	}
}

// handleDisconnect detaches a closed session from the match.
func (s *InputSystem) handleDisconnect(sess *net.Session) {
	s.inst.Leave(sess.ID)
	s.src.NotifyDead(sess.ID)
	s.store.Remove(sess.ID)
	s.log.Info("client disconnected",
		zap.Uint64("session", sess.ID),
		zap.String("name", sess.Name),
	)
}

// SessionCount returns the current number of active sessions.
func (s *InputSystem) SessionCount() int {
	return s.store.Count()
}
