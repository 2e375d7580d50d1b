package packet

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// ErrMalformed wraps decode failures so the input phase can count protocol
// faults per session.
var ErrMalformed = errors.New("malformed packet")

// SessionState represents the session's current protocol phase.
type SessionState int

const (
	StateConnected    SessionState = iota // socket open, awaiting join
	StatePlaying                          // controlling a player
	StateSpectating                       // dead or joined as spectator
	StateDisconnecting
)

func (s SessionState) String() string {
	switch s {
	case StateConnected:
		return "Connected"
	case StatePlaying:
		return "Playing"
	case StateSpectating:
		return "Spectating"
	case StateDisconnecting:
		return "Disconnecting"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// HandlerFunc is the callback signature for packet handlers. Handlers parse
// with r and may leave decode errors latched in r; Dispatch reports them.
// The session pointer is passed as an opaque interface to avoid import cycles.
type HandlerFunc func(sess any, r *Reader)

type handlerEntry struct {
	fn            HandlerFunc
	allowedStates map[SessionState]bool
}

// Registry maps opcodes to handlers with state-based access control.
type Registry struct {
	handlers map[byte]*handlerEntry
	log      *zap.Logger
}

func NewRegistry(log *zap.Logger) *Registry {
	return &Registry{
		handlers: make(map[byte]*handlerEntry),
		log:      log,
	}
}

// Register maps an opcode to a handler, restricted to the given session states.
func (reg *Registry) Register(opcode byte, states []SessionState, fn HandlerFunc) {
	allowed := make(map[SessionState]bool, len(states))
	for _, s := range states {
		allowed[s] = true
	}
	reg.handlers[opcode] = &handlerEntry{
		fn:            fn,
		allowedStates: allowed,
	}
}

// Dispatch finds the handler for the opcode in data[0], validates the session
// state, and calls the handler. Returns an error if the opcode is unknown or
// the session state is not allowed.
func (reg *Registry) Dispatch(sess any, state SessionState, data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("empty packet: %w", ErrMalformed)
	}
	opcode := data[0]
	reg.log.Debug("packet received",
		zap.Uint8("opcode", opcode),
		zap.Int("size", len(data)),
		zap.String("state", state.String()),
	)

	entry, ok := reg.handlers[opcode]
	if !ok {
		return fmt.Errorf("unknown opcode %d: %w", opcode, ErrMalformed)
	}

	if !entry.allowedStates[state] {
		reg.log.Debug("opcode not allowed in state",
			zap.Uint8("opcode", opcode),
			zap.String("state", state.String()),
		)
		return fmt.Errorf("opcode %d not allowed in state %s", opcode, state)
	}

	r := NewReader(data)
	if err := reg.safeCall(entry.fn, sess, r, opcode); err != nil {
		return err
	}
	if r.Err() != nil {
		return fmt.Errorf("opcode %d: %w: %w", opcode, ErrMalformed, r.Err())
	}
	return nil
}

// safeCall executes a handler with panic recovery to prevent a single
// bad packet from crashing the entire game loop.
func (reg *Registry) safeCall(fn HandlerFunc, sess any, r *Reader, opcode byte) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			reg.log.Error("packet handler panic recovered",
				zap.Uint8("opcode", opcode),
				zap.Any("panic", rec),
			)
			err = fmt.Errorf("handler panic for opcode %d: %v", opcode, rec)
		}
	}()
	fn(sess, r)
	return nil
}
