package system

import "time"

// Phase defines execution ordering within a single tick.
type Phase int

const (
	PhaseInput      Phase = iota // 0: drain session inboxes
	PhaseTimeouts                // 1: fire due timeouts
	PhaseUpdate                  // 2: per-kind self-update
	PhaseCollision               // 3: resolve hits and damage
	PhaseGas                     // 4: advance gas, apply zone damage
	PhaseSync                    // 5: per-viewer visibility + delta
	PhaseDrain                   // 6: dirty tracker drain, flush output
	PhaseCleanup                 // 7: destroy queued entities, reset buffers
	PhaseRoundCheck              // 8: win / end-of-round
)

func (p Phase) String() string {
	switch p {
	case PhaseInput:
		return "input"
	case PhaseTimeouts:
		return "timeouts"
	case PhaseUpdate:
		return "update"
	case PhaseCollision:
		return "collision"
	case PhaseGas:
		return "gas"
	case PhaseSync:
		return "sync"
	case PhaseDrain:
		return "drain"
	case PhaseCleanup:
		return "cleanup"
	case PhaseRoundCheck:
		return "round_check"
	default:
		return "unknown"
	}
}

// System is the interface every tick system implements.
type System interface {
	Phase() Phase
	Update(dt time.Duration)
}
