package system

import (
	"go.uber.org/zap"

	"github.com/survarena/server/internal/net"
	"github.com/survarena/server/internal/net/packet"
	"github.com/survarena/server/internal/sim"
)

// Deps are the collaborators the tick systems are wired to.
type Deps struct {
	Source     SessionSource
	Registry   *packet.Registry
	Store      *net.SessionStore
	MaxPerTick int
	Reporter   Reporter // optional
	Log        *zap.Logger
}

// Pipeline holds the registered systems for callers that inspect them.
type Pipeline struct {
	Input      *InputSystem
	Update     *UpdateSystem
	Visibility *VisibilitySystem
	Drain      *DrainSystem
}

// RegisterAll wires the full tick pipeline into the instance's runner.
func RegisterAll(inst *sim.Instance, deps Deps) *Pipeline {
	log := deps.Log
	p := &Pipeline{
		Input:      NewInputSystem(deps.Source, deps.Registry, deps.Store, inst, deps.MaxPerTick, log),
		Update:     NewUpdateSystem(inst, log),
		Visibility: NewVisibilitySystem(inst, deps.Store),
		Drain:      NewDrainSystem(inst, deps.Store, log),
	}
	r := inst.Runner
	r.Register(p.Input)
	r.Register(NewTimeoutSystem(inst))
	r.Register(p.Update)
	r.Register(NewCollisionSystem(inst))
	r.Register(NewGasSystem(inst))
	r.Register(p.Visibility)
	r.Register(p.Drain)
	r.Register(NewCleanupSystem(inst))
	r.Register(NewRoundCheckSystem(inst, deps.Store, log))
	if deps.Reporter != nil {
		r.Register(NewReportSystem(inst, deps.Store, deps.Reporter))
	}
	subscribeEvents(inst, log)
	return p
}
