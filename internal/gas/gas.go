package gas

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/survarena/server/internal/geom"
)

// ErrEmptyStageTable is a configuration fault: a machine needs at least one stage.
var ErrEmptyStageTable = errors.New("gas stage table is empty")

// State is the phase the safe zone is in.
type State uint8

const (
	Inactive State = iota
	Waiting
	Advancing
	Final
)

func (s State) String() string {
	switch s {
	case Inactive:
		return "inactive"
	case Waiting:
		return "waiting"
	case Advancing:
		return "advancing"
	case Final:
		return "final"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// ParseState maps a stage-table name onto a State.
func ParseState(s string) (State, error) {
	switch s {
	case "waiting":
		return Waiting, nil
	case "advancing":
		return Advancing, nil
	default:
		return Inactive, fmt.Errorf("unknown gas state %q", s)
	}
}

// Stage is one row of the stage table. The machine never mutates it.
type Stage struct {
	State         State
	Duration      time.Duration
	OldRadius     float64
	NewRadius     float64
	DPS           float64
	SummonAirdrop bool
}

// Hooks are side effects the machine triggers on stage transitions.
type Hooks struct {
	// SummonAirdrop is called when a stage requesting an airdrop starts.
	// zone is the target circle of that stage.
	SummonAirdrop func(zone geom.Circle)
	// StageChanged is called after every transition, including into Final.
	StageChanged func(stage int, state State)
}

// Machine drives the shrinking safe zone through a fixed stage table.
// One per simulation instance; game-loop goroutine only.
type Machine struct {
	stages []Stage
	hooks  Hooks
	rng    *rand.Rand

	stage    int // index of the current stage, -1 while Inactive
	state    State
	duration time.Duration
	elapsed  time.Duration
	dps      float64

	origin geom.Vec2 // centre the table starts from

	oldPos geom.Vec2
	newPos geom.Vec2
	oldRad float64
	newRad float64

	curPos geom.Vec2
	curRad float64
	ratio  float64

	dirty       bool // circles or state changed
	dirtyRatio  bool // completion ratio changed
	pendingPick bool // target centre already chosen by a Waiting stage
}

// NewMachine validates the table and returns a machine parked in Inactive.
// The starting circle is centred on center with the first stage's old radius.
func NewMachine(stages []Stage, center geom.Vec2, seed int64, hooks Hooks) (*Machine, error) {
	if len(stages) == 0 {
		return nil, ErrEmptyStageTable
	}
	for i, s := range stages {
		if s.Duration <= 0 {
			return nil, fmt.Errorf("gas stage %d: duration must be positive", i)
		}
		if s.NewRadius < 0 || s.OldRadius < 0 {
			return nil, fmt.Errorf("gas stage %d: negative radius", i)
		}
		if s.State != Waiting && s.State != Advancing {
			return nil, fmt.Errorf("gas stage %d: state %s not allowed in table", i, s.State)
		}
	}
	m := &Machine{
		stages: stages,
		hooks:  hooks,
		rng:    rand.New(rand.NewSource(seed)),
		origin: center,
	}
	m.park()
	return m, nil
}

func (m *Machine) park() {
	m.stage = -1
	m.state = Inactive
	m.duration = 0
	m.elapsed = 0
	m.dps = 0
	m.oldPos, m.newPos, m.curPos = m.origin, m.origin, m.origin
	m.oldRad = m.stages[0].OldRadius
	m.newRad = m.oldRad
	m.curRad = m.oldRad
	m.ratio = 0
	m.pendingPick = false
	m.dirty = true
	m.dirtyRatio = true
}

// Reset returns the machine to Inactive at stage zero, for wave modes.
func (m *Machine) Reset() {
	m.park()
}

// Advance pops the next stage. Past the end of the table the machine parks
// in Final with radius zero until Reset.
func (m *Machine) Advance() {
	if m.state == Final {
		return
	}
	// The next stage starts where the previous one ended.
	switch m.state {
	case Advancing:
		m.oldPos = m.newPos
	case Inactive:
		m.oldPos = m.origin
	}

	m.stage++
	m.elapsed = 0
	m.ratio = 0
	m.dirty = true
	m.dirtyRatio = true

	if m.stage >= len(m.stages) {
		m.state = Final
		m.duration = 0
		m.newPos = m.oldPos
		m.oldRad = 0
		m.newRad = 0
		m.curPos = m.oldPos
		m.curRad = 0
		if m.hooks.StageChanged != nil {
			m.hooks.StageChanged(m.stage, m.state)
		}
		return
	}

	st := m.stages[m.stage]
	m.state = st.State
	m.duration = st.Duration
	m.dps = st.DPS
	m.oldRad = st.OldRadius

	if m.pendingPick && st.State == Advancing {
		// Target was announced by the preceding Waiting stage.
		m.pendingPick = false
	} else {
		m.newPos = m.pickCenter(m.oldPos, st.OldRadius, st.NewRadius)
		m.pendingPick = st.State == Waiting && st.NewRadius < st.OldRadius
	}
	m.newRad = st.NewRadius
	m.curPos = m.oldPos
	m.curRad = m.oldRad

	if st.SummonAirdrop && m.hooks.SummonAirdrop != nil {
		m.hooks.SummonAirdrop(geom.Circle{Pos: m.newPos, Rad: m.newRad})
	}
	if m.hooks.StageChanged != nil {
		m.hooks.StageChanged(m.stage, m.state)
	}
}

// pickCenter chooses a new centre so the new circle lies inside the old one.
func (m *Machine) pickCenter(old geom.Vec2, oldRad, newRad float64) geom.Vec2 {
	slack := oldRad - newRad
	if slack <= 0 {
		return old
	}
	return geom.RandomPointInCircle(geom.Circle{Pos: old, Rad: slack}, m.rng.Float64(), m.rng.Float64())
}

// Tick advances the stage clock by dt. An Inactive machine activates on its
// first tick. Overflow past a stage's duration carries into the next stage.
func (m *Machine) Tick(dt time.Duration) {
	if dt < 0 {
		dt = 0
	}
	if m.state == Inactive {
		m.Advance()
	}
	if m.state == Final {
		return
	}
	m.elapsed += dt
	for m.state != Final && m.elapsed >= m.duration {
		over := m.elapsed - m.duration
		m.Advance()
		m.elapsed = over
	}
	m.interpolate()
}

func (m *Machine) interpolate() {
	if m.state != Advancing {
		m.curPos = m.oldPos
		m.curRad = m.oldRad
		if m.ratio != 0 {
			m.ratio = 0
			m.dirtyRatio = true
		}
		return
	}
	t := float64(m.elapsed) / float64(m.duration)
	t = geom.Clamp(t, 0, 1)
	if t != m.ratio {
		m.ratio = t
		m.dirtyRatio = true
	}
	m.curPos = geom.LerpVec(m.oldPos, m.newPos, t)
	m.curRad = geom.Lerp(m.oldRad, m.newRad, t)
}

// Circle returns the current effective safe zone.
func (m *Machine) Circle() geom.Circle { return geom.Circle{Pos: m.curPos, Rad: m.curRad} }

// Target returns the circle the current stage is heading for.
func (m *Machine) Target() geom.Circle { return geom.Circle{Pos: m.newPos, Rad: m.newRad} }

// Origin returns the circle the current stage started from.
func (m *Machine) Origin() geom.Circle { return geom.Circle{Pos: m.oldPos, Rad: m.oldRad} }

func (m *Machine) State() State                { return m.state }
func (m *Machine) StageIndex() int             { return m.stage }
func (m *Machine) Elapsed() time.Duration      { return m.elapsed }
func (m *Machine) StageDuration() time.Duration { return m.duration }

// CompletionRatio is elapsed/duration while Advancing and 0 otherwise.
func (m *Machine) CompletionRatio() float64 { return m.ratio }

// InGas reports whether p is outside the effective circle. Nothing is in gas
// while the machine is Inactive.
func (m *Machine) InGas(p geom.Vec2) bool {
	if m.state == Inactive {
		return false
	}
	return !m.Circle().Contains(p)
}

// ScaledDamage returns the stage's damage per second for a point in gas, a
// flat rate regardless of how far outside the circle p is; zero inside.
func (m *Machine) ScaledDamage(p geom.Vec2) float64 {
	if !m.InGas(p) {
		return 0
	}
	return m.dps
}

// TakeDirty reports and clears the "circles/state changed" and "ratio
// changed" flags used to gate viewer scalar fields.
func (m *Machine) TakeDirty() (circles bool, ratio bool) {
	circles, ratio = m.dirty, m.dirtyRatio
	m.dirty, m.dirtyRatio = false, false
	return circles, ratio
}
