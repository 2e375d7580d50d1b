package sim

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/survarena/server/internal/core/ecs"
	"github.com/survarena/server/internal/core/event"
	coresys "github.com/survarena/server/internal/core/system"
	"github.com/survarena/server/internal/core/timeout"
	"github.com/survarena/server/internal/data"
	"github.com/survarena/server/internal/gas"
	"github.com/survarena/server/internal/geom"
	"github.com/survarena/server/internal/viewer"
	"github.com/survarena/server/internal/world"
)

// ErrStopped is returned by operations on an instance that has finished
// its round and will not tick again.
var ErrStopped = errors.New("instance stopped")

// ErrNotRunning is returned when joining an instance whose round is ending.
var ErrNotRunning = errors.New("instance not accepting players")

// ErrAlreadyPlayed is returned when a session that left the match tries to
// join it again. A forfeit is final for the round.
var ErrAlreadyPlayed = errors.New("session already played this match")

// Lifecycle is the coarse state of an instance.
type Lifecycle int32

const (
	Running Lifecycle = iota
	Ending
	Stopped
)

func (l Lifecycle) String() string {
	switch l {
	case Running:
		return "running"
	case Ending:
		return "ending"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Config sizes one instance. Zero values fall back to defaults.
type Config struct {
	Mode        string
	TickRate    int
	CellSize    float64
	MaxEntities int
	View        viewer.Options
	EndGrace    time.Duration
	AirdropFall time.Duration
	MinPlayers  int
	GasSeed     int64
	Layout      *data.Layout
	Stages      []gas.Stage
}

func (c Config) withDefaults() Config {
	if c.Mode == "" {
		c.Mode = "solo"
	}
	if c.TickRate <= 0 {
		c.TickRate = 30
	}
	if c.MaxEntities <= 0 {
		c.MaxEntities = 8192
	}
	if c.EndGrace <= 0 {
		c.EndGrace = 5 * time.Second
	}
	if c.AirdropFall <= 0 {
		c.AirdropFall = 8 * time.Second
	}
	if c.MinPlayers <= 0 {
		c.MinPlayers = 2
	}
	return c
}

// Instance is one arena match. It owns every piece of per-match mutable
// state and is driven by a single goroutine through Step or Run.
type Instance struct {
	ID       uuid.UUID
	Mode     string
	Log      *zap.Logger
	World    *world.State
	Gas      *gas.Machine
	Timeouts *timeout.Queue
	Viewers  *viewer.Manager
	Bus      *event.Bus
	Runner   *coresys.Runner
	Resolver world.Resolver
	Rules    Rules

	cfg       Config
	rng       *rand.Rand
	airdrop   []string
	lifecycle atomic.Int32
	inbox     chan Message
	handlers  MessageHandlers

	tick      uint64
	now       time.Duration
	startedAt time.Time
	endedAt   time.Time
	started   bool

	players map[uint64]*PlayerRecord // by session id
	order   []uint64                 // join order
	winner  ecs.EntityID
	endHook func(Result)
	sinks   []ResultSink
	saving  sync.WaitGroup
	stopped chan struct{}
}

// New validates cfg and builds an instance with the layout populated.
// Configuration faults (no layout, empty stage table, bad cell size) are
// returned here rather than surfacing mid-match.
func New(cfg Config, rules Rules, log *zap.Logger) (*Instance, error) {
	cfg = cfg.withDefaults()
	if cfg.Layout == nil {
		return nil, errors.New("instance: layout is required")
	}
	if rules == nil {
		rules = DefaultRules{}
	}
	id := uuid.New()
	log = log.With(zap.String("instance", id.String()), zap.String("mode", cfg.Mode))

	st, err := world.NewState(world.Options{
		Width:       cfg.Layout.Width,
		Height:      cfg.Layout.Height,
		CellSize:    cfg.CellSize,
		MaxEntities: cfg.MaxEntities,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("instance: %w", err)
	}

	inst := &Instance{
		ID:       id,
		Mode:     cfg.Mode,
		Log:      log,
		World:    st,
		Timeouts: timeout.NewQueue(),
		Viewers:  viewer.NewManager(cfg.View),
		Bus:      event.NewBus(),
		Runner:   coresys.NewRunner(),
		Resolver: world.DefaultResolver{},
		Rules:    rules,
		cfg:      cfg,
		rng:      rand.New(rand.NewSource(cfg.GasSeed + 1)),
		airdrop:  world.AirdropItems(cfg.Layout),
		inbox:    make(chan Message, 256),
		players:  make(map[uint64]*PlayerRecord),
		stopped:  make(chan struct{}),
	}

	center := geom.V(cfg.Layout.Width/2, cfg.Layout.Height/2)
	g, err := gas.NewMachine(cfg.Stages, center, cfg.GasSeed, gas.Hooks{
		SummonAirdrop: inst.summonAirdrop,
		StageChanged:  inst.gasStageChanged,
	})
	if err != nil {
		return nil, fmt.Errorf("instance: %w", err)
	}
	inst.Gas = g

	inst.Timeouts.OnPanic(func(h timeout.Handle, rec any) {
		log.Error("timeout callback panicked",
			zap.Uint64("handle", uint64(h)),
			zap.Uint64("tick", inst.tick),
			zap.Any("panic", rec),
		)
	})
	st.SetHooks(world.Hooks{
		PlayerKilled:      inst.playerKilled,
		ObstacleDestroyed: inst.obstacleDestroyed,
	})
	if err := st.Populate(cfg.Layout); err != nil {
		return nil, fmt.Errorf("instance: %w", err)
	}
	return inst, nil
}

func (i *Instance) Config() Config { return i.cfg }

// Tick returns the number of ticks run so far.
func (i *Instance) Tick() uint64 { return i.tick }

// Now returns simulation time, the sum of every tick delta.
func (i *Instance) Now() time.Duration { return i.now }

func (i *Instance) Lifecycle() Lifecycle { return Lifecycle(i.lifecycle.Load()) }

// Started reports whether enough players joined for the round to begin.
func (i *Instance) Started() bool { return i.started }

// Stopped is closed once the instance reaches Stopped.
func (i *Instance) Stopped() <-chan struct{} { return i.stopped }

// Interval is the ideal time between ticks.
func (i *Instance) Interval() time.Duration {
	return time.Second / time.Duration(i.cfg.TickRate)
}

// OnEnd registers fn to receive the match result when the round ends.
func (i *Instance) OnEnd(fn func(Result)) { i.endHook = fn }

// AddSink registers a store that receives the result once the instance stops.
func (i *Instance) AddSink(s ResultSink) { i.sinks = append(i.sinks, s) }

// Step runs one tick with the given wall-clock delta: the clock advances,
// inbox messages are applied, then every phase runs in order.
func (i *Instance) Step(dt time.Duration) error {
	if i.Lifecycle() == Stopped {
		return ErrStopped
	}
	if dt < 0 {
		dt = 0
	}
	i.tick++
	i.now += dt
	i.World.SetNow(i.now)
	i.drainInbox()
	i.Runner.Tick(dt)
	return nil
}

// Run drives the instance until ctx is cancelled or the instance stops.
// After each tick the timer is re-armed for the remainder of the interval,
// so a slow tick shortens the wait before the next one.
func (i *Instance) Run(ctx context.Context) error {
	interval := i.Interval()
	timer := time.NewTimer(interval)
	defer timer.Stop()
	last := time.Now()

	i.Log.Info("instance running",
		zap.Int("tick_rate", i.cfg.TickRate),
		zap.String("layout", i.cfg.Layout.Name),
	)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
		start := time.Now()
		dt := start.Sub(last)
		last = start
		if err := i.Step(dt); err != nil {
			if errors.Is(err, ErrStopped) {
				return nil
			}
			return err
		}
		if i.Lifecycle() == Stopped {
			return nil
		}
		spent := time.Since(start)
		if spent > interval {
			fields := []zap.Field{
				zap.Uint64("tick", i.tick),
				zap.Duration("spent", spent),
				zap.Duration("interval", interval),
			}
			i.Log.Warn("tick overrun", append(fields, i.phaseTimings()...)...)
		}
		timer.Reset(max(0, interval-spent))
	}
}

// phaseTimings reports the wall time of every phase that ran last tick.
func (i *Instance) phaseTimings() []zap.Field {
	var fields []zap.Field
	for p := coresys.PhaseInput; p <= coresys.PhaseRoundCheck; p++ {
		if d := i.Runner.PhaseTime(p); d > 0 {
			fields = append(fields, zap.Duration("phase_"+p.String(), d))
		}
	}
	return fields
}

// stop moves the instance to Stopped and hands the result to every sink.
// Sinks run off the tick goroutine.
func (i *Instance) stop() {
	if !i.lifecycle.CompareAndSwap(int32(Ending), int32(Stopped)) {
		return
	}
	i.Timeouts.Clear()
	close(i.stopped)
	res := i.Result()
	i.Log.Info("instance stopped",
		zap.Uint64("ticks", i.tick),
		zap.String("winner", res.Winner),
	)
	for _, s := range i.sinks {
		i.saving.Add(1)
		go func(s ResultSink) {
			defer i.saving.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.SaveMatch(ctx, res); err != nil {
				i.Log.Error("save match result", zap.Error(err))
			}
		}(s)
	}
}

// WaitResults blocks until every result sink started by stop has returned.
func (i *Instance) WaitResults() { i.saving.Wait() }
