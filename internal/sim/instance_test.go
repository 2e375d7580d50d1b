package sim

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pixil98/go-testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/survarena/server/internal/core/event"
	coresys "github.com/survarena/server/internal/core/system"
	"github.com/survarena/server/internal/data"
	"github.com/survarena/server/internal/gas"
	"github.com/survarena/server/internal/geom"
	"github.com/survarena/server/internal/world"
)

// timeoutRunner is the minimal pipeline the instance needs for scheduled
// work to fire.
type timeoutRunner struct{ inst *Instance }

func (r timeoutRunner) Phase() coresys.Phase { return coresys.PhaseTimeouts }
func (r timeoutRunner) Update(time.Duration) { r.inst.Timeouts.RunDue(r.inst.Now()) }

type sinkRecorder struct {
	mu      sync.Mutex
	results []Result
}

func (s *sinkRecorder) SaveMatch(_ context.Context, r Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, r)
	return nil
}

func testConfig() Config {
	return Config{
		Mode:        "solo",
		TickRate:    10,
		CellSize:    16,
		EndGrace:    time.Second,
		AirdropFall: 2 * time.Second,
		MinPlayers:  2,
		GasSeed:     7,
		Layout:      &data.Layout{Name: "test", Width: 200, Height: 200},
		Stages: []gas.Stage{
			{State: gas.Waiting, Duration: 2 * time.Second, OldRadius: 80, NewRadius: 80},
			{State: gas.Advancing, Duration: 4 * time.Second, OldRadius: 80, NewRadius: 40, DPS: 2, SummonAirdrop: true},
		},
	}
}

func newTestInstance(t *testing.T, mut func(*Config)) *Instance {
	t.Helper()
	cfg := testConfig()
	if mut != nil {
		mut(&cfg)
	}
	inst, err := New(cfg, nil, zap.NewNop())
	if err != nil {
		t.Fatalf("new instance: %v", err)
	}
	inst.Runner.Register(timeoutRunner{inst})
	return inst
}

func stepN(t *testing.T, inst *Instance, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if err := inst.Step(inst.Interval()); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
}

func TestNewConfigFaults(t *testing.T) {
	_, err := New(Config{}, nil, zap.NewNop())
	testutil.AssertErrorContains(t, err, "layout is required")

	cfg := testConfig()
	cfg.Stages = nil
	_, err = New(cfg, nil, zap.NewNop())
	if !errors.Is(err, gas.ErrEmptyStageTable) {
		t.Fatalf("expected ErrEmptyStageTable, got %v", err)
	}

	cfg = testConfig()
	cfg.CellSize = -1
	_, err = New(cfg, nil, zap.NewNop())
	if !errors.Is(err, world.ErrInvalidCellSize) {
		t.Fatalf("expected ErrInvalidCellSize, got %v", err)
	}
}

func TestJoinStartsRoundAtMinPlayers(t *testing.T) {
	inst := newTestInstance(t, nil)

	a, err := inst.Join(1, "ana")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	testutil.AssertEqual(t, "not started", inst.Started(), false)
	_, err = inst.Join(1, "ana")
	testutil.AssertErrorContains(t, err, "already joined")

	if _, err := inst.Join(2, "bo"); err != nil {
		t.Fatalf("join: %v", err)
	}
	testutil.AssertEqual(t, "started", inst.Started(), true)
	testutil.AssertEqual(t, "viewers", inst.Viewers.Len(), 2)

	e, _, ok := inst.World.Player(a)
	testutil.AssertEqual(t, "spawned", ok, true)
	testutil.AssertEqual(t, "inside zone", inst.Gas.Circle().Contains(e.Pos), true)
}

func TestLeaveForfeitsAndEndsRound(t *testing.T) {
	inst := newTestInstance(t, nil)
	var ended []Result
	inst.OnEnd(func(r Result) { ended = append(ended, r) })

	_, _ = inst.Join(1, "ana")
	b, _ := inst.Join(2, "bo")
	inst.Leave(1)

	rec, _ := inst.Player(1)
	testutil.AssertEqual(t, "left", rec.Left, true)
	testutil.AssertEqual(t, "dead", rec.Alive, false)
	testutil.AssertEqual(t, "forfeit rank", rec.Rank, 2)
	testutil.AssertEqual(t, "alive", inst.World.AlivePlayers(), 1)

	d := inst.EvaluateRound()
	testutil.AssertEqual(t, "end", d.End, true)
	testutil.AssertEqual(t, "lifecycle", inst.Lifecycle(), Ending)
	testutil.AssertEqual(t, "hook called", len(ended), 1)

	res := ended[0]
	testutil.AssertEqual(t, "winner", res.Winner, "bo")
	testutil.AssertEqual(t, "winner id", res.WinnerID, b)
	testutil.AssertEqual(t, "first", res.Players[0].Name, "bo")
	testutil.AssertEqual(t, "first rank", res.Players[0].Rank, 1)
	testutil.AssertEqual(t, "second", res.Players[1].Name, "ana")

	// A second evaluation while Ending is a no-op.
	testutil.AssertEqual(t, "no re-end", inst.EvaluateRound().End, false)
	_, err := inst.Join(3, "cy")
	if !errors.Is(err, ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning, got %v", err)
	}
}

func TestRejoinAfterLeaveIsRefused(t *testing.T) {
	inst := newTestInstance(t, func(c *Config) { c.MinPlayers = 3 })
	a, _ := inst.Join(1, "ana")
	_, _ = inst.Join(2, "bo")
	inst.Leave(1)

	_, err := inst.Join(1, "ana")
	if !errors.Is(err, ErrAlreadyPlayed) {
		t.Fatalf("expected ErrAlreadyPlayed, got %v", err)
	}
	rec, _ := inst.Player(1)
	testutil.AssertEqual(t, "first life kept", rec.Entity, a)
	testutil.AssertEqual(t, "forfeit rank kept", rec.Rank, 2)

	res := inst.Result()
	testutil.AssertEqual(t, "player count", res.PlayerCount, 2)
	testutil.AssertEqual(t, "players", len(res.Players), 2)
}

func TestEndingGraceThenStopped(t *testing.T) {
	inst := newTestInstance(t, nil)
	sink := &sinkRecorder{}
	inst.AddSink(sink)

	_, _ = inst.Join(1, "ana")
	inst.BeginEnding(0)
	stepN(t, inst, 9)
	testutil.AssertEqual(t, "still ending", inst.Lifecycle(), Ending)

	stepN(t, inst, 1)
	testutil.AssertEqual(t, "stopped", inst.Lifecycle(), Stopped)
	select {
	case <-inst.Stopped():
	default:
		t.Fatal("stopped channel not closed")
	}
	inst.WaitResults()
	testutil.AssertEqual(t, "saved", len(sink.results), 1)
	testutil.AssertEqual(t, "saved id", sink.results[0].ID, inst.ID.String())

	if err := inst.Step(inst.Interval()); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
	_, err := inst.Join(2, "bo")
	if !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
}

func TestInboxAppliedAtTickStart(t *testing.T) {
	inst := newTestInstance(t, nil)
	var allowed []string
	inst.SetMessageHandlers(MessageHandlers{AllowIP: func(ip string, _ time.Duration) {
		allowed = append(allowed, ip)
	}})

	testutil.AssertEqual(t, "posted", inst.Post(Message{Kind: MsgAllowIP, IP: "10.0.0.1", TTL: time.Minute}), true)
	testutil.AssertEqual(t, "not yet", len(allowed), 0)
	stepN(t, inst, 1)
	testutil.AssertEqual(t, "applied", allowed, []string{"10.0.0.1"})

	inst.Post(Message{Kind: MsgShutdown})
	testutil.AssertEqual(t, "running", inst.Lifecycle(), Running)
	stepN(t, inst, 1)
	testutil.AssertEqual(t, "ending", inst.Lifecycle(), Ending)
}

func TestInboxFullDropsMessage(t *testing.T) {
	inst := newTestInstance(t, nil)
	for i := 0; i < cap(inst.inbox); i++ {
		inst.Post(Message{Kind: MsgAllowIP, IP: "1.1.1.1"})
	}
	testutil.AssertEqual(t, "dropped", inst.Post(Message{Kind: MsgAllowIP}), false)
}

func TestAirdropLandsAfterFall(t *testing.T) {
	inst := newTestInstance(t, nil)
	inst.summonAirdrop(geom.Circle{Pos: geom.V(100, 100), Rad: 20})

	drops := inst.World.IDs(world.KindAirdrop)
	testutil.AssertEqual(t, "airdrop", len(drops), 1)
	e, _, _ := inst.World.Airdrop(drops[0])
	testutil.AssertEqual(t, "inside zone", geom.Circle{Pos: geom.V(100, 100), Rad: 20}.Contains(e.Pos), true)

	stepN(t, inst, 19)
	testutil.AssertEqual(t, "still falling", len(inst.World.IDs(world.KindAirdrop)), 1)
	stepN(t, inst, 1)
	testutil.AssertEqual(t, "landed", len(inst.World.IDs(world.KindAirdrop)), 0)

	var crates int
	for _, id := range inst.World.IDs(world.KindObstacle) {
		if _, ob, ok := inst.World.Obstacle(id); ok && ob.Type == "airdrop_crate" {
			crates++
		}
	}
	testutil.AssertEqual(t, "crate", crates, 1)
}

func TestSpectateFollowsAlivePlayers(t *testing.T) {
	inst := newTestInstance(t, nil)
	a, _ := inst.Join(1, "ana")
	b, _ := inst.Join(2, "bo")

	if err := inst.Spectate(9, 0); err != nil {
		t.Fatalf("spectate: %v", err)
	}
	v := inst.Viewers.Get(9)
	testutil.AssertEqual(t, "first alive", v.Target, a)

	inst.World.KillPlayer(a, b)
	testutil.AssertEqual(t, "follows killer", v.Target, b)

	rec, _ := inst.Player(2)
	inst.BeginEnding(b)
	testutil.AssertEqual(t, "killer credited", rec.Kills, 1)
}

func TestRoundStartsOnFirstDeath(t *testing.T) {
	inst := newTestInstance(t, func(c *Config) { c.MinPlayers = 5 })
	a, _ := inst.Join(1, "ana")
	_, _ = inst.Join(2, "bo")
	testutil.AssertEqual(t, "waiting for players", inst.Started(), false)

	inst.World.KillPlayer(a, 0)
	testutil.AssertEqual(t, "started by death", inst.Started(), true)
}

func TestResetGasOnFinalForWaveRules(t *testing.T) {
	inst := newTestInstance(t, nil)
	inst.Rules = waveRules{}
	_, _ = inst.Join(1, "ana")
	_, _ = inst.Join(2, "bo")

	inst.Gas.Tick(time.Minute)
	testutil.AssertEqual(t, "final", inst.Gas.State(), gas.Final)
	inst.EvaluateRound()
	testutil.AssertEqual(t, "reset", inst.Gas.State(), gas.Inactive)
	testutil.AssertEqual(t, "running", inst.Lifecycle(), Running)
}

type waveRules struct{ DefaultRules }

func (waveRules) EvaluateRound(rs RoundState) Decision {
	return Decision{ResetGas: rs.GasState == gas.Final}
}

// slowSystem sleeps through its phase and records the deltas it was given.
type slowSystem struct {
	sleep time.Duration
	dts   []time.Duration
}

func (s *slowSystem) Phase() coresys.Phase { return coresys.PhaseUpdate }
func (s *slowSystem) Update(dt time.Duration) {
	s.dts = append(s.dts, dt)
	time.Sleep(s.sleep)
}

func TestRunReturnsOnceStopped(t *testing.T) {
	inst := newTestInstance(t, func(c *Config) {
		c.TickRate = 100
		c.EndGrace = 50 * time.Millisecond
	})
	slow := &slowSystem{sleep: 15 * time.Millisecond}
	inst.Runner.Register(slow)
	_, _ = inst.Join(1, "ana")
	inst.BeginEnding(0)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := inst.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	testutil.AssertEqual(t, "stopped", inst.Lifecycle(), Stopped)
	testutil.AssertEqual(t, "ticked until grace", len(slow.dts) >= 3, true)
	// Overrunning ticks re-arm immediately, so every delta is the wall
	// time of the previous tick rather than a fixed interval on top of it.
	for _, dt := range slow.dts[1:] {
		testutil.AssertEqual(t, "delta covers slow tick", dt >= slow.sleep, true)
	}
	testutil.AssertEqual(t, "sim time advanced", inst.Now() >= 50*time.Millisecond, true)
}

func TestRunStopsOnCancel(t *testing.T) {
	inst := newTestInstance(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := inst.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	testutil.AssertEqual(t, "still running", inst.Lifecycle(), Running)
}

func TestTickOverrunLogsPhaseTimings(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	cfg := testConfig()
	cfg.TickRate = 100
	cfg.EndGrace = 20 * time.Millisecond
	inst, err := New(cfg, nil, zap.New(core))
	if err != nil {
		t.Fatalf("new instance: %v", err)
	}
	inst.Runner.Register(timeoutRunner{inst})
	inst.Runner.Register(&slowSystem{sleep: 20 * time.Millisecond})
	inst.BeginEnding(0)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := inst.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	overruns := logs.FilterMessage("tick overrun").All()
	if len(overruns) == 0 {
		t.Fatal("expected a tick overrun warning")
	}
	fields := overruns[0].ContextMap()
	if _, ok := fields["phase_update"]; !ok {
		t.Errorf("overrun warning lacks update phase timing: %v", fields)
	}
}

func TestTimeoutPanicDoesNotStopInstance(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	inst, err := New(testConfig(), nil, zap.New(core))
	if err != nil {
		t.Fatalf("new instance: %v", err)
	}
	inst.Runner.Register(timeoutRunner{inst})

	fired := false
	inst.Timeouts.Schedule(func() { panic("broken airdrop") }, 0)
	inst.Timeouts.Schedule(func() { fired = true }, 0)
	stepN(t, inst, 1)

	testutil.AssertEqual(t, "later timeout fired", fired, true)
	testutil.AssertEqual(t, "panic logged", logs.FilterMessage("timeout callback panicked").Len(), 1)
	stepN(t, inst, 1)
}

func TestObstacleDestroyedReachesBus(t *testing.T) {
	inst := newTestInstance(t, nil)
	var got []event.ObstacleDestroyed
	event.Subscribe(inst.Bus, func(e event.ObstacleDestroyed) { got = append(got, e) })

	id, err := inst.World.SpawnObstacle(world.Obstacle{Type: "crate", Health: 5, Destructible: true, Collidable: true},
		geom.V(50, 50), geom.BoxHitbox(4, 4), geom.LayerGround)
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	inst.World.Damage(id, 10, 0)
	inst.Bus.DispatchAll()

	testutil.AssertEqual(t, "events", len(got), 1)
	testutil.AssertEqual(t, "entity", got[0].EntityID, id)
	testutil.AssertEqual(t, "pos", got[0].Pos, geom.V(50, 50))
}
