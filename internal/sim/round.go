package sim

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/survarena/server/internal/core/ecs"
	"github.com/survarena/server/internal/core/event"
	"github.com/survarena/server/internal/gas"
	"github.com/survarena/server/internal/geom"
	"github.com/survarena/server/internal/viewer"
	"github.com/survarena/server/internal/world"
)

// PlayerRecord follows one joined player through the match so results
// survive the player entity being destroyed.
type PlayerRecord struct {
	SessionID uint64
	Entity    ecs.EntityID
	Name      string
	Kills     int
	Damage    float64
	Rank      int
	Alive     bool
	Left      bool
	JoinedAt  time.Duration
	DiedAt    time.Duration
}

// Result is the summary handed to result sinks at the end of a match.
type Result struct {
	ID          string
	Mode        string
	StartedAt   time.Time
	EndedAt     time.Time
	Winner      string
	WinnerID    ecs.EntityID
	PlayerCount int
	Ticks       uint64
	Players     []PlayerResult
}

type PlayerResult struct {
	Name   string
	Rank   int
	Kills  int
	Damage float64
}

// ResultSink stores finished matches.
type ResultSink interface {
	SaveMatch(ctx context.Context, r Result) error
}

// RoundState is the snapshot the win condition is evaluated against.
type RoundState struct {
	Mode     string
	Tick     uint64
	Elapsed  time.Duration
	Joined   int
	Alive    int
	Started  bool
	GasStage int
	GasState gas.State
}

// Decision is what the round rules want done after a tick.
type Decision struct {
	End      bool
	Winner   ecs.EntityID
	ResetGas bool
}

// Rules decides when a round ends and where airdrops fall. Mode scripts
// implement it; DefaultRules is the built-in last-player-standing mode.
type Rules interface {
	EvaluateRound(rs RoundState) Decision
	PickAirdrop(zone geom.Circle, u1, u2 float64) geom.Vec2
}

// DefaultRules ends the round once at most one player is alive after the
// round started.
type DefaultRules struct{}

func (DefaultRules) EvaluateRound(rs RoundState) Decision {
	if !rs.Started || rs.Alive > 1 {
		return Decision{}
	}
	return Decision{End: true}
}

func (DefaultRules) PickAirdrop(zone geom.Circle, u1, u2 float64) geom.Vec2 {
	return geom.RandomPointInCircle(zone, u1, u2)
}

// ---------- Players ----------

// Join spawns a player for sessionID and attaches a viewer to it.
func (i *Instance) Join(sessionID uint64, name string) (ecs.EntityID, error) {
	switch i.Lifecycle() {
	case Stopped:
		return 0, ErrStopped
	case Ending:
		return 0, ErrNotRunning
	}
	if rec, ok := i.players[sessionID]; ok {
		if rec.Left {
			return 0, fmt.Errorf("session %d: %w", sessionID, ErrAlreadyPlayed)
		}
		return 0, fmt.Errorf("session %d already joined as %d", sessionID, rec.Entity)
	}
	pos := i.spawnPoint()
	id, err := i.World.SpawnPlayer(name, sessionID, pos)
	if err != nil {
		return 0, fmt.Errorf("join %q: %w", name, err)
	}
	i.players[sessionID] = &PlayerRecord{
		SessionID: sessionID,
		Entity:    id,
		Name:      name,
		Alive:     true,
		JoinedAt:  i.now,
	}
	i.order = append(i.order, sessionID)
	i.Viewers.Add(sessionID, id, pos)
	event.Emit(i.Bus, event.PlayerJoined{EntityID: id, Name: name})

	if !i.started && i.joinedCount() >= i.cfg.MinPlayers {
		i.started = true
		i.startedAt = time.Now()
		i.Log.Info("round started", zap.Int("players", i.joinedCount()))
	}
	return id, nil
}

// Spectate attaches a viewer without a player, or retargets an existing
// one. A zero target follows the next alive player.
func (i *Instance) Spectate(sessionID uint64, target ecs.EntityID) error {
	if i.Lifecycle() == Stopped {
		return ErrStopped
	}
	v := i.Viewers.Get(sessionID)
	if v == nil {
		v = i.Viewers.Add(sessionID, 0, geom.V(i.World.Width()/2, i.World.Height()/2))
	}
	if target == 0 || !i.isAlivePlayer(target) {
		target = i.nextAlive(v.Target)
	}
	v.Spectate(target)
	return nil
}

// SetInput forwards a client command to the session's player.
func (i *Instance) SetInput(sessionID uint64, in world.Input) bool {
	rec, ok := i.players[sessionID]
	if !ok || !rec.Alive {
		return false
	}
	return i.World.SetInput(rec.Entity, in)
}

// Leave detaches sessionID. A player still alive forfeits and is killed.
func (i *Instance) Leave(sessionID uint64) {
	rec, ok := i.players[sessionID]
	i.Viewers.Remove(sessionID)
	if !ok || rec.Left {
		return
	}
	rec.Left = true
	if rec.Alive {
		i.World.KillPlayer(rec.Entity, 0)
	}
	event.Emit(i.Bus, event.PlayerLeft{EntityID: rec.Entity, SessionID: sessionID})
}

// Player returns the record of the player joined from sessionID.
func (i *Instance) Player(sessionID uint64) (*PlayerRecord, bool) {
	rec, ok := i.players[sessionID]
	return rec, ok
}

func (i *Instance) joinedCount() int { return len(i.order) }

func (i *Instance) isAlivePlayer(id ecs.EntityID) bool {
	e, _, ok := i.World.Player(id)
	return ok && !e.Dead
}

// nextAlive cycles through alive players in id order starting after from.
func (i *Instance) nextAlive(from ecs.EntityID) ecs.EntityID {
	var alive []ecs.EntityID
	i.World.EachPlayer(func(e *world.Entity, _ *world.Player) {
		if !e.Dead {
			alive = append(alive, e.ID)
		}
	})
	if len(alive) == 0 {
		return 0
	}
	for _, id := range alive {
		if id > from {
			return id
		}
	}
	return alive[0]
}

// spawnPoint picks a point inside the current zone that does not overlap a
// collidable obstacle, falling back to the zone centre.
func (i *Instance) spawnPoint() geom.Vec2 {
	zone := i.Gas.Circle()
	zone.Rad = max(zone.Rad-world.PlayerRadius*2, 0)
	for attempt := 0; attempt < 16; attempt++ {
		p := i.World.ClampToMap(geom.RandomPointInCircle(zone, i.rng.Float64(), i.rng.Float64()))
		if i.clearAt(p) {
			return p
		}
	}
	return i.World.ClampToMap(zone.Pos)
}

func (i *Instance) clearAt(p geom.Vec2) bool {
	probe := geom.Circle{Pos: p, Rad: world.PlayerRadius}
	for _, id := range i.World.Query(probe, world.OnLayer(geom.LayerGround)) {
		e, ob, ok := i.World.Obstacle(id)
		if ok && ob.Collidable && geom.Overlap(probe, e.Shape()) {
			return false
		}
	}
	return true
}

// ---------- World and gas hooks ----------

func (i *Instance) playerKilled(victim, killer ecs.EntityID, p *world.Player) {
	alive := i.World.AlivePlayers()
	if rec, ok := i.players[p.SessionID]; ok && rec.Entity == victim {
		rec.Alive = false
		rec.DiedAt = i.now
		rec.Rank = p.Rank
		rec.Kills = p.Kills
		rec.Damage = p.Damage
	}
	i.retargetSpectators(victim, killer)
	if !i.started {
		i.started = true
		i.startedAt = time.Now()
	}
	event.Emit(i.Bus, event.PlayerKilled{Victim: victim, Killer: killer, Alive: alive})
}

func (i *Instance) obstacleDestroyed(id ecs.EntityID, pos geom.Vec2) {
	event.Emit(i.Bus, event.ObstacleDestroyed{EntityID: id, Pos: pos})
}

func (i *Instance) retargetSpectators(victim, killer ecs.EntityID) {
	next := killer
	if !i.isAlivePlayer(next) {
		next = i.nextAlive(victim)
	}
	i.Viewers.Each(func(v *viewer.Viewer) {
		if v.Player == victim || v.Target == victim {
			v.Spectate(next)
		}
	})
}

func (i *Instance) gasStageChanged(stage int, state gas.State) {
	i.Log.Info("gas stage changed", zap.Int("stage", stage), zap.Stringer("state", state))
	event.Emit(i.Bus, event.GasStageChanged{Stage: stage, State: state.String()})
}

// summonAirdrop drops a crate at a rules-chosen point inside zone. The
// landing is a timeout that refers to the airdrop by id only.
func (i *Instance) summonAirdrop(zone geom.Circle) {
	pos := i.World.ClampToMap(i.Rules.PickAirdrop(zone, i.rng.Float64(), i.rng.Float64()))
	id, err := i.World.SpawnAirdrop(pos, i.cfg.AirdropFall, i.airdrop)
	if err != nil {
		i.Log.Error("airdrop not spawned", zap.Error(err))
		return
	}
	event.Emit(i.Bus, event.AirdropSummoned{EntityID: id, Pos: pos})
	i.Timeouts.Schedule(func() { i.landAirdrop(id) }, i.cfg.AirdropFall)
}

func (i *Instance) landAirdrop(id ecs.EntityID) {
	e, _, ok := i.World.Airdrop(id)
	if !ok {
		return
	}
	pos := e.Pos
	crate, err := i.World.LandAirdrop(id)
	if err != nil {
		i.Log.Error("airdrop landing failed", zap.Uint32("entity", uint32(id)), zap.Error(err))
		return
	}
	event.Emit(i.Bus, event.AirdropLanded{Crate: crate, Pos: pos})
}

// ---------- Round end ----------

// RoundState snapshots what the round rules look at.
func (i *Instance) RoundState() RoundState {
	return RoundState{
		Mode:     i.Mode,
		Tick:     i.tick,
		Elapsed:  i.now,
		Joined:   i.joinedCount(),
		Alive:    i.World.AlivePlayers(),
		Started:  i.started,
		GasStage: i.Gas.StageIndex(),
		GasState: i.Gas.State(),
	}
}

// EvaluateRound asks the rules whether the round is over and acts on the
// answer. Only a Running instance is evaluated.
func (i *Instance) EvaluateRound() Decision {
	if i.Lifecycle() != Running {
		return Decision{}
	}
	d := i.Rules.EvaluateRound(i.RoundState())
	if d.ResetGas && i.Gas.State() == gas.Final {
		i.Log.Info("gas reset by round rules")
		i.Gas.Reset()
	}
	if d.End {
		winner := d.Winner
		if winner == 0 {
			winner = i.nextAlive(0)
		}
		i.BeginEnding(winner)
	}
	return d
}

// BeginEnding freezes the result and stops the instance after the grace
// delay. winner may be zero.
func (i *Instance) BeginEnding(winner ecs.EntityID) {
	if !i.lifecycle.CompareAndSwap(int32(Running), int32(Ending)) {
		return
	}
	i.winner = winner
	i.endedAt = time.Now()
	i.snapshotAlive()
	if i.startedAt.IsZero() {
		i.startedAt = i.endedAt
	}
	res := i.Result()
	i.Log.Info("round ending",
		zap.String("winner", res.Winner),
		zap.Int("players", res.PlayerCount),
		zap.Duration("grace", i.cfg.EndGrace),
	)
	if i.endHook != nil {
		i.endHook(res)
	}
	i.Timeouts.Schedule(i.stop, i.cfg.EndGrace)
}

// snapshotAlive copies the stats of players still standing and ranks them.
func (i *Instance) snapshotAlive() {
	for _, rec := range i.players {
		if !rec.Alive {
			continue
		}
		if _, p, ok := i.World.Player(rec.Entity); ok {
			rec.Kills = p.Kills
			rec.Damage = p.Damage
		}
		rec.Rank = 1
		if rec.Entity != i.winner && i.winner != 0 {
			rec.Rank = 2
		}
	}
}

// Result builds the match summary. Players are ordered by rank, then by
// join order.
func (i *Instance) Result() Result {
	res := Result{
		ID:          i.ID.String(),
		Mode:        i.Mode,
		StartedAt:   i.startedAt,
		EndedAt:     i.endedAt,
		PlayerCount: i.joinedCount(),
		Ticks:       i.tick,
		WinnerID:    i.winner,
	}
	for _, sid := range i.order {
		rec := i.players[sid]
		if rec.Entity == i.winner && i.winner != 0 {
			res.Winner = rec.Name
		}
		res.Players = append(res.Players, PlayerResult{
			Name:   rec.Name,
			Rank:   rec.Rank,
			Kills:  rec.Kills,
			Damage: rec.Damage,
		})
	}
	sort.SliceStable(res.Players, func(a, b int) bool {
		ra, rb := res.Players[a].Rank, res.Players[b].Rank
		if ra == 0 || rb == 0 {
			return ra != 0 && rb == 0
		}
		return ra < rb
	})
	return res
}
