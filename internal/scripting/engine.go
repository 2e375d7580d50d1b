package scripting

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/survarena/server/internal/core/ecs"
	"github.com/survarena/server/internal/geom"
	"github.com/survarena/server/internal/sim"
)

// Engine wraps a single gopher-lua VM holding the mode scripts.
// Single-goroutine access only (the instance tick goroutine).
type Engine struct {
	vm       *lua.LState
	log      *zap.Logger
	fallback sim.DefaultRules

	hasEvaluate bool
	hasAirdrop  bool
}

// NewEngine creates a Lua engine and loads all scripts from the given
// directory: core helpers first, then mode scripts.
func NewEngine(scriptsDir string, log *zap.Logger) (*Engine, error) {
	vm := lua.NewState(lua.Options{
		SkipOpenLibs: false,
	})

	// Set API version global
	vm.SetGlobal("API_VERSION", lua.LNumber(1))
	vm.SetGlobal("random_point_in_circle", vm.NewFunction(luaRandomPointInCircle))

	e := &Engine{vm: vm, log: log}

	for _, sub := range []string{"core", "modes"} {
		p := filepath.Join(scriptsDir, sub)
		if err := e.loadDir(p); err != nil {
			vm.Close()
			return nil, fmt.Errorf("load %s scripts: %w", sub, err)
		}
	}

	e.hasEvaluate = vm.GetGlobal("evaluate_round") != lua.LNil
	e.hasAirdrop = vm.GetGlobal("pick_airdrop") != lua.LNil
	log.Info("lua rules loaded",
		zap.Bool("evaluate_round", e.hasEvaluate),
		zap.Bool("pick_airdrop", e.hasAirdrop),
	)
	return e, nil
}

// loadDir loads all .lua files in a directory.
func (e *Engine) loadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // skip missing dirs
		}
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := e.vm.DoFile(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		e.log.Debug("loaded lua script", zap.String("file", path))
	}
	return nil
}

// EvaluateRound calls the Lua evaluate_round function:
//
//	evaluate_round{mode, tick, elapsed, joined, alive, started, gas_stage, gas_state}
//	  -> {finish = bool, winner = id, reset_gas = bool}
//
// Without the function, or when it fails, the built-in rules decide.
func (e *Engine) EvaluateRound(rs sim.RoundState) sim.Decision {
	if !e.hasEvaluate {
		return e.fallback.EvaluateRound(rs)
	}
	t := e.vm.NewTable()
	t.RawSetString("mode", lua.LString(rs.Mode))
	t.RawSetString("tick", lua.LNumber(rs.Tick))
	t.RawSetString("elapsed", lua.LNumber(rs.Elapsed.Seconds()))
	t.RawSetString("joined", lua.LNumber(rs.Joined))
	t.RawSetString("alive", lua.LNumber(rs.Alive))
	t.RawSetString("started", lua.LBool(rs.Started))
	t.RawSetString("gas_stage", lua.LNumber(rs.GasStage))
	t.RawSetString("gas_state", lua.LString(rs.GasState.String()))

	rt, ok := e.callTable("evaluate_round", t)
	if !ok {
		return e.fallback.EvaluateRound(rs)
	}
	return sim.Decision{
		End:      lua.LVAsBool(rt.RawGetString("finish")),
		Winner:   ecs.EntityID(lInt(rt, "winner")),
		ResetGas: lua.LVAsBool(rt.RawGetString("reset_gas")),
	}
}

// PickAirdrop calls the Lua pick_airdrop function:
//
//	pick_airdrop({x, y, r}, u1, u2) -> {x = number, y = number}
//
// A point outside zone is pulled back onto its edge.
func (e *Engine) PickAirdrop(zone geom.Circle, u1, u2 float64) geom.Vec2 {
	if !e.hasAirdrop {
		return e.fallback.PickAirdrop(zone, u1, u2)
	}
	z := e.vm.NewTable()
	z.RawSetString("x", lua.LNumber(zone.Pos.X))
	z.RawSetString("y", lua.LNumber(zone.Pos.Y))
	z.RawSetString("r", lua.LNumber(zone.Rad))

	rt, ok := e.callTable("pick_airdrop", z, lua.LNumber(u1), lua.LNumber(u2))
	if !ok {
		return e.fallback.PickAirdrop(zone, u1, u2)
	}
	p := geom.V(lFloat(rt, "x"), lFloat(rt, "y"))
	if math.IsNaN(p.X) || math.IsNaN(p.Y) {
		return e.fallback.PickAirdrop(zone, u1, u2)
	}
	if !zone.Contains(p) {
		d := p.Sub(zone.Pos).Normalize()
		p = zone.Pos.Add(d.Mul(zone.Rad))
	}
	return p
}

// callTable calls a global function expecting a single table result.
func (e *Engine) callTable(name string, args ...lua.LValue) (*lua.LTable, bool) {
	fn := e.vm.GetGlobal(name)
	if fn == lua.LNil {
		e.log.Error("lua function not found", zap.String("name", name))
		return nil, false
	}
	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, args...); err != nil {
		e.log.Error("lua call error", zap.String("func", name), zap.Error(err))
		return nil, false
	}

	result := e.vm.Get(-1)
	e.vm.Pop(1)

	rt, ok := result.(*lua.LTable)
	if !ok {
		e.log.Error("lua function returned non-table", zap.String("func", name))
		return nil, false
	}
	return rt, true
}

// luaRandomPointInCircle exposes geom.RandomPointInCircle to scripts:
// random_point_in_circle(x, y, r, u1, u2) -> x, y
func luaRandomPointInCircle(L *lua.LState) int {
	c := geom.Circle{Pos: geom.V(float64(L.CheckNumber(1)), float64(L.CheckNumber(2))), Rad: float64(L.CheckNumber(3))}
	p := geom.RandomPointInCircle(c, float64(L.CheckNumber(4)), float64(L.CheckNumber(5)))
	L.Push(lua.LNumber(p.X))
	L.Push(lua.LNumber(p.Y))
	return 2
}

// --- Lua helpers ---

// lInt reads an integer field from a Lua table.
func lInt(t *lua.LTable, key string) int {
	return int(lua.LVAsNumber(t.RawGetString(key)))
}

// lFloat reads a number field from a Lua table. Missing fields are NaN.
func lFloat(t *lua.LTable, key string) float64 {
	v, ok := t.RawGetString(key).(lua.LNumber)
	if !ok {
		return math.NaN()
	}
	return float64(v)
}

// Close shuts down the Lua VM.
func (e *Engine) Close() {
	e.vm.Close()
}
