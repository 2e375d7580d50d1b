package data

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pixil98/go-testutil"

	"github.com/survarena/server/internal/gas"
)

const stageYAML = `
modes:
  solo:
    - state: waiting
      duration: 10
      old_radius: 100
      new_radius: 100
    - state: advancing
      duration: 5
      old_radius: 100
      new_radius: 50
      dps: 1
      summon_airdrop: true
`

func TestLoadGasStageTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gas_stages.yaml")
	if err := os.WriteFile(path, []byte(stageYAML), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	tbl, err := LoadGasStageTable(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	testutil.AssertEqual(t, "modes", tbl.Count(), 1)
	stages := tbl.Get("solo")
	testutil.AssertEqual(t, "stages", len(stages), 2)
	testutil.AssertEqual(t, "state", stages[1].State, gas.Advancing)
	testutil.AssertEqual(t, "duration", stages[0].Duration, 10*time.Second)
	testutil.AssertEqual(t, "airdrop", stages[1].SummonAirdrop, true)
	testutil.AssertEqual(t, "missing mode", len(tbl.Get("duo")), 0)
}

func TestParseGasStageTableErrors(t *testing.T) {
	_, err := ParseGasStageTable([]byte("modes:\n  solo: []\n"))
	if !errors.Is(err, gas.ErrEmptyStageTable) {
		t.Fatalf("expected ErrEmptyStageTable, got %v", err)
	}

	_, err = ParseGasStageTable([]byte("modes:\n  solo:\n    - state: sleeping\n      duration: 1\n"))
	testutil.AssertErrorContains(t, err, "unknown gas state")
}

func TestParseLayout(t *testing.T) {
	l, err := ParseLayout([]byte(`
name: test
width: 512
height: 512
obstacles:
  - {type: tree, x: 10, y: 10, radius: 3}
  - {type: crate, x: 40, y: 40, width: 4, height: 4, health: 50}
loot:
  - {item: bandage, count: 5, x: 20, y: 20}
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	testutil.AssertEqual(t, "obstacles", len(l.Obstacles), 2)
	testutil.AssertEqual(t, "loot", len(l.Loot), 1)

	_, err = ParseLayout([]byte("name: bad\nwidth: 10\nheight: 10\nobstacles:\n  - {type: rock, x: 1, y: 1}\n"))
	testutil.AssertErrorContains(t, err, "no hitbox")
}
