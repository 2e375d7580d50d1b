package data

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/survarena/server/internal/gas"
)

// gasStageEntry is one row of gas_stages.yaml. Durations are seconds.
type gasStageEntry struct {
	State         string  `yaml:"state"`
	Duration      float64 `yaml:"duration"`
	OldRadius     float64 `yaml:"old_radius"`
	NewRadius     float64 `yaml:"new_radius"`
	DPS           float64 `yaml:"dps"`
	SummonAirdrop bool    `yaml:"summon_airdrop"`
}

type gasStageFile struct {
	Modes map[string][]gasStageEntry `yaml:"modes"`
}

// GasStageTable holds the stage tables for every game mode.
type GasStageTable struct {
	modes map[string][]gas.Stage
}

// Get returns the stage table for mode, or nil if none defined.
func (t *GasStageTable) Get(mode string) []gas.Stage {
	return t.modes[mode]
}

// Count returns the number of modes.
func (t *GasStageTable) Count() int {
	return len(t.modes)
}

// LoadGasStageTable loads gas stage tables from a YAML file.
func LoadGasStageTable(path string) (*GasStageTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read gas_stages: %w", err)
	}
	return ParseGasStageTable(raw)
}

// ParseGasStageTable parses the YAML body of a gas stage file. A mode with
// no stages is a configuration fault.
func ParseGasStageTable(raw []byte) (*GasStageTable, error) {
	var f gasStageFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse gas_stages: %w", err)
	}
	t := &GasStageTable{modes: make(map[string][]gas.Stage, len(f.Modes))}
	for mode, entries := range f.Modes {
		if len(entries) == 0 {
			return nil, fmt.Errorf("gas_stages mode %q: %w", mode, gas.ErrEmptyStageTable)
		}
		stages := make([]gas.Stage, 0, len(entries))
		for i, e := range entries {
			st, err := gas.ParseState(e.State)
			if err != nil {
				return nil, fmt.Errorf("gas_stages mode %q stage %d: %w", mode, i, err)
			}
			stages = append(stages, gas.Stage{
				State:         st,
				Duration:      time.Duration(e.Duration * float64(time.Second)),
				OldRadius:     e.OldRadius,
				NewRadius:     e.NewRadius,
				DPS:           e.DPS,
				SummonAirdrop: e.SummonAirdrop,
			})
		}
		t.modes[mode] = stages
	}
	return t, nil
}
