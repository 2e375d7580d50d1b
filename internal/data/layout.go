package data

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ObstacleSpawn places one static obstacle. Either Radius or Width/Height is set.
type ObstacleSpawn struct {
	Type   string  `yaml:"type"`
	X      float64 `yaml:"x"`
	Y      float64 `yaml:"y"`
	Radius float64 `yaml:"radius"`
	Width  float64 `yaml:"width"`
	Height float64 `yaml:"height"`
	Layer  int8    `yaml:"layer"`
	Health float64 `yaml:"health"` // 0 = indestructible
}

// LootSpawn places one loot pickup on the ground.
type LootSpawn struct {
	Item  string  `yaml:"item"`
	Count int     `yaml:"count"`
	X     float64 `yaml:"x"`
	Y     float64 `yaml:"y"`
	Layer int8    `yaml:"layer"`
}

// Layout is the static arena a match is played on.
type Layout struct {
	Name      string          `yaml:"name"`
	Width     float64         `yaml:"width"`
	Height    float64         `yaml:"height"`
	Obstacles []ObstacleSpawn `yaml:"obstacles"`
	Loot      []LootSpawn     `yaml:"loot"`
	// AirdropLoot is what a landed airdrop crate spills.
	AirdropLoot []LootSpawn `yaml:"airdrop_loot"`
}

// LoadLayout loads an arena layout from a YAML file.
func LoadLayout(path string) (*Layout, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read layout: %w", err)
	}
	return ParseLayout(raw)
}

// ParseLayout parses and validates an arena layout.
func ParseLayout(raw []byte) (*Layout, error) {
	var l Layout
	if err := yaml.Unmarshal(raw, &l); err != nil {
		return nil, fmt.Errorf("parse layout: %w", err)
	}
	if l.Width <= 0 || l.Height <= 0 {
		return nil, fmt.Errorf("layout %q: size %gx%g must be positive", l.Name, l.Width, l.Height)
	}
	for i, o := range l.Obstacles {
		if o.Radius <= 0 && (o.Width <= 0 || o.Height <= 0) {
			return nil, fmt.Errorf("layout %q obstacle %d: no hitbox", l.Name, i)
		}
	}
	return &l, nil
}
