package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// EnvPath names the environment variable that overrides the config path.
const EnvPath = "ARENA_CONFIG"

// DefaultPath is used when EnvPath is unset.
const DefaultPath = "config/arena.toml"

type Config struct {
	Server    ServerConfig    `toml:"server"`
	Network   NetworkConfig   `toml:"network"`
	Sim       SimConfig       `toml:"sim"`
	Gas       GasConfig       `toml:"gas"`
	Scripting ScriptingConfig `toml:"scripting"`
	Database  DatabaseConfig  `toml:"database"`
	Nats      NatsConfig      `toml:"nats"`
	Logging   LoggingConfig   `toml:"logging"`
	RateLimit RateLimitConfig `toml:"rate_limit"`
}

type ServerConfig struct {
	Name      string `toml:"name"`
	Region    string `toml:"region"`
	StartTime int64  // set at boot, not from config
}

type NetworkConfig struct {
	BindAddress       string        `toml:"bind_address"`
	WSPath            string        `toml:"ws_path"`
	InQueueSize       int           `toml:"in_queue_size"`
	OutQueueSize      int           `toml:"out_queue_size"`
	MaxPacketsPerTick int           `toml:"max_packets_per_tick"`
	WriteTimeout      time.Duration `toml:"write_timeout"`
	ReadTimeout       time.Duration `toml:"read_timeout"`
	CompressThreshold int           `toml:"compress_threshold"` // bytes, 0 = never compress
	// RequireAllow refuses connections from IPs the matchmaker has not allowed.
	RequireAllow bool `toml:"require_allow"`
}

type SimConfig struct {
	Mode           string        `toml:"mode"`
	TickRate       int           `toml:"tick_rate"` // ticks per second
	Layout         string        `toml:"layout"`
	MinPlayers     int           `toml:"min_players"`
	CellSize       float64       `toml:"cell_size"`
	ViewWidth      float64       `toml:"view_width"`
	ViewHeight     float64       `toml:"view_height"`
	RecomputeEvery uint64        `toml:"recompute_every"` // ticks
	MoveThreshold  float64       `toml:"move_threshold"`
	MaxEntities    int           `toml:"max_entities"`
	EndGrace       time.Duration `toml:"end_grace"`
	AirdropFall    time.Duration `toml:"airdrop_fall"`
}

type GasConfig struct {
	StageTable string `toml:"stage_table"`
	Seed       int64  `toml:"seed"` // 0 = time-seeded
}

type ScriptingConfig struct {
	Dir string `toml:"dir"`
}

type DatabaseConfig struct {
	DSN             string        `toml:"dsn"` // empty disables the results store
	MaxOpenConns    int           `toml:"max_open_conns"`
	MaxIdleConns    int           `toml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `toml:"conn_max_lifetime"`
}

type NatsConfig struct {
	URL    string `toml:"url"` // empty disables clustering
	Prefix string `toml:"prefix"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "json" or "console"
}

type RateLimitConfig struct {
	PacketsPerSecond   int `toml:"packets_per_second"`
	MalformedPerSecond int `toml:"malformed_per_second"`
}

// Path returns the config file path from ARENA_CONFIG or the default.
func Path() string {
	if p := os.Getenv(EnvPath); p != "" {
		return p
	}
	return DefaultPath
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := defaults()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	cfg.Server.StartTime = time.Now().Unix()
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Sim.TickRate <= 0 {
		return fmt.Errorf("sim.tick_rate must be positive, got %d", c.Sim.TickRate)
	}
	if c.Sim.CellSize <= 0 {
		return fmt.Errorf("sim.cell_size must be positive, got %g", c.Sim.CellSize)
	}
	if c.Sim.Layout == "" {
		return fmt.Errorf("sim.layout is required")
	}
	if c.Gas.StageTable == "" {
		return fmt.Errorf("gas.stage_table is required")
	}
	return nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Name:   "survarena",
			Region: "local",
		},
		Network: NetworkConfig{
			BindAddress:       "0.0.0.0:8001",
			WSPath:            "/play",
			InQueueSize:       128,
			OutQueueSize:      256,
			MaxPacketsPerTick: 16,
			WriteTimeout:      10 * time.Second,
			ReadTimeout:       30 * time.Second,
			CompressThreshold: 1024,
		},
		Sim: SimConfig{
			Mode:           "solo",
			TickRate:       30,
			Layout:         "data/layouts/island.yaml",
			MinPlayers:     2,
			CellSize:       16,
			ViewWidth:      96,
			ViewHeight:     64,
			RecomputeEvery: 5,
			MoveThreshold:  4,
			MaxEntities:    8192,
			EndGrace:       5 * time.Second,
			AirdropFall:    8 * time.Second,
		},
		Gas: GasConfig{
			StageTable: "data/gas_stages.yaml",
		},
		Scripting: ScriptingConfig{
			Dir: "scripts",
		},
		Database: DatabaseConfig{
			MaxOpenConns:    4,
			MaxIdleConns:    1,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Nats: NatsConfig{
			Prefix: "arena",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		RateLimit: RateLimitConfig{
			PacketsPerSecond:   120,
			MalformedPerSecond: 10,
		},
	}
}
