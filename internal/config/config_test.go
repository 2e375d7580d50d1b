package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pixil98/go-testutil"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "arena.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
[sim]
mode = "wave"
tick_rate = 20
end_grace = "2s"

[nats]
url = "nats://localhost:4222"

[logging]
format = "json"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	testutil.AssertEqual(t, "mode", cfg.Sim.Mode, "wave")
	testutil.AssertEqual(t, "tick rate", cfg.Sim.TickRate, 20)
	testutil.AssertEqual(t, "grace", cfg.Sim.EndGrace, 2*time.Second)
	testutil.AssertEqual(t, "nats url", cfg.Nats.URL, "nats://localhost:4222")
	testutil.AssertEqual(t, "nats prefix default", cfg.Nats.Prefix, "arena")
	testutil.AssertEqual(t, "format", cfg.Logging.Format, "json")
	testutil.AssertEqual(t, "cell size default", cfg.Sim.CellSize, 16.0)
	testutil.AssertEqual(t, "db disabled", cfg.Database.DSN, "")
}

func TestLoadErrors(t *testing.T) {
	tests := map[string]struct {
		body string
		want string
	}{
		"bad toml":       {body: "[sim\n", want: "parse config"},
		"zero tick rate": {body: "[sim]\ntick_rate = 0\n", want: "tick_rate"},
		"bad cell size":  {body: "[sim]\ncell_size = -1.0\n", want: "cell_size"},
		"no stage table": {body: "[gas]\nstage_table = \"\"\n", want: "stage_table"},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body))
			testutil.AssertErrorContains(t, err, tc.want)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	testutil.AssertErrorContains(t, err, "read config")
}

func TestPathFromEnv(t *testing.T) {
	t.Setenv(EnvPath, "")
	testutil.AssertEqual(t, "default", Path(), DefaultPath)
	t.Setenv(EnvPath, "/etc/arena.toml")
	testutil.AssertEqual(t, "env", Path(), "/etc/arena.toml")
}
