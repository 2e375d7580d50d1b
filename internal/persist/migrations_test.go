package persist

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/pixil98/go-testutil"
)

func TestMigrationsEmbedded(t *testing.T) {
	files, err := fs.Glob(migrations, "migrations/*.sql")
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	testutil.AssertEqual(t, "migration count", len(files), 2)
	for _, f := range files {
		raw, err := fs.ReadFile(migrations, f)
		if err != nil {
			t.Fatalf("read %s: %v", f, err)
		}
		body := string(raw)
		if !strings.Contains(body, "-- +goose Up") || !strings.Contains(body, "-- +goose Down") {
			t.Errorf("%s: missing goose annotations", f)
		}
	}
}
