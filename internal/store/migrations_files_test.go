package store

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/google/go-cmp/cmp"
)

func TestEmbeddedMigrationsMatchDisk(t *testing.T) {
	embedded, err := fs.Glob(MigrationFiles(""), "*.sql")
	if err != nil {
		t.Fatalf("glob embedded: %v", err)
	}
	onDisk, err := filepath.Glob(filepath.Join("..", "..", "db", "migrations", "*.sql"))
	if err != nil {
		t.Fatalf("glob disk: %v", err)
	}
	for i := range onDisk {
		onDisk[i] = filepath.Base(onDisk[i])
	}
	if diff := cmp.Diff(onDisk, embedded); diff != "" {
		t.Fatalf("embedded migrations out of date (-disk +embedded):\n%s", diff)
	}
}

func TestMigrationsHaveMatchingUpAndDownFiles(t *testing.T) {
	set, err := NewMigrator(MigrationFiles(""), nil).load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(set) == 0 {
		t.Fatal("no migrations discovered")
	}
	for _, mig := range set {
		if mig.down == "" {
			t.Fatalf("version %s must include both up and down files", mig.version)
		}
	}
}

func TestMigrationOrderingAndLayoutErrors(t *testing.T) {
	sql := func(text string) *fstest.MapFile { return &fstest.MapFile{Data: []byte(text)} }

	set, err := NewMigrator(fstest.MapFS{
		"0002_key_results.up.sql":   sql("SELECT 2"),
		"0002_key_results.down.sql": sql("SELECT 2"),
		"0001_core.up.sql":          sql("SELECT 1"),
		"0001_core.down.sql":        sql("SELECT 1"),
		"README.md":                 sql("notes"),
	}, nil).load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	var ups []string
	for _, mig := range set {
		ups = append(ups, mig.up)
	}
	if diff := cmp.Diff([]string{"0001_core.up.sql", "0002_key_results.up.sql"}, ups); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}

	tests := map[string]fstest.MapFS{
		"down without up": {"0001_core.down.sql": sql("SELECT 1")},
		"duplicate up": {
			"0001_core.up.sql":  sql("SELECT 1"),
			"0001_other.up.sql": sql("SELECT 1"),
		},
	}
	for name, files := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := NewMigrator(files, nil).load(); err == nil {
				t.Fatal("expected a layout error")
			}
		})
	}
}

func TestMigrationFilesOverride(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "0001_local.up.sql"), []byte("SELECT 1"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	set, err := NewMigrator(MigrationFiles(dir), nil).load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(set) != 1 || set[0].up != "0001_local.up.sql" {
		t.Fatalf("override directory ignored: %+v", set)
	}
}
