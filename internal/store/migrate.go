package store

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"sort"
	"strings"

	"okrhub/api/db/migrations"
	"okrhub/api/internal/logger"
)

// migrationLockKey serializes migrators across API instances.
const migrationLockKey int64 = 0x6f6b7268756201

var migrationName = regexp.MustCompile(`^(\d+)_[a-z0-9_]+\.(up|down)\.sql$`)

type migration struct {
	version string
	up      string
	down    string
}

// MigrationFiles returns the embedded schema, or the directory dir when it
// is set.
func MigrationFiles(dir string) fs.FS {
	if strings.TrimSpace(dir) == "" {
		return migrations.FS
	}
	return os.DirFS(dir)
}

// Migrator applies and rolls back the OKR schema. Versions are recorded in
// schema_migrations by their up file name.
type Migrator struct {
	files fs.FS
	log   *logger.Logger
}

func NewMigrator(files fs.FS, log *logger.Logger) *Migrator {
	if log == nil {
		log = logger.Nop()
	}
	return &Migrator{files: files, log: log.With("component", "store.migrate")}
}

// Up applies every pending migration in version order and returns the file
// names it applied. Each migration runs in its own transaction.
func (m *Migrator) Up(ctx context.Context, db *sql.DB) ([]string, error) {
	set, err := m.load()
	if err != nil {
		return nil, err
	}
	conn, unlock, err := lockMigrations(ctx, db)
	if err != nil {
		return nil, err
	}
	defer unlock()

	done, err := appliedVersions(ctx, conn)
	if err != nil {
		return nil, err
	}

	var applied []string
	for _, mig := range set {
		name := mig.up
		if done[name] {
			continue
		}
		contents, err := fs.ReadFile(m.files, mig.up)
		if err != nil {
			return applied, fmt.Errorf("read migration %s: %w", name, err)
		}
		if err := execInTx(ctx, conn, string(contents), `INSERT INTO schema_migrations(version) VALUES($1)`, name); err != nil {
			return applied, fmt.Errorf("apply migration %s: %w", name, err)
		}
		m.log.Info("migration applied", "version", name)
		applied = append(applied, name)
	}
	if len(applied) == 0 {
		m.log.Debug("schema up to date", "migrations", len(set))
	}
	return applied, nil
}

// Down rolls back the newest steps applied migrations and returns the file
// names it reverted. steps <= 0 rolls back everything.
func (m *Migrator) Down(ctx context.Context, db *sql.DB, steps int) ([]string, error) {
	set, err := m.load()
	if err != nil {
		return nil, err
	}
	conn, unlock, err := lockMigrations(ctx, db)
	if err != nil {
		return nil, err
	}
	defer unlock()

	done, err := appliedVersions(ctx, conn)
	if err != nil {
		return nil, err
	}

	var reverted []string
	for i := len(set) - 1; i >= 0; i-- {
		if steps > 0 && len(reverted) == steps {
			break
		}
		mig := set[i]
		name := mig.up
		if !done[name] {
			continue
		}
		if mig.down == "" {
			return reverted, fmt.Errorf("migration %s has no down file", name)
		}
		contents, err := fs.ReadFile(m.files, mig.down)
		if err != nil {
			return reverted, fmt.Errorf("read migration %s: %w", mig.down, err)
		}
		if err := execInTx(ctx, conn, string(contents), `DELETE FROM schema_migrations WHERE version=$1`, name); err != nil {
			return reverted, fmt.Errorf("revert migration %s: %w", name, err)
		}
		m.log.Info("migration reverted", "version", name)
		reverted = append(reverted, name)
	}
	return reverted, nil
}

// load pairs up and down files by version and sorts them oldest first.
func (m *Migrator) load() ([]migration, error) {
	entries, err := fs.ReadDir(m.files, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}
	byVersion := map[string]*migration{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		match := migrationName.FindStringSubmatch(entry.Name())
		if match == nil {
			continue
		}
		mig, ok := byVersion[match[1]]
		if !ok {
			mig = &migration{version: match[1]}
			byVersion[match[1]] = mig
		}
		target := &mig.up
		if match[2] == "down" {
			target = &mig.down
		}
		if *target != "" {
			return nil, fmt.Errorf("duplicate %s migration for version %s", match[2], match[1])
		}
		*target = entry.Name()
	}

	set := make([]migration, 0, len(byVersion))
	for _, mig := range byVersion {
		if mig.up == "" {
			return nil, fmt.Errorf("migration %s has no up file", mig.version)
		}
		set = append(set, *mig)
	}
	sort.Slice(set, func(i, j int) bool { return set[i].version < set[j].version })
	return set, nil
}

// lockMigrations pins one connection and holds a session advisory lock on
// it until unlock is called.
func lockMigrations(ctx context.Context, db *sql.DB) (*sql.Conn, func(), error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("migration connection: %w", err)
	}
	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_lock($1)`, migrationLockKey); err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("migration lock: %w", err)
	}
	return conn, func() {
		_, _ = conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, migrationLockKey)
		_ = conn.Close()
	}, nil
}

func appliedVersions(ctx context.Context, conn *sql.Conn) (map[string]bool, error) {
	if _, err := conn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`); err != nil {
		return nil, fmt.Errorf("ensure schema_migrations: %w", err)
	}
	rows, err := conn.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("list applied migrations: %w", err)
	}
	defer rows.Close()
	done := map[string]bool{}
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("scan applied migration: %w", err)
		}
		done[version] = true
	}
	return done, rows.Err()
}

func execInTx(ctx context.Context, conn *sql.Conn, script, record, version string) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, script); err != nil {
		_ = tx.Rollback()
		return err
	}
	if _, err := tx.ExecContext(ctx, record, version); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
