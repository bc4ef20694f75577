package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"

	"VammLedger/internal/observability"
	"VammLedger/migrations"

	"github.com/rs/zerolog"
)

// migrationLockID serializes migrators across processes.
const migrationLockID = 0x7661_6d6d

// Migrator applies {version}_{name}.up.sql / .down.sql files in version
// order, recording each in public.schema_migrations.
type Migrator struct {
	db  *sql.DB
	src fs.FS
	log zerolog.Logger
}

// NewMigrator reads migrations from dir, or from the schema compiled into
// the binary when dir is empty.
func NewMigrator(db *sql.DB, dir string) *Migrator {
	var src fs.FS = migrations.FS
	if dir != "" {
		src = os.DirFS(dir)
	}
	return &Migrator{db: db, src: src, log: observability.NewLogger("migrator")}
}

// Pending lists the up-migrations not applied yet, in order.
func (m *Migrator) Pending(ctx context.Context) ([]string, error) {
	if err := m.ensureMigrationTable(ctx); err != nil {
		return nil, fmt.Errorf("ensure migration table: %w", err)
	}
	applied, err := m.appliedVersions(ctx)
	if err != nil {
		return nil, fmt.Errorf("get applied versions: %w", err)
	}
	files, err := m.files(".up.sql")
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	var pending []string
	for _, f := range files {
		if !applied[versionOf(f)] {
			pending = append(pending, f)
		}
	}
	return pending, nil
}

// Up applies all pending up-migrations, each in its own transaction, under
// a session advisory lock.
func (m *Migrator) Up(ctx context.Context) error {
	return m.locked(ctx, func(conn *sql.Conn) error {
		pending, err := m.Pending(ctx)
		if err != nil {
			return err
		}
		for _, f := range pending {
			m.log.Info().Str("file", f).Msg("applying migration")
			if err := m.exec(ctx, conn, f,
				`INSERT INTO public.schema_migrations (version, filename) VALUES ($1, $2)`,
				versionOf(f), f); err != nil {
				return err
			}
		}
		return nil
	})
}

// Down rolls back the last applied migration.
func (m *Migrator) Down(ctx context.Context) error {
	return m.locked(ctx, func(conn *sql.Conn) error {
		if err := m.ensureMigrationTable(ctx); err != nil {
			return err
		}
		var version, filename string
		err := conn.QueryRowContext(ctx,
			`SELECT version, filename FROM public.schema_migrations ORDER BY version DESC LIMIT 1`,
		).Scan(&version, &filename)
		if errors.Is(err, sql.ErrNoRows) {
			m.log.Info().Msg("no migrations to roll back")
			return nil
		}
		if err != nil {
			return fmt.Errorf("get latest migration: %w", err)
		}

		down := strings.TrimSuffix(filename, ".up.sql") + ".down.sql"
		if err := m.exec(ctx, conn, down,
			`DELETE FROM public.schema_migrations WHERE version = $1`, version); err != nil {
			return err
		}
		m.log.Info().Str("file", down).Msg("rolled back migration")
		return nil
	})
}

// exec runs one migration file and its bookkeeping statement atomically.
func (m *Migrator) exec(ctx context.Context, conn *sql.Conn, file, record string, args ...any) error {
	content, err := fs.ReadFile(m.src, file)
	if err != nil {
		return fmt.Errorf("read migration %s: %w", file, err)
	}
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx for %s: %w", file, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, string(content)); err != nil {
		return fmt.Errorf("exec migration %s: %w", file, err)
	}
	if _, err := tx.ExecContext(ctx, record, args...); err != nil {
		return fmt.Errorf("record migration %s: %w", file, err)
	}
	return tx.Commit()
}

func (m *Migrator) locked(ctx context.Context, fn func(*sql.Conn) error) error {
	conn, err := m.db.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_lock($1)`, migrationLockID); err != nil {
		return fmt.Errorf("migration lock: %w", err)
	}
	defer conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, migrationLockID)
	return fn(conn)
}

func (m *Migrator) ensureMigrationTable(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS public.schema_migrations (
			version    TEXT PRIMARY KEY,
			filename   TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	return err
}

func (m *Migrator) appliedVersions(ctx context.Context) (map[string]bool, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT version FROM public.schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

func (m *Migrator) files(suffix string) ([]string, error) {
	entries, err := fs.ReadDir(m.src, ".")
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), suffix) {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

// versionOf returns the numeric prefix: "000001_event_log.up.sql" is "000001".
func versionOf(filename string) string {
	version, _, _ := strings.Cut(filename, "_")
	return version
}
