package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationFiles embed.FS

// Migration represents a single database migration
type Migration struct {
	Version   int
	Name      string
	UpSQL     string
	DownSQL   string
	AppliedAt *time.Time
}

// execer runs statements either directly or inside a migration transaction.
type execer func(ctx context.Context, query string, args ...any) error

// driver hides the difference between pgx and database/sql connections.
type driver interface {
	initSQL() string
	recordSQL() string
	forgetSQL() string
	exec(ctx context.Context, query string, args ...any) error
	applied(ctx context.Context) (map[int]time.Time, error)
	inTx(ctx context.Context, fn func(exec execer) error) error
}

// Manager handles database migrations
type Manager struct {
	db     driver
	dir    string
	files  fs.FS
	logger *zap.Logger
}

// NewPostgresManager creates a migration manager for a pgx pool.
func NewPostgresManager(pool *pgxpool.Pool, logger *zap.Logger) *Manager {
	return &Manager{db: &pgxDriver{pool: pool}, dir: "migrations/postgres", files: migrationFiles, logger: logger}
}

// NewSQLiteManager creates a migration manager for a SQLite database.
func NewSQLiteManager(db *sql.DB, logger *zap.Logger) *Manager {
	return &Manager{db: &sqliteDriver{db: db}, dir: "migrations/sqlite", files: migrationFiles, logger: logger}
}

// Initialize creates the migrations table if it doesn't exist
func (m *Manager) Initialize(ctx context.Context) error {
	return m.db.exec(ctx, m.db.initSQL())
}

// LoadMigrations reads the embedded migration files for the manager's dialect
func (m *Manager) LoadMigrations() ([]Migration, error) {
	entries, err := fs.ReadDir(m.files, m.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	migrations := make(map[int]Migration)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}

		// 001_initial_schema.sql or 001_initial_schema_down.sql
		base := strings.TrimSuffix(name, ".sql")
		down := strings.HasSuffix(base, "_down")
		base = strings.TrimSuffix(base, "_down")

		prefix, rest, ok := strings.Cut(base, "_")
		if !ok {
			continue
		}
		version, err := strconv.Atoi(prefix)
		if err != nil || version == 0 {
			continue
		}

		content, err := fs.ReadFile(m.files, path.Join(m.dir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to read migration file %s: %w", name, err)
		}

		migration, exists := migrations[version]
		if !exists {
			migration = Migration{Version: version, Name: rest}
		}
		if down {
			migration.DownSQL = string(content)
		} else {
			migration.UpSQL = string(content)
		}
		migrations[version] = migration
	}

	result := make([]Migration, 0, len(migrations))
	for _, mg := range migrations {
		result = append(result, mg)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Version < result[j].Version
	})

	return result, nil
}

// GetAppliedMigrations returns all applied migrations
func (m *Manager) GetAppliedMigrations(ctx context.Context) (map[int]time.Time, error) {
	applied, err := m.db.applied(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	return applied, nil
}

// Status lists every known migration with its applied time, if any.
func (m *Manager) Status(ctx context.Context) ([]Migration, error) {
	if err := m.Initialize(ctx); err != nil {
		return nil, err
	}
	migrations, err := m.LoadMigrations()
	if err != nil {
		return nil, err
	}
	applied, err := m.GetAppliedMigrations(ctx)
	if err != nil {
		return nil, err
	}
	for i := range migrations {
		if at, ok := applied[migrations[i].Version]; ok {
			at := at
			migrations[i].AppliedAt = &at
		}
	}
	return migrations, nil
}

// Up applies all pending migrations and returns how many ran
func (m *Manager) Up(ctx context.Context) (int, error) {
	if err := m.Initialize(ctx); err != nil {
		return 0, fmt.Errorf("failed to initialize migrations table: %w", err)
	}

	migrations, err := m.LoadMigrations()
	if err != nil {
		return 0, err
	}

	applied, err := m.GetAppliedMigrations(ctx)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, migration := range migrations {
		if _, ok := applied[migration.Version]; ok {
			continue
		}

		err := m.db.inTx(ctx, func(exec execer) error {
			if err := exec(ctx, migration.UpSQL); err != nil {
				return fmt.Errorf("failed to apply migration %d: %w", migration.Version, err)
			}
			if err := exec(ctx, m.db.recordSQL(), migration.Version, migration.Name); err != nil {
				return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
			}
			return nil
		})
		if err != nil {
			return count, err
		}

		count++
		m.logger.Info("Applied migration",
			zap.Int("version", migration.Version),
			zap.String("name", migration.Name),
		)
	}

	return count, nil
}

// Down rolls back the last migration
func (m *Manager) Down(ctx context.Context) error {
	if err := m.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize migrations table: %w", err)
	}

	migrations, err := m.LoadMigrations()
	if err != nil {
		return err
	}

	applied, err := m.GetAppliedMigrations(ctx)
	if err != nil {
		return err
	}

	if len(applied) == 0 {
		return fmt.Errorf("no migrations to roll back")
	}

	var lastVersion int
	for version := range applied {
		if version > lastVersion {
			lastVersion = version
		}
	}

	var migration *Migration
	for i := range migrations {
		if migrations[i].Version == lastVersion {
			migration = &migrations[i]
			break
		}
	}
	if migration == nil || migration.DownSQL == "" {
		return fmt.Errorf("no down migration for version %d", lastVersion)
	}

	err = m.db.inTx(ctx, func(exec execer) error {
		if err := exec(ctx, migration.DownSQL); err != nil {
			return fmt.Errorf("failed to roll back migration %d: %w", migration.Version, err)
		}
		if err := exec(ctx, m.db.forgetSQL(), migration.Version); err != nil {
			return fmt.Errorf("failed to remove migration record %d: %w", migration.Version, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	m.logger.Info("Rolled back migration",
		zap.Int("version", migration.Version),
		zap.String("name", migration.Name),
	)
	return nil
}

type pgxDriver struct {
	pool *pgxpool.Pool
}

func (d *pgxDriver) initSQL() string {
	return `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`
}

func (d *pgxDriver) recordSQL() string {
	return "INSERT INTO schema_migrations (version, name) VALUES ($1, $2)"
}

func (d *pgxDriver) forgetSQL() string {
	return "DELETE FROM schema_migrations WHERE version = $1"
}

func (d *pgxDriver) exec(ctx context.Context, query string, args ...any) error {
	_, err := d.pool.Exec(ctx, query, args...)
	return err
}

func (d *pgxDriver) applied(ctx context.Context) (map[int]time.Time, error) {
	rows, err := d.pool.Query(ctx, "SELECT version, applied_at FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]time.Time)
	for rows.Next() {
		var version int
		var appliedAt time.Time
		if err := rows.Scan(&version, &appliedAt); err != nil {
			return nil, fmt.Errorf("failed to scan migration row: %w", err)
		}
		applied[version] = appliedAt
	}
	return applied, rows.Err()
}

func (d *pgxDriver) inTx(ctx context.Context, fn func(exec execer) error) error {
	return pgx.BeginFunc(ctx, d.pool, func(tx pgx.Tx) error {
		return fn(func(ctx context.Context, query string, args ...any) error {
			_, err := tx.Exec(ctx, query, args...)
			return err
		})
	})
}

type sqliteDriver struct {
	db *sql.DB
}

func (d *sqliteDriver) initSQL() string {
	return `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at INTEGER NOT NULL DEFAULT (CAST(strftime('%s', 'now') AS INTEGER))
		);
	`
}

func (d *sqliteDriver) recordSQL() string {
	return "INSERT INTO schema_migrations (version, name) VALUES (?, ?)"
}

func (d *sqliteDriver) forgetSQL() string {
	return "DELETE FROM schema_migrations WHERE version = ?"
}

func (d *sqliteDriver) exec(ctx context.Context, query string, args ...any) error {
	_, err := d.db.ExecContext(ctx, query, args...)
	return err
}

func (d *sqliteDriver) applied(ctx context.Context) (map[int]time.Time, error) {
	rows, err := d.db.QueryContext(ctx, "SELECT version, applied_at FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]time.Time)
	for rows.Next() {
		var version int
		var appliedAt int64
		if err := rows.Scan(&version, &appliedAt); err != nil {
			return nil, fmt.Errorf("failed to scan migration row: %w", err)
		}
		applied[version] = time.Unix(appliedAt, 0).UTC()
	}
	return applied, rows.Err()
}

func (d *sqliteDriver) inTx(ctx context.Context, fn func(exec execer) error) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	err = fn(func(ctx context.Context, query string, args ...any) error {
		_, err := tx.ExecContext(ctx, query, args...)
		return err
	})
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
