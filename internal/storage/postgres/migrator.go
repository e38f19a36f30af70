package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

//go:embed sql/migrations/*.sql
var migrationsFS embed.FS

const (
	migrationsDir = "sql/migrations"
	// Ключ advisory lock, под которым выполняются миграции.
	migrationLockKey = int64(20261014)

	schemaMigrationsDDL = `CREATE TABLE IF NOT EXISTS schema_migrations (
		version    BIGINT PRIMARY KEY,
		name       TEXT NOT NULL,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`
	recordMigrationSQL = `INSERT INTO schema_migrations (version, name, applied_at) VALUES ($1, $2, NOW())`
	forgetMigrationSQL = `DELETE FROM schema_migrations WHERE version = $1`
	appliedVersionsSQL = `SELECT version FROM schema_migrations`
	statusSQL          = `SELECT COALESCE(MAX(version), 0), COUNT(*) FROM schema_migrations`
)

var migrationFileRe = regexp.MustCompile(`^(\d+)_([a-zA-Z0-9_]+)\.(up|down)\.sql$`)

var errStoreNotInitialized = errors.New("postgres store is not initialized")

type migrationDirection string

const (
	migrationUp   migrationDirection = "up"
	migrationDown migrationDirection = "down"
)

type migration struct {
	Version int64
	Name    string
	UpSQL   string
	DownSQL string
}

func (m migration) body(direction migrationDirection) string {
	if direction == migrationDown {
		return m.DownSQL
	}
	return m.UpSQL
}

// MigrationInfo: строка плана миграций для cmd/migrate.
type MigrationInfo struct {
	Version int64
	Name    string
	Applied bool
}

// MigrateUp применяет steps ещё не применённых миграций по возрастанию версии, steps=0 применяет все.
func (s *Store) MigrateUp(ctx context.Context, steps int) error {
	return s.migrate(ctx, migrationUp, steps)
}

// MigrateDown откатывает steps последних применённых миграций. steps<=0 откатывает одну.
func (s *Store) MigrateDown(ctx context.Context, steps int) error {
	if steps <= 0 {
		steps = 1
	}
	return s.migrate(ctx, migrationDown, steps)
}

// MigrationStatus возвращает старшую применённую версию и число применённых миграций.
func (s *Store) MigrationStatus(ctx context.Context) (int64, int, error) {
	if s == nil || s.db == nil {
		return 0, 0, errStoreNotInitialized
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, schemaMigrationsDDL); err != nil {
		return 0, 0, fmt.Errorf("ensure schema_migrations: %w", err)
	}
	var (
		version int64
		count   int
	)
	if err := s.db.QueryRowContext(ctx, statusSQL).Scan(&version, &count); err != nil {
		return 0, 0, fmt.Errorf("query migration status: %w", err)
	}
	return version, count, nil
}

// MigrationPlan перечисляет встроенные миграции с отметкой о применении.
func (s *Store) MigrationPlan(ctx context.Context) ([]MigrationInfo, error) {
	var plan []MigrationInfo
	err := s.withMigrationConn(ctx, false, func(conn *sql.Conn, migrations []migration, applied map[int64]bool) error {
		plan = planFor(migrations, applied)
		return nil
	})
	return plan, err
}

func planFor(migrations []migration, applied map[int64]bool) []MigrationInfo {
	plan := make([]MigrationInfo, len(migrations))
	for i, m := range migrations {
		plan[i] = MigrationInfo{Version: m.Version, Name: m.Name, Applied: applied[m.Version]}
	}
	return plan
}

func (s *Store) migrate(ctx context.Context, direction migrationDirection, steps int) error {
	if direction != migrationUp && direction != migrationDown {
		return fmt.Errorf("unsupported migration direction: %s", direction)
	}
	return s.withMigrationConn(ctx, true, func(conn *sql.Conn, migrations []migration, applied map[int64]bool) error {
		queue, err := migrationQueue(migrations, applied, direction, steps)
		if err != nil {
			return err
		}
		for _, m := range queue {
			if err := runMigration(ctx, conn, m, direction); err != nil {
				return err
			}
		}
		return nil
	})
}

// withMigrationConn выдаёт fn выделенное соединение с готовой schema_migrations.
// При lock=true fn выполняется под advisory lock, так что параллельные мигрирующие процессы идут по очереди.
func (s *Store) withMigrationConn(ctx context.Context, lock bool, fn func(*sql.Conn, []migration, map[int64]bool) error) error {
	if s == nil || s.db == nil {
		return errStoreNotInitialized
	}
	migrations, err := loadMigrationsFromFS(migrationsFS)
	if err != nil {
		return err
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire db connection: %w", err)
	}
	defer conn.Close()

	if lock {
		lockCtx, cancel := context.WithTimeout(ctx, opTimeout)
		_, err := conn.ExecContext(lockCtx, "SELECT pg_advisory_lock($1)", migrationLockKey)
		cancel()
		if err != nil {
			return fmt.Errorf("acquire migration lock: %w", err)
		}
		defer func() {
			unlockCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_, _ = conn.ExecContext(unlockCtx, "SELECT pg_advisory_unlock($1)", migrationLockKey)
		}()
	}

	if _, err := conn.ExecContext(ctx, schemaMigrationsDDL); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}
	applied, err := appliedVersions(ctx, conn)
	if err != nil {
		return err
	}
	return fn(conn, migrations, applied)
}

// migrationQueue выбирает миграции для выполнения в нужном порядке.
// Вверх: неприменённые по возрастанию версии. Вниз: применённые по убыванию.
// steps<=0 снимает ограничение на длину очереди.
func migrationQueue(migrations []migration, applied map[int64]bool, direction migrationDirection, steps int) ([]migration, error) {
	var queue []migration
	if direction == migrationUp {
		for _, m := range migrations {
			if !applied[m.Version] {
				queue = append(queue, m)
			}
		}
	} else {
		known := make(map[int64]migration, len(migrations))
		for _, m := range migrations {
			known[m.Version] = m
		}
		versions := make([]int64, 0, len(applied))
		for v := range applied {
			versions = append(versions, v)
		}
		sort.Slice(versions, func(i, j int) bool { return versions[i] > versions[j] })
		if steps > 0 && len(versions) > steps {
			versions = versions[:steps]
		}
		for _, v := range versions {
			m, ok := known[v]
			if !ok {
				return nil, fmt.Errorf("cannot roll back unknown migration version %d", v)
			}
			queue = append(queue, m)
		}
	}
	if steps > 0 && len(queue) > steps {
		queue = queue[:steps]
	}
	return queue, nil
}

// runMigration выполняет тело миграции и правку schema_migrations в одной транзакции.
func runMigration(ctx context.Context, conn *sql.Conn, m migration, direction migrationDirection) (err error) {
	label := fmt.Sprintf("%s migration %d_%s", direction, m.Version, m.Name)

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin %s: %w", label, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, m.body(direction)); err != nil {
		return fmt.Errorf("execute %s: %w", label, err)
	}
	if direction == migrationUp {
		_, err = tx.ExecContext(ctx, recordMigrationSQL, m.Version, m.Name)
	} else {
		_, err = tx.ExecContext(ctx, forgetMigrationSQL, m.Version)
	}
	if err != nil {
		return fmt.Errorf("bookkeep %s: %w", label, err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", label, err)
	}
	return nil
}

func appliedVersions(ctx context.Context, conn *sql.Conn) (map[int64]bool, error) {
	rows, err := conn.QueryContext(ctx, appliedVersionsSQL)
	if err != nil {
		return nil, fmt.Errorf("query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int64]bool)
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan applied migration: %w", err)
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

// loadMigrationsFromFS собирает пары NNNN_name.up.sql / NNNN_name.down.sql в порядке версий.
func loadMigrationsFromFS(fsys fs.FS) ([]migration, error) {
	entries, err := fs.Glob(fsys, migrationsDir+"/*.sql")
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	if len(entries) == 0 {
		return nil, errors.New("no migration files found")
	}

	byVersion := make(map[int64]*migration)
	for _, file := range entries {
		base := path.Base(file)
		parts := migrationFileRe.FindStringSubmatch(base)
		if parts == nil {
			return nil, fmt.Errorf("invalid migration file name: %s", base)
		}
		version, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse migration version from %s: %w", base, err)
		}
		name, direction := parts[2], migrationDirection(parts[3])

		raw, err := fs.ReadFile(fsys, file)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", base, err)
		}
		body := strings.TrimSpace(string(raw))
		if body == "" {
			return nil, fmt.Errorf("migration file is empty: %s", base)
		}

		m := byVersion[version]
		if m == nil {
			m = &migration{Version: version, Name: name}
			byVersion[version] = m
		}
		if m.Name != name {
			return nil, fmt.Errorf("migration %d has conflicting names %q and %q", version, m.Name, name)
		}

		slot := &m.UpSQL
		if direction == migrationDown {
			slot = &m.DownSQL
		}
		if *slot != "" {
			return nil, fmt.Errorf("duplicate %s migration for version %d", direction, version)
		}
		*slot = body
	}

	migrations := make([]migration, 0, len(byVersion))
	for _, m := range byVersion {
		if m.UpSQL == "" || m.DownSQL == "" {
			return nil, fmt.Errorf("migration %d_%s must have both up and down files", m.Version, m.Name)
		}
		migrations = append(migrations, *m)
	}
	sort.Slice(migrations, func(i, j int) bool { return migrations[i].Version < migrations[j].Version })
	return migrations, nil
}
