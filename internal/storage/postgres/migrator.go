package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Миграции вшиты в бинарь: store-service и cmd/migrate всегда несут
// схему той же версии, что и код. Несколько экземпляров сервиса могут
// стартовать одновременно, поэтому накат идёт под advisory-блокировкой.
const (
	migrationsGlob  = "sql/migrations/*.sql"
	migrationLockID = int64(20240817)

	migrationLockTimeout = 5 * time.Second
)

const schemaMigrationsDDL = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version BIGINT PRIMARY KEY,
    name TEXT NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

var (
	//go:embed sql/migrations/*.sql
	migrationsFS embed.FS

	// NNNN_имя.up.sql / NNNN_имя.down.sql
	scriptNameRE = regexp.MustCompile(`^(\d+)_([a-zA-Z0-9_]+)\.(up|down)\.sql$`)
)

type migrationDirection string

const (
	migrationUp   migrationDirection = "up"
	migrationDown migrationDirection = "down"
)

// migrationScript объединяет up- и down-половины одной версии.
type migrationScript struct {
	Version int64
	Name    string
	UpSQL   string
	DownSQL string
}

// MigrateUp накатывает недостающие миграции в порядке версий.
// steps=0 означает "все доступные".
func (s *Store) MigrateUp(ctx context.Context, steps int) error {
	return s.migrate(ctx, migrationUp, steps)
}

// MigrateDown откатывает последние применённые миграции.
// steps<=0 трактуется как один шаг, чтобы случайный вызов
// не снёс всю схему.
func (s *Store) MigrateDown(ctx context.Context, steps int) error {
	if steps <= 0 {
		steps = 1
	}
	return s.migrate(ctx, migrationDown, steps)
}

// MigrationStatus возвращает максимальную применённую версию и число
// записей в schema_migrations.
func (s *Store) MigrationStatus(ctx context.Context) (int64, int, error) {
	if s == nil || s.db == nil {
		return 0, 0, fmt.Errorf("postgres store is not initialized")
	}

	queryCtx, cancel := context.WithTimeout(ctx, migrationLockTimeout)
	defer cancel()

	if _, err := s.db.ExecContext(queryCtx, schemaMigrationsDDL); err != nil {
		return 0, 0, fmt.Errorf("ensure migration table: %w", err)
	}

	var (
		version int64
		count   int
	)
	row := s.db.QueryRowContext(queryCtx,
		`SELECT COALESCE(MAX(version), 0), COUNT(*) FROM schema_migrations`)
	if err := row.Scan(&version, &count); err != nil {
		return 0, 0, fmt.Errorf("query migration status: %w", err)
	}

	return version, count, nil
}

func (s *Store) migrate(ctx context.Context, direction migrationDirection, steps int) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("postgres store is not initialized")
	}

	scripts, err := readMigrationScripts(migrationsFS)
	if err != nil {
		return err
	}

	// Блокировка привязана к сессии, поэтому весь накат идёт через
	// одно выделенное соединение.
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire db connection: %w", err)
	}
	defer conn.Close()

	lockCtx, cancel := context.WithTimeout(ctx, migrationLockTimeout)
	defer cancel()
	if _, err := conn.ExecContext(lockCtx, "SELECT pg_advisory_lock($1)", migrationLockID); err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	defer func() {
		_, _ = conn.ExecContext(context.Background(), "SELECT pg_advisory_unlock($1)", migrationLockID)
	}()

	if _, err := conn.ExecContext(ctx, schemaMigrationsDDL); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	switch direction {
	case migrationUp:
		return runUp(ctx, conn, scripts, steps)
	case migrationDown:
		return runDown(ctx, conn, scripts, steps)
	default:
		return fmt.Errorf("unsupported migration direction: %s", direction)
	}
}

func runUp(ctx context.Context, conn *sql.Conn, scripts []migrationScript, steps int) error {
	applied, err := appliedVersionSet(ctx, conn)
	if err != nil {
		return err
	}

	done := 0
	for _, script := range scripts {
		if applied[script.Version] {
			continue
		}

		err := inScriptTx(ctx, conn, "up", script, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, script.UpSQL); err != nil {
				return fmt.Errorf("execute up migration %d_%s: %w", script.Version, script.Name, err)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO schema_migrations (version, name, applied_at) VALUES ($1, $2, NOW())`,
				script.Version, script.Name); err != nil {
				return fmt.Errorf("record up migration %d_%s: %w", script.Version, script.Name, err)
			}
			return nil
		})
		if err != nil {
			return err
		}

		done++
		if steps > 0 && done >= steps {
			break
		}
	}

	return nil
}

func runDown(ctx context.Context, conn *sql.Conn, scripts []migrationScript, steps int) error {
	byVersion := make(map[int64]migrationScript, len(scripts))
	for _, script := range scripts {
		byVersion[script.Version] = script
	}

	versions, err := latestAppliedVersions(ctx, conn, steps)
	if err != nil {
		return err
	}

	for _, version := range versions {
		script, ok := byVersion[version]
		if !ok {
			return fmt.Errorf("cannot rollback unknown migration version %d", version)
		}

		err := inScriptTx(ctx, conn, "down", script, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, script.DownSQL); err != nil {
				return fmt.Errorf("execute down migration %d_%s: %w", script.Version, script.Name, err)
			}
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM schema_migrations WHERE version = $1`, script.Version); err != nil {
				return fmt.Errorf("delete migration record %d_%s: %w", script.Version, script.Name, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	return nil
}

// inScriptTx выполняет fn в транзакции: и сам скрипт, и запись в
// schema_migrations фиксируются атомарно.
func inScriptTx(ctx context.Context, conn *sql.Conn, direction string, script migrationScript, fn func(*sql.Tx) error) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration tx (%s %d): %w", direction, script.Version, err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s migration %d_%s: %w", direction, script.Version, script.Name, err)
	}

	return nil
}

func appliedVersionSet(ctx context.Context, conn *sql.Conn) (map[int64]bool, error) {
	rows, err := conn.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int64]bool)
	for rows.Next() {
		var version int64
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("scan applied migration version: %w", err)
		}
		applied[version] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applied migrations: %w", err)
	}

	return applied, nil
}

func latestAppliedVersions(ctx context.Context, conn *sql.Conn, limit int) ([]int64, error) {
	rows, err := conn.QueryContext(ctx,
		`SELECT version FROM schema_migrations ORDER BY version DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query latest migrations: %w", err)
	}
	defer rows.Close()

	versions := make([]int64, 0, limit)
	for rows.Next() {
		var version int64
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("scan latest migration version: %w", err)
		}
		versions = append(versions, version)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate latest migrations: %w", err)
	}

	return versions, nil
}

// readMigrationScripts собирает пары up/down из файловой системы.
// Версия без одной из половин считается ошибкой сборки.
func readMigrationScripts(fsys fs.FS) ([]migrationScript, error) {
	files, err := fs.Glob(fsys, migrationsGlob)
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	if len(files) == 0 {
		return nil, errors.New("no migration files found")
	}

	half := make(map[int64]*migrationScript)
	for _, file := range files {
		base := filepath.Base(file)
		matches := scriptNameRE.FindStringSubmatch(base)
		if len(matches) != 4 {
			return nil, fmt.Errorf("invalid migration file name: %s", base)
		}

		version, err := strconv.ParseInt(matches[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse migration version from %s: %w", base, err)
		}
		name := matches[2]
		direction := matches[3]

		bodyRaw, err := fs.ReadFile(fsys, file)
		if err != nil {
			return nil, fmt.Errorf("read migration file %s: %w", file, err)
		}
		body := strings.TrimSpace(string(bodyRaw))
		if body == "" {
			return nil, fmt.Errorf("migration file is empty: %s", base)
		}

		script, ok := half[version]
		if !ok {
			script = &migrationScript{Version: version, Name: name}
			half[version] = script
		} else if script.Name != name {
			return nil, fmt.Errorf("migration name mismatch for version %d: %s vs %s", version, script.Name, name)
		}

		switch direction {
		case "up":
			if script.UpSQL != "" {
				return nil, fmt.Errorf("duplicate up migration for version %d", version)
			}
			script.UpSQL = body
		case "down":
			if script.DownSQL != "" {
				return nil, fmt.Errorf("duplicate down migration for version %d", version)
			}
			script.DownSQL = body
		default:
			return nil, fmt.Errorf("unsupported migration direction in file: %s", base)
		}
	}

	versions := make([]int64, 0, len(half))
	for version := range half {
		versions = append(versions, version)
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i] < versions[j] })

	scripts := make([]migrationScript, 0, len(versions))
	for _, version := range versions {
		script := half[version]
		if script.UpSQL == "" || script.DownSQL == "" {
			return nil, fmt.Errorf("migration %d_%s must have both up and down files", script.Version, script.Name)
		}
		scripts = append(scripts, *script)
	}

	return scripts, nil
}
