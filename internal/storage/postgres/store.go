package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Настройки пула рассчитаны на один инстанс store-service:
// соединений немного, зато живут они долго.
const (
	pingTimeout     = 5 * time.Second
	poolMaxOpen     = 25
	poolMaxIdle     = 25
	poolMaxLifetime = 30 * time.Minute
	poolMaxIdleTime = 5 * time.Minute
)

// Store держит подключение к PostgreSQL. Все репозитории пакета
// строятся поверх него.
type Store struct {
	db *sql.DB
}

// Open подключается к PostgreSQL через pgx-драйвер database/sql
// и проверяет базу ping-ом до возврата.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is empty")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}
	db.SetMaxOpenConns(poolMaxOpen)
	db.SetMaxIdleConns(poolMaxIdle)
	db.SetConnMaxLifetime(poolMaxLifetime)
	db.SetConnMaxIdleTime(poolMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Store{db: db}, nil
}

// DB отдаёт нижележащий *sql.DB для кода, которому нужен прямой доступ.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Ping используется health-чеками.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("postgres store is not initialized")
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return s.db.PingContext(pingCtx)
}

// EnsureSchema доводит схему до актуальной версии при старте сервиса.
func (s *Store) EnsureSchema(ctx context.Context) error {
	return s.MigrateUp(ctx, 0)
}

// Close закрывает пул. Безопасен на nil-получателе.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
