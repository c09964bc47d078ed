package app

import (
	"strings"
	"time"
)

// Поддерживаемые драйверы хранилища.
const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"
)

// Config описывает настройки запуска приложения.
type Config struct {
	MetricsAddr string

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool

	// KafkaBrokers — список брокеров через запятую. Пустое значение
	// переводит сервис в деградированный режим: consumers не поднимаются,
	// запросы доставки отклоняются и saga компенсирует заказ.
	KafkaBrokers  string
	ConsumerGroup string
	DLQMaxRetries int

	// LedgerBaseURL — адрес банковского коллаборатора. Пустое значение
	// включает in-memory ledger (локальные запуски и тесты).
	LedgerBaseURL string
	// AlertBaseURL — REST fallback службы доставки.
	AlertBaseURL string
	// StoreAccountID — счёт магазина, на который уходят платежи.
	StoreAccountID string

	IdempotencyCleanupInterval  time.Duration
	IdempotencyCleanupBatchSize int
}

// DefaultConfig возвращает базовые настройки.
func DefaultConfig() Config {
	return Config{
		MetricsAddr:                 ":9090",
		StorageDriver:               StorageDriverMemory,
		PostgresAutoMigrate:         true,
		ConsumerGroup:               "store-service",
		DLQMaxRetries:               3,
		AlertBaseURL:                "http://localhost:8090",
		StoreAccountID:              "store-main",
		IdempotencyCleanupInterval:  10 * time.Minute,
		IdempotencyCleanupBatchSize: 500,
	}
}

// brokerList разбирает список брокеров из конфигурации.
func (c Config) brokerList() []string {
	if strings.TrimSpace(c.KafkaBrokers) == "" {
		return nil
	}

	parts := strings.Split(c.KafkaBrokers, ",")
	brokers := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			brokers = append(brokers, trimmed)
		}
	}
	return brokers
}
