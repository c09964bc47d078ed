package domain

import "time"

// IdempotencyStatus описывает жизненный цикл записи об обработанном сообщении.
type IdempotencyStatus string

const (
	// IdempotencyStatusProcessing означает, что сообщение принято и ещё обрабатывается.
	IdempotencyStatusProcessing IdempotencyStatus = "processing"
	// IdempotencyStatusDone означает, что сообщение обработано успешно; повтор пропускается.
	IdempotencyStatusDone IdempotencyStatus = "done"
	// IdempotencyStatusFailed означает, что обработка завершилась ошибкой и повтор разрешён.
	IdempotencyStatusFailed IdempotencyStatus = "failed"
)

// IdempotencyRecord фиксирует факт обработки сообщения с данным ключом.
// Ключ — message id входящего события; записи с истёкшим TTL удаляет
// cleanup-воркер.
type IdempotencyRecord struct {
	Key       string
	Status    IdempotencyStatus
	TTLAt     time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s IdempotencyStatus) Valid() bool {
	switch s {
	case IdempotencyStatusProcessing, IdempotencyStatusDone, IdempotencyStatusFailed:
		return true
	default:
		return false
	}
}
