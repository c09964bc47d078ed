package kafka

import (
	"errors"
	"sync"
	"time"
)

// ErrConfirmTimeout возвращается, если брокер не подтвердил публикацию за отведённое время.
var ErrConfirmTimeout = errors.New("kafka publish confirmation timed out")

// Confirmation — handle одного publisher confirm. Разрешается ровно один раз:
// либо ack от брокера (Err() == nil), либо nack с причиной.
type Confirmation struct {
	MessageID string

	done chan struct{}
	once sync.Once
	err  error
}

func newConfirmation(messageID string) *Confirmation {
	return &Confirmation{
		MessageID: messageID,
		done:      make(chan struct{}),
	}
}

// resolve фиксирует результат. Повторные вызовы игнорируются.
func (c *Confirmation) resolve(err error) {
	c.once.Do(func() {
		c.err = err
		close(c.done)
	})
}

// Done закрывается при получении ack либо nack.
func (c *Confirmation) Done() <-chan struct{} {
	return c.done
}

// Err валиден только после закрытия Done.
func (c *Confirmation) Err() error {
	return c.err
}

// Wait блокируется до разрешения confirm или истечения timeout.
func (c *Confirmation) Wait(timeout time.Duration) error {
	select {
	case <-c.done:
		return c.err
	case <-time.After(timeout):
		return ErrConfirmTimeout
	}
}
