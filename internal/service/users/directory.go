// Package users содержит справочник покупателей. Сервис не владеет
// пользователями: это проекция внешнего user-directory, достаточная
// для валидации саги и запроса доставки.
package users

import (
	"strings"
	"sync"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Directory — in-memory реализация UserDirectory.
type Directory struct {
	mu    sync.RWMutex
	users map[string]domain.User // ключ — username в нижнем регистре
}

// NewDirectory создаёт пустой справочник.
func NewDirectory() *Directory {
	return &Directory{users: make(map[string]domain.User)}
}

// Add регистрирует или обновляет пользователя.
func (d *Directory) Add(user domain.User) error {
	if strings.TrimSpace(user.Username) == "" {
		return domain.ErrUsernameRequired
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[strings.ToLower(user.Username)] = user
	return nil
}

// FindByUsername ищет пользователя без учёта регистра.
func (d *Directory) FindByUsername(username string) (domain.User, error) {
	if strings.TrimSpace(username) == "" {
		return domain.User{}, domain.ErrUsernameRequired
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	user, ok := d.users[strings.ToLower(username)]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return user, nil
}

var _ domain.UserDirectory = (*Directory)(nil)
