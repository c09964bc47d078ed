package domain

// User — покупатель, от имени которого создаётся заказ.
// Объект принадлежит внешнему user-directory; ядру нужны только эти поля.
type User struct {
	ID            string
	Username      string
	BankAccountID string
	Email         string
	FirstName     string
	LastName      string
}

// FullName возвращает имя получателя для запроса доставки.
func (u User) FullName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	default:
		return u.FirstName + " " + u.LastName
	}
}
