package model

// User binds a tracker mention (Telegram login) to a chat delivery
// target. A user with ChatID == 0 is a placeholder: it was created on
// first encounter of an unknown mention and is excluded from delivery
// until an administrator fills in its coordinates.
type User struct {
	ID             int64  `db:"id"`
	Login          string `db:"login"`
	ChatID         int64  `db:"chat_id"`
	ThreadID       int    `db:"thread_id"`
	TelegramUserID int64  `db:"telegram_user_id"`
	IsAdmin        bool   `db:"is_admin"`
}

// Deliverable reports whether the user can actually receive messages.
func (u User) Deliverable() bool {
	return u.ChatID != 0
}
