package models

// Identity is the authenticated user reference used to scope persisted
// state and backend calls. PersonID links the Telegram account to the
// university records system when known.
type Identity struct {
	TelegramID int64  `json:"telegram_id"`
	PersonID   string `json:"person_id,omitempty"`
	Role       string `json:"role,omitempty"`
	Username   string `json:"username,omitempty"`
	FirstName  string `json:"first_name,omitempty"`
	LastName   string `json:"last_name,omitempty"`
}

// Known reports whether the identity references a real user.
func (i *Identity) Known() bool {
	return i != nil && i.TelegramID != 0
}
