package models

import "time"

// ChatSession groups an ordered message log under one backend
// correlation id. Messages are append-only; resolved placeholders are
// replaced in place, never removed.
type ChatSession struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	SessionID string        `json:"session_id"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
	Messages  []ChatMessage `json:"messages"`
}

// HistoryState is the whole persisted chat state for one identity.
// Chats keeps creation order; ActiveChatID always references a member
// whenever Chats is non-empty.
type HistoryState struct {
	ActiveChatID string        `json:"active_chat_id"`
	Chats        []ChatSession `json:"chats"`
}

// Active returns the active session, or nil when the state is empty.
func (s *HistoryState) Active() *ChatSession {
	return s.Session(s.ActiveChatID)
}

// Session returns the session with the given local id, or nil.
func (s *HistoryState) Session(id string) *ChatSession {
	for i := range s.Chats {
		if s.Chats[i].ID == id {
			return &s.Chats[i]
		}
	}
	return nil
}

// Clone returns a deep copy safe to hand outside the store's lock.
func (s HistoryState) Clone() HistoryState {
	out := HistoryState{ActiveChatID: s.ActiveChatID}
	out.Chats = make([]ChatSession, len(s.Chats))
	for i, chat := range s.Chats {
		copied := chat
		copied.Messages = make([]ChatMessage, len(chat.Messages))
		copy(copied.Messages, chat.Messages)
		out.Chats[i] = copied
	}
	return out
}
