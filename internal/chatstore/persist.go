package chatstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/djsadd/AcademicQuestionBot/internal/models"
	"github.com/djsadd/AcademicQuestionBot/internal/storage"
)

// Stored history is versioned per identity so a schema change can
// abandon old blobs instead of migrating them.
const stateKeyPrefix = "chat:v1:"

func stateKey(identity *models.Identity) string {
	if !identity.Known() {
		return stateKeyPrefix + "guest"
	}
	return fmt.Sprintf("%s%d", stateKeyPrefix, identity.TelegramID)
}

// load reads the slot for the given identity, or an empty state when
// the slot is missing or unreadable. Self-healing happens later.
func (s *Store) load(ctx context.Context, identity *models.Identity) models.HistoryState {
	raw, err := s.kv.Get(ctx, stateKey(identity))
	if err != nil {
		if !errors.Is(err, storage.ErrKeyNotFound) {
			logSoft("load", err)
		}
		return models.HistoryState{}
	}
	var state models.HistoryState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		logSoft("decode", err)
		return models.HistoryState{}
	}
	return state
}

// persistLocked writes the whole state through to storage. Storage
// failures never surface to the caller; the in-memory state is the
// source of truth for the rest of the run.
func (s *Store) persistLocked(ctx context.Context) {
	raw, err := json.Marshal(s.state)
	if err != nil {
		logSoft("encode", err)
		return
	}
	logSoft("save", s.kv.Set(ctx, stateKey(s.identity), string(raw)))
}

// SetIdentity scopes the store to a signed-in identity. Local history
// moves from the guest slot to the identity slot when the latter is
// empty, then the durable server-side history is reconciled in: when
// the platform returns sessions they replace the local list, and a
// fetch failure leaves local state untouched.
func (s *Store) SetIdentity(ctx context.Context, identity *models.Identity, token string) {
	s.mu.Lock()
	s.identity = identity
	s.token = token

	if identity.Known() {
		stored := s.load(ctx, identity)
		if len(stored.Chats) > 0 {
			s.state = stored
		}
		s.ensureLocked()
		// Claim the identity slot either way so the guest data, when
		// it was carried over, survives the next start.
		s.persistLocked(ctx)
	}
	s.mu.Unlock()

	if !identity.Known() || s.client == nil {
		return
	}
	remote, err := s.client.FetchHistory(ctx, token)
	if err != nil {
		logSoft("history", err)
		return
	}
	if len(remote) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = s.remoteState(remote)
	s.ensureLocked()
	s.detailsID = ""
	s.persistLocked(ctx)
}

// remoteState maps the platform's session list into local shape. The
// first entry is the most recently touched one and becomes active.
func (s *Store) remoteState(remote []models.RemoteSession) models.HistoryState {
	state := models.HistoryState{Chats: make([]models.ChatSession, 0, len(remote))}
	for _, rs := range remote {
		session := models.ChatSession{
			ID:        rs.SessionID,
			Title:     rs.Title,
			SessionID: rs.SessionID,
			CreatedAt: rs.CreatedAt,
			UpdatedAt: rs.UpdatedAt,
		}
		if session.Title == "" {
			session.Title = s.cfg.DefaultTitle
		}
		for _, rm := range rs.Messages {
			msg := models.ChatMessage{ID: rm.ID, Role: models.RoleBot, Content: rm.Content}
			if msg.ID == "" {
				msg.ID = s.newID()
			}
			if rm.Role == string(models.RoleUser) {
				msg.Role = models.RoleUser
			}
			session.Messages = append(session.Messages, msg)
		}
		if len(session.Messages) == 0 {
			session.Messages = []models.ChatMessage{{
				ID:      s.newID(),
				Role:    models.RoleBot,
				Content: s.cfg.IntroMessage,
			}}
		}
		state.Chats = append(state.Chats, session)
	}
	if len(state.Chats) > 0 {
		state.ActiveChatID = state.Chats[0].ID
	}
	return state
}
