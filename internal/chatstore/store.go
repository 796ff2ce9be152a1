package chatstore

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/djsadd/AcademicQuestionBot/internal/models"
	"github.com/djsadd/AcademicQuestionBot/internal/storage"
	"github.com/djsadd/AcademicQuestionBot/pkg/logger"
)

// AnswerClient is the remote side of the chat screen: one call that
// produces a final answer and one that lists the identity's durable
// sessions. Implemented by platform.Client.
type AnswerClient interface {
	SendMessage(ctx context.Context, token string, identity *models.Identity, text, sessionID string) (*models.ChatResult, error)
	FetchHistory(ctx context.Context, token string) ([]models.RemoteSession, error)
}

// Config tunes the fixed texts and timings of the store.
type Config struct {
	IntroMessage   string
	PendingMessage string
	DefaultTitle   string
	TitleLimit     int
	HighlightTTL   time.Duration
}

const (
	answerFallback  = "Ответ не получен."
	errorFallback   = "Не удалось получить ответ. Попробуйте ещё раз."
	missingIdentity = "Чтобы задать вопрос, войдите через Telegram."
)

func (c Config) withDefaults() Config {
	if c.IntroMessage == "" {
		c.IntroMessage = "Привет! Я академический ассистент. Чем могу помочь?"
	}
	if c.PendingMessage == "" {
		c.PendingMessage = "Думаю над ответом…"
	}
	if c.DefaultTitle == "" {
		c.DefaultTitle = "Новый диалог"
	}
	if c.TitleLimit <= 0 {
		c.TitleLimit = 48
	}
	if c.HighlightTTL <= 0 {
		c.HighlightTTL = 700 * time.Millisecond
	}
	return c
}

// Store owns the ordered set of chat sessions for one identity. It
// mediates between user input, the asynchronous remote answer call and
// persisted storage, and guarantees there is always a valid active
// session to render. All mutations replace the whole state under one
// lock; the only await points are the remote call and storage I/O.
type Store struct {
	mu     sync.Mutex
	kv     storage.KV
	client AnswerClient
	cfg    Config

	state    models.HistoryState
	identity *models.Identity
	token    string

	detailsID      string
	highlightID    string
	highlightTimer *time.Timer

	inflight sync.WaitGroup
	now      func() time.Time
	newID    func() string
}

// SendReceipt reports which messages a SendMessage call appended.
type SendReceipt struct {
	UserMessageID string
	PlaceholderID string
	// NoticeID is set instead of the above when no identity was known
	// and only the missing-identity notice was appended.
	NoticeID string
}

// NewStore creates a store and hydrates it from persisted storage under
// the guest slot. Corrupt or missing stored data falls through to a
// fresh single-session state.
func NewStore(kv storage.KV, client AnswerClient, cfg Config) *Store {
	s := &Store{
		kv:     kv,
		client: client,
		cfg:    cfg.withDefaults(),
		now:    time.Now,
		newID:  func() string { return uuid.New().String() },
	}
	s.state = s.load(context.Background(), nil)
	s.ensureLocked()
	return s
}

// State returns a deep copy of the current history state, self-healing
// first so readers never observe an empty or dangling state.
func (s *Store) State() models.HistoryState {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLocked()
	return s.state.Clone()
}

// Identity returns the identity the store is currently scoped to.
func (s *Store) Identity() *models.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// CreateSession starts a fresh session with the introductory bot message
// and makes it active. The returned session id carries a short-lived
// highlight marker that expires on its own.
func (s *Store) CreateSession() models.ChatSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	session := s.freshSessionLocked()
	s.state.Chats = append(s.state.Chats, session)
	s.state.ActiveChatID = session.ID
	s.markHighlightLocked(session.ID)
	s.persistLocked(context.Background())
	return session
}

// SelectSession switches the active session and collapses any open
// message inspector. Unknown ids are ignored.
func (s *Store) SelectSession(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Session(id) == nil {
		return
	}
	s.state.ActiveChatID = id
	s.detailsID = ""
	s.persistLocked(context.Background())
}

// SendMessage appends the user's message plus a pending placeholder to
// the active session and dispatches the remote answer request. Multiple
// sends may be in flight at once; each resolution is correlated by its
// placeholder id, so completions can arrive in any order. With no known
// identity only a one-off notice is appended and nothing is sent.
func (s *Store) SendMessage(ctx context.Context, text string) (SendReceipt, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return SendReceipt{}, errors.New("message text is required")
	}

	s.mu.Lock()
	s.ensureLocked()
	session := s.state.Active()

	if !s.identity.Known() {
		notice := models.ChatMessage{
			ID:      s.newID(),
			Role:    models.RoleBot,
			Content: missingIdentity,
		}
		session.Messages = append(session.Messages, notice)
		session.UpdatedAt = s.now()
		s.persistLocked(ctx)
		s.mu.Unlock()
		return SendReceipt{NoticeID: notice.ID}, nil
	}

	userMsg := models.ChatMessage{
		ID:      s.newID(),
		Role:    models.RoleUser,
		Content: text,
	}
	placeholder := models.ChatMessage{
		ID:      s.newID(),
		Role:    models.RoleBot,
		Content: s.cfg.PendingMessage,
		Status:  models.StatusPending,
	}
	session.Messages = append(session.Messages, userMsg, placeholder)
	if session.Title == s.cfg.DefaultTitle {
		session.Title = deriveTitle(text, s.cfg.TitleLimit)
	}
	session.UpdatedAt = s.now()

	chatID := session.ID
	sessionID := session.SessionID
	identity := s.identity
	token := s.token
	s.persistLocked(ctx)
	s.mu.Unlock()

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		// The view may have moved on; the answer still lands in the
		// session that asked for it. Request lifetime belongs to the
		// transport, not to the caller's context.
		result, err := s.client.SendMessage(context.Background(), token, identity, text, sessionID)
		s.resolve(chatID, placeholder.ID, result, err)
	}()

	return SendReceipt{UserMessageID: userMsg.ID, PlaceholderID: placeholder.ID}, nil
}

// resolve applies exactly one terminal transition to the placeholder.
func (s *Store) resolve(chatID, messageID string, result *models.ChatResult, sendErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session := s.state.Session(chatID)
	if session == nil {
		return
	}
	for i := range session.Messages {
		if session.Messages[i].ID != messageID {
			continue
		}
		if sendErr != nil {
			content := sendErr.Error()
			if content == "" {
				content = errorFallback
			}
			session.Messages[i].Content = content
			session.Messages[i].Status = models.StatusError
		} else {
			content := result.FinalAnswer
			if content == "" {
				content = answerFallback
			}
			session.Messages[i].Content = content
			session.Messages[i].Status = ""
			session.Messages[i].Details = result
		}
		break
	}
	s.persistLocked(context.Background())
}

// ToggleDetails expands the inspector for one message, collapsing any
// other. Toggling the open message collapses it again.
func (s *Store) ToggleDetails(messageID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.detailsID == messageID {
		s.detailsID = ""
	} else {
		s.detailsID = messageID
	}
}

// Details returns the id of the expanded message, if any.
func (s *Store) Details() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.detailsID
}

// Highlighted returns the session id still carrying the "just created"
// marker, or empty once it expired.
func (s *Store) Highlighted() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.highlightID
}

// Wait blocks until all in-flight sends have resolved.
func (s *Store) Wait() {
	s.inflight.Wait()
}

// Close clears the highlight timer. In-flight sends are left to settle.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.highlightTimer != nil {
		s.highlightTimer.Stop()
		s.highlightTimer = nil
	}
	s.highlightID = ""
}

func (s *Store) markHighlightLocked(id string) {
	if s.highlightTimer != nil {
		s.highlightTimer.Stop()
	}
	s.highlightID = id
	s.highlightTimer = time.AfterFunc(s.cfg.HighlightTTL, func() {
		s.mu.Lock()
		if s.highlightID == id {
			s.highlightID = ""
		}
		s.mu.Unlock()
	})
}

// ensureLocked restores the two structural invariants: at least one
// session exists and the active id references a member.
func (s *Store) ensureLocked() {
	if len(s.state.Chats) == 0 {
		session := s.freshSessionLocked()
		s.state.Chats = append(s.state.Chats, session)
		s.state.ActiveChatID = session.ID
		return
	}
	if s.state.Session(s.state.ActiveChatID) == nil {
		s.state.ActiveChatID = s.state.Chats[0].ID
	}
}

func (s *Store) freshSessionLocked() models.ChatSession {
	now := s.now()
	return models.ChatSession{
		ID:        s.newID(),
		Title:     s.cfg.DefaultTitle,
		SessionID: strings.ReplaceAll(uuid.New().String(), "-", ""),
		CreatedAt: now,
		UpdatedAt: now,
		Messages: []models.ChatMessage{{
			ID:      s.newID(),
			Role:    models.RoleBot,
			Content: s.cfg.IntroMessage,
		}},
	}
}

// deriveTitle collapses whitespace and truncates to limit runes,
// marking the cut with an ellipsis.
func deriveTitle(text string, limit int) string {
	collapsed := strings.Join(strings.Fields(text), " ")
	runes := []rune(collapsed)
	if len(runes) <= limit {
		return collapsed
	}
	return string(runes[:limit]) + "…"
}

func logSoft(op string, err error) {
	if err != nil {
		logger.Debugf("chat store %s skipped: %v", op, err)
	}
}
