package chatstore

import (
	"context"
	"sync"

	"github.com/djsadd/AcademicQuestionBot/internal/models"
	"github.com/djsadd/AcademicQuestionBot/internal/storage"
)

// Manager hands out one Store per identity, creating and hydrating it
// on first use. Guest traffic shares a single unscoped store.
type Manager struct {
	mu     sync.Mutex
	kv     storage.KV
	client AnswerClient
	cfg    Config

	stores map[int64]*Store
	guest  *Store
}

func NewManager(kv storage.KV, client AnswerClient, cfg Config) *Manager {
	return &Manager{
		kv:     kv,
		client: client,
		cfg:    cfg,
		stores: make(map[int64]*Store),
	}
}

// Guest returns the store shared by requests with no identity.
func (m *Manager) Guest() *Store {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.guest == nil {
		m.guest = NewStore(m.kv, m.client, m.cfg)
	}
	return m.guest
}

// For returns the store scoped to the given identity, hydrating it and
// reconciling remote history when it is first created.
func (m *Manager) For(ctx context.Context, identity *models.Identity, token string) *Store {
	if !identity.Known() {
		return m.Guest()
	}

	m.mu.Lock()
	store, ok := m.stores[identity.TelegramID]
	if !ok {
		store = NewStore(m.kv, m.client, m.cfg)
		m.stores[identity.TelegramID] = store
	}
	m.mu.Unlock()

	if !ok {
		store.SetIdentity(ctx, identity, token)
	}
	return store
}

// Drop forgets the store for one identity, closing it first.
func (m *Manager) Drop(telegramID int64) {
	m.mu.Lock()
	store := m.stores[telegramID]
	delete(m.stores, telegramID)
	m.mu.Unlock()
	if store != nil {
		store.Close()
	}
}

// Close shuts down every store the manager handed out.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, store := range m.stores {
		store.Close()
		delete(m.stores, id)
	}
	if m.guest != nil {
		m.guest.Close()
		m.guest = nil
	}
}
