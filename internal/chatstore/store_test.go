package chatstore

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/djsadd/AcademicQuestionBot/internal/models"
	"github.com/djsadd/AcademicQuestionBot/internal/storage"
)

func TestNewStoreSynthesizesSession(t *testing.T) {
	store := NewStore(storage.NewMemoryKV(), newFakeClient(), Config{})
	defer store.Close()

	state := store.State()
	if len(state.Chats) != 1 {
		t.Fatalf("expected one synthesized session, got %d", len(state.Chats))
	}
	if state.ActiveChatID != state.Chats[0].ID {
		t.Fatalf("active id %q does not reference the session", state.ActiveChatID)
	}
	msgs := state.Chats[0].Messages
	if len(msgs) != 1 || msgs[0].Role != models.RoleBot {
		t.Fatalf("expected a single intro bot message, got %#v", msgs)
	}
}

func TestNewStoreRecoversFromCorruptState(t *testing.T) {
	kv := storage.NewMemoryKV()
	if err := kv.Set(context.Background(), "chat:v1:guest", "{not json"); err != nil {
		t.Fatalf("seed kv: %v", err)
	}

	store := NewStore(kv, newFakeClient(), Config{})
	defer store.Close()

	state := store.State()
	if len(state.Chats) != 1 || state.Session(state.ActiveChatID) == nil {
		t.Fatalf("corrupt blob should yield a fresh valid state, got %#v", state)
	}
}

func TestNewStoreRestoresPersistedState(t *testing.T) {
	kv := storage.NewMemoryKV()

	first := NewStore(kv, newFakeClient(), Config{})
	created := first.CreateSession()
	first.Close()

	second := NewStore(kv, newFakeClient(), Config{})
	defer second.Close()

	state := second.State()
	if state.Session(created.ID) == nil {
		t.Fatalf("session %q not restored from storage", created.ID)
	}
	if state.ActiveChatID != created.ID {
		t.Fatalf("active id not restored: %q", state.ActiveChatID)
	}
}

func TestCreateSessionBecomesActiveAndHighlighted(t *testing.T) {
	store := NewStore(storage.NewMemoryKV(), newFakeClient(), Config{HighlightTTL: 20 * time.Millisecond})
	defer store.Close()

	session := store.CreateSession()
	state := store.State()
	if state.ActiveChatID != session.ID {
		t.Fatalf("new session should be active, got %q", state.ActiveChatID)
	}
	if len(session.Messages) != 1 || session.Messages[0].Role != models.RoleBot {
		t.Fatalf("new session should open with the intro message: %#v", session.Messages)
	}
	if store.Highlighted() != session.ID {
		t.Fatalf("new session should carry the highlight marker")
	}
	waitFor(t, func() bool { return store.Highlighted() == "" })
}

func TestSelectSessionIgnoresUnknownID(t *testing.T) {
	store := NewStore(storage.NewMemoryKV(), newFakeClient(), Config{})
	defer store.Close()

	before := store.State().ActiveChatID
	store.SelectSession("no-such-session")
	if got := store.State().ActiveChatID; got != before {
		t.Fatalf("unknown id switched active session to %q", got)
	}
}

func TestSelectSessionCollapsesDetails(t *testing.T) {
	store := NewStore(storage.NewMemoryKV(), newFakeClient(), Config{})
	defer store.Close()

	first := store.State().ActiveChatID
	second := store.CreateSession()

	store.ToggleDetails("msg-1")
	store.SelectSession(first)
	if store.Details() != "" {
		t.Fatalf("switching sessions should collapse the inspector")
	}
	if store.State().ActiveChatID != first {
		t.Fatalf("select did not switch back from %q", second.ID)
	}
}

func TestSendMessageAppendsPairAndDerivesTitle(t *testing.T) {
	store := signedInStore(t, newFakeClient(), Config{})
	defer store.Close()

	receipt, err := store.SendMessage(context.Background(), "  What   is the deadline?  ")
	if err != nil {
		t.Fatalf("SendMessage error: %v", err)
	}
	if receipt.UserMessageID == "" || receipt.PlaceholderID == "" {
		t.Fatalf("receipt incomplete: %#v", receipt)
	}

	session := activeSession(store)
	if session.Title != "What is the deadline?" {
		t.Fatalf("title not derived from first user message: %q", session.Title)
	}
	last := session.Messages[len(session.Messages)-1]
	if last.ID != receipt.PlaceholderID || last.Status != models.StatusPending {
		t.Fatalf("expected trailing pending placeholder, got %#v", last)
	}
	user := session.Messages[len(session.Messages)-2]
	if user.Role != models.RoleUser || user.Content != "What is the deadline?" {
		t.Fatalf("user message not appended with trimmed text: %#v", user)
	}
	store.Wait()
}

func TestSendMessageKeepsDerivedTitle(t *testing.T) {
	store := signedInStore(t, newFakeClient(), Config{})
	defer store.Close()

	if _, err := store.SendMessage(context.Background(), "first question"); err != nil {
		t.Fatalf("SendMessage error: %v", err)
	}
	if _, err := store.SendMessage(context.Background(), "second question"); err != nil {
		t.Fatalf("SendMessage error: %v", err)
	}
	store.Wait()

	if title := activeSession(store).Title; title != "first question" {
		t.Fatalf("title must stick to the first user message, got %q", title)
	}
}

func TestSendMessageSuccessFillsAnswer(t *testing.T) {
	client := newFakeClient()
	client.answer("hello", &models.ChatResult{FinalAnswer: "hi there", Intents: []string{"smalltalk"}})

	store := signedInStore(t, client, Config{})
	defer store.Close()

	receipt, err := store.SendMessage(context.Background(), "hello")
	if err != nil {
		t.Fatalf("SendMessage error: %v", err)
	}
	store.Wait()

	msg := messageByID(t, store, receipt.PlaceholderID)
	if msg.Status != "" {
		t.Fatalf("resolved message still has status %q", msg.Status)
	}
	if msg.Content != "hi there" {
		t.Fatalf("answer not applied: %q", msg.Content)
	}
	if msg.Details == nil || len(msg.Details.Intents) != 1 {
		t.Fatalf("result payload not attached: %#v", msg.Details)
	}
}

func TestSendMessageEmptyAnswerFallsBack(t *testing.T) {
	client := newFakeClient()
	client.answer("hm", &models.ChatResult{})

	store := signedInStore(t, client, Config{})
	defer store.Close()

	receipt, _ := store.SendMessage(context.Background(), "hm")
	store.Wait()

	if msg := messageByID(t, store, receipt.PlaceholderID); msg.Content == "" {
		t.Fatalf("empty final answer must fall back to a fixed text")
	}
}

func TestSendMessageFailureMarksError(t *testing.T) {
	client := newFakeClient()
	client.fail("boom", errors.New("service unavailable"))

	store := signedInStore(t, client, Config{})
	defer store.Close()

	receipt, err := store.SendMessage(context.Background(), "boom")
	if err != nil {
		t.Fatalf("SendMessage error: %v", err)
	}
	store.Wait()

	msg := messageByID(t, store, receipt.PlaceholderID)
	if msg.Status != models.StatusError {
		t.Fatalf("expected error status, got %q", msg.Status)
	}
	if msg.Content != "service unavailable" {
		t.Fatalf("error text not shown in place: %q", msg.Content)
	}
}

func TestOutOfOrderResolution(t *testing.T) {
	client := newFakeClient()
	slowGate := client.gate("slow")
	fastGate := client.gate("fast")
	client.answer("slow", &models.ChatResult{FinalAnswer: "slow answer"})
	client.answer("fast", &models.ChatResult{FinalAnswer: "fast answer"})

	store := signedInStore(t, client, Config{})
	defer store.Close()

	first, err := store.SendMessage(context.Background(), "slow")
	if err != nil {
		t.Fatalf("SendMessage error: %v", err)
	}
	second, err := store.SendMessage(context.Background(), "fast")
	if err != nil {
		t.Fatalf("SendMessage error: %v", err)
	}

	close(fastGate)
	waitFor(t, func() bool {
		return messageByID(t, store, second.PlaceholderID).Status == ""
	})
	if msg := messageByID(t, store, first.PlaceholderID); msg.Status != models.StatusPending {
		t.Fatalf("earlier placeholder resolved too soon: %#v", msg)
	}

	close(slowGate)
	store.Wait()

	if msg := messageByID(t, store, first.PlaceholderID); msg.Content != "slow answer" {
		t.Fatalf("late completion landed in the wrong bubble: %q", msg.Content)
	}
	if msg := messageByID(t, store, second.PlaceholderID); msg.Content != "fast answer" {
		t.Fatalf("fast completion overwritten: %q", msg.Content)
	}
}

func TestResolutionSurvivesSessionSwitch(t *testing.T) {
	client := newFakeClient()
	gate := client.gate("pending question")
	client.answer("pending question", &models.ChatResult{FinalAnswer: "late answer"})

	store := signedInStore(t, client, Config{})
	defer store.Close()

	origin := store.State().ActiveChatID
	receipt, err := store.SendMessage(context.Background(), "pending question")
	if err != nil {
		t.Fatalf("SendMessage error: %v", err)
	}

	store.CreateSession()
	close(gate)
	store.Wait()

	state := store.State()
	session := state.Session(origin)
	if session == nil {
		t.Fatalf("origin session gone")
	}
	for _, msg := range session.Messages {
		if msg.ID == receipt.PlaceholderID {
			if msg.Content != "late answer" {
				t.Fatalf("answer did not land in the origin session: %q", msg.Content)
			}
			return
		}
	}
	t.Fatalf("placeholder %q not found in origin session", receipt.PlaceholderID)
}

func TestSendWithoutIdentityAppendsNoticeOnly(t *testing.T) {
	client := newFakeClient()
	store := NewStore(storage.NewMemoryKV(), client, Config{})
	defer store.Close()

	before := len(activeSession(store).Messages)
	receipt, err := store.SendMessage(context.Background(), "anyone there?")
	if err != nil {
		t.Fatalf("SendMessage error: %v", err)
	}
	if receipt.NoticeID == "" || receipt.PlaceholderID != "" {
		t.Fatalf("expected a notice-only receipt, got %#v", receipt)
	}

	msgs := activeSession(store).Messages
	if len(msgs) != before+1 {
		t.Fatalf("expected exactly one appended message, got %d new", len(msgs)-before)
	}
	if last := msgs[len(msgs)-1]; last.Role != models.RoleBot || last.Status != "" {
		t.Fatalf("notice must be a plain bot message: %#v", last)
	}
	if client.sendCalls() != 0 {
		t.Fatalf("no network call expected without identity")
	}
}

func TestSendMessageRejectsBlankText(t *testing.T) {
	store := signedInStore(t, newFakeClient(), Config{})
	defer store.Close()

	if _, err := store.SendMessage(context.Background(), "   "); err == nil {
		t.Fatalf("blank text should be rejected")
	}
}

func TestToggleDetailsKeepsOneInspector(t *testing.T) {
	store := NewStore(storage.NewMemoryKV(), newFakeClient(), Config{})
	defer store.Close()

	store.ToggleDetails("a")
	if store.Details() != "a" {
		t.Fatalf("inspector not opened")
	}
	store.ToggleDetails("b")
	if store.Details() != "b" {
		t.Fatalf("opening a second inspector must replace the first")
	}
	store.ToggleDetails("b")
	if store.Details() != "" {
		t.Fatalf("toggling the open message must collapse it")
	}
}

func TestSetIdentityMigratesGuestHistory(t *testing.T) {
	kv := storage.NewMemoryKV()
	store := NewStore(kv, newFakeClient(), Config{})
	defer store.Close()

	created := store.CreateSession()
	store.SetIdentity(context.Background(), testIdentity(), "tok")

	if !hasSession(store, created.ID) {
		t.Fatalf("guest history lost during sign-in")
	}
	raw, err := kv.Get(context.Background(), "chat:v1:42")
	if err != nil {
		t.Fatalf("identity slot not written: %v", err)
	}
	var persisted models.HistoryState
	if err := json.Unmarshal([]byte(raw), &persisted); err != nil {
		t.Fatalf("identity slot unreadable: %v", err)
	}
	if persisted.Session(created.ID) == nil {
		t.Fatalf("migrated state missing session %q", created.ID)
	}
}

func TestSetIdentityPrefersStoredIdentitySlot(t *testing.T) {
	kv := storage.NewMemoryKV()
	stored := models.HistoryState{
		ActiveChatID: "old",
		Chats: []models.ChatSession{{
			ID:       "old",
			Title:    "старый диалог",
			Messages: []models.ChatMessage{{ID: "m1", Role: models.RoleBot, Content: "привет"}},
		}},
	}
	raw, _ := json.Marshal(stored)
	if err := kv.Set(context.Background(), "chat:v1:42", string(raw)); err != nil {
		t.Fatalf("seed kv: %v", err)
	}

	store := NewStore(kv, newFakeClient(), Config{})
	defer store.Close()
	store.SetIdentity(context.Background(), testIdentity(), "tok")

	if store.State().ActiveChatID != "old" {
		t.Fatalf("stored identity history not loaded: %#v", store.State())
	}
}

func TestSetIdentityReplacesLocalWithRemote(t *testing.T) {
	client := newFakeClient()
	client.history = []models.RemoteSession{
		{SessionID: "r1", Title: "Дедлайны", Messages: []models.RemoteMessage{
			{ID: "rm1", Role: "user", Content: "когда дедлайн?"},
			{ID: "rm2", Role: "assistant", Content: "в пятницу"},
		}},
		{SessionID: "r2", Title: ""},
	}

	store := NewStore(storage.NewMemoryKV(), client, Config{})
	defer store.Close()
	store.SetIdentity(context.Background(), testIdentity(), "tok")

	state := store.State()
	if len(state.Chats) != 2 {
		t.Fatalf("remote history should replace local sessions, got %d", len(state.Chats))
	}
	if state.ActiveChatID != "r1" {
		t.Fatalf("most recent remote session should be active, got %q", state.ActiveChatID)
	}
	msgs := state.Chats[0].Messages
	if msgs[0].Role != models.RoleUser || msgs[1].Role != models.RoleBot {
		t.Fatalf("remote roles mapped wrong: %#v", msgs)
	}
	if second := state.Chats[1]; len(second.Messages) == 0 || second.Title == "" {
		t.Fatalf("empty remote session must gain intro and default title: %#v", second)
	}
}

func TestSetIdentityFetchFailureKeepsLocal(t *testing.T) {
	client := newFakeClient()
	client.historyErr = errors.New("timeout")

	store := NewStore(storage.NewMemoryKV(), client, Config{})
	defer store.Close()

	created := store.CreateSession()
	store.SetIdentity(context.Background(), testIdentity(), "tok")

	if !hasSession(store, created.ID) {
		t.Fatalf("history fetch failure must leave local state untouched")
	}
}

func TestStorageFailuresAreSwallowed(t *testing.T) {
	store := NewStore(failingKV{}, newFakeClient(), Config{})
	defer store.Close()
	store.SetIdentity(context.Background(), testIdentity(), "tok")

	session := store.CreateSession()
	store.SelectSession(session.ID)
	if _, err := store.SendMessage(context.Background(), "still works"); err != nil {
		t.Fatalf("storage failure leaked into SendMessage: %v", err)
	}
	store.Wait()

	if !hasSession(store, session.ID) {
		t.Fatalf("in-memory state must survive storage failures")
	}
}

func TestDeriveTitle(t *testing.T) {
	if got := deriveTitle("  a\tlot   of\nspace ", 48); got != "a lot of space" {
		t.Fatalf("whitespace not collapsed: %q", got)
	}
	long := strings.Repeat("дедлайн ", 20)
	got := deriveTitle(long, 10)
	if r := []rune(got); len(r) != 11 || r[10] != '…' {
		t.Fatalf("truncation wrong: %q", got)
	}
}

func TestManagerReusesStores(t *testing.T) {
	manager := NewManager(storage.NewMemoryKV(), newFakeClient(), Config{})
	defer manager.Close()

	a := manager.For(context.Background(), testIdentity(), "tok")
	b := manager.For(context.Background(), testIdentity(), "tok")
	if a != b {
		t.Fatalf("same identity must map to the same store")
	}
	other := manager.For(context.Background(), &models.Identity{TelegramID: 7}, "tok")
	if other == a {
		t.Fatalf("different identities must not share a store")
	}
	if manager.For(context.Background(), nil, "") != manager.Guest() {
		t.Fatalf("unknown identity must fall back to the guest store")
	}

	manager.Drop(42)
	if manager.For(context.Background(), testIdentity(), "tok") == a {
		t.Fatalf("dropped store handed out again")
	}
}

// --- helpers ---

type fakeClient struct {
	mu         sync.Mutex
	calls      int
	gates      map[string]chan struct{}
	answers    map[string]*models.ChatResult
	errs       map[string]error
	history    []models.RemoteSession
	historyErr error
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		gates:   make(map[string]chan struct{}),
		answers: make(map[string]*models.ChatResult),
		errs:    make(map[string]error),
	}
}

func (f *fakeClient) gate(text string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.gates[text] = ch
	return ch
}

func (f *fakeClient) answer(text string, result *models.ChatResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers[text] = result
}

func (f *fakeClient) fail(text string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[text] = err
}

func (f *fakeClient) sendCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeClient) SendMessage(ctx context.Context, token string, identity *models.Identity, text, sessionID string) (*models.ChatResult, error) {
	f.mu.Lock()
	f.calls++
	gate := f.gates[text]
	result := f.answers[text]
	err := f.errs[text]
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	if result == nil {
		result = &models.ChatResult{FinalAnswer: "echo: " + text}
	}
	return result, nil
}

func (f *fakeClient) FetchHistory(ctx context.Context, token string) ([]models.RemoteSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	return f.history, nil
}

type failingKV struct{}

func (failingKV) Get(ctx context.Context, key string) (string, error) {
	return "", errors.New("storage down")
}

func (failingKV) Set(ctx context.Context, key, value string) error {
	return errors.New("storage down")
}

func (failingKV) Delete(ctx context.Context, key string) error {
	return errors.New("storage down")
}

func testIdentity() *models.Identity {
	return &models.Identity{TelegramID: 42, Username: "student", FirstName: "Али"}
}

func signedInStore(t *testing.T, client *fakeClient, cfg Config) *Store {
	t.Helper()
	store := NewStore(storage.NewMemoryKV(), client, cfg)
	store.SetIdentity(context.Background(), testIdentity(), "tok")
	return store
}

func activeSession(store *Store) models.ChatSession {
	state := store.State()
	return *state.Active()
}

func hasSession(store *Store, id string) bool {
	state := store.State()
	return state.Session(id) != nil
}

func messageByID(t *testing.T, store *Store, id string) models.ChatMessage {
	t.Helper()
	state := store.State()
	for _, session := range state.Chats {
		for _, msg := range session.Messages {
			if msg.ID == id {
				return msg
			}
		}
	}
	t.Fatalf("message %q not found", id)
	return models.ChatMessage{}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met in time")
}
