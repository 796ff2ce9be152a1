package platform

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/djsadd/AcademicQuestionBot/internal/models"
)

func TestSendMessageShapesRequest(t *testing.T) {
	var captured ChatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/chat/" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("missing bearer header: %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"result": map[string]interface{}{
				"query":        captured.Message,
				"final_answer": "March 1",
				"intents":      []string{"deadline"},
				"llm":          map[string]interface{}{"model": "gpt", "used": true},
			},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second, WithProfile("ru", "telegram_webapp"))
	identity := &models.Identity{TelegramID: 42, PersonID: "p-1"}
	result, err := client.SendMessage(context.Background(), "tok", identity, "когда дедлайн?", "abc123")
	if err != nil {
		t.Fatalf("SendMessage error: %v", err)
	}

	if captured.UserID != 42 || captured.PersonID != "p-1" {
		t.Fatalf("identity not forwarded: %#v", captured)
	}
	if captured.Language != "ru" || captured.Metadata["channel"] != "telegram_webapp" {
		t.Fatalf("profile not applied: %#v", captured)
	}
	if captured.Metadata["session_id"] != "abc123" {
		t.Fatalf("session id not forwarded: %#v", captured.Metadata)
	}
	if result.FinalAnswer != "March 1" || result.LLM == nil || !result.LLM.Used {
		t.Fatalf("result not decoded: %#v", result)
	}
}

func TestSendMessageRejectsEmptyResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"result": nil})
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second)
	if _, err := client.SendMessage(context.Background(), "tok", &models.Identity{TelegramID: 1}, "hi", ""); err == nil {
		t.Fatalf("nil result should be an error")
	}
}

func TestErrorDetailSurfaces(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"detail": "orchestrator down"})
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second)
	_, err := client.FetchHistory(context.Background(), "tok")
	if err == nil {
		t.Fatalf("expected error")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T", err)
	}
	if apiErr.StatusCode != http.StatusServiceUnavailable || apiErr.Message != "orchestrator down" {
		t.Fatalf("detail lost: %#v", apiErr)
	}
}

func TestErrorFallsBackToStatusText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("<html>nginx</html>"))
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second)
	_, err := client.Me(context.Background(), "tok")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "Bad Gateway" {
		t.Fatalf("expected status text fallback, got %v", err)
	}
}

func TestFetchHistoryDecodes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/history" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"sessions": []map[string]interface{}{{
				"session_id": "s1",
				"title":      "Дедлайны",
				"messages": []map[string]interface{}{
					{"id": "m1", "role": "user", "content": "когда дедлайн?"},
				},
			}},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second)
	sessions, err := client.FetchHistory(context.Background(), "tok")
	if err != nil {
		t.Fatalf("FetchHistory error: %v", err)
	}
	if len(sessions) != 1 || sessions[0].SessionID != "s1" || len(sessions[0].Messages) != 1 {
		t.Fatalf("history not decoded: %#v", sessions)
	}
}
