package platform

import (
	"context"
	"errors"
	"net/http"

	"github.com/djsadd/AcademicQuestionBot/internal/models"
)

// ChatRequest carries one user question to the orchestrator.
type ChatRequest struct {
	UserID    int64                  `json:"user_id,omitempty"`
	PersonID  string                 `json:"person_id,omitempty"`
	Message   string                 `json:"message"`
	Language  string                 `json:"language,omitempty"`
	Context   map[string]interface{} `json:"context,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// SendMessage asks the platform for a final answer. SessionID correlates
// multi-turn context on the backend side.
func (c *Client) SendMessage(ctx context.Context, token string, identity *models.Identity, text, sessionID string) (*models.ChatResult, error) {
	if text == "" {
		return nil, errors.New("message is required")
	}

	req := ChatRequest{
		Message:  text,
		Language: c.language,
		Context:  map[string]interface{}{"source": "webapp"},
		Metadata: map[string]interface{}{
			"channel":    c.channel,
			"session_id": sessionID,
		},
	}
	if identity.Known() {
		req.UserID = identity.TelegramID
		req.PersonID = identity.PersonID
	}

	var resp struct {
		Result *models.ChatResult `json:"result"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/chat/", token, req, &resp); err != nil {
		return nil, err
	}
	if resp.Result == nil {
		return nil, errors.New("empty chat result")
	}
	return resp.Result, nil
}

// FetchHistory returns the durable sessions the platform stored for the
// authenticated identity, most recently active first.
func (c *Client) FetchHistory(ctx context.Context, token string) ([]models.RemoteSession, error) {
	var resp struct {
		Sessions []models.RemoteSession `json:"sessions"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/chat/history", token, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Sessions, nil
}
