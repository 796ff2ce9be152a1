package platform

import (
	"context"
	"net/http"

	"github.com/djsadd/AcademicQuestionBot/internal/models"
)

// TelegramLoginPayload is the signed payload produced by the Telegram
// login widget. The platform validates the hash; this client only
// forwards it.
type TelegramLoginPayload struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Username  string `json:"username,omitempty"`
	PhotoURL  string `json:"photo_url,omitempty"`
	AuthDate  int64  `json:"auth_date"`
	Hash      string `json:"hash"`
}

// MiniAppAuthPayload links a Telegram mini-app user to their university
// account with the credentials entered in the mini-app login form.
type MiniAppAuthPayload struct {
	TelegramID int64  `json:"telegram_id,omitempty"`
	InitData   string `json:"init_data,omitempty"`
	Login      string `json:"login"`
	Password   string `json:"password"`
	Agreed     bool   `json:"agreed"`
}

// LoginResult carries the tokens and profile returned by a successful login.
type LoginResult struct {
	Status           string          `json:"status"`
	AccessToken      string          `json:"access_token"`
	RefreshToken     string          `json:"refresh_token"`
	TokenType        string          `json:"token_type"`
	ExpiresIn        int64           `json:"expires_in"`
	RefreshExpiresIn int64           `json:"refresh_expires_in"`
	User             models.Identity `json:"user"`
}

// MiniAppAuthResult reports the outcome of a mini-app credential link.
type MiniAppAuthResult struct {
	Status     string `json:"status"`
	TelegramID int64  `json:"telegram_id"`
	PersonID   string `json:"person_id,omitempty"`
	Role       string `json:"role,omitempty"`
}

// TelegramLogin exchanges a login-widget payload for platform tokens.
func (c *Client) TelegramLogin(ctx context.Context, payload TelegramLoginPayload) (*LoginResult, error) {
	var out LoginResult
	if err := c.doJSON(ctx, http.MethodPost, "/auth/telegram", "", payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MiniAppAuth submits the mini-app login form.
func (c *Client) MiniAppAuth(ctx context.Context, payload MiniAppAuthPayload) (*MiniAppAuthResult, error) {
	var out MiniAppAuthResult
	if err := c.doJSON(ctx, http.MethodPost, "/telegram/auth", "", payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Me resolves the identity behind an access token. Failure means "no
// identity yet", never a fatal condition for callers.
func (c *Client) Me(ctx context.Context, token string) (*models.Identity, error) {
	var resp struct {
		Status string          `json:"status"`
		User   models.Identity `json:"user"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/auth/me", token, nil, &resp); err != nil {
		return nil, err
	}
	return &resp.User, nil
}
