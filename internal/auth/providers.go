package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// SupabaseProvider authenticates with the password grant of a Supabase
// (GoTrue) auth endpoint.
type SupabaseProvider struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewSupabaseProvider creates a provider for the project at baseURL.
func NewSupabaseProvider(baseURL, apiKey string, timeout time.Duration) (*SupabaseProvider, error) {
	if baseURL == "" || apiKey == "" {
		return nil, fmt.Errorf("supabase url and api key are required")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &SupabaseProvider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

type supabaseTokenResponse struct {
	AccessToken string `json:"access_token"`
	User        struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

// Authenticate exchanges the credentials for the provider's user record.
func (p *SupabaseProvider) Authenticate(ctx context.Context, email, password string) (*User, error) {
	body, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/auth/v1/token?grant_type=password", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", p.apiKey)
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("identity provider request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusBadRequest, resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return nil, ErrInvalidCredentials
	case resp.StatusCode != http.StatusOK:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("identity provider returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out supabaseTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode identity response: %w", err)
	}
	if out.User.ID == "" {
		return nil, ErrInvalidCredentials
	}
	return &User{ID: out.User.ID, Email: out.User.Email}, nil
}

// StaticUser is a configured account with a bcrypt password hash.
type StaticUser struct {
	ID           string
	Email        string
	PasswordHash string
}

// StaticProvider checks credentials against configured accounts.
type StaticProvider struct {
	users map[string]StaticUser
}

// NewStaticProvider indexes users by lower-cased email.
func NewStaticProvider(users []StaticUser) *StaticProvider {
	p := &StaticProvider{users: make(map[string]StaticUser, len(users))}
	for _, u := range users {
		p.users[strings.ToLower(strings.TrimSpace(u.Email))] = u
	}
	return p
}

// Authenticate verifies the password against the stored hash.
func (p *StaticProvider) Authenticate(_ context.Context, email, password string) (*User, error) {
	u, ok := p.users[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return &User{ID: u.ID, Email: u.Email}, nil
}

// HashPassword returns a bcrypt hash suitable for a static user entry.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}
