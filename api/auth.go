package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// TokenSlot is the storage slot the bearer token lives in
const TokenSlot = "token"

// TokenStore persists tokens by slot
type TokenStore interface {
	GetToken(slot string) (string, error)
	SaveToken(slot, token string) error
	DeleteToken(slot string) error
}

// LoginCredentials are sent to the auth service to obtain a token
type LoginCredentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthService logs in against the auth API and keeps the resulting bearer
// token in a TokenStore. It also serves as the TokenSource for Client, so a
// new login rotates the token used for data requests.
type AuthService struct {
	authURL    string
	store      TokenStore
	httpClient *http.Client
	log        *logrus.Logger
}

// NewAuthService creates a new auth service
func NewAuthService(authURL string, store TokenStore, log *logrus.Logger) *AuthService {
	return &AuthService{
		authURL:    strings.TrimRight(authURL, "/"),
		store:      store,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		log:        log,
	}
}

// Token returns the stored bearer token, or "" if there is none
func (a *AuthService) Token() (string, error) {
	return a.store.GetToken(TokenSlot)
}

// SetToken stores an externally supplied token
func (a *AuthService) SetToken(token string) error {
	if err := a.store.SaveToken(TokenSlot, token); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}

// Login exchanges credentials for a token. Any failure reports false.
func (a *AuthService) Login(ctx context.Context, creds LoginCredentials) bool {
	body, err := json.Marshal(creds)
	if err != nil {
		a.log.WithError(err).Error("Failed to encode login request")
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.authURL+"/auth/login", bytes.NewReader(body))
	if err != nil {
		a.log.WithError(err).Error("Failed to create login request")
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		a.log.WithError(err).Warn("Login failed")
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		a.log.WithField("status_code", resp.StatusCode).Warn("Login rejected")
		return false
	}

	var loginResp struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&loginResp); err != nil {
		a.log.WithError(err).Warn("Failed to decode login response")
		return false
	}
	if loginResp.Token == "" {
		return false
	}

	if err := a.SetToken(loginResp.Token); err != nil {
		a.log.WithError(err).Error("Login succeeded but token could not be stored")
		return false
	}

	a.log.WithField("username", creds.Username).Info("Logged in")
	return true
}

// Logout forgets the stored token
func (a *AuthService) Logout() {
	if err := a.store.DeleteToken(TokenSlot); err != nil {
		a.log.WithError(err).Error("Failed to delete token")
		return
	}
	a.log.Info("Logged out")
}

// CheckAuth asks the auth API whether the stored token is still valid.
// A missing or rejected token is reported as false.
func (a *AuthService) CheckAuth(ctx context.Context) bool {
	token, err := a.Token()
	if err != nil {
		a.log.WithError(err).Error("Failed to read token")
		return false
	}
	if token == "" {
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.authURL+"/auth/check", nil)
	if err != nil {
		a.log.WithError(err).Error("Failed to create auth check request")
		return false
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		a.log.WithError(err).Warn("Auth check failed")
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false
	}

	var checkResp struct {
		Authenticated bool `json:"authenticated"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&checkResp); err != nil {
		a.log.WithError(err).Warn("Failed to decode auth check response")
		return false
	}

	return checkResp.Authenticated
}
