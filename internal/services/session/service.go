package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/wailsapp/wails/v2/pkg/runtime"
	"gorm.io/gorm"

	"dealdesk-desktop/internal/api"
	"dealdesk-desktop/internal/crypto"
	"dealdesk-desktop/internal/models"
)

// ErrNotAuthenticated is returned when an operation needs a session and
// none exists. The UI maps it to a "please log in again" prompt.
var ErrNotAuthenticated = errors.New("not signed in")

const (
	defaultAuthURL = "http://localhost:9999"
	defaultAPIURL  = "http://localhost:8000"
)

// tokenResponse is the auth server's answer to a password or refresh
// token grant.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	User         struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

// UserInfo is the signed-in identity exposed to the frontend
type UserInfo struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

// Service owns the authenticated session: it exchanges credentials for
// tokens, keeps the access token in memory only, and persists the
// refresh token encrypted so the session survives an app restart.
type Service struct {
	db  *gorm.DB
	ctx context.Context

	authURL string
	anonKey string
	apiURL  string
	http    *resty.Client

	mu          sync.RWMutex
	accessToken string
	expiresAt   time.Time
	user        UserInfo
	client      *api.Client

	emit    func(event string, payload interface{})
	onLogin func(client *api.Client)
}

// NewService creates a session service configured from the environment
func NewService(db *gorm.DB, ctx context.Context) *Service {
	s := &Service{
		db:      db,
		ctx:     ctx,
		authURL: getEnv("AUTH_URL", defaultAuthURL),
		anonKey: os.Getenv("AUTH_ANON_KEY"),
		apiURL:  getEnv("API_BASE_URL", defaultAPIURL),
		http: resty.New().
			SetHeader("User-Agent", "dealdesk-desktop").
			SetTimeout(30 * time.Second),
	}
	if ctx != nil {
		s.emit = func(event string, payload interface{}) {
			runtime.EventsEmit(ctx, event, payload)
		}
	}
	return s
}

// OnLogin registers a hook that receives the authenticated API client
// whenever a session is established.
func (s *Service) OnLogin(fn func(client *api.Client)) {
	s.onLogin = fn
}

// Login exchanges credentials for a session and persists the encrypted
// refresh token.
func (s *Service) Login(email, password string) (*UserInfo, error) {
	tokens, err := s.grant("password", map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return nil, err
	}

	s.establish(tokens)
	s.persistSession(tokens)

	log.Printf("Signed in as %s", tokens.User.Email)
	user := UserInfo{UserID: tokens.User.ID, Email: tokens.User.Email}
	return &user, nil
}

// Restore re-establishes the session from the stored refresh token,
// typically on app startup. Returns ErrNotAuthenticated when no usable
// session is stored.
func (s *Service) Restore() (*UserInfo, error) {
	if s.db == nil {
		return nil, ErrNotAuthenticated
	}

	var stored models.Session
	if err := s.db.Order("updated_at desc").First(&stored).Error; err != nil {
		return nil, ErrNotAuthenticated
	}

	refreshToken, err := crypto.DecryptToken(stored.RefreshTokenEnc)
	if err != nil {
		log.Printf("Stored session is unreadable, discarding: %v", err)
		s.db.Delete(&stored)
		return nil, ErrNotAuthenticated
	}

	tokens, err := s.grant("refresh_token", map[string]string{
		"refresh_token": refreshToken,
	})
	if err != nil {
		log.Printf("Session refresh rejected, discarding: %v", err)
		s.db.Delete(&stored)
		return nil, ErrNotAuthenticated
	}

	s.establish(tokens)
	s.persistSession(tokens)

	log.Printf("Restored session for %s", tokens.User.Email)
	user := UserInfo{UserID: tokens.User.ID, Email: tokens.User.Email}
	return &user, nil
}

// Logout drops the session in memory and on disk
func (s *Service) Logout() error {
	s.mu.Lock()
	s.accessToken = ""
	s.expiresAt = time.Time{}
	s.user = UserInfo{}
	s.client = nil
	s.mu.Unlock()

	if s.db != nil {
		if err := s.db.Where("1 = 1").Delete(&models.Session{}).Error; err != nil {
			return fmt.Errorf("failed to clear stored session: %w", err)
		}
	}

	s.notify()
	log.Printf("Signed out")
	return nil
}

// Client returns the authenticated API client, or ErrNotAuthenticated
// when no session is active.
func (s *Service) Client() (*api.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.client == nil {
		return nil, ErrNotAuthenticated
	}
	return s.client, nil
}

// CurrentUser returns the signed-in identity, if any
func (s *Service) CurrentUser() (*UserInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.accessToken == "" {
		return nil, ErrNotAuthenticated
	}
	user := s.user
	return &user, nil
}

// IsAuthenticated reports whether a session is active and unexpired
func (s *Service) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken != "" && time.Now().Before(s.expiresAt)
}

func (s *Service) grant(grantType string, body map[string]string) (*tokenResponse, error) {
	req := s.http.R().
		SetHeader("Content-Type", "application/json").
		SetBody(body)
	if s.anonKey != "" {
		req.SetHeader("apikey", s.anonKey)
	}

	resp, err := req.Post(fmt.Sprintf("%s/auth/v1/token?grant_type=%s", s.authURL, grantType))
	if err != nil {
		return nil, fmt.Errorf("auth request failed: %w", err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("authentication failed: HTTP %d", resp.StatusCode())
	}

	var tokens tokenResponse
	if err := json.Unmarshal(resp.Body(), &tokens); err != nil {
		return nil, fmt.Errorf("failed to parse auth response: %w", err)
	}
	if tokens.AccessToken == "" {
		return nil, fmt.Errorf("authentication failed: empty token")
	}
	return &tokens, nil
}

func (s *Service) establish(tokens *tokenResponse) {
	client := api.NewClient(s.apiURL, tokens.AccessToken)

	s.mu.Lock()
	s.accessToken = tokens.AccessToken
	s.expiresAt = time.Now().Add(time.Duration(tokens.ExpiresIn) * time.Second)
	s.user = UserInfo{UserID: tokens.User.ID, Email: tokens.User.Email}
	s.client = client
	s.mu.Unlock()

	if s.onLogin != nil {
		s.onLogin(client)
	}
	s.notify()
}

// persistSession stores the refresh token encrypted. One session row at
// a time; a new login replaces the previous one.
func (s *Service) persistSession(tokens *tokenResponse) {
	if s.db == nil || tokens.RefreshToken == "" {
		return
	}

	enc, err := crypto.EncryptToken(tokens.RefreshToken)
	if err != nil {
		log.Printf("Failed to encrypt refresh token, session will not survive restart: %v", err)
		return
	}

	if err := s.db.Where("1 = 1").Delete(&models.Session{}).Error; err != nil {
		log.Printf("Failed to clear previous sessions: %v", err)
	}

	row := &models.Session{
		Email:           tokens.User.Email,
		UserID:          tokens.User.ID,
		RefreshTokenEnc: enc,
	}
	if err := s.db.Create(row).Error; err != nil {
		log.Printf("Failed to persist session: %v", err)
	}
}

func (s *Service) notify() {
	if s.emit == nil {
		return
	}

	s.mu.RLock()
	payload := map[string]interface{}{
		"authenticated": s.accessToken != "",
		"email":         s.user.Email,
	}
	s.mu.RUnlock()

	s.emit("session:changed", payload)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
