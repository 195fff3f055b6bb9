// Package auth provides API authentication for fraudwatch.
//
// Authentication model:
// - Accounts register with a username and password
// - Login issues an opaque bearer token (shown once, stored hashed)
// - The dashboard presents the token on both REST calls and the
//   WebSocket handshake
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Errors
var (
	ErrNoToken        = errors.New("bearer token required")
	ErrInvalidToken   = errors.New("invalid or expired token")
	ErrTokenNotFound  = errors.New("token not found")
	ErrUserExists     = errors.New("username already taken")
	ErrUserNotFound   = errors.New("user not found")
	ErrBadCredentials = errors.New("invalid username or password")
)

// User is a registered account.
type User struct {
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Token represents an issued bearer token
type Token struct {
	ID        string     `json:"id"`
	Hash      string     `json:"-"` // SHA256 hash of the token (stored)
	Username  string     `json:"username"`
	Name      string     `json:"name"` // Friendly name
	CreatedAt time.Time  `json:"createdAt"`
	LastUsed  time.Time  `json:"lastUsed,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	Revoked   bool       `json:"revoked"`
}

// Store persists users and tokens
type Store interface {
	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, username string) (*User, error)
	CreateToken(ctx context.Context, token *Token) error
	GetTokenByHash(ctx context.Context, hash string) (*Token, error)
	GetTokensByUser(ctx context.Context, username string) ([]*Token, error)
	UpdateToken(ctx context.Context, token *Token) error
	DeleteToken(ctx context.Context, id string) error
}

// Manager handles authentication
type Manager struct {
	store Store
}

// NewManager creates a new auth manager
func NewManager(store Store) *Manager {
	return &Manager{store: store}
}

// Register creates a new account. The password is stored as a bcrypt hash.
func (m *Manager) Register(ctx context.Context, username, password string) (*User, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || password == "" {
		return nil, ErrBadCredentials
	}

	if _, err := m.store.GetUser(ctx, username); err == nil {
		return nil, ErrUserExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := &User{
		Username:     username,
		PasswordHash: string(hash),
		CreatedAt:    time.Now(),
	}
	if err := m.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Login verifies credentials and issues a fresh token.
// Returns the raw token (shown once) and the stored metadata.
func (m *Manager) Login(ctx context.Context, username, password, name string) (rawToken string, token *Token, err error) {
	username = strings.ToLower(strings.TrimSpace(username))

	user, err := m.store.GetUser(ctx, username)
	if err != nil {
		return "", nil, ErrBadCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", nil, ErrBadCredentials
	}

	return m.IssueToken(ctx, username, name)
}

// IssueToken creates a new bearer token for a user
// Returns the raw token (shown once) and the stored metadata
func (m *Manager) IssueToken(ctx context.Context, username, name string) (rawToken string, token *Token, err error) {
	// Generate 32 random bytes
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", nil, err
	}

	// Create raw token with prefix
	rawToken = "sk_" + hex.EncodeToString(b)

	if name == "" {
		name = "Dashboard session"
	}

	token = &Token{
		ID:        "tk_" + hex.EncodeToString(b[:8]),
		Hash:      hashToken(rawToken),
		Username:  strings.ToLower(username),
		Name:      name,
		CreatedAt: time.Now(),
	}

	if err := m.store.CreateToken(ctx, token); err != nil {
		return "", nil, err
	}

	return rawToken, token, nil
}

// ValidateToken validates a bearer token and returns its metadata
func (m *Manager) ValidateToken(ctx context.Context, rawToken string) (*Token, error) {
	if rawToken == "" {
		return nil, ErrNoToken
	}

	// Clean the token
	rawToken = strings.TrimPrefix(rawToken, "Bearer ")
	rawToken = strings.TrimSpace(rawToken)

	if !strings.HasPrefix(rawToken, "sk_") {
		return nil, ErrInvalidToken
	}

	// Look up by hash
	hash := hashToken(rawToken)
	token, err := m.store.GetTokenByHash(ctx, hash)
	if err != nil {
		return nil, ErrInvalidToken
	}

	// Check revoked
	if token.Revoked {
		return nil, ErrInvalidToken
	}

	// Check expired
	if token.ExpiresAt != nil && time.Now().After(*token.ExpiresAt) {
		return nil, ErrInvalidToken
	}

	// Update last used (fire and forget). The memory store hands out its
	// stored pointer, so stamp copies rather than the shared value. The
	// caller and the store each get their own.
	stamped := *token
	stamped.LastUsed = time.Now()
	persisted := stamped
	go func() {
		m.store.UpdateToken(context.Background(), &persisted)
	}()

	return &stamped, nil
}

// Authorize validates a raw token, discarding the metadata. It is the shape
// the WebSocket handshake wants.
func (m *Manager) Authorize(ctx context.Context, rawToken string) error {
	_, err := m.ValidateToken(ctx, rawToken)
	return err
}

// ListTokens returns all tokens for a user
func (m *Manager) ListTokens(ctx context.Context, username string) ([]*Token, error) {
	return m.store.GetTokensByUser(ctx, strings.ToLower(username))
}

// RevokeToken revokes a bearer token
func (m *Manager) RevokeToken(ctx context.Context, tokenID, username string) error {
	tokens, err := m.store.GetTokensByUser(ctx, strings.ToLower(username))
	if err != nil {
		return err
	}

	for _, t := range tokens {
		if t.ID == tokenID {
			revoked := *t
			revoked.Revoked = true
			return m.store.UpdateToken(ctx, &revoked)
		}
	}

	return ErrTokenNotFound
}

func hashToken(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}

// MemoryStore is an in-memory implementation of Store
type MemoryStore struct {
	mu     sync.RWMutex
	users  map[string]*User  // by username
	tokens map[string]*Token // by ID
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:  make(map[string]*User),
		tokens: make(map[string]*Token),
	}
}

func (s *MemoryStore) CreateUser(ctx context.Context, user *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.Username]; ok {
		return ErrUserExists
	}
	s.users[user.Username] = user
	return nil
}

func (s *MemoryStore) GetUser(ctx context.Context, username string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[username]
	if !ok {
		return nil, ErrUserNotFound
	}
	return user, nil
}

func (s *MemoryStore) CreateToken(ctx context.Context, token *Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token.ID] = token
	return nil
}

func (s *MemoryStore) GetTokenByHash(ctx context.Context, hash string) (*Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.tokens {
		if t.Hash == hash {
			return t, nil
		}
	}
	return nil, ErrTokenNotFound
}

func (s *MemoryStore) GetTokensByUser(ctx context.Context, username string) ([]*Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*Token
	for _, t := range s.tokens {
		if strings.EqualFold(t.Username, username) {
			result = append(result, t)
		}
	}
	return result, nil
}

func (s *MemoryStore) UpdateToken(ctx context.Context, token *Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token.ID] = token
	return nil
}

func (s *MemoryStore) DeleteToken(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, id)
	return nil
}
