package auth

import (
	"context"
	"database/sql"
)

// PostgresStore persists users and tokens in PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed auth store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// CreateUser stores a new account
func (p *PostgresStore) CreateUser(ctx context.Context, user *User) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO users (username, password_hash, created_at)
		VALUES ($1, $2, $3)
	`, user.Username, user.PasswordHash, user.CreatedAt)
	return err
}

// GetUser retrieves an account by username
func (p *PostgresStore) GetUser(ctx context.Context, username string) (*User, error) {
	user := &User{}
	err := p.db.QueryRowContext(ctx, `
		SELECT username, password_hash, created_at FROM users WHERE username = $1
	`, username).Scan(&user.Username, &user.PasswordHash, &user.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// CreateToken stores a new bearer token
func (p *PostgresStore) CreateToken(ctx context.Context, token *Token) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO api_tokens (id, hash, username, name, created_at, expires_at, revoked)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, token.ID, token.Hash, token.Username, token.Name, token.CreatedAt, token.ExpiresAt, token.Revoked)
	return err
}

// GetTokenByHash retrieves a token by its hash
func (p *PostgresStore) GetTokenByHash(ctx context.Context, hash string) (*Token, error) {
	token := &Token{}
	var expiresAt sql.NullTime
	var lastUsed sql.NullTime

	err := p.db.QueryRowContext(ctx, `
		SELECT id, hash, username, name, created_at, last_used, expires_at, revoked
		FROM api_tokens WHERE hash = $1
		  AND revoked = FALSE
		  AND (expires_at IS NULL OR expires_at > NOW())
	`, hash).Scan(
		&token.ID, &token.Hash, &token.Username, &token.Name,
		&token.CreatedAt, &lastUsed, &expiresAt, &token.Revoked,
	)
	if err == sql.ErrNoRows {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, err
	}

	if expiresAt.Valid {
		token.ExpiresAt = &expiresAt.Time
	}
	if lastUsed.Valid {
		token.LastUsed = lastUsed.Time
	}
	return token, nil
}

// GetTokensByUser retrieves all tokens for a user
func (p *PostgresStore) GetTokensByUser(ctx context.Context, username string) ([]*Token, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, hash, username, name, created_at, last_used, expires_at, revoked
		FROM api_tokens WHERE username = $1 ORDER BY created_at DESC
	`, username)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var tokens []*Token
	for rows.Next() {
		token := &Token{}
		var expiresAt sql.NullTime
		var lastUsed sql.NullTime

		if err := rows.Scan(
			&token.ID, &token.Hash, &token.Username, &token.Name,
			&token.CreatedAt, &lastUsed, &expiresAt, &token.Revoked,
		); err != nil {
			return nil, err
		}

		if expiresAt.Valid {
			token.ExpiresAt = &expiresAt.Time
		}
		if lastUsed.Valid {
			token.LastUsed = lastUsed.Time
		}
		tokens = append(tokens, token)
	}
	return tokens, rows.Err()
}

// UpdateToken updates a bearer token
func (p *PostgresStore) UpdateToken(ctx context.Context, token *Token) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE api_tokens SET last_used = $1, revoked = $2 WHERE id = $3
	`, token.LastUsed, token.Revoked, token.ID)
	return err
}

// DeleteToken removes a bearer token
func (p *PostgresStore) DeleteToken(ctx context.Context, id string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM api_tokens WHERE id = $1`, id)
	return err
}

// Migrate creates the users and api_tokens tables if they don't exist
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			username        VARCHAR(64) PRIMARY KEY,
			password_hash   VARCHAR(255) NOT NULL,
			created_at      TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS api_tokens (
			id              VARCHAR(36) PRIMARY KEY,
			hash            VARCHAR(64) NOT NULL UNIQUE,
			username        VARCHAR(64) NOT NULL,
			name            VARCHAR(255),
			created_at      TIMESTAMPTZ DEFAULT NOW(),
			last_used       TIMESTAMPTZ,
			expires_at      TIMESTAMPTZ,
			revoked         BOOLEAN DEFAULT FALSE
		);
		CREATE INDEX IF NOT EXISTS idx_api_tokens_hash ON api_tokens(hash);
		CREATE INDEX IF NOT EXISTS idx_api_tokens_username ON api_tokens(username);
	`)
	return err
}
