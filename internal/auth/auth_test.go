package auth

import (
	"context"
	"strings"
	"sync"
	"testing"
)

func TestRegister(t *testing.T) {
	mgr := NewManager(NewMemoryStore())
	ctx := context.Background()

	user, err := mgr.Register(ctx, "Analyst1", "hunter2secret")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if user.Username != "analyst1" { // lowercased
		t.Errorf("Expected username analyst1, got %s", user.Username)
	}
	if user.PasswordHash == "hunter2secret" {
		t.Error("Password must not be stored in the clear")
	}

	// Duplicate username
	_, err = mgr.Register(ctx, "analyst1", "other")
	if err != ErrUserExists {
		t.Errorf("Expected ErrUserExists, got: %v", err)
	}

	// Empty credentials
	_, err = mgr.Register(ctx, "", "")
	if err != ErrBadCredentials {
		t.Errorf("Expected ErrBadCredentials, got: %v", err)
	}
}

func TestLogin(t *testing.T) {
	mgr := NewManager(NewMemoryStore())
	ctx := context.Background()

	if _, err := mgr.Register(ctx, "analyst1", "hunter2secret"); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	rawToken, token, err := mgr.Login(ctx, "analyst1", "hunter2secret", "Ops dashboard")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	// Check raw token format
	if !strings.HasPrefix(rawToken, "sk_") {
		t.Errorf("Expected raw token to start with sk_, got %s", rawToken[:10])
	}
	if len(rawToken) != 67 { // "sk_" + 64 hex chars
		t.Errorf("Expected raw token length 67, got %d", len(rawToken))
	}

	// Check token metadata
	if !strings.HasPrefix(token.ID, "tk_") {
		t.Errorf("Expected token ID to start with tk_, got %s", token.ID)
	}
	if token.Username != "analyst1" {
		t.Errorf("Expected username analyst1, got %s", token.Username)
	}
	if token.Name != "Ops dashboard" {
		t.Errorf("Expected name 'Ops dashboard', got %s", token.Name)
	}

	// Wrong password
	_, _, err = mgr.Login(ctx, "analyst1", "wrong", "")
	if err != ErrBadCredentials {
		t.Errorf("Expected ErrBadCredentials for wrong password, got: %v", err)
	}

	// Unknown user
	_, _, err = mgr.Login(ctx, "nobody", "hunter2secret", "")
	if err != ErrBadCredentials {
		t.Errorf("Expected ErrBadCredentials for unknown user, got: %v", err)
	}
}

func TestValidateToken(t *testing.T) {
	mgr := NewManager(NewMemoryStore())
	ctx := context.Background()

	mgr.Register(ctx, "analyst1", "hunter2secret")
	rawToken, _, err := mgr.Login(ctx, "analyst1", "hunter2secret", "")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	// Validate with correct token
	token, err := mgr.ValidateToken(ctx, rawToken)
	if err != nil {
		t.Errorf("ValidateToken failed for valid token: %v", err)
	}
	if token.Username != "analyst1" {
		t.Errorf("Expected username analyst1, got %s", token.Username)
	}

	// Validate with Bearer prefix
	if _, err = mgr.ValidateToken(ctx, "Bearer "+rawToken); err != nil {
		t.Errorf("ValidateToken failed with Bearer prefix: %v", err)
	}

	// Validate with wrong token
	_, err = mgr.ValidateToken(ctx, "sk_wrongtoken2345678901234567890123456789012345678901234567890")
	if err != ErrInvalidToken {
		t.Errorf("Expected ErrInvalidToken for wrong token, got: %v", err)
	}

	// Validate with empty token
	_, err = mgr.ValidateToken(ctx, "")
	if err != ErrNoToken {
		t.Errorf("Expected ErrNoToken for empty token, got: %v", err)
	}

	// Validate with malformed token
	_, err = mgr.ValidateToken(ctx, "not_a_valid_token")
	if err != ErrInvalidToken {
		t.Errorf("Expected ErrInvalidToken for malformed token, got: %v", err)
	}
}

func TestValidateToken_Concurrent(t *testing.T) {
	mgr := NewManager(NewMemoryStore())
	ctx := context.Background()

	mgr.Register(ctx, "analyst1", "hunter2secret")
	rawToken, _, err := mgr.Login(ctx, "analyst1", "hunter2secret", "")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	// Parallel validations each stamp LastUsed; the race detector catches
	// any write to a token another validation is still reading.
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := mgr.ValidateToken(ctx, rawToken); err != nil {
				t.Errorf("ValidateToken failed: %v", err)
			}
		}()
	}
	wg.Wait()

	// The returned token must be detached from the store's copy.
	token, err := mgr.ValidateToken(ctx, rawToken)
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}
	token.Revoked = true
	if _, err := mgr.ValidateToken(ctx, rawToken); err != nil {
		t.Errorf("Mutating a returned token must not revoke the stored one: %v", err)
	}
}

func TestAuthorize(t *testing.T) {
	mgr := NewManager(NewMemoryStore())
	ctx := context.Background()

	mgr.Register(ctx, "analyst1", "hunter2secret")
	rawToken, _, _ := mgr.Login(ctx, "analyst1", "hunter2secret", "")

	if err := mgr.Authorize(ctx, rawToken); err != nil {
		t.Errorf("Authorize failed for valid token: %v", err)
	}
	if err := mgr.Authorize(ctx, "sk_bogus"); err == nil {
		t.Error("Authorize should fail for bogus token")
	}
}

func TestListTokens(t *testing.T) {
	mgr := NewManager(NewMemoryStore())
	ctx := context.Background()

	mgr.Register(ctx, "analyst1", "pw1pw1pw1")
	mgr.Register(ctx, "analyst2", "pw2pw2pw2")

	mgr.Login(ctx, "analyst1", "pw1pw1pw1", "Session 1")
	mgr.Login(ctx, "analyst1", "pw1pw1pw1", "Session 2")
	mgr.Login(ctx, "analyst2", "pw2pw2pw2", "Session 3")

	tokens, err := mgr.ListTokens(ctx, "analyst1")
	if err != nil {
		t.Fatalf("ListTokens failed: %v", err)
	}
	if len(tokens) != 2 {
		t.Errorf("Expected 2 tokens for analyst1, got %d", len(tokens))
	}

	tokens, err = mgr.ListTokens(ctx, "analyst2")
	if err != nil {
		t.Fatalf("ListTokens failed: %v", err)
	}
	if len(tokens) != 1 {
		t.Errorf("Expected 1 token for analyst2, got %d", len(tokens))
	}
}

func TestRevokeToken(t *testing.T) {
	mgr := NewManager(NewMemoryStore())
	ctx := context.Background()

	mgr.Register(ctx, "analyst1", "hunter2secret")
	rawToken, token, _ := mgr.Login(ctx, "analyst1", "hunter2secret", "To revoke")

	// Validate before revoke
	if _, err := mgr.ValidateToken(ctx, rawToken); err != nil {
		t.Errorf("Token should be valid before revoke")
	}

	// Revoke
	if err := mgr.RevokeToken(ctx, token.ID, "analyst1"); err != nil {
		t.Fatalf("RevokeToken failed: %v", err)
	}

	// Validate after revoke - should fail
	if _, err := mgr.ValidateToken(ctx, rawToken); err != ErrInvalidToken {
		t.Errorf("Expected ErrInvalidToken after revoke, got: %v", err)
	}
}

func TestTokenHashNotExposed(t *testing.T) {
	mgr := NewManager(NewMemoryStore())
	ctx := context.Background()

	mgr.Register(ctx, "analyst1", "hunter2secret")
	rawToken, _, _ := mgr.Login(ctx, "analyst1", "hunter2secret", "")

	token, _ := mgr.ValidateToken(ctx, rawToken)

	if token.Hash == rawToken {
		t.Error("Hash should not equal raw token")
	}
	if token.Hash == "" {
		t.Error("Hash should be set")
	}
}
