package auth

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/fraudwatch/internal/validation"
)

// Handler provides HTTP endpoints for account and token management
type Handler struct {
	manager *Manager
}

// NewHandler creates a new auth handler
func NewHandler(m *Manager) *Handler {
	return &Handler{manager: m}
}

// CredentialsRequest is the request body for register and login
type CredentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Name     string `json:"name"` // optional token label on login
}

// Register creates a new account
func (h *Handler) Register(c *gin.Context) {
	var req CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "username and password required",
		})
		return
	}

	if errs := validation.Validate(
		validation.Required("username", req.Username),
		validation.ValidUsername("username", req.Username),
		validation.Required("password", req.Password),
		validation.MinLength("password", req.Password, validation.MinPasswordLength),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": errs.Error(),
			"details": errs,
		})
		return
	}

	user, err := h.manager.Register(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, ErrUserExists):
			c.JSON(http.StatusConflict, gin.H{
				"error":   "username_taken",
				"message": "That username is already registered",
			})
		case errors.Is(err, ErrBadCredentials):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_request",
				"message": "username and password required",
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "registration_failed",
				"message": "Failed to create account",
			})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"username":  user.Username,
		"createdAt": user.CreatedAt,
	})
}

// Login verifies credentials and issues a bearer token
func (h *Handler) Login(c *gin.Context) {
	var req CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "username and password required",
		})
		return
	}

	rawToken, token, err := h.manager.Login(c.Request.Context(), req.Username, req.Password, req.Name)
	if err != nil {
		if errors.Is(err, ErrBadCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "bad_credentials",
				"message": "Invalid username or password",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "login_failed",
			"message": "Failed to issue token",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":    rawToken,
		"tokenId":  token.ID,
		"username": token.Username,
		"warning":  "Store this token securely. It will not be shown again.",
	})
}

// ListTokens returns tokens for the authenticated user
func (h *Handler) ListTokens(c *gin.Context) {
	token, ok := GetToken(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	tokens, err := h.manager.ListTokens(c.Request.Context(), token.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to list tokens",
		})
		return
	}

	// Don't expose hashes
	safe := make([]gin.H, len(tokens))
	for i, t := range tokens {
		safe[i] = gin.H{
			"id":        t.ID,
			"name":      t.Name,
			"createdAt": t.CreatedAt,
			"lastUsed":  t.LastUsed,
			"revoked":   t.Revoked,
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"tokens": safe,
		"count":  len(safe),
	})
}

// RevokeToken revokes a bearer token
func (h *Handler) RevokeToken(c *gin.Context) {
	token, ok := GetToken(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	tokenID := c.Param("tokenId")

	// Prevent revoking the token in use
	if tokenID == token.ID {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "cannot_revoke_current",
			"message": "Cannot revoke the token you're using",
		})
		return
	}

	if err := h.manager.RevokeToken(c.Request.Context(), tokenID, token.Username); err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "token_not_found",
			"message": "Token not found or already revoked",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Token revoked",
		"tokenId": tokenID,
	})
}

// Me returns info about the authenticated user
func (h *Handler) Me(c *gin.Context) {
	token, ok := GetToken(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"username":  token.Username,
		"tokenId":   token.ID,
		"tokenName": token.Name,
		"createdAt": token.CreatedAt,
		"lastUsed":  token.LastUsed,
	})
}
