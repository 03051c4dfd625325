package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/memowallet/core"
	"github.com/layer-3/memowallet/service"
)

// AuthHandlers contains HTTP handlers for the handshake endpoints
type AuthHandlers struct {
	authService *service.AuthService
}

// NewAuthHandlers creates new auth handlers
func NewAuthHandlers(authService *service.AuthService) *AuthHandlers {
	return &AuthHandlers{
		authService: authService,
	}
}

// Challenge handles GET /challenge?address=
func (h *AuthHandlers) Challenge(c *gin.Context) {
	address := c.Query("address")
	if address == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing address"})
		return
	}

	challenge, err := h.authService.CreateChallenge(c.Request.Context(), address)
	if err != nil {
		if errors.Is(err, core.ErrInvalidAddress) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid address"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create challenge"})
		return
	}

	c.JSON(http.StatusOK, core.ChallengeResponse{ID: challenge.ID, Message: challenge.Message})
}

// Verify handles POST /verify
func (h *AuthHandlers) Verify(c *gin.Context) {
	var req core.VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	result, err := h.authService.Verify(c.Request.Context(), req)
	if err != nil {
		statusCode := http.StatusInternalServerError
		errorMsg := "Authentication failed"

		switch {
		case errors.Is(err, core.ErrInvalidChallenge):
			statusCode = http.StatusBadRequest
			errorMsg = "Invalid challenge"
		case errors.Is(err, core.ErrChallengeExpired):
			statusCode = http.StatusBadRequest
			errorMsg = "Challenge expired"
		case errors.Is(err, core.ErrValidation):
			statusCode = http.StatusBadRequest
			errorMsg = err.Error()
		case errors.Is(err, core.ErrInvalidSignature), errors.Is(err, core.ErrAddressMismatch), errors.Is(err, core.ErrInvalidAddress):
			statusCode = http.StatusUnauthorized
			errorMsg = "Invalid signature"
		}

		c.JSON(statusCode, gin.H{"error": errorMsg})
		return
	}

	c.JSON(http.StatusOK, result)
}

// Me returns the session bound to the bearer token
func (h *AuthHandlers) Me(c *gin.Context) {
	value, exists := c.Get(sessionContextKey)
	if !exists {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Session not found in context"})
		return
	}
	session := value.(*core.IssuedSession)

	c.JSON(http.StatusOK, gin.H{
		"address":    session.Address,
		"sessionId":  session.ID,
		"expiresAt":  session.ExpiresAt,
		"allowances": session.Allowances,
	})
}

// Logout revokes the session bound to the bearer token
func (h *AuthHandlers) Logout(c *gin.Context) {
	value, exists := c.Get(sessionContextKey)
	if !exists {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Session not found in context"})
		return
	}

	if err := h.authService.Logout(c.Request.Context(), value.(*core.IssuedSession)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to revoke session"})
		return
	}

	c.Status(http.StatusNoContent)
}
