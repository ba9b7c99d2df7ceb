package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"flowbar/backend/internal/service"
)

type AuthHandler struct {
	authService *service.AuthService
}

type pairRequest struct {
	Client string `json:"client"`
	Secret string `json:"secret"`
}

func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

func (h *AuthHandler) Pair(c *gin.Context) {
	var req pairRequest
	if !bindJSON(c, &req, false) {
		return
	}

	result, apiErr := h.authService.Pair(c.Request.Context(), req.Client, req.Secret)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success":   true,
		"token":     result.Token,
		"client":    result.Client,
		"expiresAt": result.ExpiresAt,
	})
}
