package api

import (
	"net/http"

	"medportal/internal/service"
	v1 "medportal/pkg/api/v1"
	"medportal/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type AuthHandler struct {
	svc      *service.AuthService
	practice *service.PracticeService
}

func NewAuthHandler(svc *service.AuthService, practice *service.PracticeService) *AuthHandler {
	return &AuthHandler{svc: svc, practice: practice}
}

func (h *AuthHandler) Login(c *gin.Context) {
	var body v1.LoginRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		writeBindError(c, err)
		return
	}

	tokens, err := h.svc.Login(c.Request.Context(), body)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, tokens)
}

// Refresh rotates the pair. The refresh token travels in the query string.
func (h *AuthHandler) Refresh(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		respondError(c, http.StatusBadRequest, "Paramètre token manquant", map[string]string{"token": "champ obligatoire"})
		return
	}

	tokens, err := h.svc.Refresh(c.Request.Context(), token)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, tokens)
}

func (h *AuthHandler) Logout(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}

	if err := h.svc.Logout(c.Request.Context(), caller.UserID); err != nil {
		logger.Error("logout failed", zap.String("user_id", caller.UserID), zap.Error(err))
	}

	c.Status(http.StatusNoContent)
}

func (h *AuthHandler) Me(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}

	user, err := h.practice.GetUser(c.Request.Context(), caller.UserID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}
