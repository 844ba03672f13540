package handler

import (
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tts-server/internal/models"
)

const userIDContextKey = "user_id"

// AuthMiddleware проверяет Bearer токен и кладет user_id в контекст gin.
func (h *TTSHandler) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			h.logger.Warn("Authorization header missing", zap.String("path", c.FullPath()))
			handleServiceError(c, models.ErrTokenInvalid)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			h.logger.Warn("Invalid Authorization header format")
			handleServiceError(c, models.ErrTokenInvalid)
			return
		}

		claims, err := h.verifier.VerifyToken(c.Request.Context(), parts[1])
		if err != nil {
			handleServiceError(c, err)
			return
		}

		c.Set(userIDContextKey, claims.UserID)
		c.Next()
	}
}

// currentUserID достает user_id, положенный AuthMiddleware.
func currentUserID(c *gin.Context) (uint64, bool) {
	v, ok := c.Get(userIDContextKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint64)
	return id, ok
}
