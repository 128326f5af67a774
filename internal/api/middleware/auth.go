package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/quota_relay/internal/pkg/jwt"
	"github.com/qs3c/quota_relay/internal/pkg/response"
)

const (
	UserIDKey = "userID"
)

// Auth JWT 认证中间件，网关与管理端都需要携带 Bearer 令牌
func Auth(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.AuthError(c, "missing Authorization header")
			c.Abort()
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			response.AuthError(c, "expected Bearer token")
			c.Abort()
			return
		}

		claims, err := jwt.ParseToken(tokenString, jwtSecret)
		if err != nil {
			response.AuthError(c, err.Error())
			c.Abort()
			return
		}

		c.Set(UserIDKey, claims.UserID)
		c.Next()
	}
}

// AdminOnly 只放行配置中的管理员，必须挂在 Auth 之后
func AdminOnly(adminUserID int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := GetUserID(c)
		if !ok {
			response.AuthError(c, "")
			c.Abort()
			return
		}
		if adminUserID == 0 || userID != adminUserID {
			response.PermissionError(c, "")
			c.Abort()
			return
		}
		c.Next()
	}
}

// GetUserID 从上下文获取调用方用户 ID
func GetUserID(c *gin.Context) (int64, bool) {
	userID, exists := c.Get(UserIDKey)
	if !exists {
		return 0, false
	}
	id, ok := userID.(int64)
	return id, ok
}
