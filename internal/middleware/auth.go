package middleware

import (
	"lawchat-go/pkg/token"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// SubjectKey 是 gin.Context 中保存已认证 subject 的键。
const SubjectKey = "subjectId"

// OptionalAuth 创建一个 Gin 中间件：请求携带 Bearer token 时校验并写入 subject，
// 未携带时放行为匿名请求。jwtManager 为 nil 时不做任何处理。
func OptionalAuth(jwtManager *token.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if jwtManager == nil {
			c.Next()
			return
		}
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.Next()
			return
		}

		const bearerPrefix = "Bearer "
		if !strings.HasPrefix(authHeader, bearerPrefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "无效的授权头格式", "data": nil})
			return
		}
		claims, err := jwtManager.VerifyToken(strings.TrimPrefix(authHeader, bearerPrefix))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "无效或已过期的 token", "data": nil})
			return
		}

		c.Set("claims", claims)
		c.Set(SubjectKey, claims.SubjectID())
		c.Next()
	}
}
