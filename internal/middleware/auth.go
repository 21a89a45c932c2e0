package middleware

import (
	"strings"

	"exam_practice_backend/internal/config"
	"exam_practice_backend/internal/model"
	"exam_practice_backend/internal/util"
	"exam_practice_backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// bearerToken 解析 "Bearer <token>"，scheme 不区分大小写
func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func unauthorized(c *gin.Context) {
	c.Header("WWW-Authenticate", `Bearer realm="exam-practice"`)
	util.Unauthorized(c)
	c.Abort()
}

// AuthMiddleware 校验 Bearer token，身份写入上下文供 util.GetUserFromContext 读取
func AuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := bearerToken(c.GetHeader("Authorization"))
		if tokenString == "" {
			unauthorized(c)
			return
		}

		claims, err := util.ParseJWT(tokenString, cfg.JWT.Secret)
		if err != nil {
			logger.Log.Debug("Rejected token",
				zap.String("path", c.FullPath()),
				zap.Error(err))
			unauthorized(c)
			return
		}

		c.Set(util.ContextUserKey, claims)
		c.Next()
	}
}

// RoleMiddleware 管理员拥有全部角色的权限
func RoleMiddleware(roles ...model.UserRole) gin.HandlerFunc {
	allowed := map[model.UserRole]bool{model.Admin: true}
	for _, role := range roles {
		allowed[role] = true
	}

	return func(c *gin.Context) {
		user := util.GetUserFromContext(c)
		if user == nil {
			unauthorized(c)
			return
		}
		if !allowed[user.Role] {
			logger.Log.Debug("Role not permitted",
				zap.Uint("userID", user.UserID),
				zap.String("role", string(user.Role)),
				zap.String("path", c.FullPath()))
			util.Forbidden(c)
			c.Abort()
			return
		}
		c.Next()
	}
}
