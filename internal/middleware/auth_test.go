package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"exam_practice_backend/internal/config"
	"exam_practice_backend/internal/model"
	"exam_practice_backend/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter(cfg *config.Config, roles ...model.UserRole) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ping", AuthMiddleware(cfg), RoleMiddleware(roles...), func(c *gin.Context) {
		util.Success(c, util.GetUserFromContext(c).UserID)
	})
	return r
}

func request(t *testing.T, r *gin.Engine, token string) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Code
}

func TestAuthAndRole(t *testing.T) {
	cfg := &config.Config{JWT: config.JWTConfig{Secret: "middleware-secret"}}
	r := newRouter(cfg, model.Teacher)

	assert.Equal(t, http.StatusUnauthorized, request(t, r, ""))
	assert.Equal(t, http.StatusUnauthorized, request(t, r, "not-a-token"))

	wrongSecret, err := util.GenerateJWT(1, model.Teacher, "other-secret", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, request(t, r, wrongSecret))

	expired, err := util.GenerateJWT(1, model.Teacher, cfg.JWT.Secret, -time.Minute)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, request(t, r, expired))

	student, err := util.GenerateJWT(1, model.Student, cfg.JWT.Secret, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, request(t, r, student))

	teacher, err := util.GenerateJWT(2, model.Teacher, cfg.JWT.Secret, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, request(t, r, teacher))

	// 管理员拥有全部角色权限
	admin, err := util.GenerateJWT(3, model.Admin, cfg.JWT.Secret, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, request(t, r, admin))
}

func rawRequest(r *gin.Engine, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Authorization", authorization)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthRejectsMalformedIdentity(t *testing.T) {
	cfg := &config.Config{JWT: config.JWTConfig{Secret: "middleware-secret"}}
	r := newRouter(cfg, model.Student)

	w := rawRequest(r, "Token abc")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Header().Get("WWW-Authenticate"), "Bearer")

	unknownRole, err := util.GenerateJWT(1, model.UserRole("parent"), cfg.JWT.Secret, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, rawRequest(r, "Bearer "+unknownRole).Code)

	noUser, err := util.GenerateJWT(0, model.Student, cfg.JWT.Secret, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, rawRequest(r, "Bearer "+noUser).Code)

	// 没有过期时间的令牌不接受
	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &util.Claims{UserID: 1, Role: model.Student}).
		SignedString([]byte(cfg.JWT.Secret))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, rawRequest(r, "Bearer "+noExpiry).Code)

	valid, err := util.GenerateJWT(4, model.Student, cfg.JWT.Secret, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rawRequest(r, "bearer  "+valid).Code)
}
