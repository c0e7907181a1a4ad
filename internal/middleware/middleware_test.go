package middleware

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-session/internal/config"
	"github.com/stemsi/exstem-session/internal/response"
	"github.com/stemsi/exstem-session/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newAuth(t *testing.T) *service.AuthService {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return service.NewAuthService(&config.Config{JWTSecret: "test-secret", JWTExpiry: time.Hour}, rdb)
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestBrotli_CompressesLargeBodies(t *testing.T) {
	body := strings.Repeat("exam-session ", 200)

	r := gin.New()
	r.Use(Brotli())
	r.GET("/big", func(c *gin.Context) {
		// Several writes, the last one below MinLength, must all land in the stream.
		c.Writer.WriteString(body[:1500])
		c.Writer.WriteString(body[1500:])
	})

	req := httptest.NewRequest(http.MethodGet, "/big", nil)
	req.Header.Set("Accept-Encoding", "gzip, br")
	w := serve(r, req)

	require.Equal(t, "br", w.Header().Get("Content-Encoding"))
	plain, err := io.ReadAll(brotli.NewReader(bytes.NewReader(w.Body.Bytes())))
	require.NoError(t, err)
	assert.Equal(t, body, string(plain))
}

func TestBrotli_PassesThroughSmallBodiesAndNonBrotliClients(t *testing.T) {
	r := gin.New()
	r.Use(Brotli())
	r.GET("/small", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/big", func(c *gin.Context) { c.String(http.StatusOK, strings.Repeat("x", 4096)) })

	req := httptest.NewRequest(http.MethodGet, "/small", nil)
	req.Header.Set("Accept-Encoding", "br")
	w := serve(r, req)
	assert.Empty(t, w.Header().Get("Content-Encoding"))
	assert.Equal(t, "ok", w.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/big", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	w = serve(r, req)
	assert.Empty(t, w.Header().Get("Content-Encoding"))
	assert.Len(t, w.Body.String(), 4096)
}

func TestRateLimiter_RejectsOverBudget(t *testing.T) {
	rl := NewRateLimiter(2, time.Hour)

	r := gin.New()
	r.Use(rl.Middleware())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	codes := make([]int, 0, 3)
	for range 3 {
		codes = append(codes, serve(r, httptest.NewRequest(http.MethodGet, "/", nil)).Code)
	}
	assert.Equal(t, []int{http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests}, codes)
}

func TestRequireProctorJWT_WithPermission(t *testing.T) {
	auth := newAuth(t)

	r := gin.New()
	r.GET("/incidents",
		RequireProctorJWT(auth),
		RequirePermission(service.PermissionMonitorExams),
		func(c *gin.Context) { c.Status(http.StatusNoContent) },
	)

	allowed, err := auth.GenerateProctorToken(7, []string{service.PermissionMonitorExams})
	require.NoError(t, err)
	denied, err := auth.GenerateProctorToken(8, nil)
	require.NoError(t, err)
	student, err := auth.GenerateStudentToken(context.Background(), 42, 1)
	require.NoError(t, err)

	tests := []struct {
		name string
		url  string
		want int
	}{
		{"missing token", "/incidents", http.StatusUnauthorized},
		{"garbage token", "/incidents?token=nope", http.StatusUnauthorized},
		{"student token", "/incidents?token=" + student, http.StatusForbidden},
		{"no permission", "/incidents?token=" + denied, http.StatusForbidden},
		{"allowed", "/incidents?token=" + allowed, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, serve(r, httptest.NewRequest(http.MethodGet, tt.url, nil)).Code)
		})
	}
}

func TestCheckSingleDeviceSession_RejectsReplacedToken(t *testing.T) {
	auth := newAuth(t)

	r := gin.New()
	r.Use(RequireStudentJWT(auth), CheckSingleDeviceSession(auth), NoStore())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	first, err := auth.GenerateStudentToken(context.Background(), 42, 1)
	require.NoError(t, err)
	second, err := auth.GenerateStudentToken(context.Background(), 42, 1)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+first)
	assert.Equal(t, http.StatusUnauthorized, serve(r, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+second)
	w := serve(r, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}

func TestCheckSingleDeviceSession_StoreDownIsNotALogout(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	auth := service.NewAuthService(&config.Config{JWTSecret: "test-secret", JWTExpiry: time.Hour}, rdb)

	r := gin.New()
	r.Use(RequireStudentJWT(auth), CheckSingleDeviceSession(auth))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	token, err := auth.GenerateStudentToken(context.Background(), 42, 1)
	require.NoError(t, err)

	mr.SetError("LOADING")
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := serve(r, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), string(response.ErrSessionStore))

	mr.SetError("")
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	assert.Equal(t, http.StatusNoContent, serve(r, req).Code)

	mr.FlushAll()
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	assert.Equal(t, http.StatusUnauthorized, serve(r, req).Code)
}
