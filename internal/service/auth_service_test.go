package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-session/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuthFixture(t *testing.T) (*AuthService, *config.Config) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := &config.Config{JWTSecret: "test-secret", JWTExpiry: time.Hour}
	return NewAuthService(cfg, rdb), cfg
}

func TestStudentToken_RoundTripAndSingleDevice(t *testing.T) {
	auth, _ := newAuthFixture(t)
	ctx := context.Background()

	first, err := auth.GenerateStudentToken(ctx, 42, 3)
	require.NoError(t, err)

	claims, err := auth.ValidateToken(first)
	require.NoError(t, err)
	assert.Equal(t, TokenTypeStudent, claims.TokenType)
	assert.Equal(t, 42, claims.UserID)
	assert.Equal(t, 3, claims.ClassID)
	require.NoError(t, auth.ValidateStudentSession(ctx, 42, claims.ID))

	second, err := auth.GenerateStudentToken(ctx, 42, 3)
	require.NoError(t, err)
	newer, err := auth.ValidateToken(second)
	require.NoError(t, err)

	assert.ErrorIs(t, auth.ValidateStudentSession(ctx, 42, claims.ID), ErrSessionInvalidated)
	assert.NoError(t, auth.ValidateStudentSession(ctx, 42, newer.ID))
	assert.ErrorIs(t, auth.ValidateStudentSession(ctx, 99, newer.ID), ErrNoActiveSession)
}

func TestProctorToken_CarriesPermissions(t *testing.T) {
	auth, _ := newAuthFixture(t)

	tok, err := auth.GenerateProctorToken(5, []string{PermissionMonitorExams})
	require.NoError(t, err)

	claims, err := auth.ValidateToken(tok)
	require.NoError(t, err)
	assert.Equal(t, TokenTypeProctor, claims.TokenType)
	assert.Equal(t, []string{PermissionMonitorExams}, claims.Permissions)
}

func TestValidateToken_Rejects(t *testing.T) {
	auth, cfg := newAuthFixture(t)

	other := &AuthService{cfg: &config.Config{JWTSecret: "other", JWTExpiry: time.Hour}}
	forged, err := other.GenerateProctorToken(5, nil)
	require.NoError(t, err)
	_, err = auth.ValidateToken(forged)
	assert.Error(t, err, "wrong secret")

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute))},
		TokenType:        TokenTypeStudent,
	})
	signed, err := expired.SignedString([]byte(cfg.JWTSecret))
	require.NoError(t, err)
	_, err = auth.ValidateToken(signed)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{TokenType: TokenTypeStudent})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = auth.ValidateToken(unsigned)
	assert.Error(t, err)
}
