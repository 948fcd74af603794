package services

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/neurobridge-tutor/internal/data/repos/testutil"
	"github.com/yungbote/neurobridge-tutor/internal/platform/ctxutil"
)

func TestAuthService_RoundTrip(t *testing.T) {
	svc := NewAuthService(testutil.Logger(t), "secret", "neurobridge", time.Minute)
	user := uuid.New()

	token, err := svc.IssueAccessToken(user)
	require.NoError(t, err)

	ctx, err := svc.SetContextFromToken(context.Background(), token)
	require.NoError(t, err)
	rd := ctxutil.GetRequestData(ctx)
	require.NotNil(t, rd)
	assert.Equal(t, user, rd.UserID)
}

func TestAuthService_RejectsBadTokens(t *testing.T) {
	svc := NewAuthService(testutil.Logger(t), "secret", "neurobridge", time.Minute)
	other := NewAuthService(testutil.Logger(t), "other-secret", "neurobridge", time.Minute)
	foreign, err := other.IssueAccessToken(uuid.New())
	require.NoError(t, err)

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, JWTClaims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   uuid.NewString(),
		Issuer:    "neurobridge",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}})
	expiredStr, err := expired.SignedString([]byte("secret"))
	require.NoError(t, err)

	notUUID := jwt.NewWithClaims(jwt.SigningMethodHS256, JWTClaims{RegisteredClaims: jwt.RegisteredClaims{
		Subject: "alice", Issuer: "neurobridge",
	}})
	notUUIDStr, err := notUUID.SignedString([]byte("secret"))
	require.NoError(t, err)

	for name, tok := range map[string]string{
		"empty":         "",
		"garbage":       "not.a.jwt",
		"wrong secret":  foreign,
		"expired":       expiredStr,
		"non-uuid user": notUUIDStr,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := svc.SetContextFromToken(context.Background(), tok)
			assert.Error(t, err)
		})
	}
}
