package common

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockDirectory struct {
	mock.Mock
}

func (m *MockDirectory) CandidateByID(ctx context.Context, id string) (*Candidate, error) {
	args := m.Called(ctx, id)
	c, _ := args.Get(0).(*Candidate)
	return c, args.Error(1)
}

func (m *MockDirectory) UserByID(ctx context.Context, id string) (*User, error) {
	args := m.Called(ctx, id)
	u, _ := args.Get(0).(*User)
	return u, args.Error(1)
}

func (m *MockDirectory) ResolveUsers(ctx context.Context, tokens []string) ([]*User, error) {
	args := m.Called(ctx, tokens)
	users, _ := args.Get(0).([]*User)
	return users, args.Error(1)
}

func TestTokenService_RoundTrip(t *testing.T) {
	svc := NewTokenService("secret", "candidnotes", time.Hour)

	token, err := svc.GenerateToken("u1", "Ann")
	require.NoError(t, err)

	claims, err := svc.ValidToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "Ann", claims.Name)
	assert.Equal(t, "candidnotes", claims.Issuer)
}

func TestTokenService_Rejects(t *testing.T) {
	svc := NewTokenService("secret", "candidnotes", time.Hour)

	otherKey, err := NewTokenService("other", "candidnotes", time.Hour).GenerateToken("u1", "Ann")
	require.NoError(t, err)

	expired, err := NewTokenService("secret", "candidnotes", -time.Minute).GenerateToken("u1", "Ann")
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{UserID: "u1"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	noSubject, err := svc.GenerateToken("", "Ann")
	require.NoError(t, err)

	tests := []struct {
		name    string
		token   string
		message string
	}{
		{name: "garbage", token: "not-a-token", message: "invalid token"},
		{name: "wrong key", token: otherKey, message: "invalid token"},
		{name: "expired", token: expired, message: "token expired"},
		{name: "unsigned", token: none, message: "invalid token"},
		{name: "no user id", token: noSubject, message: "invalid token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := svc.ValidToken(tt.token)
			require.Error(t, err)
			assert.Nil(t, claims)
			assert.True(t, IsKind(err, KindAuthentication))
			assert.Equal(t, tt.message, PublicMessage(err))
		})
	}
}

func TestJWTAuthenticator_Authenticate(t *testing.T) {
	ctx := context.Background()
	tokens := NewTokenService("secret", "candidnotes", time.Hour)
	good, err := tokens.GenerateToken("u1", "stale name")
	require.NoError(t, err)
	ghost, err := tokens.GenerateToken("u404", "Ghost")
	require.NoError(t, err)

	dir := new(MockDirectory)
	dir.On("UserByID", ctx, "u1").Return(&User{ID: "u1", Name: "Ann"}, nil)
	dir.On("UserByID", ctx, "u404").Return(nil, NotFoundError("user not found"))

	auth := NewJWTAuthenticator(tokens, dir)

	identity, err := auth.Authenticate(ctx, good)
	require.NoError(t, err)
	assert.Equal(t, Identity{UserID: "u1", DisplayName: "Ann"}, identity)

	_, err = auth.Authenticate(ctx, ghost)
	assert.True(t, IsKind(err, KindAuthentication))

	_, err = auth.Authenticate(ctx, "")
	assert.True(t, IsKind(err, KindAuthentication))

	dir.AssertExpectations(t)
}

func TestAuthMiddleware(t *testing.T) {
	tokens := NewTokenService("secret", "candidnotes", time.Hour)
	token, err := tokens.GenerateToken("u1", "Ann")
	require.NoError(t, err)

	dir := new(MockDirectory)
	dir.On("UserByID", mock.Anything, "u1").Return(&User{ID: "u1", Name: "Ann"}, nil)

	var seen Identity
	handler := AuthMiddleware(NewJWTAuthenticator(tokens, dir))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/notifications", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "u1", seen.UserID)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/notifications", nil)
	req.Header.Set("Authorization", "Token "+token)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/ws?token=abc", nil)
	assert.Equal(t, "abc", BearerToken(req))

	req.Header.Set("Authorization", "bearer xyz")
	assert.Equal(t, "xyz", BearerToken(req))
}
