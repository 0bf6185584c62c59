package common

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims represents the data stored in a JWT token
type Claims struct {
	UserID string `json:"userId"`
	Name   string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

type TokenService struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

func NewTokenService(secret, issuer string, ttl time.Duration) *TokenService {
	return &TokenService{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
	}
}

// GenerateToken issues a token. Login lives elsewhere; this is used by
// tests and local tooling.
func (s *TokenService) GenerateToken(userID, name string) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID: userID,
		Name:   name,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			Subject:   userID,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	return token.SignedString(s.secret)
}

func (s *TokenService) ValidToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, AuthenticationError(err, "token expired")
		}
		return nil, AuthenticationError(err, "invalid token")
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid && claims.UserID != "" {
		return claims, nil
	}
	return nil, AuthenticationError(nil, "invalid token")
}

// JWTAuthenticator verifies the token and confirms the user still exists.
type JWTAuthenticator struct {
	tokens *TokenService
	users  Directory
}

func NewJWTAuthenticator(tokens *TokenService, users Directory) *JWTAuthenticator {
	return &JWTAuthenticator{tokens: tokens, users: users}
}

func (a *JWTAuthenticator) Authenticate(ctx context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, AuthenticationError(nil, "authentication error: no token provided")
	}

	claims, err := a.tokens.ValidToken(token)
	if err != nil {
		return Identity{}, err
	}

	user, err := a.users.UserByID(ctx, claims.UserID)
	if err != nil {
		if IsKind(err, KindNotFound) {
			return Identity{}, AuthenticationError(err, "authentication error: user not found")
		}
		return Identity{}, err
	}

	return Identity{UserID: user.ID, DisplayName: user.Name}, nil
}
