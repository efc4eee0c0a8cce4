package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"medportal/internal/repository"
	v1 "medportal/pkg/api/v1"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	refreshKeyPrefix = "auth:refresh:"

	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenInvalid       = errors.New("token invalid")
	ErrSessionExpired     = errors.New("session expired")
)

// Authenticator resolves login credentials to a user.
type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) (*v1.User, error)
}

type AuthConfig struct {
	SigningKey      []byte
	Issuer          string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

// AuthService issues access/refresh JWT pairs. Only the latest refresh
// token of a user is accepted: each refresh rotates it.
type AuthService struct {
	kv    repository.KVStore
	users Authenticator
	cfg   AuthConfig
}

type UserClaims struct {
	UserID    string `json:"uid"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

func NewAuthService(kv repository.KVStore, users Authenticator, cfg AuthConfig) *AuthService {
	return &AuthService{kv: kv, users: users, cfg: cfg}
}

// Login authenticates a user and returns pair of tokens
func (s *AuthService) Login(ctx context.Context, req v1.LoginRequest) (*v1.TokenPair, error) {
	user, err := s.users.Authenticate(ctx, req.Email, req.Password)
	if err != nil {
		return nil, err
	}
	return s.generateTokens(ctx, user.ID, user.Email, user.Role)
}

// Refresh handles token rotation using the Refresh Token
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*v1.TokenPair, error) {
	claims, err := s.parse(refreshToken, tokenTypeRefresh)
	if err != nil {
		return nil, err
	}

	stored, err := s.kv.Get(ctx, refreshKeyPrefix+claims.UserID)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, ErrSessionExpired
	}
	if string(stored) != refreshToken {
		// A rotated-out token is being replayed.
		return nil, ErrTokenInvalid
	}

	return s.generateTokens(ctx, claims.UserID, claims.Email, claims.Role)
}

func (s *AuthService) Logout(ctx context.Context, userID string) error {
	return s.kv.Delete(ctx, refreshKeyPrefix+userID)
}

// ParseAccessToken validates an access token and returns its claims.
func (s *AuthService) ParseAccessToken(token string) (*UserClaims, error) {
	return s.parse(token, tokenTypeAccess)
}

func (s *AuthService) parse(token, typ string) (*UserClaims, error) {
	parsed, err := jwt.ParseWithClaims(token, &UserClaims{}, func(t *jwt.Token) (interface{}, error) {
		return s.cfg.SigningKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(s.cfg.Issuer))
	if err != nil {
		return nil, ErrTokenInvalid
	}
	claims, ok := parsed.Claims.(*UserClaims)
	if !ok || !parsed.Valid || claims.TokenType != typ {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

func (s *AuthService) generateTokens(ctx context.Context, userID, email, role string) (*v1.TokenPair, error) {
	now := time.Now()
	claims := func(typ string, ttl time.Duration) UserClaims {
		return UserClaims{
			UserID:    userID,
			Email:     email,
			Role:      role,
			TokenType: typ,
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
				IssuedAt:  jwt.NewNumericDate(now),
				NotBefore: jwt.NewNumericDate(now),
				Issuer:    s.cfg.Issuer,
				Subject:   userID,
				ID:        uuid.New().String(), // JTI, keeps rotated tokens distinct
			},
		}
	}

	accessToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims(tokenTypeAccess, s.cfg.AccessTokenTTL)).SignedString(s.cfg.SigningKey)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	refreshToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims(tokenTypeRefresh, s.cfg.RefreshTokenTTL)).SignedString(s.cfg.SigningKey)
	if err != nil {
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}

	// Allow-list the refresh token; this replaces the previous one.
	if err := s.kv.Set(ctx, refreshKeyPrefix+userID, []byte(refreshToken), s.cfg.RefreshTokenTTL); err != nil {
		return nil, err
	}

	return &v1.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		Role:         role,
	}, nil
}
