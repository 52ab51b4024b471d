// Package auth issues and verifies the HS256 access and refresh tokens.
package auth

import (
	"errors"
	"strconv"
	"time"

	"hhfoundation/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

const (
	kindAccess  = "access"
	kindRefresh = "refresh"
)

// Claims is the access token payload read by the auth middleware.
type Claims struct {
	UserID uint   `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	Kind   string `json:"typ"`
	jwt.RegisteredClaims
}

func registered(cfg *config.JWTConfig, userID uint, ttl time.Duration) jwt.RegisteredClaims {
	now := time.Now()
	return jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   strconv.FormatUint(uint64(userID), 10),
		Issuer:    cfg.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
}

func sign(claims jwt.Claims, secret string) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func GenerateAccessToken(cfg *config.JWTConfig, userID uint, email, role string) (string, error) {
	return sign(Claims{
		UserID:           userID,
		Email:            email,
		Role:             role,
		Kind:             kindAccess,
		RegisteredClaims: registered(cfg, userID, cfg.AccessExpiry),
	}, cfg.AccessSecret)
}

func GenerateRefreshToken(cfg *config.JWTConfig, userID uint) (string, error) {
	return sign(Claims{
		UserID:           userID,
		Kind:             kindRefresh,
		RegisteredClaims: registered(cfg, userID, cfg.RefreshExpiry),
	}, cfg.RefreshSecret)
}

func parse(cfg *config.JWTConfig, raw, secret, kind string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(cfg.Issuer))
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrExpiredToken
	case err != nil:
		return nil, ErrInvalidToken
	}
	if claims.Kind != kind || claims.UserID == 0 {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func ParseAccessToken(cfg *config.JWTConfig, raw string) (*Claims, error) {
	return parse(cfg, raw, cfg.AccessSecret, kindAccess)
}

// ParseRefreshToken validates a refresh token and returns the user id it was issued for.
func ParseRefreshToken(cfg *config.JWTConfig, raw string) (uint, error) {
	claims, err := parse(cfg, raw, cfg.RefreshSecret, kindRefresh)
	if err != nil {
		return 0, err
	}
	return claims.UserID, nil
}
