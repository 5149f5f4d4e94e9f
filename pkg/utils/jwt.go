package utils

import (
	"encoding/base64"
	"errors"
	"time"

	"volunteer_hub/internal/pkg/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims 自定义JWT Claims
type Claims struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

const defaultExpiration = 24 * time.Hour

func signingKey() ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(config.GlobalConfig.JWT.Secret)
	if err != nil {
		return nil, errors.New("jwt secret is not valid base64")
	}
	return key, nil
}

func tokenLifetime() time.Duration {
	if ms := config.GlobalConfig.JWT.Expiration; ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultExpiration
}

// GenerateToken 生成JWT Token，返回 token 与过期时间
func GenerateToken(userID int64, username, role string) (string, time.Time, error) {
	key, err := signingKey()
	if err != nil {
		return "", time.Time{}, err
	}

	now := time.Now()
	expireTime := now.Add(tokenLifetime())

	claims := Claims{
		UserID:   userID,
		Username: username,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(expireTime),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "volunteer-hub",
		},
	}

	tokenClaims := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token, err := tokenClaims.SignedString(key)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expireTime, nil
}

// ParseToken 验证JWT Token
func ParseToken(tokenString string) (*Claims, error) {
	key, err := signingKey()
	if err != nil {
		return nil, err
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return key, nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, jwt.ErrTokenInvalidClaims
}
