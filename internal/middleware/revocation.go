package middleware

import (
	"context"
	"fmt"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"

	"chatcore-backend/internal/database"
	appJWT "chatcore-backend/pkg/jwt"
)

// RedisRevocationChecker implements RevocationChecker using Redis
type RedisRevocationChecker struct {
	client *database.RedisClient
}

// NewRedisRevocationChecker creates a new RedisRevocationChecker
func NewRedisRevocationChecker(client *database.RedisClient) *RedisRevocationChecker {
	return &RedisRevocationChecker{client: client}
}

// IsTokenRevoked checks if a token is in the Redis blacklist
func (c *RedisRevocationChecker) IsTokenRevoked(ctx context.Context, tokenString string) (bool, error) {
	jti, err := tokenID(tokenString)
	if err != nil || jti == "" {
		return false, err
	}

	exists, err := c.client.SafeExists(ctx, blacklistKey(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check blacklist in redis: %w", err)
	}
	return exists > 0, nil
}

// Revoke blacklists a token until ttl passes
func (c *RedisRevocationChecker) Revoke(ctx context.Context, tokenString string, ttl time.Duration) error {
	jti, err := tokenID(tokenString)
	if err != nil {
		return err
	}
	if jti == "" {
		return fmt.Errorf("token has no id")
	}
	return c.client.SafeSet(ctx, blacklistKey(jti), "1", ttl).Err()
}

// tokenID reads the jti claim. The signature was already checked by AuthMiddleware.
func tokenID(tokenString string) (string, error) {
	token, _, err := new(gojwt.Parser).ParseUnverified(tokenString, &appJWT.Claims{})
	if err != nil {
		return "", fmt.Errorf("failed to parse token: %w", err)
	}
	claims, ok := token.Claims.(*appJWT.Claims)
	if !ok {
		return "", fmt.Errorf("invalid claims")
	}
	return claims.ID, nil
}

func blacklistKey(jti string) string {
	return fmt.Sprintf("blacklist:%s", jti)
}
