package auth

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
)

// LoginChecker resolves session tokens against the sessions the Service
// issued.
type LoginChecker struct {
	ttl         time.Duration
	service     *Service
	redisClient *redis.Client
}

func NewLoginChecker(ttl time.Duration, redisClient *redis.Client) *LoginChecker {
	return &LoginChecker{
		ttl:         ttl,
		service:     &Service{redisClient: redisClient, ttl: ttl},
		redisClient: redisClient,
	}
}

func (lc *LoginChecker) IsLogged(ctx context.Context, token string) (bool, error) {
	_, err := lc.UserFromToken(ctx, token)
	if errors.Is(err, ErrNoSession) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// UserFromToken returns the user id behind a session token, or ErrNoSession
// when the token is unknown or expired.
func (lc *LoginChecker) UserFromToken(ctx context.Context, token string) (string, error) {
	userID, createdAt, err := lc.service.sessionValue(ctx, token)
	if err != nil {
		return "", err
	}
	if time.Since(createdAt) > lc.ttl {
		return "", ErrNoSession
	}
	return userID, nil
}
