package auth

import "context"

// LoginTestChecker is a Checker for tests, sessions are just a map.
type LoginTestChecker struct {
	LoggedSessions map[string]string // token -> userID
}

func NewLoginTestChecker() *LoginTestChecker {
	return &LoginTestChecker{
		LoggedSessions: map[string]string{},
	}
}

func (c *LoginTestChecker) IsLogged(_ context.Context, token string) (bool, error) {
	_, ok := c.LoggedSessions[token]
	return ok, nil
}

func (c *LoginTestChecker) UserFromToken(_ context.Context, token string) (string, error) {
	userID, ok := c.LoggedSessions[token]
	if !ok {
		return "", ErrNoSession
	}
	return userID, nil
}
