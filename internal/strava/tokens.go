package strava

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/hybridhouse/journal/internal/telemetry/metrics"
	"github.com/hybridhouse/journal/internal/telemetry/tracing"
)

// refreshBuffer is how long before expiry a token is refreshed proactively.
const refreshBuffer = 300 * time.Second

type connectionsRepo interface {
	GetConnection(ctx context.Context, userID string) (*Connection, error)
	UpdateTokens(ctx context.Context, userID, accessToken, refreshToken string, expiresAt int64) error
}

type tokenRefresher interface {
	Refresh(ctx context.Context, refreshToken string) (*TokenGrant, error)
}

// TokenManager hands out valid access tokens, refreshing them before they
// expire. Refreshes are single-flight per user: two concurrent refreshes
// for the same user would have the provider invalidate the first grant.
type TokenManager struct {
	repo    connectionsRepo
	client  tokenRefresher
	metrics *metrics.Manager
	group   singleflight.Group
	nowFunc func() time.Time
}

func NewTokenManager(repo connectionsRepo, client tokenRefresher, metrics *metrics.Manager) *TokenManager {
	return &TokenManager{
		repo:    repo,
		client:  client,
		metrics: metrics,
		nowFunc: time.Now,
	}
}

// GetValidAccessToken returns an access token valid for at least the
// refresh buffer. A rotated token is persisted before it is ever returned;
// callers never observe a token a crash could silently invalidate.
func (m *TokenManager) GetValidAccessToken(ctx context.Context, userID string) (_ string, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "strava.tokens.getValidAccessToken")
	defer func() { tracing.EndSpanWithErrCheck(span, err) }()

	conn, err := m.repo.GetConnection(ctx, userID)
	if err != nil {
		return "", err
	}

	expiresAt := time.Unix(conn.ExpiresAt, 0)
	if m.nowFunc().Add(refreshBuffer).Before(expiresAt) {
		return conn.AccessToken, nil
	}

	token, err, _ := m.group.Do(userID, func() (any, error) {
		return m.refresh(ctx, userID, conn)
	})
	if err != nil {
		return "", err
	}
	return token.(string), nil
}

func (m *TokenManager) refresh(ctx context.Context, userID string, conn *Connection) (string, error) {
	grant, err := m.client.Refresh(ctx, conn.RefreshToken)
	if err != nil {
		// the connection stays as is, a later attempt may succeed
		return "", &RefreshFailedError{Err: err}
	}

	if err := m.repo.UpdateTokens(
		ctx, userID, grant.AccessToken, grant.RefreshToken, grant.ExpiresAt,
	); err != nil {
		return "", fmt.Errorf("persist refreshed tokens: %w", err)
	}

	m.metrics.CounterTokenRefreshes.Inc()
	log.Debugf(
		"strava tokens refreshed for user %s, new expiry %s",
		userID, time.Unix(grant.ExpiresAt, 0).UTC().Format(time.RFC3339),
	)
	return grant.AccessToken, nil
}
