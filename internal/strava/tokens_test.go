package strava

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hybridhouse/journal/internal/telemetry/metrics"
)

type refresherMock struct {
	refreshCalls atomic.Int64
	grant        *TokenGrant
	err          error
	delay        time.Duration
}

func (r *refresherMock) Refresh(_ context.Context, _ string) (*TokenGrant, error) {
	r.refreshCalls.Add(1)
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	if r.err != nil {
		return nil, r.err
	}
	return r.grant, nil
}

func seededRepo(now time.Time, expiresIn time.Duration) *RepoMock {
	repo := NewRepoMock()
	repo.Connections["mila"] = Connection{
		UserID:       "mila",
		AthleteID:    42,
		AccessToken:  "at-stored",
		RefreshToken: "rt-stored",
		ExpiresAt:    now.Add(expiresIn).Unix(),
	}
	return repo
}

func newTestTokenManager(repo *RepoMock, refresher *refresherMock, now time.Time) *TokenManager {
	m := NewTokenManager(repo, refresher, metrics.NewTestManager())
	m.nowFunc = func() time.Time { return now }
	return m
}

func TestGetValidAccessToken_NoRefreshOutsideBuffer(t *testing.T) {
	now := time.Now()
	refresher := &refresherMock{}
	// expires well past the refresh buffer
	m := newTestTokenManager(seededRepo(now, 400*time.Second), refresher, now)

	token, err := m.GetValidAccessToken(context.Background(), "mila")
	require.NoError(t, err)
	assert.Equal(t, "at-stored", token)
	assert.Zero(t, refresher.refreshCalls.Load())
}

func TestGetValidAccessToken_RefreshWithinBuffer(t *testing.T) {
	now := time.Now()
	refresher := &refresherMock{
		grant: &TokenGrant{
			AccessToken:  "at-new",
			RefreshToken: "rt-new",
			ExpiresAt:    now.Add(6 * time.Hour).Unix(),
		},
	}
	repo := seededRepo(now, 200*time.Second)
	m := newTestTokenManager(repo, refresher, now)

	token, err := m.GetValidAccessToken(context.Background(), "mila")
	require.NoError(t, err)
	assert.Equal(t, "at-new", token)
	assert.Equal(t, int64(1), refresher.refreshCalls.Load())

	// rotated tokens were persisted before the token was returned
	conn := repo.Connections["mila"]
	assert.Equal(t, "at-new", conn.AccessToken)
	assert.Equal(t, "rt-new", conn.RefreshToken)
	assert.Equal(t, now.Add(6*time.Hour).Unix(), conn.ExpiresAt)
}

func TestGetValidAccessToken_NotConnected(t *testing.T) {
	now := time.Now()
	m := newTestTokenManager(NewRepoMock(), &refresherMock{}, now)

	_, err := m.GetValidAccessToken(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestGetValidAccessToken_RefreshFailedKeepsConnection(t *testing.T) {
	now := time.Now()
	refresher := &refresherMock{err: errors.New("provider down")}
	repo := seededRepo(now, 100*time.Second)
	m := newTestTokenManager(repo, refresher, now)

	_, err := m.GetValidAccessToken(context.Background(), "mila")
	require.Error(t, err)

	var refreshFailed *RefreshFailedError
	require.ErrorAs(t, err, &refreshFailed)

	// connection survives for a later retry, tokens untouched
	conn, ok := repo.Connections["mila"]
	require.True(t, ok)
	assert.Equal(t, "at-stored", conn.AccessToken)
	assert.Equal(t, "rt-stored", conn.RefreshToken)
}

func TestGetValidAccessToken_PersistFailureNotReturned(t *testing.T) {
	now := time.Now()
	refresher := &refresherMock{
		grant: &TokenGrant{AccessToken: "at-new", RefreshToken: "rt-new", ExpiresAt: now.Add(time.Hour).Unix()},
	}
	repo := seededRepo(now, 100*time.Second)
	repo.UpdateTokensErr = errors.New("db down")
	m := newTestTokenManager(repo, refresher, now)

	_, err := m.GetValidAccessToken(context.Background(), "mila")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "persist refreshed tokens")
}

func TestGetValidAccessToken_SingleFlight(t *testing.T) {
	now := time.Now()
	refresher := &refresherMock{
		grant: &TokenGrant{AccessToken: "at-new", RefreshToken: "rt-new", ExpiresAt: now.Add(time.Hour).Unix()},
		delay: 50 * time.Millisecond,
	}
	m := newTestTokenManager(seededRepo(now, 100*time.Second), refresher, now)

	const callers = 8
	var wg sync.WaitGroup
	tokens := make([]string, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = m.GetValidAccessToken(context.Background(), "mila")
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "at-new", tokens[i])
	}
	// all concurrent callers shared one refresh
	assert.Equal(t, int64(1), refresher.refreshCalls.Load())
}
