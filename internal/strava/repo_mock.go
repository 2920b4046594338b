package strava

import (
	"context"
	"sync"
	"time"
)

// RepoMock is an in-memory connections and activities store used in tests.
type RepoMock struct {
	mu          sync.Mutex
	Connections map[string]Connection
	Activities  map[int64]Activity

	UpdateTokensErr error
	UpsertErr       error
}

func NewRepoMock() *RepoMock {
	return &RepoMock{
		Connections: map[string]Connection{},
		Activities:  map[int64]Activity{},
	}
}

func (r *RepoMock) UpsertConnection(_ context.Context, conn Connection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.Connections[conn.UserID]; ok {
		conn.LastSyncAt = existing.LastSyncAt
	}
	r.Connections[conn.UserID] = conn
	return nil
}

func (r *RepoMock) GetConnection(_ context.Context, userID string) (*Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.Connections[userID]
	if !ok {
		return nil, ErrNotConnected
	}
	return &conn, nil
}

func (r *RepoMock) UpdateTokens(_ context.Context, userID, accessToken, refreshToken string, expiresAt int64) error {
	if r.UpdateTokensErr != nil {
		return r.UpdateTokensErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.Connections[userID]
	if !ok {
		return ErrNotConnected
	}
	conn.AccessToken = accessToken
	conn.RefreshToken = refreshToken
	conn.ExpiresAt = expiresAt
	r.Connections[userID] = conn
	return nil
}

func (r *RepoMock) UpdateLastSync(_ context.Context, userID string, lastSyncAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.Connections[userID]
	if !ok {
		return ErrNotConnected
	}
	conn.LastSyncAt = &lastSyncAt
	r.Connections[userID] = conn
	return nil
}

func (r *RepoMock) DeleteConnection(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.Connections[userID]; !ok {
		return ErrNotConnected
	}
	delete(r.Connections, userID)
	return nil
}

func (r *RepoMock) UpsertActivities(_ context.Context, _ string, activities []Activity) (imported, updated int, err error) {
	if r.UpsertErr != nil {
		return 0, 0, r.UpsertErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range activities {
		if _, ok := r.Activities[a.ID]; ok {
			updated++
		} else {
			imported++
		}
		r.Activities[a.ID] = a
	}
	return imported, updated, nil
}
