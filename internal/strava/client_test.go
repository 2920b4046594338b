package strava

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func activitiesJSON(t *testing.T, fromID, count int) []byte {
	t.Helper()
	activities := make([]map[string]any, 0, count)
	for i := 0; i < count; i++ {
		activities = append(activities, map[string]any{
			"id":           fromID + i,
			"name":         fmt.Sprintf("Run %d", fromID+i),
			"type":         "Run",
			"start_date":   "2024-03-01T08:00:00Z",
			"elapsed_time": 1800,
			"moving_time":  1750,
			"distance":     5000.0,
		})
	}
	body, err := json.Marshal(activities)
	require.NoError(t, err)
	return body
}

func newTestClient(t *testing.T, apiHandler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(apiHandler)
	t.Cleanup(srv.Close)
	client := NewClient(
		"test-client-id", "test-client-secret",
		WithBaseURLs(srv.URL, srv.URL+"/oauth"),
		WithHTTPClient(srv.Client()),
	)
	return client, srv
}

func TestAuthorizeURL(t *testing.T) {
	client := NewClient("cid", "secret")
	u := client.AuthorizeURL("https://api.example.com/strava/callback", "some-state")

	assert.Contains(t, u, "https://www.strava.com/oauth/authorize?")
	assert.Contains(t, u, "client_id=cid")
	assert.Contains(t, u, "approval_prompt=force")
	assert.Contains(t, u, "scope=read%2Cactivity%3Aread")
	assert.Contains(t, u, "state=some-state")
	assert.NotContains(t, u, "secret")
}

func TestExchangeCode(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/oauth/token", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.FormValue("grant_type"))
		assert.Equal(t, "the-code", r.FormValue("code"))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"access_token": "at-1",
			"refresh_token": "rt-1",
			"expires_at": 1900000000,
			"athlete": {"id": 42, "firstname": "Mila", "lastname": "K"}
		}`)
	})

	grant, err := client.ExchangeCode(context.Background(), "the-code")
	require.NoError(t, err)
	assert.Equal(t, "at-1", grant.AccessToken)
	assert.Equal(t, "rt-1", grant.RefreshToken)
	assert.Equal(t, int64(1900000000), grant.ExpiresAt)
	assert.Equal(t, int64(42), grant.AthleteID)
	require.NotNil(t, grant.AthleteName)
	assert.Equal(t, "Mila K", *grant.AthleteName)
}

func TestRefresh(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.FormValue("grant_type"))
		assert.Equal(t, "rt-old", r.FormValue("refresh_token"))
		fmt.Fprint(w, `{"access_token": "at-new", "refresh_token": "rt-new", "expires_at": 1900000000}`)
	})

	grant, err := client.Refresh(context.Background(), "rt-old")
	require.NoError(t, err)
	assert.Equal(t, "at-new", grant.AccessToken)
	assert.Equal(t, "rt-new", grant.RefreshToken)
	assert.Nil(t, grant.AthleteName)
}

func TestFetchActivities_SinglePage(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/athlete/activities", r.URL.Path)
		assert.Equal(t, "Bearer at-1", r.Header.Get("Authorization"))
		assert.Equal(t, "50", r.URL.Query().Get("per_page"))
		assert.Equal(t, "1700000000", r.URL.Query().Get("after"))
		w.Write(activitiesJSON(t, 1, 3))
	})

	activities, err := client.FetchActivities(context.Background(), "at-1", 1700000000)
	require.NoError(t, err)
	require.Len(t, activities, 3)
	assert.Equal(t, int64(1), activities[0].ID)
	assert.Equal(t, "Run", activities[0].Type)
	assert.NotEmpty(t, activities[0].Raw)
}

func TestFetchActivities_PagesUntilShortPage(t *testing.T) {
	var pagesServed []string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")
		pagesServed = append(pagesServed, page)
		switch page {
		case "1":
			w.Write(activitiesJSON(t, 1, 50))
		default:
			w.Write(activitiesJSON(t, 51, 10))
		}
	})

	activities, err := client.FetchActivities(context.Background(), "at-1", 0)
	require.NoError(t, err)
	assert.Len(t, activities, 60)
	assert.Equal(t, []string{"1", "2"}, pagesServed)
}

func TestFetchActivities_CapsTotal(t *testing.T) {
	pages := 0
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		pages++
		w.Write(activitiesJSON(t, pages*1000, 50))
	})

	activities, err := client.FetchActivities(context.Background(), "at-1", 0)
	require.NoError(t, err)
	assert.Len(t, activities, maxActivities)
	assert.Equal(t, 4, pages)
}

func TestFetchActivities_RateLimitedVsProviderError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.FetchActivities(context.Background(), "at-1", 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRateLimited)

	var providerErr *ProviderError
	assert.False(t, errors.As(err, &providerErr))

	client, _ = newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "kaboom", http.StatusInternalServerError)
	})

	_, err = client.FetchActivities(context.Background(), "at-1", 0)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrRateLimited))
	require.True(t, errors.As(err, &providerErr))
	assert.Equal(t, http.StatusInternalServerError, providerErr.StatusCode)
}

func TestTokenRequest_ProviderError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Bad Request"}`, http.StatusBadRequest)
	})

	_, err := client.ExchangeCode(context.Background(), "bad-code")
	var providerErr *ProviderError
	require.True(t, errors.As(err, &providerErr))
	assert.Equal(t, http.StatusBadRequest, providerErr.StatusCode)
}
