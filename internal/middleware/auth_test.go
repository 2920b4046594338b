package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hybridhouse/journal/internal/auth"
	"github.com/hybridhouse/journal/internal/middleware"
)

func TestAuthMiddlewareHandler_AuthCheck(t *testing.T) {
	loginChecker := auth.NewLoginTestChecker()
	loginChecker.LoggedSessions["valid-token"] = "mila"

	authMiddleware := middleware.NewAuthMiddlewareHandler(
		"ingest-api-key-secret",
		loginChecker,
	)

	testCases := []struct {
		name               string
		path               string
		method             string
		authHeader         string
		apiKeyHeader       string
		expectedStatusCode int
	}{
		{
			name:               "AllowedRootWithoutToken",
			path:               "/",
			method:             "GET",
			expectedStatusCode: http.StatusOK,
		},
		{
			name:               "AllowedLoginWithoutToken",
			path:               "/a/login",
			method:             "POST",
			expectedStatusCode: http.StatusOK,
		},
		{
			name:               "AllowedStravaCallbackWithoutToken",
			path:               "/api/strava/callback",
			method:             "GET",
			expectedStatusCode: http.StatusOK,
		},
		{
			name:               "ProtectedPathWithoutToken",
			path:               "/api/journal/lifts",
			method:             "POST",
			expectedStatusCode: http.StatusUnauthorized,
		},
		{
			name:               "ProtectedPathValidSession",
			path:               "/api/journal/lifts",
			method:             "POST",
			authHeader:         "Bearer valid-token",
			expectedStatusCode: http.StatusOK,
		},
		{
			name:               "ProtectedPathInvalidSession",
			path:               "/api/journal/lifts",
			method:             "POST",
			authHeader:         "Bearer wat-token",
			expectedStatusCode: http.StatusUnauthorized,
		},
		{
			name:               "IngestValidApiKeyHeader",
			path:               "/api/health/ingest",
			method:             "POST",
			apiKeyHeader:       "ingest-api-key-secret",
			expectedStatusCode: http.StatusOK,
		},
		{
			name:               "IngestValidApiKeyAsBearer",
			path:               "/api/health/ingest",
			method:             "POST",
			authHeader:         "Bearer ingest-api-key-secret",
			expectedStatusCode: http.StatusOK,
		},
		{
			name:               "IngestInvalidApiKey",
			path:               "/api/health/ingest",
			method:             "POST",
			apiKeyHeader:       "wrong-key",
			expectedStatusCode: http.StatusUnauthorized,
		},
		{
			name:               "WorkoutsListValidApiKey",
			path:               "/api/workouts",
			method:             "GET",
			apiKeyHeader:       "ingest-api-key-secret",
			expectedStatusCode: http.StatusOK,
		},
		{
			name:               "OptionsPreflightAlwaysOk",
			path:               "/api/journal/lifts",
			method:             "OPTIONS",
			expectedStatusCode: http.StatusOK,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req, err := http.NewRequest(tc.method, tc.path, nil)
			require.NoError(t, err)
			if tc.authHeader != "" {
				req.Header.Set("Authorization", tc.authHeader)
			}
			if tc.apiKeyHeader != "" {
				req.Header.Set("x-api-key", tc.apiKeyHeader)
			}

			rr := httptest.NewRecorder()
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
			authMiddleware.AuthCheck()(handler).ServeHTTP(rr, req)

			assert.Equal(t, tc.expectedStatusCode, rr.Code)
		})
	}
}
