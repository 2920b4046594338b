package strava

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/hybridhouse/journal/internal/health"
	"github.com/hybridhouse/journal/internal/telemetry/metrics"
	"github.com/hybridhouse/journal/internal/telemetry/tracing"
	"github.com/hybridhouse/journal/pkg"
)

// defaultSyncWindow bounds the first sync when there is no last_sync_at yet.
const defaultSyncWindow = 30 * 24 * time.Hour

// Redirect outcome codes, part of the observable contract with the app.
const (
	outcomeConnected     = "connected=strava"
	outcomeDenied        = "error=strava_denied"
	outcomeInvalid       = "error=strava_invalid"
	outcomeInvalidState  = "error=strava_invalid_state"
	outcomeTokenExchange = "error=strava_token_exchange"
	outcomeDBError       = "error=strava_db_error"
	outcomeConfigError   = "error=strava_config_error"
	outcomeCallbackError = "error=strava_callback_error"
)

type stravaAPI interface {
	AuthorizeURL(redirectURI, state string) string
	ExchangeCode(ctx context.Context, code string) (*TokenGrant, error)
	FetchActivities(ctx context.Context, accessToken string, afterEpoch int64) ([]Activity, error)
}

type accessTokens interface {
	GetValidAccessToken(ctx context.Context, userID string) (string, error)
}

type syncRepo interface {
	UpsertConnection(ctx context.Context, conn Connection) error
	GetConnection(ctx context.Context, userID string) (*Connection, error)
	UpdateLastSync(ctx context.Context, userID string, lastSyncAt time.Time) error
	DeleteConnection(ctx context.Context, userID string) error
	UpsertActivities(ctx context.Context, userID string, activities []Activity) (imported, updated int, err error)
}

type workoutsStore interface {
	InsertWorkouts(ctx context.Context, workouts []health.Workout) (health.UpsertResult, error)
}

type loginChecker interface {
	UserFromToken(ctx context.Context, token string) (string, error)
}

type Handler struct {
	client       stravaAPI
	tokens       accessTokens
	repo         syncRepo
	workouts     workoutsStore
	loginChecker loginChecker
	metrics      *metrics.Manager

	redirectURI string
	// appBaseURL is where all callback outcomes redirect to, configured,
	// never derived from request headers.
	appBaseURL string
	nowFunc    func() time.Time
}

type NewHandlerParams struct {
	Client       stravaAPI
	Tokens       accessTokens
	Repo         syncRepo
	Workouts     workoutsStore
	LoginChecker loginChecker
	Metrics      *metrics.Manager
	RedirectURI  string
	AppBaseURL   string
}

func NewHandler(params NewHandlerParams) *Handler {
	return &Handler{
		client:       params.Client,
		tokens:       params.Tokens,
		repo:         params.Repo,
		workouts:     params.Workouts,
		loginChecker: params.LoginChecker,
		metrics:      params.Metrics,
		redirectURI:  params.RedirectURI,
		appBaseURL:   params.AppBaseURL,
		nowFunc:      time.Now,
	}
}

// EncodeState packs the initiating user's id and a random component into
// the opaque OAuth state parameter. The handshake is stateless on our side,
// the callback recovers the user id from state alone.
// TODO: verify the random component against a stored nonce; as is, the
// provider is trusted to return state unmodified.
func EncodeState(userID string) (string, error) {
	randomBytes, err := pkg.GenerateRandomBytes(32)
	if err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}
	raw := userID + ":" + hex.EncodeToString(randomBytes)
	return base64.URLEncoding.EncodeToString([]byte(raw)), nil
}

// DecodeState recovers the user id from a state parameter.
func DecodeState(state string) (string, error) {
	raw, err := base64.URLEncoding.DecodeString(state)
	if err != nil {
		return "", fmt.Errorf("decode state: %w", err)
	}
	userID, random, found := strings.Cut(string(raw), ":")
	if !found || userID == "" || random == "" {
		return "", errors.New("malformed state")
	}
	return userID, nil
}

func (h *Handler) userFromRequest(ctx context.Context, r *http.Request) (string, error) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if token == "" {
		// plain browser navigation cannot set headers
		token = r.URL.Query().Get("token")
	}
	if token == "" {
		return "", errors.New("no auth token")
	}
	return h.loginChecker.UserFromToken(ctx, token)
}

func (h *Handler) redirectOutcome(w http.ResponseWriter, r *http.Request, outcome string) {
	http.Redirect(w, r, h.appBaseURL+"/?tab=profile&"+outcome, http.StatusFound)
}

// HandleConnect starts the OAuth handshake, redirecting the logged-in user
// to the provider's authorize page.
func (h *Handler) HandleConnect(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.strava.connect")
	defer span.End()

	userID, err := h.userFromRequest(ctx, r)
	if err != nil {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}

	if h.redirectURI == "" {
		log.Errorf("strava connect: redirect uri not configured")
		h.redirectOutcome(w, r, outcomeConfigError)
		return
	}

	state, err := EncodeState(userID)
	if err != nil {
		log.Errorf("strava connect: %s", err)
		h.redirectOutcome(w, r, outcomeCallbackError)
		return
	}

	http.Redirect(w, r, h.client.AuthorizeURL(h.redirectURI, state), http.StatusFound)
}

// HandleCallback receives the provider's redirect, exchanges the code for
// tokens and stores the connection. Every outcome lands on the app base URL
// with a typed outcome flag; raw provider errors never leak to the user.
func (h *Handler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.strava.callback")
	defer span.End()

	query := r.URL.Query()
	if errParam := query.Get("error"); errParam != "" {
		log.Debugf("strava callback denied: %s", errParam)
		h.redirectOutcome(w, r, outcomeDenied)
		return
	}

	code := query.Get("code")
	state := query.Get("state")
	if code == "" || state == "" {
		h.redirectOutcome(w, r, outcomeInvalid)
		return
	}

	userID, err := DecodeState(state)
	if err != nil {
		log.Errorf("strava callback: %s", err)
		h.redirectOutcome(w, r, outcomeInvalidState)
		return
	}

	grant, err := h.client.ExchangeCode(ctx, code)
	if err != nil {
		log.Errorf("strava callback, exchange code for user %s: %s", userID, err)
		h.redirectOutcome(w, r, outcomeTokenExchange)
		return
	}

	if err := h.repo.UpsertConnection(ctx, Connection{
		UserID:       userID,
		AthleteID:    grant.AthleteID,
		AthleteName:  grant.AthleteName,
		AccessToken:  grant.AccessToken,
		RefreshToken: grant.RefreshToken,
		ExpiresAt:    grant.ExpiresAt,
	}); err != nil {
		log.Errorf("strava callback, persist connection for user %s: %s", userID, err)
		h.redirectOutcome(w, r, outcomeDBError)
		return
	}

	log.Debugf("strava connected for user %s, athlete %d", userID, grant.AthleteID)
	h.redirectOutcome(w, r, outcomeConnected)
}

// HandleSync pulls activities since the last sync (or the default window on
// first sync), caches the raw snapshots and upserts canonical workouts.
func (h *Handler) HandleSync(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.strava.sync")
	defer span.End()

	userID, err := h.userFromRequest(ctx, r)
	if err != nil {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}

	conn, err := h.repo.GetConnection(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotConnected) {
			http.Error(w, "strava not connected", http.StatusBadRequest)
			return
		}
		log.Errorf("strava sync, get connection for user %s: %s", userID, err)
		http.Error(w, "sync failed", http.StatusInternalServerError)
		return
	}

	accessToken, err := h.tokens.GetValidAccessToken(ctx, userID)
	if err != nil {
		h.writeSyncError(w, userID, err)
		return
	}

	after := h.nowFunc().Add(-defaultSyncWindow)
	if conn.LastSyncAt != nil {
		after = *conn.LastSyncAt
	}

	activities, err := h.client.FetchActivities(ctx, accessToken, after.Unix())
	if err != nil {
		h.writeSyncError(w, userID, err)
		return
	}

	imported, updated, err := h.repo.UpsertActivities(ctx, userID, activities)
	if err != nil {
		log.Errorf("strava sync, upsert activities for user %s: %s", userID, err)
		http.Error(w, "sync failed", http.StatusInternalServerError)
		return
	}

	workouts := make([]health.Workout, 0, len(activities))
	for _, a := range activities {
		workouts = append(workouts, workoutFromActivity(a))
	}
	if len(workouts) > 0 {
		if _, err := h.workouts.InsertWorkouts(ctx, workouts); err != nil {
			log.Errorf("strava sync, insert workouts for user %s: %s", userID, err)
			http.Error(w, "sync failed", http.StatusInternalServerError)
			return
		}
	}

	syncedAt := h.nowFunc().UTC()
	if err := h.repo.UpdateLastSync(ctx, userID, syncedAt); err != nil {
		log.Errorf("strava sync, update last sync for user %s: %s", userID, err)
		http.Error(w, "sync failed", http.StatusInternalServerError)
		return
	}

	h.metrics.CounterStravaSyncs.Inc()
	log.Debugf("strava sync for user %s: %d imported, %d updated", userID, imported, updated)

	respJson, err := json.Marshal(SyncResult{
		Success:       true,
		ImportedCount: imported,
		UpdatedCount:  updated,
		LastSyncAt:    syncedAt,
	})
	if err != nil {
		log.Errorf("strava sync, marshal response: %s", err)
		http.Error(w, "sync failed", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, respJson, http.StatusOK)
}

// HandleDisconnect removes the user's connection. Reconnecting requires a
// full authorization flow.
func (h *Handler) HandleDisconnect(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.strava.disconnect")
	defer span.End()

	userID, err := h.userFromRequest(ctx, r)
	if err != nil {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}

	if err := h.repo.DeleteConnection(ctx, userID); err != nil {
		if errors.Is(err, ErrNotConnected) {
			http.Error(w, "strava not connected", http.StatusBadRequest)
			return
		}
		log.Errorf("strava disconnect for user %s: %s", userID, err)
		http.Error(w, "disconnect failed", http.StatusInternalServerError)
		return
	}

	pkg.WriteJSONResponseOK(w, `{"disconnected":true}`)
}

func (h *Handler) writeSyncError(w http.ResponseWriter, userID string, err error) {
	var refreshFailed *RefreshFailedError
	var providerErr *ProviderError
	switch {
	case errors.Is(err, ErrRateLimited):
		h.metrics.CounterRateLimitedFetches.Inc()
		log.Debugf("strava sync for user %s rate limited", userID)
		http.Error(w, "rate limited, try again later", http.StatusTooManyRequests)
	case errors.Is(err, ErrNotConnected):
		http.Error(w, "strava not connected", http.StatusBadRequest)
	case errors.As(err, &refreshFailed):
		log.Errorf("strava sync for user %s, token refresh failed: %s", userID, err)
		http.Error(w, "token refresh failed", http.StatusInternalServerError)
	case errors.As(err, &providerErr):
		log.Errorf("strava sync for user %s, provider error: %s", userID, err)
		http.Error(w, "provider error", http.StatusInternalServerError)
	default:
		log.Errorf("strava sync for user %s: %s", userID, err)
		http.Error(w, "sync failed", http.StatusInternalServerError)
	}
}

// workoutFromActivity normalizes one remote activity into a canonical
// workout. The remote id becomes the external id, so re-syncs dedupe in the
// canonical store too.
func workoutFromActivity(a Activity) health.Workout {
	externalID := strconv.FormatInt(a.ID, 10)
	distanceKm := a.Distance / 1000
	w := health.Workout{
		ID:           uuid.NewString(),
		ExternalID:   &externalID,
		Source:       health.SourceStrava,
		StartTime:    a.StartDate,
		EndTime:      a.StartDate.Add(time.Duration(a.ElapsedTime) * time.Second),
		Type:         health.NormalizeStravaType(a.Type),
		Calories:     a.Calories,
		AvgHeartRate: a.AverageHeartRate,
		CreatedAt:    time.Now().UTC(),
	}
	if a.Distance > 0 {
		w.DistanceKm = &distanceKm
	}
	return w
}
