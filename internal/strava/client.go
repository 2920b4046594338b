package strava

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/hybridhouse/journal/internal/telemetry/tracing"
)

const (
	defaultAPIBaseURL  = "https://www.strava.com/api/v3"
	defaultAuthBaseURL = "https://www.strava.com/oauth"

	// OAuthScope is requested on every authorization redirect.
	OAuthScope = "read,activity:read"

	activitiesPerPage = 50
	maxActivities     = 200
)

// Client talks to the Strava API. It is stateless with respect to what has
// been stored locally; deduplication is the store's job.
type Client struct {
	httpClient   *http.Client
	clientID     string
	clientSecret string
	apiBaseURL   string
	authBaseURL  string
}

type ClientOption func(*Client)

func WithBaseURLs(apiBaseURL, authBaseURL string) ClientOption {
	return func(c *Client) {
		c.apiBaseURL = apiBaseURL
		c.authBaseURL = authBaseURL
	}
}

func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func NewClient(clientID, clientSecret string, opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{
			Timeout:   30 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		clientID:     clientID,
		clientSecret: clientSecret,
		apiBaseURL:   defaultAPIBaseURL,
		authBaseURL:  defaultAuthBaseURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AuthorizeURL builds the provider authorize URL for the OAuth handshake.
func (c *Client) AuthorizeURL(redirectURI, state string) string {
	params := url.Values{}
	params.Set("client_id", c.clientID)
	params.Set("redirect_uri", redirectURI)
	params.Set("response_type", "code")
	params.Set("approval_prompt", "force")
	params.Set("scope", OAuthScope)
	params.Set("state", state)
	return c.authBaseURL + "/authorize?" + params.Encode()
}

// ExchangeCode trades an authorization code for the initial token grant.
func (c *Client) ExchangeCode(ctx context.Context, code string) (_ *TokenGrant, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "strava.client.exchangeCode")
	defer func() { tracing.EndSpanWithErrCheck(span, err) }()

	return c.tokenRequest(ctx, url.Values{
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
		"code":          {code},
		"grant_type":    {"authorization_code"},
	})
}

// Refresh trades a refresh token for a rotated token grant.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (_ *TokenGrant, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "strava.client.refresh")
	defer func() { tracing.EndSpanWithErrCheck(span, err) }()

	return c.tokenRequest(ctx, url.Values{
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
		"refresh_token": {refreshToken},
		"grant_type":    {"refresh_token"},
	})
}

func (c *Client) tokenRequest(ctx context.Context, form url.Values) (*TokenGrant, error) {
	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, c.authBaseURL+"/token",
		strings.NewReader(form.Encode()),
	)
	if err != nil {
		return nil, fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read token response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &ProviderError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var payload tokenPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("unmarshal token response: %w", err)
	}

	grant := grantFromPayload(payload)
	return &grant, nil
}

// FetchActivities pages through the athlete's activities after the given
// epoch. Paging stops on a short page; the total is capped by slicing the
// accumulated result, not by cutting the provider calls short.
func (c *Client) FetchActivities(ctx context.Context, accessToken string, afterEpoch int64) (_ []Activity, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "strava.client.fetchActivities")
	defer func() { tracing.EndSpanWithErrCheck(span, err) }()

	var activities []Activity
	for page := 1; ; page++ {
		pageActivities, pageErr := c.fetchActivitiesPage(ctx, accessToken, afterEpoch, page)
		if pageErr != nil {
			return nil, pageErr
		}
		activities = append(activities, pageActivities...)

		if len(pageActivities) < activitiesPerPage {
			break
		}
		if len(activities) >= maxActivities {
			break
		}
	}

	if len(activities) > maxActivities {
		log.Debugf("fetch activities: capping %d activities to %d", len(activities), maxActivities)
		activities = activities[:maxActivities]
	}

	return activities, nil
}

func (c *Client) fetchActivitiesPage(ctx context.Context, accessToken string, afterEpoch int64, page int) ([]Activity, error) {
	params := url.Values{}
	params.Set("per_page", strconv.Itoa(activitiesPerPage))
	params.Set("page", strconv.Itoa(page))
	if afterEpoch > 0 {
		params.Set("after", strconv.FormatInt(afterEpoch, 10))
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodGet,
		c.apiBaseURL+"/athlete/activities?"+params.Encode(),
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("create activities request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("activities request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read activities response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &ProviderError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var rawActivities []json.RawMessage
	if err := json.Unmarshal(body, &rawActivities); err != nil {
		return nil, fmt.Errorf("unmarshal activities page: %w", err)
	}

	activities := make([]Activity, 0, len(rawActivities))
	for _, raw := range rawActivities {
		var a Activity
		if err := json.Unmarshal(raw, &a); err != nil {
			return nil, fmt.Errorf("unmarshal activity: %w", err)
		}
		a.Raw = raw
		activities = append(activities, a)
	}

	return activities, nil
}
