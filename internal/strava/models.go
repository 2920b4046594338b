package strava

import (
	"encoding/json"
	"time"
)

// Connection is the single per-user link to a Strava athlete. Token fields
// rotate on every refresh; the row itself is upserted on user_id and only
// removed on explicit disconnect.
type Connection struct {
	UserID       string     `json:"userId"`
	AthleteID    int64      `json:"athleteId"`
	AthleteName  *string    `json:"athleteName,omitempty"`
	AccessToken  string     `json:"-"`
	RefreshToken string     `json:"-"`
	ExpiresAt    int64      `json:"expiresAt"`
	LastSyncAt   *time.Time `json:"lastSyncAt,omitempty"`
}

// Activity mirrors one remote activity. ID is the provider's own id, the one
// primary key in the system that is sourced externally, which is what makes
// re-syncs idempotent.
type Activity struct {
	ID               int64     `json:"id"`
	Name             string    `json:"name"`
	Type             string    `json:"type"`
	StartDate        time.Time `json:"start_date"`
	ElapsedTime      int       `json:"elapsed_time"`
	MovingTime       int       `json:"moving_time"`
	Distance         float64   `json:"distance"`
	Calories         *float64  `json:"calories,omitempty"`
	AverageHeartRate *float64  `json:"average_heartrate,omitempty"`

	// Raw keeps the provider's full payload for forward compatibility.
	Raw json.RawMessage `json:"-"`
}

type athletePayload struct {
	ID        int64  `json:"id"`
	FirstName string `json:"firstname"`
	LastName  string `json:"lastname"`
}

// tokenPayload is the provider's token endpoint response, for both the
// initial code exchange and refresh grants.
type tokenPayload struct {
	AccessToken  string          `json:"access_token"`
	RefreshToken string          `json:"refresh_token"`
	ExpiresAt    int64           `json:"expires_at"`
	Athlete      *athletePayload `json:"athlete,omitempty"`
}

// TokenGrant is a successful token exchange outcome.
type TokenGrant struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    int64
	AthleteID    int64
	AthleteName  *string
}

func grantFromPayload(p tokenPayload) TokenGrant {
	grant := TokenGrant{
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
		ExpiresAt:    p.ExpiresAt,
	}
	if p.Athlete != nil {
		grant.AthleteID = p.Athlete.ID
		name := p.Athlete.FirstName
		if p.Athlete.LastName != "" {
			if name != "" {
				name += " "
			}
			name += p.Athlete.LastName
		}
		if name != "" {
			grant.AthleteName = &name
		}
	}
	return grant
}

// SyncResult reports one sync run. Imported are activities seen for the
// first time, updated are re-fetched ones overwritten with the latest
// snapshot.
type SyncResult struct {
	Success       bool      `json:"success"`
	ImportedCount int       `json:"importedCount"`
	UpdatedCount  int       `json:"updatedCount"`
	LastSyncAt    time.Time `json:"lastSyncAt"`
}
