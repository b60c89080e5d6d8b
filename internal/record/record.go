// Package record provides the synthetic user record type and the factory that builds records.
package record

import (
	"encoding/json"
	"time"
)

const (
	// MaxScore is the upper bound of a record score
	MaxScore = 1000.0

	// ActivityWindow is how far back lastActivityAt may reach from generation time
	ActivityWindow = 365 * 24 * time.Hour

	// AvatarPoolSize is the number of distinct avatar images
	AvatarPoolSize = 70
)

// Record is one synthetic user. Records are never mutated once built.
type Record struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	Phone          string    `json:"phone"`
	Email          string    `json:"email"`
	Score          float64   `json:"score"`
	LastActivityAt time.Time `json:"lastActivityAt"`
	AddedBy        string    `json:"addedBy"`
	AvatarURL      string    `json:"avatarUrl"`
}

// recordJSON mirrors Record with the timestamp rendered as ISO-8601 text
type recordJSON struct {
	ID             int64   `json:"id"`
	Name           string  `json:"name"`
	Phone          string  `json:"phone"`
	Email          string  `json:"email"`
	Score          float64 `json:"score"`
	LastActivityAt string  `json:"lastActivityAt"`
	AddedBy        string  `json:"addedBy"`
	AvatarURL      string  `json:"avatarUrl"`
}

// MarshalJSON renders lastActivityAt as a UTC RFC3339 string ending in "Z"
func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(recordJSON{
		ID:             r.ID,
		Name:           r.Name,
		Phone:          r.Phone,
		Email:          r.Email,
		Score:          r.Score,
		LastActivityAt: r.LastActivityAt.UTC().Format(time.RFC3339),
		AddedBy:        r.AddedBy,
		AvatarURL:      r.AvatarURL,
	})
}

// UnmarshalJSON parses the wire shape produced by MarshalJSON
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw recordJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	ts, err := time.Parse(time.RFC3339, raw.LastActivityAt)
	if err != nil {
		return err
	}
	*r = Record{
		ID:             raw.ID,
		Name:           raw.Name,
		Phone:          raw.Phone,
		Email:          raw.Email,
		Score:          raw.Score,
		LastActivityAt: ts,
		AddedBy:        raw.AddedBy,
		AvatarURL:      raw.AvatarURL,
	}
	return nil
}
