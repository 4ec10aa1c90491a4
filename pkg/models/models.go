package models

import (
	"net/url"
	"strings"
	"time"
)

// FollowerRecord is one account following the subject account
type FollowerRecord struct {
	ID             int64     `json:"-"`
	RecordKey      string    `json:"record_key"`
	SourceID       string    `json:"source_id"`
	SubjectAccount string    `json:"subject_account"`
	ProfileURL     string    `json:"profile_url"`
	AvatarURL      string    `json:"avatar_url"`
	DisplayName    string    `json:"display_name"`
	Handle         string    `json:"handle"`
	Bio            string    `json:"bio"`
	SearchableText string    `json:"searchable_text"`
	UpdatedAt      time.Time `json:"updated_at,omitempty"`
}

// RecordKey joins a source id and the subject account into the store's unique key
func RecordKey(sourceID, subjectAccount string) string {
	return sourceID + "_" + subjectAccount
}

// SearchableText is the text custom and built-in filters run against
func SearchableText(displayName, handle, bio string) string {
	return strings.Join([]string{displayName, handle, bio}, " ")
}

// SourceIDFromURL derives the stable follower id from its profile URL:
// the last non-empty path segment, lowercased.
func SourceIDFromURL(profileURL string) string {
	raw := strings.TrimSpace(profileURL)
	if u, err := url.Parse(raw); err == nil && u.Path != "" {
		raw = u.Path
	}
	raw = strings.TrimRight(raw, "/")
	if i := strings.LastIndex(raw, "/"); i >= 0 {
		raw = raw[i+1:]
	}
	return strings.ToLower(raw)
}

// Normalize recomputes the derived fields from the raw ones
func (r *FollowerRecord) Normalize() {
	r.SubjectAccount = strings.ToLower(strings.TrimSpace(r.SubjectAccount))
	if r.SourceID == "" {
		r.SourceID = SourceIDFromURL(r.ProfileURL)
	}
	r.RecordKey = RecordKey(r.SourceID, r.SubjectAccount)
	r.SearchableText = SearchableText(r.DisplayName, r.Handle, r.Bio)
}
