// Package metadata defines core types shared across the resolver subsystems.
package metadata

import (
	"net/url"
	"strings"
	"time"
)

// WebsiteData is the display metadata learned for a site. The zero value means
// nothing was learned.
type WebsiteData struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Icon        string `json:"icon,omitempty"`
}

// IsEmpty reports whether neither a title nor a description is present.
func (d WebsiteData) IsEmpty() bool {
	return strings.TrimSpace(d.Title) == "" && strings.TrimSpace(d.Description) == ""
}

// ProviderResult is the diagnostic record of a single provider attempt. It is
// never persisted.
type ProviderResult struct {
	Provider  string    `json:"provider"`
	Success   bool      `json:"success"`
	HasData   bool      `json:"has_data"`
	Error     string    `json:"error,omitempty"`
	Skipped   bool      `json:"skipped,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Source describes where a resolved value came from.
type Source string

// Resolution sources.
const (
	SourceCache         Source = "cache"
	SourceProvider      Source = "provider"
	SourceTitleFallback Source = "title-fallback"
	SourcePlaceholder   Source = "placeholder"
)

// Resolution is the detailed outcome of resolving one URL.
type Resolution struct {
	ID       string           `json:"id"`
	URL      string           `json:"url"`
	Data     WebsiteData      `json:"data"`
	Source   Source           `json:"source"`
	Provider string           `json:"provider,omitempty"`
	Domestic bool             `json:"domestic"`
	Attempts []ProviderResult `json:"attempts"`
	Started  time.Time        `json:"started_at"`
	Finished time.Time        `json:"finished_at"`
}

// Hostname returns the lowercase host of rawURL with a leading "www." removed.
// It returns an empty string when the URL has no host.
func Hostname(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	return strings.TrimPrefix(host, "www.")
}

// ValidateURL returns ErrInvalidURL unless rawURL is an absolute http(s) URL.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return ErrInvalidURL
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ErrInvalidURL
	}
	return nil
}
