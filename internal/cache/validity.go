package cache

import (
	"strings"

	"github.com/JakeFAU/linkmeta/internal/metadata"
)

// errorTitleSignatures are substrings of titles served by bot walls and error
// pages instead of the real site.
var errorTitleSignatures = []string{
	"vercel security checkpoint",
	"security checkpoint",
	"just a moment...",
	"checking your browser",
	"access denied",
	"403 forbidden",
	"404 not found",
	"error",
}

// minDescriptionForSuspectTitle is the trimmed description length above which
// a suspect title is still accepted.
const minDescriptionForSuspectTitle = 10

// IsErrorTitle reports whether title contains a known error-page signature.
func IsErrorTitle(title string) bool {
	t := strings.ToLower(title)
	if strings.TrimSpace(t) == "" {
		return false
	}
	for _, sig := range errorTitleSignatures {
		if strings.Contains(t, sig) {
			return true
		}
	}
	return false
}

// IsValid decides whether data is worth caching and showing.
func IsValid(data metadata.WebsiteData) bool {
	if data.IsEmpty() {
		return false
	}
	if IsErrorTitle(data.Title) {
		return len(strings.TrimSpace(data.Description)) > minDescriptionForSuspectTitle
	}
	return true
}
