// Package identity derives stable article ids and display titles from source URLs.
package identity

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const maxIDLength = 50

var (
	knownExtension = regexp.MustCompile(`(?i)\.(html|htm|php|asp|jsp)$`)
	separators     = strings.NewReplacer("/", "_", "-", "_", ".", "_")
	disallowed     = regexp.MustCompile(`[^A-Za-z0-9_]`)
	leadingDigits  = regexp.MustCompile(`^\d+-`)
)

// GenerateID returns a deterministic article id for sourceURL.
func GenerateID(sourceURL string) string {
	u, err := url.Parse(sourceURL)
	if err != nil {
		return hashID(sourceURL)
	}

	path := strings.Trim(u.Path, "/")
	if path == "" {
		domain := normalizeDomain(u.Hostname())
		if domain == "" {
			return hashID(sourceURL)
		}
		return domain + "_home"
	}

	path = knownExtension.ReplaceAllString(path, "")
	id := disallowed.ReplaceAllString(separators.Replace(path), "")
	if id == "" {
		return hashID(sourceURL)
	}
	if !startsWithLetter(id) {
		id = "page_" + id
	}
	if len(id) > maxIDLength {
		id = id[:maxIDLength]
	}
	return id
}

// GenerateTitle derives a display title from the last path segment of
// sourceURL, returning fallback when there is none.
func GenerateTitle(sourceURL, fallback string) string {
	u, err := url.Parse(sourceURL)
	if err != nil {
		return fallback
	}

	segment := lastSegment(u.Path)
	segment = knownExtension.ReplaceAllString(segment, "")
	segment = leadingDigits.ReplaceAllString(segment, "")
	segment = strings.NewReplacer("-", " ", "_", " ").Replace(segment)

	words := strings.Fields(segment)
	if len(words) == 0 {
		return fallback
	}
	return cases.Title(language.English).String(strings.Join(words, " "))
}

// FallbackTitle is the title used for the page at index when nothing better exists.
func FallbackTitle(index int) string {
	return fmt.Sprintf("Page %d", index+1)
}

func lastSegment(path string) string {
	parts := strings.Split(path, "/")
	for i := len(parts) - 1; i >= 0; i-- {
		if parts[i] != "" {
			return parts[i]
		}
	}
	return ""
}

func normalizeDomain(host string) string {
	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	return disallowed.ReplaceAllString(separators.Replace(host), "")
}

func startsWithLetter(s string) bool {
	c := s[0]
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func hashID(raw string) string {
	sum := md5.Sum([]byte(raw))
	return "page_" + hex.EncodeToString(sum[:])[:8]
}
