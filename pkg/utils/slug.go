package utils

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	// MinSlugLength is the minimum allowed slug length
	MinSlugLength = 3
	// MaxSlugLength leaves room for a numeric suffix inside a 63 char DNS label
	MaxSlugLength = 50
)

var (
	// slugRegex validates slug format (also a valid DNS label)
	slugRegex = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?$`)

	// Labels under the base domain that belong to the platform itself
	reservedSlugs = map[string]bool{
		"www":        true,
		"api":        true,
		"admin":      true,
		"dashboard":  true,
		"app":        true,
		"web":        true,
		"mail":       true,
		"smtp":       true,
		"ftp":        true,
		"localhost":  true,
		"static":     true,
		"media":      true,
		"checkout":   true,
		"onboarding": true,
		"staging":    true,
		"dev":        true,
	}
)

// Slugify derives a URL-safe slug from a display name: accents folded to
// ASCII, lowercased, runs of spaces/hyphens/underscores collapsed to a
// single hyphen, everything else dropped.
//
//	Slugify("Constructora del Sur SpA") == "constructora-del-sur-spa"
//	Slugify("Electricidad Núñez & Cía.") == "electricidad-nunez-cia"
func Slugify(name string) string {
	// transform.Chain keeps state, so it is built per call.
	fold := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(fold, name)
	if err != nil {
		folded = name
	}

	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(folded) {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			if pendingSep && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingSep = false
			b.WriteRune(r)
		case r == '-' || r == '_' || unicode.IsSpace(r):
			pendingSep = true
		}
	}

	slug := b.String()
	if len(slug) > MaxSlugLength {
		slug = strings.TrimRight(slug[:MaxSlugLength], "-")
	}
	return slug
}

// IsValidSlug checks format, length and reserved labels.
func IsValidSlug(slug string) bool {
	if len(slug) < MinSlugLength || len(slug) > MaxSlugLength {
		return false
	}
	if !slugRegex.MatchString(slug) {
		return false
	}
	return !reservedSlugs[slug]
}

// IsReservedSlug checks if a slug is reserved by the platform
func IsReservedSlug(slug string) bool {
	return reservedSlugs[strings.ToLower(slug)]
}

// NormalizeSlug normalizes a user supplied slug (lowercase, trim)
func NormalizeSlug(slug string) string {
	return strings.ToLower(strings.TrimSpace(slug))
}
