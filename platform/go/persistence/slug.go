package persistence

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	slugPattern   = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)
	slugSeparator = regexp.MustCompile(`[^a-z0-9]+`)
)

const maxSlugLength = 63

// NormalizeSlug trims and lowercases an organization slug and checks it
// against the same pattern as organizations_slug_format.
func NormalizeSlug(input string) (string, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return "", errors.New("slug is required")
	}

	normalized := strings.ToLower(trimmed)
	if len(normalized) > maxSlugLength {
		return "", fmt.Errorf("invalid slug %q: longer than %d characters", input, maxSlugLength)
	}
	if !slugPattern.MatchString(normalized) {
		return "", fmt.Errorf("invalid slug %q: use lowercase letters, digits and single hyphens", input)
	}

	return normalized, nil
}

// SlugFromName derives a slug candidate from a display name, e.g.
// "Acme Mobile, Inc." becomes "acme-mobile-inc".
func SlugFromName(name string) (string, error) {
	candidate := slugSeparator.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "-")
	candidate = strings.Trim(candidate, "-")
	if len(candidate) > maxSlugLength {
		candidate = strings.TrimRight(candidate[:maxSlugLength], "-")
	}
	return NormalizeSlug(candidate)
}
