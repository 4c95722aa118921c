// slug.go validates and derives project slugs.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	// MinSlugLength is the shortest accepted slug
	MinSlugLength = 3
	// MaxSlugLength is the longest accepted slug
	MaxSlugLength = 64
)

var (
	slugPattern    = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)
	slugInvalidRun = regexp.MustCompile(`[^a-z0-9]+`)
)

// ValidateSlug checks that slug is lowercase alphanumerics separated by single dashes
func ValidateSlug(slug string) error {
	if len(slug) < MinSlugLength || len(slug) > MaxSlugLength {
		return fmt.Errorf("slug must be between %d and %d characters", MinSlugLength, MaxSlugLength)
	}
	if !slugPattern.MatchString(slug) {
		return fmt.Errorf("slug may only contain lowercase letters, digits and single dashes, and must not start or end with a dash")
	}
	return nil
}

// Slugify lowercases name and collapses every run of other characters into a single dash
func Slugify(name string) string {
	slug := slugInvalidRun.ReplaceAllString(strings.ToLower(name), "-")
	slug = strings.Trim(slug, "-")
	if len(slug) > MaxSlugLength {
		slug = strings.TrimRight(slug[:MaxSlugLength], "-")
	}
	return slug
}
