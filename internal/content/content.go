package content

import (
	"errors"
	"net/url"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	policy  = bluemonday.StrictPolicy()
	idRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)
)

// Sanitize strips all HTML from the input string.
// It is used for values coming from the backend that end up in pages,
// like display names.
func Sanitize(input string) string {
	return strings.TrimSpace(policy.Sanitize(input))
}

// ValidateID checks that an identifier used in backend calls (tenant,
// thread, invite) is non-empty and only contains alphanumerics, dash and underscore.
// UUIDs pass.
func ValidateID(id string) error {
	if id == "" {
		return errors.New("id cannot be empty")
	}
	if !idRegex.MatchString(id) {
		return errors.New("id contains invalid characters (allowed: alphanumeric, dash, underscore)")
	}
	return nil
}

// SafeRedirect returns target when it is a local absolute path and "/" otherwise.
func SafeRedirect(target string) string {
	if target == "" || !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.Contains(target, `\`) {
		return "/"
	}
	u, err := url.Parse(target)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return "/"
	}
	return target
}
