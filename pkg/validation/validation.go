// Package validation checks names and paths that come from configuration
// or from the browser.
package validation

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var resourceNamePattern = regexp.MustCompile(`^[a-z0-9]([-a-z0-9]*[a-z0-9])?(\.[a-z0-9]([-a-z0-9]*[a-z0-9])?)*$`)

// ValidateResourceName validates a Kubernetes resource name (RFC 1123 subdomain)
func ValidateResourceName(name string) error {
	if len(name) == 0 {
		return fmt.Errorf("name cannot be empty")
	}
	if len(name) > 63 {
		return fmt.Errorf("name exceeds 63 characters: %d", len(name))
	}
	if !resourceNamePattern.MatchString(name) {
		return fmt.Errorf("name must be lowercase alphanumeric with hyphens or dots: %q", name)
	}
	return nil
}

// ResourceNameForKey maps an arbitrary key to a stable resource name. The
// key is hashed so that case and punctuation never collide and the key
// itself does not appear in object names.
func ResourceNameForKey(prefix, key string) string {
	sum := sha256.Sum256([]byte(key))
	return prefix + "-" + hex.EncodeToString(sum[:20])
}

// SafeReturnPath accepts only same-origin absolute paths such as
// "/swipe?deck=1". Anything else falls back to "/".
func SafeReturnPath(raw string) string {
	if raw == "" || !strings.HasPrefix(raw, "/") {
		return "/"
	}
	// "//host" and "/\host" are treated as network paths by browsers
	if strings.HasPrefix(raw, "//") || strings.HasPrefix(raw, "/\\") {
		return "/"
	}
	if strings.ContainsAny(raw, "\r\n\t") {
		return "/"
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "" || u.Host != "" || u.User != nil {
		return "/"
	}
	return raw
}
