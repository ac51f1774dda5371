package directive

import (
	"errors"
	"net/url"
	"regexp"
	"strings"
)

// ErrMalformedHandoff is returned for hand-off references that do not carry a
// valid share code. Callers absorb it; it is never shown to the user.
var ErrMalformedHandoff = errors.New("malformed hand-off")

var codePattern = regexp.MustCompile(`^[A-Z0-9]{6}$`)

// Code is a validated six character share code.
type Code string

// ParseCode validates s as a share code.
func ParseCode(s string) (Code, error) {
	if len(s) != 6 || !codePattern.MatchString(s) {
		return "", ErrMalformedHandoff
	}
	return Code(s), nil
}

// CodeFromReference extracts the share code from the last path segment of a
// hand-off reference such as https://phasorviz.de/s/ABC123.
func CodeFromReference(ref string) (Code, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", ErrMalformedHandoff
	}
	return ParseCode(lastPathSegment(ref))
}

func lastPathSegment(ref string) string {
	p := ref
	if u, err := url.Parse(ref); err == nil {
		p = u.Path
		if p == "" {
			p = u.Opaque
		}
	}
	segments := strings.Split(p, "/")
	for i := len(segments) - 1; i >= 0; i-- {
		if segments[i] != "" {
			return segments[i]
		}
	}
	return ""
}
