package resolver

import (
	"fmt"
	"regexp"
	"strings"
)

// urlPattern accepts scheme://authority[/path][?query]. Fragments, userinfo
// and bracketed IPv6 hosts get no special treatment.
var urlPattern = regexp.MustCompile(`^(\w+)://([^/?]*)(/[^?]*)?\??(.+)?`)

// ParsedURL is a URL split into the pieces the resolver rewrites. Params are
// raw "key=value" strings and are never decoded.
type ParsedURL struct {
	Protocol  string   `json:"protocol"`
	Authority string   `json:"authority"`
	Path      string   `json:"path"`
	Params    []string `json:"params"`
}

// ParseURL splits raw into a ParsedURL. Path defaults to "/" and Params to an
// empty slice.
func ParseURL(raw string) (*ParsedURL, error) {
	parts := urlPattern.FindStringSubmatch(raw)
	if parts == nil {
		return nil, fmt.Errorf("%w: %q", ErrMalformedURL, raw)
	}

	parsed := &ParsedURL{
		Protocol:  parts[1],
		Authority: parts[2],
		Path:      parts[3],
		Params:    []string{},
	}
	if parsed.Path == "" {
		parsed.Path = "/"
	}
	if parts[4] != "" {
		parsed.Params = strings.Split(parts[4], "&")
	}

	return parsed, nil
}

// String reassembles the URL. The "?" is omitted when there are no params.
func (u *ParsedURL) String() string {
	if u == nil {
		return ""
	}

	var b strings.Builder
	b.WriteString(u.Protocol)
	b.WriteString("://")
	b.WriteString(u.Authority)
	b.WriteString(u.Path)
	if len(u.Params) > 0 {
		b.WriteByte('?')
		b.WriteString(strings.Join(u.Params, "&"))
	}
	return b.String()
}

// FormatURL is the inverse of ParseURL.
func FormatURL(u *ParsedURL) string {
	return u.String()
}
