package logging

import (
	"log/slog"
	"net/url"
	"strings"
)

// RedactedValue is the canonical placeholder used for sensitive fields in logs.
const RedactedValue = "[REDACTED]"

// minSecretSegment is the shortest path segment treated as an API key.
// Hosted RPC providers embed 32+ character project keys in the path.
const minSecretSegment = 24

// RedactURL strips credentials from an RPC endpoint before it is logged:
// userinfo, query values, and long opaque path segments are replaced.
// Unparseable input is masked entirely.
func RedactURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return RedactedValue
	}
	if u.User != nil {
		u.User = url.User(RedactedValue)
	}
	if u.RawQuery != "" {
		query := u.Query()
		for key := range query {
			query.Set(key, RedactedValue)
		}
		u.RawQuery = query.Encode()
	}
	segments := strings.Split(u.Path, "/")
	for i, seg := range segments {
		if len(seg) >= minSecretSegment {
			segments[i] = RedactedValue
		}
	}
	u.Path = strings.Join(segments, "/")
	u.RawPath = ""
	out, err := url.PathUnescape(u.String())
	if err != nil {
		return u.String()
	}
	return out
}

// Endpoint returns a log attribute for an RPC endpoint with secrets removed.
func Endpoint(key, raw string) slog.Attr {
	return slog.String(key, RedactURL(raw))
}
