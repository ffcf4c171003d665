package httputil

import (
	"net/http"
	"strconv"
	"strings"
)

// Header and query names a client may use to present its API key.
const (
	APIKeyHeader = "X-API-Key"
	APIKeyQuery  = "apiKey"
)

// GetClientIP extracts the client address, preferring proxy headers:
// X-Forwarded-For (first entry), then X-Real-IP, then RemoteAddr.
func GetClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}

// Credential returns the API key carried by the request, checking the
// apiKey query parameter, the X-API-Key header and a bearer token in that
// order. It returns "" when none is present.
func Credential(r *http.Request) string {
	if key := strings.TrimSpace(r.URL.Query().Get(APIKeyQuery)); key != "" {
		return key
	}
	if key := strings.TrimSpace(r.Header.Get(APIKeyHeader)); key != "" {
		return key
	}
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

// ParseIntParam parses an integer query parameter, returning defaultVal
// when s is empty or not a number.
func ParseIntParam(s string, defaultVal int) int {
	if s == "" {
		return defaultVal
	}
	if v, err := strconv.Atoi(s); err == nil {
		return v
	}
	return defaultVal
}

// Page holds limit/skip paging parameters.
type Page struct {
	Limit int `json:"limit"`
	Skip  int `json:"skip"`
}

// ParsePage reads limit and skip from the query string. limit is clamped
// to [1, maxLimit] and skip to >= 0.
func ParsePage(r *http.Request, defaultLimit, maxLimit int) Page {
	q := r.URL.Query()
	limit := ParseIntParam(q.Get("limit"), defaultLimit)
	skip := ParseIntParam(q.Get("skip"), 0)

	if limit > maxLimit {
		limit = maxLimit
	}
	if limit < 1 {
		limit = defaultLimit
	}
	if skip < 0 {
		skip = 0
	}
	return Page{Limit: limit, Skip: skip}
}
