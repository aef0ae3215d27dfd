package diskcache

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Cacheable reports whether a GET response may be stored, per spec.md
// §4.4's put-path gate: method GET, no "Vary: *", no "no-store", and
// either a validator (ETag/Last-Modified) or freshness info (Cache-Control
// max-age, Expires) present.
func Cacheable(method string, respHeaders http.Header) bool {
	if method != http.MethodGet {
		return false
	}
	if respHeaders.Get("Vary") == "*" {
		return false
	}
	cc := strings.ToLower(respHeaders.Get("Cache-Control"))
	if strings.Contains(cc, "no-store") {
		return false
	}
	hasValidator := respHeaders.Get("ETag") != "" || respHeaders.Get("Last-Modified") != ""
	hasFreshness := strings.Contains(cc, "max-age") || respHeaders.Get("Expires") != ""
	return hasValidator || hasFreshness
}

// ConditionalHeaders builds the If-None-Match/If-Modified-Since pair from
// a cached entry's stored validators, for re-issuing the request upstream.
func ConditionalHeaders(m *Metadata) http.Header {
	h := make(http.Header)
	if etag := m.Headers.Get("ETag"); etag != "" {
		h.Set("If-None-Match", etag)
	}
	if lm := m.Headers.Get("Last-Modified"); lm != "" {
		h.Set("If-Modified-Since", lm)
	}
	return h
}

// VaryHeadersFor extracts the request header values named by the response's
// Vary header, to snapshot alongside the entry at write time (spec.md §6's
// "vary-headers snapshot"). A missing or blank Vary yields an empty set.
func VaryHeadersFor(respHeaders, reqHeaders http.Header) http.Header {
	out := make(http.Header)
	for _, name := range strings.Split(respHeaders.Get("Vary"), ",") {
		name = strings.TrimSpace(name)
		if name == "" || name == "*" {
			continue
		}
		out.Set(name, reqHeaders.Get(name))
	}
	return out
}

// IsFresh reports whether m's stored response can satisfy a get without
// revalidating upstream, per the Cache-Control max-age / Expires freshness
// test RFC 7234 describes. An entry with no freshness info at all (a bare
// validator like ETag, which Cacheable accepts on its own) has a freshness
// lifetime of zero: it is stale the instant it is written, so every get
// revalidates it, matching spec.md's concrete scenario 2.
func (m *Metadata) IsFresh(now time.Time) bool {
	if m.ReceivedMillis == 0 {
		return false
	}
	age := now.Sub(time.UnixMilli(m.ReceivedMillis))
	if maxAge, ok := parseMaxAge(m.Headers.Get("Cache-Control")); ok {
		return age < time.Duration(maxAge)*time.Second
	}
	if expires := m.Headers.Get("Expires"); expires != "" {
		if t, err := http.ParseTime(expires); err == nil {
			return now.Before(t)
		}
	}
	return false
}

func parseMaxAge(cacheControl string) (int, bool) {
	for _, part := range strings.Split(cacheControl, ",") {
		part = strings.TrimSpace(part)
		rest, ok := cutPrefixFold(part, "max-age=")
		if !ok {
			continue
		}
		n, err := strconv.Atoi(rest)
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) < len(prefix) || !strings.EqualFold(s[:len(prefix)], prefix) {
		return "", false
	}
	return s[len(prefix):], true
}
