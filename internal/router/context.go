package router

import (
	"mime/multipart"
	"net/http"

	"github.com/google/uuid"
)

// Context is the per-request mutable state created by C6, mutated by C7,
// and read by C8 (spec.md §3). Its lifetime is exactly one request.
type Context struct {
	RequestID string
	ClientIP  string
	Method    string
	Asset     Asset
	Params    map[string]string
	FileParts map[string]*multipart.FileHeader
	Headers   http.Header
	Raw       *http.Request
}

// NewContext builds a Context for req matched to asset, generating a
// request id via google/uuid if the client did not supply X-Request-Id
// (spec.md §6's ingress header handling). uuid.New() is grounded on
// coreengine/envelope/generic.go's request/envelope id generation.
func NewContext(req *http.Request, asset Asset, clientIP string, params map[string]string) *Context {
	reqID := req.Header.Get("X-Request-Id")
	if reqID == "" {
		reqID = uuid.New().String()
	}
	headers := make(http.Header, len(req.Header))
	for k, v := range req.Header {
		headers[k] = append([]string(nil), v...)
	}
	return &Context{
		RequestID: reqID,
		ClientIP:  clientIP,
		Method:    req.Method,
		Asset:     asset,
		Params:    params,
		FileParts: make(map[string]*multipart.FileHeader),
		Headers:   headers,
		Raw:       req,
	}
}

// ResolveClientIP resolves the trusted client address per spec.md §4.6: accept
// X-Forwarded-For only when the immediate peer is a configured trusted
// proxy, otherwise fall back to the transport peer.
func ResolveClientIP(req *http.Request, trustedProxies map[string]bool, transportPeer string) string {
	if trustedProxies[transportPeer] {
		if xff := req.Header.Get("X-Forwarded-For"); xff != "" {
			return firstHop(xff)
		}
		if xri := req.Header.Get("X-Real-IP"); xri != "" {
			return xri
		}
	}
	return transportPeer
}

func firstHop(xff string) string {
	for i := 0; i < len(xff); i++ {
		if xff[i] == ',' {
			return trimSpace(xff[:i])
		}
	}
	return trimSpace(xff)
}

func trimSpace(s string) string {
	start, end := 0, len(s)
	for start < end && (s[start] == ' ' || s[start] == '\t') {
		start++
	}
	for end > start && (s[end-1] == ' ' || s[end-1] == '\t') {
		end--
	}
	return s[start:end]
}
