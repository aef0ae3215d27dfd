package gateway

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"

	"github.com/vortex-gateway/vortex/internal/gwerrors"
)

// hostOnly strips the port from a dial-style "host:port" address, falling
// back to the address as-is when it carries no port (spec.md §4.6's
// client-IP resolution operates on the bare address).
func hostOnly(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

func writeNotFound(w http.ResponseWriter) {
	writeJSONError(w, gwerrors.Envelope{
		Error: gwerrors.EnvelopeBody{Message: "no route matches this request", Type: "not_found", Code: http.StatusNotFound},
	}, http.StatusNotFound)
}

func writeJSONError(w http.ResponseWriter, env gwerrors.Envelope, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(env)
}

// statusClass buckets a status code for metric cardinality, matching
// telemetry.Metrics.RecordRequest's string status label.
func statusClass(status int) string {
	return strconv.Itoa(status/100) + "xx"
}
