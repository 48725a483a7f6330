// Package middleware provides HTTP middleware for metrics collection.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Cembrun/Checkbell-V2/internal/metrics"
)

var recordHTTPRequest = metrics.RecordHTTPRequest

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		endpoint := normalizeEndpoint(r.URL.Path)
		status := strconv.Itoa(wrapped.statusCode)

		recordHTTPRequest(r.Method, endpoint, status, duration)
	})
}

var itemActions = map[string]bool{
	"complete": true,
	"forward":  true,
	"notes":    true,
}

// normalizeEndpoint replaces department names, collections and ids with
// placeholders to keep label cardinality bounded.
func normalizeEndpoint(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 3 || parts[0] != "api" {
		return path
	}

	if parts[1] == "dashboard" {
		if len(parts) == 4 {
			return "/api/dashboard/:department/" + parts[3]
		}
		return path
	}

	switch len(parts) {
	case 3:
		switch parts[2] {
		case "recurring", "archive":
			return "/api/:department/" + parts[2]
		}
		return "/api/:department/:collection"
	case 4:
		if parts[2] == "recurring" {
			if parts[3] == "materialize-now" {
				return "/api/:department/recurring/materialize-now"
			}
			return "/api/:department/recurring/:id"
		}
		return "/api/:department/:collection/:id"
	case 5:
		if itemActions[parts[4]] {
			return "/api/:department/:collection/:id/" + parts[4]
		}
	}

	return path
}
