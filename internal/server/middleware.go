package server

import (
	"crypto/subtle"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/handlers"
	"github.com/sirupsen/logrus"
)

const requestIDHeader = "X-Reference-Id"

// requestIDMiddleware makes sure every request carries a reference id and
// echoes it on the response.
func (s *HTTPServer) requestIDMiddleware(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
			r.Header.Set(requestIDHeader, id)
		}
		w.Header().Set(requestIDHeader, id)
		h.ServeHTTP(w, r)
	})
}

// accessLogMiddleware logs one line per request at debug level, or trace
// level for health checks.
func (s *HTTPServer) accessLogMiddleware(h http.Handler) http.Handler {
	return handlers.CustomLoggingHandler(io.Discard, h, func(_ io.Writer, p handlers.LogFormatterParams) {
		entry := s.logger.WithFields(logrus.Fields{
			"API":           "request",
			requestIDHeader: p.Request.Header.Get(requestIDHeader),
			"method":        p.Request.Method,
			"uri":           p.URL.RequestURI(),
			"status":        p.StatusCode,
			"size":          p.Size,
			"duration":      time.Since(p.TimeStamp).String(),
			"remote":        p.Request.RemoteAddr,
		})
		if p.URL.Path == "/health" {
			entry.Trace("HTTP request")
			return
		}
		entry.Debug("HTTP request")
	})
}

// authMiddleware enforces basic authentication on mutating requests when
// enabled. Reads stay open.
func (s *HTTPServer) authMiddleware(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.cfg.HTTP.AuthEnabled || !isMutating(r.Method) {
			h.ServeHTTP(w, r)
			return
		}

		user, pass, ok := r.BasicAuth()
		if !ok {
			w.Header().Set("WWW-Authenticate", `Basic realm="mnconfig"`)
			writeDetail(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
			return
		}

		expectedPass, exists := s.cfg.HTTP.Logins[user]
		if !exists || subtle.ConstantTimeCompare([]byte(expectedPass), []byte(pass)) != 1 {
			s.logger.Warning("Rejected credentials for user %q from %s", user, r.RemoteAddr)
			writeDetail(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
			return
		}

		h.ServeHTTP(w, r)
	})
}

func isMutating(method string) bool {
	switch method {
	case http.MethodPut, http.MethodPost, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}
