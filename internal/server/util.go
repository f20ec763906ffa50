package server

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
)

// numbers decode as json.Number so large integers survive a round trip
var json = jsoniter.Config{
	EscapeHTML:             true,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
	UseNumber:              true,
}.Froze()

// writeJSON encodes value as the JSON response body
func writeJSON(w http.ResponseWriter, code int, value interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	coder := json.NewEncoder(w)
	coder.SetEscapeHTML(true)
	if err := coder.Encode(value); err != nil {
		logrus.Errorf("unable to write json: %q", err)
	}
}

// detail is the error envelope returned by the API
type detail struct {
	Detail interface{} `json:"detail"`
}

// errorBody is the structured form of detail
type errorBody struct {
	Error   string   `json:"error"`
	Message string   `json:"message,omitempty"`
	Details []string `json:"details,omitempty"`
}

func writeDetail(w http.ResponseWriter, code int, value interface{}) {
	writeJSON(w, code, detail{Detail: value})
}

func badRequest(w http.ResponseWriter, format string, args ...interface{}) {
	writeDetail(w, http.StatusBadRequest, errorBody{Error: "BadRequest", Message: fmt.Sprintf(format, args...)})
}

func validationFailed(w http.ResponseWriter, details []string) {
	writeDetail(w, http.StatusBadRequest, errorBody{Error: "ValidationError", Details: details})
}

func (s *HTTPServer) internalError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.WithFields(logrus.Fields{
		requestIDHeader: r.Header.Get(requestIDHeader),
		"method":        r.Method,
		"path":          r.URL.Path,
	}).Errorf("Request failed: %+v", err)
	writeDetail(w, http.StatusInternalServerError, errorBody{Error: "InternalError", Message: err.Error()})
}

// getVar returns the mux variable k. The router matches on the decoded
// path so the value is already unescaped.
func getVar(r *http.Request, k string) string {
	return mux.Vars(r)[k]
}
