// Package httputil holds the JSON plumbing behind the node's debug routes.
package httputil

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/banshee-data/sonar/internal/monitoring"
)

// ErrorBody is the payload of every error response.
type ErrorBody struct {
	Error string `json:"error"`
}

// JSON encodes v as the body of a response with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		monitoring.Logf("debug route: encoding %T: %v", v, err)
	}
}

// Errorf answers with status and a formatted ErrorBody.
func Errorf(w http.ResponseWriter, status int, format string, args ...any) {
	JSON(w, status, ErrorBody{Error: fmt.Sprintf(format, args...)})
}

// AllowMethod reports whether r uses method. Otherwise it has already
// answered 405 with an Allow header and the handler should return.
func AllowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	Errorf(w, http.StatusMethodNotAllowed, "%s not allowed, use %s", r.Method, method)
	return false
}
