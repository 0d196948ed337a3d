package httpserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/JailtonJunior94/pgkit-go/pkg/requestctx"
)

// ProblemDetail represents an RFC 7807 Problem Details for HTTP APIs response.
type ProblemDetail struct {
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Status    int       `json:"status"`
	Detail    string    `json:"detail"`
	Instance  string    `json:"instance"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// WriteError writes an RFC 7807 error response carrying the request ID.
func WriteError(w http.ResponseWriter, r *http.Request, code int, detail string) {
	requestID, _ := requestctx.RequestID(r.Context())

	problem := ProblemDetail{
		Type:      fmt.Sprintf("https://httpstatuses.com/%d", code),
		Title:     http.StatusText(code),
		Status:    code,
		Detail:    detail,
		Instance:  r.URL.Path,
		Timestamp: time.Now(),
		RequestID: requestID,
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(code)

	_ = json.NewEncoder(w).Encode(problem)
}
