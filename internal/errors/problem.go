package errors

import (
	"encoding/json"
	"net/http"
)

// Problem represents an RFC 7807 problem details object, used for the
// HTML-facing middleware rejections where the JSON envelope of
// APIError would be wrong.
type Problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
	Trace  string `json:"trace_id,omitempty"`
}

// Render implements the chi render.Renderer interface
func (p Problem) Render(w http.ResponseWriter, r *http.Request) error {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	return json.NewEncoder(w).Encode(p)
}

// ProblemFromStatus builds a Problem for a bare status code
func ProblemFromStatus(status int, detail, traceID string) Problem {
	return Problem{
		Type:   "about:blank",
		Title:  http.StatusText(status),
		Status: status,
		Detail: detail,
		Trace:  traceID,
	}
}

// ProblemFromAPIError converts an APIError into a Problem
func ProblemFromAPIError(err *APIError, traceID string) Problem {
	return Problem{
		Type:   "/errors/" + err.ErrorCode,
		Title:  http.StatusText(err.StatusCode),
		Status: err.StatusCode,
		Detail: err.Message,
		Trace:  traceID,
	}
}
