package domain

import "fmt"

// ErrorKind is the failure taxonomy shown to users.
type ErrorKind string

const (
	ErrorAuth    ErrorKind = "auth"
	ErrorNetwork ErrorKind = "network"
	ErrorGeneral ErrorKind = "general"
)

// ErrorEnvelope is a classified request failure.
type ErrorEnvelope struct {
	Kind       ErrorKind `json:"kind"`
	Message    string    `json:"message"`
	Suggestion string    `json:"suggestion,omitempty"`
}

func (e *ErrorEnvelope) Error() string {
	return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
}

// ErrorBody is the structured error the agent backend returns.
type ErrorBody struct {
	Error      string `json:"error"`
	ErrorType  string `json:"errorType,omitempty"`
	NeedsAuth  bool   `json:"needsAuth,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

// BackendError is a failure reported by the agent backend, either as a
// non-2xx HTTP response or as an error frame in a stream. Body is nil when
// the response carried no decodable error body.
type BackendError struct {
	Status int
	Body   *ErrorBody
	Raw    string
}

func (e *BackendError) Error() string {
	switch {
	case e.Body != nil && e.Body.Error != "":
		if e.Status > 0 {
			return fmt.Sprintf("agent backend %d: %s", e.Status, e.Body.Error)
		}
		return "agent backend: " + e.Body.Error
	case e.Raw != "":
		return fmt.Sprintf("agent backend %d: %s", e.Status, e.Raw)
	default:
		return fmt.Sprintf("agent backend returned status %d", e.Status)
	}
}
