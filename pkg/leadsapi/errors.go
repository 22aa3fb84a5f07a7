package leadsapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// APIError is returned when the API responds with a non-2xx status.
type APIError struct {
	StatusCode int
	Body       string
	// Detail is the server's "detail" field when the body carried one.
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("leadsapi: HTTP %d: %s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("leadsapi: HTTP %d: %s", e.StatusCode, e.Body)
}

func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status, Body: string(body)}

	// FastAPI returns {"detail": "..."} for HTTPException and a list of
	// objects for request validation failures; only the string form is a
	// user-facing message.
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && len(payload.Detail) > 0 {
		var s string
		if json.Unmarshal(payload.Detail, &s) == nil {
			apiErr.Detail = s
		}
	}
	return apiErr
}

// IsUnauthorized reports whether err carries an HTTP 401 from the API.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized
}

// Detail returns the server-supplied detail message in err's chain, if any.
func Detail(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Detail
	}
	return ""
}

// Message renders err for a single-line banner: the server's detail when
// present, else the raw error text.
func Message(err error) string {
	if err == nil {
		return ""
	}
	if d := Detail(err); d != "" {
		return d
	}
	return err.Error()
}
