package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrNotAuthenticated is returned without a request being made when an
// authenticated call is attempted with no credential.
var ErrNotAuthenticated = errors.New("not authenticated")

// Error is a non-2xx response.
type Error struct {
	Method  string
	Route   string
	Status  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Route, e.Status, e.Message)
}

// IsUnauthorized reports whether err is a 401 from the backend or a missing
// credential.
func IsUnauthorized(err error) bool {
	if errors.Is(err, ErrNotAuthenticated) {
		return true
	}
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized
}

// Transient reports whether the request never got a verdict from the
// backend, so resending it with the same nonce may succeed.
func Transient(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *Error
	switch {
	case errors.As(err, &apiErr),
		errors.Is(err, ErrNotAuthenticated),
		errors.Is(err, context.Canceled):
		return false
	}
	return true
}

// errorMessage pulls the error or message field out of a JSON body and falls
// back to the status text.
func errorMessage(status int, body []byte) string {
	if gjson.ValidBytes(body) {
		for _, path := range []string{"error", "message"} {
			if r := gjson.GetBytes(body, path); r.Exists() && r.String() != "" {
				return r.String()
			}
		}
	}
	if text := strings.TrimSpace(string(body)); text != "" && len(text) <= 200 && !strings.HasPrefix(text, "<") {
		return text
	}
	return http.StatusText(status)
}
