package openaicompat

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/rhuss/tabula/pkg/api"
)

// statusErrors maps backend status codes to error constructors and the
// message used when the body carries none. provider.WithRetry treats the
// invalid-request and authentication types as permanent.
var statusErrors = map[int]struct {
	build    func(string) *api.APIError
	fallback string
}{
	http.StatusBadRequest: {
		func(m string) *api.APIError { return api.NewInvalidRequestError("", m) },
		"invalid request to backend",
	},
	http.StatusUnauthorized:    {api.NewAuthenticationError, "backend authentication failed"},
	http.StatusForbidden:       {api.NewAuthenticationError, "backend authentication failed"},
	http.StatusNotFound:        {api.NewNotFoundError, "backend resource not found"},
	http.StatusTooManyRequests: {api.NewTooManyRequestsError, "backend rate limit exceeded"},
}

// MapHTTPError converts a non-2xx backend response into an APIError,
// preferring the message from the backend's error body.
func MapHTTPError(resp *http.Response) *api.APIError {
	msg := backendMessage(resp.Body)
	if e, ok := statusErrors[resp.StatusCode]; ok {
		if msg == "" {
			msg = e.fallback
		}
		return e.build(msg)
	}
	if msg == "" {
		msg = fmt.Sprintf("backend returned HTTP %d", resp.StatusCode)
	}
	return api.NewModelError(msg)
}

// MapNetworkError wraps a transport failure. These are retried.
func MapNetworkError(err error) *api.APIError {
	return api.NewModelError("backend connection error: " + err.Error())
}

func backendMessage(body io.Reader) string {
	if body == nil {
		return ""
	}
	data, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil || len(data) == 0 {
		return ""
	}
	var eb chatErrorBody
	if json.Unmarshal(data, &eb) != nil {
		return ""
	}
	return eb.Error.Message
}
