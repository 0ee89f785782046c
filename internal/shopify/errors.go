package shopify

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// HTTPStatusError is a non-2xx Admin API response.
type HTTPStatusError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("shopify request failed: %s", e.Status)
	}
	return fmt.Sprintf("shopify request failed: %s: %s", e.Status, e.Body)
}

func newHTTPStatusError(statusCode int, status string, body []byte) error {
	return &HTTPStatusError{
		StatusCode: statusCode,
		Status:     status,
		Body:       strings.TrimSpace(string(body)),
	}
}

// IsThrottled reports whether err is Shopify rate limiting the app.
func IsThrottled(err error) bool {
	var httpErr *HTTPStatusError
	if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusTooManyRequests {
		return true
	}
	var gqlErr *GraphQLErrors
	if errors.As(err, &gqlErr) {
		for _, e := range gqlErr.Errors {
			if code, ok := e.Extensions["code"].(string); ok && strings.EqualFold(code, "THROTTLED") {
				return true
			}
		}
	}
	return false
}

// GraphQLErrors are top-level errors of a GraphQL response.
type GraphQLErrors struct {
	Errors []graphQLError
}

func (e *GraphQLErrors) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, ge := range e.Errors {
		msg := strings.TrimSpace(ge.Message)
		if msg == "" {
			continue
		}
		if len(ge.Path) > 0 {
			msg = fmt.Sprintf("%s (path: %v)", msg, ge.Path)
		}
		parts = append(parts, msg)
	}
	if len(parts) == 0 {
		return "shopify graphql errors: unknown graphql error"
	}
	return "shopify graphql errors: " + strings.Join(parts, "; ")
}

// UserErrorsError is a mutation rejected with userErrors.
type UserErrorsError struct {
	Action string
	Errors []userError
}

func (e *UserErrorsError) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, ue := range e.Errors {
		msg := strings.TrimSpace(ue.Message)
		if msg == "" {
			continue
		}
		if len(ue.Field) > 0 {
			msg = fmt.Sprintf("%s: %s", strings.Join(ue.Field, "."), msg)
		}
		parts = append(parts, msg)
	}
	if len(parts) == 0 {
		return fmt.Sprintf("shopify %s failed with user errors", e.Action)
	}
	return fmt.Sprintf("shopify %s failed: %s", e.Action, strings.Join(parts, "; "))
}

func userErrorsToError(action string, errs []userError) error {
	if len(errs) == 0 {
		return nil
	}
	return &UserErrorsError{Action: action, Errors: errs}
}
