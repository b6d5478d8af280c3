package apiclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// GenericMessage is shown to operators when the remote API gives no usable
// explanation for a failure.
const GenericMessage = "Something went wrong. Please try again."

var (
	ErrNotFound     = errors.New("record not found")
	ErrUnauthorized = errors.New("not authorized")
)

// APIError is a non-2xx answer from the remote API.
type APIError struct {
	Status         int
	Method         string
	Path           string
	Detail         string
	NonFieldErrors []string
	FieldErrors    map[string][]string
}

func (e *APIError) Error() string {
	msg := e.Detail
	if len(e.NonFieldErrors) > 0 {
		msg = strings.Join(e.NonFieldErrors, " ")
	}
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Status, msg)
}

// Is lets callers match on status classes with errors.Is.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
	}
	return false
}

func newAPIError(method, path string, status int, body []byte) *APIError {
	apiErr := &APIError{Status: status, Method: method, Path: path}

	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return apiErr
	}

	for key, raw := range payload {
		switch key {
		case "non_field_errors":
			apiErr.NonFieldErrors = stringList(raw)
		case "detail", "message", "error":
			if apiErr.Detail == "" {
				if list := stringList(raw); len(list) > 0 {
					apiErr.Detail = strings.Join(list, " ")
				}
			}
		default:
			if list := stringList(raw); len(list) > 0 {
				if apiErr.FieldErrors == nil {
					apiErr.FieldErrors = make(map[string][]string)
				}
				apiErr.FieldErrors[key] = list
			}
		}
	}
	return apiErr
}

// stringList accepts either a JSON string or an array of strings.
func stringList(raw json.RawMessage) []string {
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		if single == "" {
			return nil
		}
		return []string{single}
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}
	return nil
}

// UserMessage converts any error returned by the client into the text shown to
// an operator: the server's non_field_errors verbatim when present, otherwise
// GenericMessage.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && len(apiErr.NonFieldErrors) > 0 {
		return strings.Join(apiErr.NonFieldErrors, " ")
	}
	return GenericMessage
}

// FieldMessages flattens per-field validation errors as "field: message"
// lines, sorted by field name.
func FieldMessages(err error) []string {
	var apiErr *APIError
	if !errors.As(err, &apiErr) || len(apiErr.FieldErrors) == 0 {
		return nil
	}
	keys := make([]string, 0, len(apiErr.FieldErrors))
	for k := range apiErr.FieldErrors {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var out []string
	for _, k := range keys {
		for _, msg := range apiErr.FieldErrors[k] {
			out = append(out, k+": "+msg)
		}
	}
	return out
}
