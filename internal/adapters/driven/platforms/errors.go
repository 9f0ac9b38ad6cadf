package platforms

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Error is a failed call to a platform API.
// Message is the platform's own human-readable text when it sent one.
type Error struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s failed: status=%d: %s", e.Op, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s failed: %s", e.Op, e.Message)
}

// Message returns the platform-provided message carried by err, if any.
func Message(err error) string {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Message
	}
	return ""
}

// ExtractErrorMessage pulls a human-readable message out of an error body.
// It understands the shapes used by the supported platforms:
//
//	{"error": {"message": "..."}}                   Graph API, Google APIs
//	{"error": "code", "error_description": "..."}   RFC 6749 token endpoints
//	{"errors": [{"message": "..."}]}                X API v2
//	{"detail": "..."}                               X problem details
func ExtractErrorMessage(body []byte) string {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return ""
	}

	if desc := rawString(raw["error_description"]); desc != "" {
		return desc
	}
	if errField, ok := raw["error"]; ok {
		if s := rawString(errField); s != "" {
			return s
		}
		var obj struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(errField, &obj) == nil && obj.Message != "" {
			return obj.Message
		}
	}
	if errs, ok := raw["errors"]; ok {
		var list []struct {
			Message string `json:"message"`
			Detail  string `json:"detail"`
		}
		if json.Unmarshal(errs, &list) == nil && len(list) > 0 {
			if list[0].Message != "" {
				return list[0].Message
			}
			return list[0].Detail
		}
	}
	return rawString(raw["detail"])
}

func rawString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

// statusError builds an Error for a non-2xx response.
func statusError(op string, status int, body []byte) *Error {
	msg := ExtractErrorMessage(body)
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &Error{Op: op, StatusCode: status, Message: msg}
}
