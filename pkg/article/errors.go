package article

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// FormatError reports a decode-time validation failure. It is never retried.
type FormatError struct {
	// Field is the offending field name, empty when the whole document is bad.
	Field   string
	Message string
}

// Error implements the error interface.
func (e *FormatError) Error() string {
	return e.Message
}

func missingField(field string) *FormatError {
	return &FormatError{Field: field, Message: fmt.Sprintf("missing required field: %s", field)}
}

func wrongType(field, want string, raw json.RawMessage) *FormatError {
	return &FormatError{
		Field:   field,
		Message: fmt.Sprintf("invalid type for %s: expected %s, got %s", field, want, jsonKind(raw)),
	}
}

// jsonKind names the JSON type of a raw value for error messages.
func jsonKind(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "nothing"
	}
	switch raw[0] {
	case '"':
		return "string"
	case '{':
		return "object"
	case '[':
		return "array"
	case 't', 'f':
		return "boolean"
	case 'n':
		return "null"
	default:
		if _, err := strconv.ParseInt(string(raw), 10, 64); err == nil {
			return "integer"
		}
		return "number"
	}
}

// lookup returns the raw value for field, treating null the same as absent.
func lookup(fields map[string]json.RawMessage, field string) (json.RawMessage, bool) {
	raw, ok := fields[field]
	if !ok || jsonKind(raw) == "null" {
		return nil, false
	}
	return raw, true
}

func requireInt(fields map[string]json.RawMessage, field string) (int64, error) {
	raw, ok := lookup(fields, field)
	if !ok {
		return 0, missingField(field)
	}
	if jsonKind(raw) != "integer" {
		return 0, wrongType(field, "integer", raw)
	}
	n, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, wrongType(field, "integer", raw)
	}
	return n, nil
}

func requireString(fields map[string]json.RawMessage, field string) (string, error) {
	raw, ok := lookup(fields, field)
	if !ok {
		return "", missingField(field)
	}
	if jsonKind(raw) != "string" {
		return "", wrongType(field, "string", raw)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", wrongType(field, "string", raw)
	}
	return s, nil
}
