package article

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// User is the account record delivered alongside article feeds.
type User struct {
	ID        int
	Name      string
	CreatedAt time.Time
}

// isoLayouts are the ISO-8601 forms accepted for created_at strings.
var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999-0700",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
	"20060102T150405Z",
	"20060102",
}

// ParseUser decodes a user document. created_at may be epoch milliseconds
// or an ISO-8601 string.
func ParseUser(data []byte) (*User, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, &FormatError{Message: fmt.Sprintf("user is not a JSON object: %v", err)}
	}

	id, err := requireInt(fields, "id")
	if err != nil {
		return nil, err
	}
	name, err := requireString(fields, "name")
	if err != nil {
		return nil, err
	}

	raw, ok := lookup(fields, "created_at")
	if !ok {
		return nil, missingField("created_at")
	}
	createdAt, err := parseCreatedAt(raw)
	if err != nil {
		return nil, err
	}

	return &User{ID: int(id), Name: name, CreatedAt: createdAt}, nil
}

func parseCreatedAt(raw json.RawMessage) (time.Time, error) {
	switch jsonKind(raw) {
	case "integer":
		ms, err := strconv.ParseInt(string(raw), 10, 64)
		if err != nil {
			return time.Time{}, wrongType("created_at", "integer or string", raw)
		}
		return time.UnixMilli(ms).UTC(), nil
	case "string":
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}, wrongType("created_at", "integer or string", raw)
		}
		if t, ok := parseISO(s); ok {
			return t, nil
		}
		return time.Time{}, &FormatError{
			Field:   "created_at",
			Message: fmt.Sprintf("invalid date format for created_at: %s", s),
		}
	default:
		return time.Time{}, &FormatError{
			Field:   "created_at",
			Message: fmt.Sprintf("invalid type for created_at: expected integer or string, got %s", jsonKind(raw)),
		}
	}
}

func parseISO(s string) (time.Time, bool) {
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
