package cache

import (
	"strconv"
	"strings"
)

// PageKey identifies one cached page in a shared backend.
type PageKey struct {
	// Namespace groups all keys of this application (e.g. "news").
	Namespace string

	// Session scopes keys to one cache lifetime.
	Session string

	// Page is the 1-based page number.
	Page int
}

// String generates a deterministic key string.
// Format: namespace:session:page:N
//
// Example:
//
//	news:5b0c...:page:3
func (k PageKey) String() string {
	return k.Prefix() + strconv.Itoa(k.Page)
}

// Prefix returns the key prefix shared by every page of the session,
// including the trailing "page:" segment.
func (k PageKey) Prefix() string {
	parts := make([]string, 0, 3)
	if ns := strings.Trim(k.Namespace, ":"); ns != "" {
		parts = append(parts, ns)
	}
	if s := strings.Trim(k.Session, ":"); s != "" {
		parts = append(parts, s)
	}
	parts = append(parts, "page")
	return strings.Join(parts, ":") + ":"
}
