// Package article defines the records carried through the paginated fetch
// pipeline: articles, page results and the companion user model.
package article

import (
	"encoding/json"
	"fmt"
)

// UnknownTotalPages marks a PageResult whose total page count is not known.
// Cache hits always carry it; callers must keep their last known total.
const UnknownTotalPages = -1

// Article is a single post as returned by the posts endpoint.
// Values are never mutated after decoding.
type Article struct {
	ID    int    `json:"id"`
	Title string `json:"title"`
	Body  string `json:"body"`
}

// PageResult is the normalized outcome of a page lookup.
type PageResult struct {
	Articles   []Article `json:"articles"`
	Page       int       `json:"page"`
	TotalPages int       `json:"total_pages"`

	// Cached is set when the page was served from the page cache without
	// a network fetch.
	Cached bool `json:"-"`
}

// HasTotalPages reports whether TotalPages is a real count rather than the
// unknown sentinel.
func (r *PageResult) HasTotalPages() bool {
	return r.TotalPages != UnknownTotalPages
}

// Decode builds an Article from one JSON object. The id, title and body
// fields must all be present with the right types; other fields are ignored.
func Decode(data []byte) (Article, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return Article{}, &FormatError{Message: fmt.Sprintf("article is not a JSON object: %v", err)}
	}

	id, err := requireInt(fields, "id")
	if err != nil {
		return Article{}, err
	}
	title, err := requireString(fields, "title")
	if err != nil {
		return Article{}, err
	}
	body, err := requireString(fields, "body")
	if err != nil {
		return Article{}, err
	}

	return Article{ID: int(id), Title: title, Body: body}, nil
}

// DecodeList decodes a JSON array of articles. A single malformed element
// fails the whole list; partial pages are never returned.
func DecodeList(data []byte) ([]Article, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &FormatError{Message: fmt.Sprintf("article list is not a JSON array: %v", err)}
	}

	articles := make([]Article, 0, len(raw))
	for i, item := range raw {
		a, err := Decode(item)
		if err != nil {
			return nil, fmt.Errorf("article %d: %w", i, err)
		}
		articles = append(articles, a)
	}
	return articles, nil
}

// Clone returns a copy of the slice so holders cannot alias each other.
func Clone(articles []Article) []Article {
	if articles == nil {
		return nil
	}
	out := make([]Article, len(articles))
	copy(out, articles)
	return out
}
