// Package normalize validates and canonicalizes raw item lists before they
// reach any external call. It is a pure function over its input: no I/O, no
// shared state.
package normalize

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultMaxItems bounds the number of items in a single request.
const DefaultMaxItems = 30

// DefaultMaxItemLength bounds the length of a single sanitized item.
const DefaultMaxItemLength = 80

// disallowedPattern strips everything outside the allow-list: letters
// (including accented forms), digits, space, hyphen, period, comma,
// parentheses, apostrophe, slash.
var disallowedPattern = regexp.MustCompile(`[^\p{L}\p{N} .,\-()'/]+`)

// spacePattern collapses runs of internal whitespace.
var spacePattern = regexp.MustCompile(`\s+`)

// Reason classifies why an item was rejected.
type Reason string

const (
	// ReasonEmpty means the item was empty after sanitization.
	ReasonEmpty Reason = "empty"

	// ReasonInvalidChars means the item contained only disallowed characters.
	ReasonInvalidChars Reason = "invalid-characters-only"

	// ReasonTooLong means the sanitized item exceeded the length bound.
	ReasonTooLong Reason = "over-length"
)

// ItemError describes one rejected element.
type ItemError struct {
	Index  int    `json:"index"`
	Raw    string `json:"raw"`
	Reason Reason `json:"reason"`
}

// Error is the structured failure for an invalid request. It lists the
// offending elements, or a request-level message for size violations.
type Error struct {
	Message string      `json:"message,omitempty"`
	Items   []ItemError `json:"items,omitempty"`
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	parts := make([]string, 0, len(e.Items))
	for _, it := range e.Items {
		parts = append(parts, fmt.Sprintf("item %d (%q): %s", it.Index, it.Raw, it.Reason))
	}
	return "invalid items: " + strings.Join(parts, "; ")
}

// Request is a normalized item list. Items keep their original case for
// display; hashing and de-duplication fold case separately.
type Request struct {
	Items    []string
	TypeHint string
}

// Options bound the normalizer.
type Options struct {
	MaxItems      int
	MaxItemLength int
}

// DefaultOptions returns the default bounds.
func DefaultOptions() Options {
	return Options{
		MaxItems:      DefaultMaxItems,
		MaxItemLength: DefaultMaxItemLength,
	}
}

// Normalize sanitizes a raw item list into a Request, or returns a *Error
// describing every offending element. It fails closed: when the sanitized
// list ends up empty the whole request fails, even if the raw list was not.
func Normalize(raw []string, typeHint string, opts Options) (*Request, error) {
	if opts.MaxItems <= 0 {
		opts.MaxItems = DefaultMaxItems
	}
	if opts.MaxItemLength <= 0 {
		opts.MaxItemLength = DefaultMaxItemLength
	}

	if len(raw) == 0 {
		return nil, &Error{Message: "item list is empty"}
	}
	if len(raw) > opts.MaxItems {
		return nil, &Error{Message: fmt.Sprintf("too many items: %d (maximum %d)", len(raw), opts.MaxItems)}
	}

	var itemErrs []ItemError
	seen := make(map[string]struct{}, len(raw))
	items := make([]string, 0, len(raw))

	for i, r := range raw {
		cleaned := Clean(r)
		switch {
		case cleaned == "" && strings.TrimSpace(r) == "":
			itemErrs = append(itemErrs, ItemError{Index: i, Raw: r, Reason: ReasonEmpty})
			continue
		case cleaned == "":
			itemErrs = append(itemErrs, ItemError{Index: i, Raw: r, Reason: ReasonInvalidChars})
			continue
		case len(cleaned) > opts.MaxItemLength:
			itemErrs = append(itemErrs, ItemError{Index: i, Raw: r, Reason: ReasonTooLong})
			continue
		}

		// De-duplicate case-insensitively, first occurrence wins.
		key := strings.ToLower(cleaned)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		items = append(items, cleaned)
	}

	if len(itemErrs) > 0 {
		return nil, &Error{Items: itemErrs}
	}
	if len(items) == 0 {
		return nil, &Error{Message: "no valid items after sanitization"}
	}

	return &Request{
		Items:    items,
		TypeHint: strings.TrimSpace(typeHint),
	}, nil
}

// Clean applies the character allow-list, collapses internal whitespace,
// and trims. Returns "" when nothing survives.
func Clean(s string) string {
	s = disallowedPattern.ReplaceAllString(s, "")
	s = spacePattern.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
