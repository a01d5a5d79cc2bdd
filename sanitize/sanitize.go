// Package sanitize strips unsafe markup and validates URLs in the
// structured results of the verification pipeline. It is a pure
// transformation layer: fields that cannot be sanitized are cleared, never
// rejected wholesale, so sanitization never fails a request.
package sanitize

import (
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	stdhtml "html"

	"golang.org/x/net/html"

	"github.com/platewise/platewise/recipe"
)

// schemePattern removes URI schemes that can carry executable payloads when
// they appear inside free text.
var schemePattern = regexp.MustCompile(`(?i)(javascript|data|vbscript)\s*:`)

// spacePattern collapses whitespace left behind by removed markup.
var spacePattern = regexp.MustCompile(`\s+`)

// allowedSchemes is the URL scheme allow-list.
var allowedSchemes = map[string]bool{
	"http":  true,
	"https": true,
}

// Sanitizer cleans free-text and URL fields of parsed responses.
type Sanitizer struct {
	logger *slog.Logger
}

// Option configures a Sanitizer.
type Option func(*Sanitizer)

// WithLogger sets the logger used for URL rejections.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Sanitizer) {
		s.logger = logger
	}
}

// New creates a Sanitizer.
func New(opts ...Option) *Sanitizer {
	s := &Sanitizer{logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Apply sanitizes every free-text and URL field of the response in place
// and returns it. Never returns an error.
func (s *Sanitizer) Apply(resp *recipe.Response) *recipe.Response {
	if resp == nil {
		return nil
	}

	if r := resp.Recipe; r != nil {
		r.Name = s.Text(r.Name)
		r.PrepTime = s.Text(r.PrepTime)
		r.CookTime = s.Text(r.CookTime)
		r.Ingredients = s.textSlice(r.Ingredients)
		r.MissingIngredients = s.textSlice(r.MissingIngredients)
		r.Steps = s.textSlice(r.Steps)
		r.SourceURL = s.URL(r.SourceURL)
	}

	if set := resp.Recommendations; set != nil {
		for i := range set.Recommendations {
			rec := &set.Recommendations[i]
			rec.Item = s.Text(rec.Item)
			rec.Reason = s.Text(rec.Reason)
			rec.Notes = s.Text(rec.Notes)
			rec.URL = s.URL(rec.URL)
		}
	}

	return resp
}

// Text sanitizes one free-text field: entity-decode, drop script/style
// spans and remaining markup, remove executable URI schemes, collapse
// whitespace, trim.
func (s *Sanitizer) Text(text string) string {
	if text == "" {
		return ""
	}

	// Decode entities first so encoded markup cannot survive stripping.
	decoded := stdhtml.UnescapeString(text)
	stripped := stripMarkup(decoded)
	stripped = schemePattern.ReplaceAllString(stripped, "")
	stripped = spacePattern.ReplaceAllString(stripped, " ")
	return strings.TrimSpace(stripped)
}

// URL validates one URL field against the scheme allow-list. Unparseable or
// disallowed URLs are cleared and the rejection is logged.
func (s *Sanitizer) URL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() {
		s.logger.Warn("Rejected non-absolute URL", "url", raw)
		return ""
	}
	if !allowedSchemes[strings.ToLower(u.Scheme)] {
		s.logger.Warn("Rejected URL with disallowed scheme", "scheme", u.Scheme)
		return ""
	}
	return raw
}

func (s *Sanitizer) textSlice(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if cleaned := s.Text(v); cleaned != "" {
			out = append(out, cleaned)
		}
	}
	return out
}

// rawTextTags are elements whose content is dropped entirely, not just
// unwrapped.
var rawTextTags = map[string]bool{
	"script":   true,
	"style":    true,
	"iframe":   true,
	"noscript": true,
}

// stripMarkup removes tags from a text fragment, dropping the contents of
// script-like elements. Plain text passes through untouched.
func stripMarkup(s string) string {
	if !strings.ContainsRune(s, '<') {
		return s
	}

	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(s))
	skip := 0

	for {
		switch z.Next() {
		case html.ErrorToken:
			return b.String()
		case html.StartTagToken:
			name, _ := z.TagName()
			if rawTextTags[string(name)] {
				skip++
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if rawTextTags[string(name)] && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		}
	}
}
