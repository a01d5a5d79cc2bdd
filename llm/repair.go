package llm

import (
	"regexp"
	"strings"
)

// The repair chain is a fixed, ordered list of pure text transforms applied
// to model output that failed strict JSON parsing. Each transform is
// independently testable. This is best-effort cleanup of common model
// artifacts, not a general JSON grammar fixer.

var (
	// trailingCommaPattern matches trailing commas before ] or }.
	trailingCommaPattern = regexp.MustCompile(`,\s*([}\]])`)
	// bareKeyPattern matches unquoted identifier-like property names.
	bareKeyPattern = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_]*)(\s*):`)
)

// repairTransform is one step in the repair chain.
type repairTransform struct {
	name string
	fn   func(string) string
}

var repairChain = []repairTransform{
	{"trailing-commas", stripTrailingCommas},
	{"balance-brackets", balanceBrackets},
	{"quote-bare-keys", quoteBareKeys},
	{"single-quotes", normalizeQuotes},
	{"control-chars", stripControlChars},
}

// RepairJSON runs the full repair chain over malformed JSON text.
func RepairJSON(s string) string {
	for _, t := range repairChain {
		s = t.fn(s)
	}
	return s
}

// stripTrailingCommas removes commas that directly precede a closing
// bracket or brace.
func stripTrailingCommas(s string) string {
	return trailingCommaPattern.ReplaceAllString(s, "$1")
}

// balanceBrackets appends the closers missing from the end of truncated
// output. Bracket characters inside double-quoted string literals are
// ignored. Mismatched or surplus closers are left untouched.
func balanceBrackets(s string) string {
	var stack []byte
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		ch := s[i]
		if escaped {
			escaped = false
			continue
		}
		if inString {
			switch ch {
			case '\\':
				escaped = true
			case '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) > 0 && stack[len(stack)-1] == ch {
				stack = stack[:len(stack)-1]
			}
		}
	}

	if len(stack) == 0 {
		return s
	}

	var b strings.Builder
	b.WriteString(s)
	// A string left open would swallow the appended closers.
	if inString {
		b.WriteByte('"')
	}
	for i := len(stack) - 1; i >= 0; i-- {
		b.WriteByte(stack[i])
	}
	return b.String()
}

// quoteBareKeys wraps identifier-like property names in double quotes:
// {name: 1} → {"name": 1}.
func quoteBareKeys(s string) string {
	return bareKeyPattern.ReplaceAllString(s, `$1"$2"$3:`)
}

// normalizeQuotes converts single-quoted string literals to double-quoted
// ones, outside regions that are already double-quoted. Embedded double
// quotes are escaped and escaped single quotes are unescaped.
func normalizeQuotes(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	inDouble := false
	inSingle := false
	escaped := false

	for i := 0; i < len(s); i++ {
		ch := s[i]

		if escaped {
			if inSingle && ch == '\'' {
				b.WriteByte('\'') // \' inside a single-quoted string is just '
			} else {
				b.WriteByte('\\')
				b.WriteByte(ch)
			}
			escaped = false
			continue
		}

		if ch == '\\' {
			escaped = true
			continue
		}

		switch {
		case inDouble:
			if ch == '"' {
				inDouble = false
			}
			b.WriteByte(ch)
		case inSingle:
			switch ch {
			case '\'':
				inSingle = false
				b.WriteByte('"')
			case '"':
				b.WriteString(`\"`)
			default:
				b.WriteByte(ch)
			}
		default:
			switch ch {
			case '"':
				inDouble = true
				b.WriteByte(ch)
			case '\'':
				inSingle = true
				b.WriteByte('"')
			default:
				b.WriteByte(ch)
			}
		}
	}

	if escaped {
		b.WriteByte('\\')
	}
	return b.String()
}

// stripControlChars removes control characters except standard whitespace.
func stripControlChars(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x20 && r != '\n' && r != '\r' && r != '\t' {
			return -1
		}
		return r
	}, s)
}
