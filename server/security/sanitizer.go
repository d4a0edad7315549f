// Package security holds the input sanitizer and the abuse gate that every
// inbound chat message passes before it reaches the orchestrator.
package security

import (
	"regexp"
	"strings"
	"unicode/utf8"

	chaterrors "github.com/hrygo/chatrelay/server/internal/errors"
)

// DefaultMaxMessageLength is the longest accepted message, in characters.
const DefaultMaxMessageLength = 5000

// maxSanitizePasses bounds the convergence loop in Sanitize.
const maxSanitizePasses = 4

var (
	// tagPattern matches markup-like tags.
	tagPattern = regexp.MustCompile(`<[^>]+>`)
	// entityPattern matches a character reference at the start of the input.
	entityPattern = regexp.MustCompile(`^&(?:#[0-9]{1,7}|#[xX][0-9a-fA-F]{1,6}|[a-zA-Z][a-zA-Z0-9]{1,31});`)
	whitespacePattern = regexp.MustCompile(`\s+`)
	uuidPattern       = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
)

// denylist is the set of constructs stripped from messages and counted by the
// suspicion scorer.
var denylist = []*regexp.Regexp{
	regexp.MustCompile(`(?is)<script.*?>.*?</script>`),
	regexp.MustCompile(`(?i)javascript:`),
	regexp.MustCompile(`(?i)on\w+\s*=`),
	regexp.MustCompile(`(?is)<iframe.*?>`),
	regexp.MustCompile(`(?is)<object.*?>`),
	regexp.MustCompile(`(?is)<embed.*?>`),
	regexp.MustCompile(`(?is)<form.*?>`),
	regexp.MustCompile(`(?is)<input.*?>`),
	regexp.MustCompile(`(?is)<textarea.*?>`),
	regexp.MustCompile(`(?is)<select.*?>`),
	regexp.MustCompile(`(?is)<button.*?>`),
	regexp.MustCompile(`(?is)<link.*?>`),
	regexp.MustCompile(`(?is)<meta.*?>`),
	regexp.MustCompile(`(?is)<style.*?>`),
	regexp.MustCompile(`(?is)<title.*?>`),
	regexp.MustCompile(`(?is)<base.*?>`),
	regexp.MustCompile(`(?is)<bgsound.*?>`),
}

// Sanitizer neutralizes untrusted text. It is stateless and safe for concurrent use.
type Sanitizer struct {
	maxLength int
}

// NewSanitizer creates a sanitizer accepting messages up to maxLength characters.
func NewSanitizer(maxLength int) *Sanitizer {
	if maxLength <= 0 {
		maxLength = DefaultMaxMessageLength
	}
	return &Sanitizer{maxLength: maxLength}
}

// MaxLength returns the configured message ceiling.
func (s *Sanitizer) MaxLength() int {
	return s.maxLength
}

// Sanitize strips markup, escapes what remains, removes denylisted constructs
// and collapses whitespace. Sanitize(Sanitize(x)) == Sanitize(x).
func (s *Sanitizer) Sanitize(text string) string {
	out := text
	for i := 0; i < maxSanitizePasses; i++ {
		next := sanitizePass(out)
		if next == out {
			break
		}
		out = next
	}
	return out
}

func sanitizePass(text string) string {
	if text == "" {
		return ""
	}
	text = tagPattern.ReplaceAllString(text, "")
	text = escapeHTML(text)
	text = stripDenylist(text)
	text = whitespacePattern.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// stripDenylist removes denylisted constructs until none match, so removals
// cannot splice a new match together.
func stripDenylist(text string) string {
	for {
		before := text
		for _, pattern := range denylist {
			text = pattern.ReplaceAllString(text, "")
		}
		if text == before {
			return text
		}
	}
}

// escapeHTML escapes markup-significant characters. An ampersand that already
// starts a character reference is left alone.
func escapeHTML(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for i := 0; i < len(text); i++ {
		switch c := text[i]; c {
		case '&':
			if entityPattern.MatchString(text[i:]) {
				b.WriteByte(c)
			} else {
				b.WriteString("&amp;")
			}
		case '<':
			b.WriteString("&lt;")
		case '>':
			b.WriteString("&gt;")
		case '"':
			b.WriteString("&#34;")
		case '\'':
			b.WriteString("&#39;")
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// Validate reports whether text is acceptable as a chat message.
func (s *Sanitizer) Validate(text string) bool {
	return s.ValidateMessage(text) == nil
}

// ValidateMessage rejects empty or oversized input and anything the sanitizer
// would change.
func (s *Sanitizer) ValidateMessage(text string) error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return chaterrors.Validation("message must not be empty")
	}
	if utf8.RuneCountInString(text) > s.maxLength {
		return chaterrors.Validation("message is too long").WithContext("max_length", s.maxLength)
	}
	if s.Sanitize(text) != trimmed {
		return chaterrors.Validation("message contains unsafe content")
	}
	return nil
}

// ValidateSessionID accepts only the canonical lowercase 36-character UUID form.
func ValidateSessionID(id string) bool {
	return uuidPattern.MatchString(id)
}

// SanitizeContext returns a copy of ctx with every string value sanitized.
// Nested maps and arrays are walked; other values pass through untouched.
func (s *Sanitizer) SanitizeContext(ctx map[string]any) map[string]any {
	if ctx == nil {
		return nil
	}
	out := make(map[string]any, len(ctx))
	for key, value := range ctx {
		out[key] = s.sanitizeValue(value)
	}
	return out
}

func (s *Sanitizer) sanitizeValue(value any) any {
	switch v := value.(type) {
	case string:
		return s.Sanitize(v)
	case map[string]any:
		return s.SanitizeContext(v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = s.sanitizeValue(item)
		}
		return out
	default:
		return v
	}
}

// countDenylistMatches counts every occurrence of every denylisted construct in text.
func countDenylistMatches(text string) int {
	count := 0
	for _, pattern := range denylist {
		count += len(pattern.FindAllStringIndex(text, -1))
	}
	return count
}
