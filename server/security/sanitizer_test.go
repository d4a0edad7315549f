package security

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	chaterrors "github.com/hrygo/chatrelay/server/internal/errors"
)

func TestSanitize(t *testing.T) {
	s := NewSanitizer(0)

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain text untouched", "hello world", "hello world"},
		{"tags stripped", "<b>bold</b> move", "bold move"},
		{"script tag content kept as text", "<script>alert(1)</script>", "alert(1)"},
		{"javascript scheme removed", "click javascript:alert(1)", "click alert(1)"},
		{"inline handler removed", "img onerror=boom", "img boom"},
		{"ampersand escaped", "fish & chips", "fish &amp; chips"},
		{"existing entity kept", "fish &amp; chips", "fish &amp; chips"},
		{"quotes escaped", `say "hi" it's`, "say &#34;hi&#34; it&#39;s"},
		{"lone angle bracket escaped", "1 < 2", "1 &lt; 2"},
		{"whitespace collapsed", "  a \n\t b  ", "a b"},
		{"spliced pattern removed", "jajavascript:vascript:go", "go"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, s.Sanitize(tt.input))
		})
	}
}

func TestSanitizeIdempotent(t *testing.T) {
	s := NewSanitizer(0)

	inputs := []string{
		"hello world",
		"<script>alert('x')</script> & more",
		"AT&T <i>rocks</i> \"quoted\" 'single'",
		"&amjavascript:p; onclick = x",
		"a &lt; b && c > d",
		"jajavascript:vascript: onon=load=",
		"   spaced\n\nout\ttext   ",
		"&#x27;&#39;&quot;&unknown",
		"<<b>>nested<</b>>",
	}

	for _, input := range inputs {
		t.Run(input, func(t *testing.T) {
			once := s.Sanitize(input)
			assert.Equal(t, once, s.Sanitize(once))
		})
	}
}

func TestValidateMessage(t *testing.T) {
	s := NewSanitizer(DefaultMaxMessageLength)

	t.Run("accepts clean message", func(t *testing.T) {
		assert.True(t, s.Validate("What is 2 + 2?"))
	})

	t.Run("accepts message with surrounding whitespace", func(t *testing.T) {
		assert.True(t, s.Validate("  hello there  "))
	})

	t.Run("rejects empty", func(t *testing.T) {
		assert.False(t, s.Validate(""))
		assert.False(t, s.Validate("   \n\t "))
	})

	t.Run("accepts exactly max length", func(t *testing.T) {
		assert.True(t, s.Validate(strings.Repeat("a", DefaultMaxMessageLength)))
	})

	t.Run("rejects one over max length", func(t *testing.T) {
		err := s.ValidateMessage(strings.Repeat("a", DefaultMaxMessageLength+1))
		require.Error(t, err)
		assert.True(t, chaterrors.IsCode(err, chaterrors.ErrCodeValidationFailed))
	})

	t.Run("counts characters not bytes", func(t *testing.T) {
		assert.True(t, s.Validate(strings.Repeat("é", DefaultMaxMessageLength)))
	})

	t.Run("rejects unsafe content", func(t *testing.T) {
		assert.False(t, s.Validate("<b>hi</b>"))
		assert.False(t, s.Validate("go to javascript:void"))
		assert.False(t, s.Validate("fish & chips"))
	})
}

func TestValidateSessionID(t *testing.T) {
	tests := []struct {
		id    string
		valid bool
	}{
		{"3f2b8c1e-9d4a-4e6f-8a7b-1c2d3e4f5a6b", true},
		{"3F2B8C1E-9D4A-4E6F-8A7B-1C2D3E4F5A6B", false},
		{"not-a-uuid", false},
		{"3f2b8c1e9d4a4e6f8a7b1c2d3e4f5a6b", false},
		{"", false},
		{"3f2b8c1e-9d4a-4e6f-8a7b-1c2d3e4f5a6b ", false},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			assert.Equal(t, tt.valid, ValidateSessionID(tt.id))
		})
	}
}

func TestSanitizeContext(t *testing.T) {
	s := NewSanitizer(0)

	input := map[string]any{
		"name":  "<b>Ada</b>",
		"count": 3,
		"flag":  true,
		"nested": map[string]any{
			"note": "javascript:run",
		},
		"list": []any{"<i>x</i>", 7, map[string]any{"deep": "a  b"}, []any{"<u>y</u>"}},
	}

	out := s.SanitizeContext(input)

	assert.Equal(t, "Ada", out["name"])
	assert.Equal(t, 3, out["count"])
	assert.Equal(t, true, out["flag"])
	assert.Equal(t, "run", out["nested"].(map[string]any)["note"])
	list := out["list"].([]any)
	assert.Equal(t, "x", list[0])
	assert.Equal(t, 7, list[1])
	assert.Equal(t, "a b", list[2].(map[string]any)["deep"])
	assert.Equal(t, []any{"y"}, list[3])

	// The input is not mutated.
	assert.Equal(t, "<b>Ada</b>", input["name"])
	assert.Nil(t, s.SanitizeContext(nil))
}
