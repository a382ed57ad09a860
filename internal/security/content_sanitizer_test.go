package security

import (
	"strings"
	"testing"
)

func TestSanitize_StripsTags(t *testing.T) {
	s := NewContentSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain text", "hello there", "hello there"},
		{"bold", "<b>hi</b>", "hi"},
		{"paragraphs", "<p>one</p><p>two</p>", "onetwo"},
		{"link keeps text", `<a href="https://example.com">site</a>`, "site"},
		{"surrounding whitespace", "  padded \n", "padded"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Sanitize(tt.input); got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSanitize_XSSPayloads(t *testing.T) {
	s := NewContentSanitizer()

	payloads := []string{
		`<script>alert('xss')</script>`,
		`<img src=x onerror="alert(1)">`,
		`<svg onload="alert(1)"></svg>`,
		`<iframe src="javascript:alert(1)"></iframe>`,
		`<style>body{display:none}</style>`,
		`<a href="javascript:alert(1)">click</a>`,
	}

	for _, p := range payloads {
		got := s.Sanitize(p)
		for _, bad := range []string{"<script", "onerror", "onload", "<iframe", "javascript:", "<style", "alert(1)"} {
			if strings.Contains(strings.ToLower(got), bad) {
				t.Errorf("Sanitize(%q) = %q, still contains %q", p, got, bad)
			}
		}
	}
}

func TestSanitize_KeepsPlainTextUnescaped(t *testing.T) {
	s := NewContentSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"ampersand", "Tom & Jerry", "Tom & Jerry"},
		{"less-than not a tag", "I <3 you", "I <3 you"},
		{"double quotes", `say "hi"`, `say "hi"`},
		{"apostrophe", "it's fine", "it's fine"},
		{"entity decoded", "fish &amp; chips", "fish & chips"},
		{"tags stripped around text", "<b>Tom & Jerry</b>", "Tom & Jerry"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Sanitize(tt.input); got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSanitize_EncodedMarkupIsStripped(t *testing.T) {
	s := NewContentSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"encoded script", "&lt;script&gt;alert(1)&lt;/script&gt;", ""},
		{"double encoded tag", "&amp;lt;b&amp;gt;bold&amp;lt;/b&amp;gt;", "bold"},
		{"encoded control character", "a&#27;b", "ab"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Sanitize(tt.input); got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSanitize_OnlyMarkupBecomesEmpty(t *testing.T) {
	s := NewContentSanitizer()
	if got := s.Sanitize("<script>x()</script>  <br>"); got != "" {
		t.Errorf("Sanitize = %q, want empty", got)
	}
}

func TestSanitize_Idempotent(t *testing.T) {
	s := NewContentSanitizer()
	for _, input := range []string{
		"<em>Campus</em> meetup at 5",
		"Q&A <3",
		"&lt;i&gt;x&lt;/i&gt; & more",
	} {
		once := s.Sanitize(input)
		if twice := s.Sanitize(once); twice != once {
			t.Errorf("not idempotent for %q: %q then %q", input, once, twice)
		}
	}
}

func TestSanitize_ControlCharacters(t *testing.T) {
	s := NewContentSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"crlf normalized", "line one\r\nline two", "line one\nline two"},
		{"bare cr normalized", "a\rb", "a\nb"},
		{"nul and escape removed", "x\x00y\x1b[31mz", "xy[31mz"},
		{"tab kept", "col1\tcol2", "col1\tcol2"},
		{"bell removed", "ding\a!", "ding!"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Sanitize(tt.input); got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestContentSanitizerInterface(t *testing.T) {
	var _ ContentSanitizerService = NewContentSanitizer()
}
