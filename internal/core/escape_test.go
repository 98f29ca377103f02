package core

import (
	"strings"
	"testing"

	"pgregory.net/rapid"
)

func TestEscape_Table(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"plain", "hello world", "hello world"},
		{"quote", `say "hi"`, `say \"hi\"`},
		{"backslash", `C:\tmp`, `C:\\tmp`},
		{"backslash then quote", `\"`, `\\\"`},
		{"newline", "a\nb", `a\nb`},
		{"carriage return", "a\r\nb", `a\r\nb`},
		{"tab", "a\tb", `a\tb`},
		{"backtick untouched", "`x`", "`x`"},
		{"unicode", "café ☕", "café ☕"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Escape(tt.in); got != tt.want {
				t.Errorf("Escape(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestEscapeFor_JavaScript(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"`${x}`", "\\`\\${x}\\`"},
		{`"q"`, `\"q\"`},
		{"line\u2028sep", `line\u2028sep`},
		{"para\u2029sep", `para\u2029sep`},
	}
	for _, tt := range tests {
		if got := EscapeFor(DialectJavaScript, tt.in); got != tt.want {
			t.Errorf("EscapeFor(JS, %q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDialectFor(t *testing.T) {
	if DialectFor("javascript") != DialectJavaScript {
		t.Error("javascript should map to DialectJavaScript")
	}
	if DialectFor("JXA") != DialectJavaScript {
		t.Error("JXA should map to DialectJavaScript")
	}
	if DialectFor("applescript") != DialectAppleScript {
		t.Error("applescript should map to DialectAppleScript")
	}
	if DialectFor("") != DialectAppleScript {
		t.Error("empty language should map to DialectAppleScript")
	}
}

// unescape reverses the escape table for verification.
func unescape(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 == len(s) {
			b.WriteByte(s[i])
			continue
		}
		i++
		switch s[i] {
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 't':
			b.WriteByte('\t')
		case 'u':
			// \u2028 or \u2029
			if i+4 < len(s) && strings.HasPrefix(s[i+1:], "202") {
				switch s[i+4] {
				case '8':
					b.WriteString("\u2028")
				case '9':
					b.WriteString("\u2029")
				}
				i += 4
				continue
			}
			b.WriteByte(s[i])
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// quotesAllEscaped reports whether every '"' in s is preceded by an odd
// run of backslashes, i.e. cannot terminate a string literal.
func quotesAllEscaped(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] != '"' {
			continue
		}
		run := 0
		for j := i - 1; j >= 0 && s[j] == '\\'; j-- {
			run++
		}
		if run%2 == 0 {
			return false
		}
	}
	return true
}

// Property 1: Escaped text is a safe literal body
// *For any* string, the escaped form SHALL contain no raw line breaks and no
// quote able to terminate the literal.
func TestProperty1_EscapedTextIsSafeLiteral(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		in := rapid.String().Draw(rt, "text")
		for _, d := range []Dialect{DialectAppleScript, DialectJavaScript} {
			out := EscapeFor(d, in)
			if strings.ContainsAny(out, "\n\r") {
				rt.Fatalf("dialect %d: raw line break in %q", d, out)
			}
			if !quotesAllEscaped(out) {
				rt.Fatalf("dialect %d: unescaped quote in %q", d, out)
			}
		}
	})
}

// Property 2: Escaping is lossless
// *For any* string, unescaping the escaped form SHALL yield the original.
func TestProperty2_EscapeRoundTrips(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		in := rapid.StringOf(rapid.SampledFrom([]rune{
			'a', 'Z', ' ', '"', '\\', '\n', '\r', '\t', '`', '$', 'é', '\u2028', '\u2029', 'u', '2',
		})).Draw(rt, "text")

		if got := unescape(Escape(in)); got != in {
			rt.Fatalf("AppleScript round trip: got %q, want %q", got, in)
		}
		if got := unescape(EscapeFor(DialectJavaScript, in)); got != in {
			rt.Fatalf("JavaScript round trip: got %q, want %q", got, in)
		}
	})
}

// Property 3: JavaScript output has no live interpolation
// *For any* string, every '`' and '$' in the JavaScript form SHALL be
// escaped.
func TestProperty3_JavaScriptNeutralisesTemplates(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		in := rapid.String().Draw(rt, "text")
		out := EscapeFor(DialectJavaScript, in)
		for i := 0; i < len(out); i++ {
			if out[i] != '`' && out[i] != '$' {
				continue
			}
			run := 0
			for j := i - 1; j >= 0 && out[j] == '\\'; j-- {
				run++
			}
			if run%2 == 0 {
				rt.Fatalf("unescaped %q at %d in %q", out[i], i, out)
			}
		}
		if strings.ContainsAny(out, "\u2028\u2029") {
			rt.Fatalf("raw line separator in %q", out)
		}
	})
}
