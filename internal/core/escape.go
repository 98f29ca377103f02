package core

import "strings"

// Dialect is the interpreter language a string literal is embedded in.
type Dialect int

const (
	// DialectAppleScript targets double-quoted AppleScript string literals.
	DialectAppleScript Dialect = iota
	// DialectJavaScript targets JavaScript for Automation string literals.
	// The output is also valid inside a template literal.
	DialectJavaScript
)

// sharedEscapes are neutralised in every dialect. strings.Replacer walks the
// input once, so a backslash introduced by one substitution is never
// escaped again.
var sharedEscapes = []string{
	`\`, `\\`,
	`"`, `\"`,
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
}

var (
	appleScriptEscaper = strings.NewReplacer(sharedEscapes...)

	javaScriptEscaper = strings.NewReplacer(append(append([]string{}, sharedEscapes...),
		"`", "\\`",
		"$", `\$`,
		"\u2028", `\u2028`,
		"\u2029", `\u2029`,
	)...)
)

// Escape makes text safe to place verbatim between double quotes in an
// AppleScript literal.
func Escape(text string) string {
	return EscapeFor(DialectAppleScript, text)
}

// EscapeFor makes text safe to place verbatim between double quotes in a
// string literal of the given dialect. Unknown dialects use the
// JavaScript table, which is the strictest.
func EscapeFor(d Dialect, text string) string {
	if text == "" {
		return ""
	}
	switch d {
	case DialectAppleScript:
		return appleScriptEscaper.Replace(text)
	default:
		return javaScriptEscaper.Replace(text)
	}
}

// DialectFor maps a configured script language to its dialect.
func DialectFor(language string) Dialect {
	if strings.EqualFold(language, "javascript") || strings.EqualFold(language, "jxa") {
		return DialectJavaScript
	}
	return DialectAppleScript
}
