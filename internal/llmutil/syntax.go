// internal/llmutil/syntax.go
package llmutil

import (
	"strings"
	"unicode"
)

// correctSyntax fixes the JSON mistakes models make most often: single-quoted
// strings, Python literals, trailing commas and raw control characters inside
// strings. Text inside valid double-quoted strings is left alone.
func correctSyntax(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 16)

	const (
		outside = iota
		inDouble
		inSingle
	)
	state := outside
	runes := []rune(s)

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch state {
		case inDouble:
			switch r {
			case '\\':
				b.WriteRune(r)
				if i+1 < len(runes) {
					i++
					b.WriteRune(runes[i])
				}
			case '"':
				b.WriteRune(r)
				state = outside
			default:
				writeStringRune(&b, r)
			}
		case inSingle:
			switch r {
			case '\\':
				if i+1 < len(runes) && runes[i+1] == '\'' {
					i++
					b.WriteRune('\'')
					continue
				}
				b.WriteRune(r)
				if i+1 < len(runes) {
					i++
					b.WriteRune(runes[i])
				}
			case '"':
				b.WriteString(`\"`)
			case '\'':
				b.WriteRune('"')
				state = outside
			default:
				writeStringRune(&b, r)
			}
		default:
			switch {
			case r == '"':
				b.WriteRune(r)
				state = inDouble
			case r == '\'':
				b.WriteRune('"')
				state = inSingle
			case r == ',' && closesNext(runes, i+1):
				// Trailing comma: drop it.
			case unicode.IsLetter(r) && (i == 0 || !isIdentRune(runes[i-1])):
				word := readWord(runes, i)
				switch word {
				case "True":
					b.WriteString("true")
				case "False":
					b.WriteString("false")
				case "None":
					b.WriteString("null")
				default:
					b.WriteString(word)
				}
				i += len([]rune(word)) - 1
			default:
				b.WriteRune(r)
			}
		}
	}
	return b.String()
}

// completeTruncated closes whatever the text left open: a string, then every
// unclosed array and object, innermost first. A dangling comma or colon at the
// cut point is repaired first.
func completeTruncated(s string) string {
	var stack []rune
	inString := false
	escaped := false

	for _, r := range s {
		if inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			continue
		}
		switch r {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) > 0 && stack[len(stack)-1] == r {
				stack = stack[:len(stack)-1]
			}
		}
	}

	out := s
	if inString {
		if escaped {
			out = out[:len(out)-1]
		}
		out += `"`
	}
	out = strings.TrimRightFunc(out, unicode.IsSpace)
	switch {
	case strings.HasSuffix(out, ","):
		out = strings.TrimSuffix(out, ",")
	case strings.HasSuffix(out, ":"):
		out += "null"
	}
	for i := len(stack) - 1; i >= 0; i-- {
		out += string(stack[i])
	}
	return out
}

// dropLastMember cuts text back to its last top-level separator so a half
// written key or value can be discarded before completion. It returns false
// when there is nothing left to cut.
func dropLastMember(s string) (string, bool) {
	inString := false
	escaped := false
	lastComma := -1
	for i, r := range s {
		if inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			continue
		}
		switch r {
		case '"':
			inString = true
		case ',':
			lastComma = i
		}
	}
	if lastComma <= 0 {
		return s, false
	}
	return s[:lastComma], true
}

func writeStringRune(b *strings.Builder, r rune) {
	switch r {
	case '\n':
		b.WriteString(`\n`)
	case '\r':
		b.WriteString(`\r`)
	case '\t':
		b.WriteString(`\t`)
	default:
		b.WriteRune(r)
	}
}

func closesNext(runes []rune, from int) bool {
	for j := from; j < len(runes); j++ {
		if unicode.IsSpace(runes[j]) {
			continue
		}
		return runes[j] == '}' || runes[j] == ']'
	}
	return false
}

func readWord(runes []rune, from int) string {
	end := from
	for end < len(runes) && isIdentRune(runes[end]) {
		end++
	}
	return string(runes[from:end])
}

func isIdentRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
