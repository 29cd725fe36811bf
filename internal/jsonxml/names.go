package jsonxml

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf16"
)

// ContentKey holds element text in JSON. It is "_content" rather than
// "content" so that a JSON key "content" still maps to a <content> element.
const ContentKey = "_content"

// SafeName turns a JSON key into an XML element name. A first character
// outside [a-zA-Z_] and any later character outside [a-zA-Z0-9._-] is
// replaced by _xxxx_, its UTF-16 code unit in hex. Characters outside the
// BMP become two escapes, one per surrogate.
func SafeName(key string) string {
	if key == "" {
		return "_"
	}
	var b strings.Builder
	first := true
	for _, r := range key {
		ok := isNameStart(r)
		if !first {
			ok = ok || isNameChar(r)
		}
		first = false
		if ok {
			b.WriteRune(r)
			continue
		}
		if r1, r2 := utf16.EncodeRune(r); r1 != unicode.ReplacementChar {
			fmt.Fprintf(&b, "_%04x__%04x_", r1, r2)
			continue
		}
		fmt.Fprintf(&b, "_%04x_", r)
	}
	return b.String()
}

func isNameStart(r rune) bool {
	return r == '_' || ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z')
}

func isNameChar(r rune) bool {
	return ('0' <= r && r <= '9') || r == '-' || r == '.'
}
