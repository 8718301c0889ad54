package identity

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf16"
)

const (
	fingerprintSalt = "Flowly_2024"

	// UnknownSession is the fingerprint of a page without a meeting title.
	UnknownSession = "unknown-session"

	messageIDPrefix = "msg-"
)

// stringHash is the 32-bit h = h*31 + c rolling hash over UTF-16 code units.
// Relay peers compute the same value, so it must not change.
func stringHash(s string) int32 {
	var h int32
	for _, c := range utf16.Encode([]rune(s)) {
		h = h*31 + int32(c)
	}
	return h
}

// Fingerprint derives the per-meeting session token from the presentation title.
// Every participant of the same meeting computes the same token.
func Fingerprint(title string) string {
	if title == "" {
		return UnknownSession
	}
	hex := fmt.Sprintf("%x", uint32(stringHash(fingerprintSalt+title)))
	if len(hex) > 8 {
		hex = hex[len(hex)-8:]
	}
	return hex
}

// MessageID derives a stable chat message id from its visible content so that
// all participants agree on the key of the reactions attached to it.
// Distinct messages may collide; the relay treats the id as opaque.
func MessageID(text, author, timestamp string) string {
	var b strings.Builder
	b.WriteString(`{"text":`)
	writeJSString(&b, text)
	b.WriteString(`,"user":`)
	writeJSString(&b, author)
	b.WriteString(`,"time":`)
	writeJSString(&b, timestamp)
	b.WriteByte('}')

	h := int64(stringHash(b.String()))
	if h < 0 {
		h = -h
	}
	return messageIDPrefix + strconv.FormatInt(h, 36)
}

// writeJSString quotes s the way browsers serialize JSON strings. Unlike
// encoding/json it leaves U+2028, U+2029 and HTML characters unescaped.
func writeJSString(b *strings.Builder, s string) {
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\b':
			b.WriteString(`\b`)
		case '\f':
			b.WriteString(`\f`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if r < 0x20 {
				fmt.Fprintf(b, `\u%04x`, r)
				continue
			}
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
}
