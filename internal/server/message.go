// Package server parses tagged inbound messages and composes the outbound
// broadcast text.
package server

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Tag identifies what an inbound message asks the server to do.
type Tag rune

const (
	// TagChat broadcasts the upper-cased payload to every client.
	TagChat Tag = '0'
	// TagRegister records the payload as a username.
	TagRegister Tag = '1'
)

// prefixRunes is the length of the tag plus separator preceding the payload.
const prefixRunes = 2

const chatAnnouncement = "someone said: "

// InboundMessage is a parsed client message.
type InboundMessage struct {
	Raw     string
	Tag     Tag
	Payload string
}

// ParseMessage splits raw into its tag and payload. Empty input yields
// ErrEmptyMessage, an unrecognized tag yields ErrUnknownTag, and a known tag
// without a complete prefix yields ErrMalformedMessage.
func ParseMessage(raw string) (InboundMessage, error) {
	msg := InboundMessage{Raw: raw}
	if raw == "" {
		return msg, ErrEmptyMessage
	}

	tag, size := utf8.DecodeRuneInString(raw)
	msg.Tag = tagOf(tag)

	switch msg.Tag {
	case TagChat, TagRegister:
	default:
		return msg, fmt.Errorf("%w: %q", ErrUnknownTag, tag)
	}

	if utf8.RuneCountInString(raw) < prefixRunes {
		return msg, fmt.Errorf("%w: %q is shorter than the %d character prefix", ErrMalformedMessage, raw, prefixRunes)
	}

	_, sepSize := utf8.DecodeRuneInString(raw[size:])
	msg.Payload = raw[size+sepSize:]
	return msg, nil
}

// tagOf maps any Unicode decimal digit to the ASCII digit of the same value,
// so '٠' and '０' select chat just as '0' does. Other runes are returned as is.
func tagOf(r rune) Tag {
	if r < utf8.RuneSelf || !unicode.IsDigit(r) {
		return Tag(r)
	}
	if v, ok := digitValue(r); ok {
		return Tag('0' + v)
	}
	return Tag(r)
}

// digitValue returns the value of a decimal digit rune. Unicode assigns each
// decimal digit set a contiguous run starting at zero, and adjacent sets
// share one range in unicode.Nd.
func digitValue(r rune) (rune, bool) {
	for _, rng := range unicode.Nd.R16 {
		if lo, hi := rune(rng.Lo), rune(rng.Hi); r >= lo && r <= hi && rng.Stride == 1 {
			return (r - lo) % 10, true
		}
	}
	for _, rng := range unicode.Nd.R32 {
		if lo, hi := rune(rng.Lo), rune(rng.Hi); r >= lo && r <= hi && rng.Stride == 1 {
			return (r - lo) % 10, true
		}
	}
	return 0, false
}

// ChatAnnouncement composes the broadcast text for a chat payload.
func ChatAnnouncement(payload string) string {
	return chatAnnouncement + strings.ToUpper(payload)
}
