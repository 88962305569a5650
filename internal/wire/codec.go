// Package wire implements the length-prefixed string framing spoken by RKchat
// clients.
//
// Each frame is a 2-byte big-endian length followed by that many bytes of
// modified UTF-8, the encoding produced by Java's DataOutputStream.writeUTF:
// U+0000 is written as the two bytes C0 80 and runes outside the Basic
// Multilingual Plane are written as a pair of 3-byte encoded surrogates.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"unicode/utf16"
)

// MaxFrameSize is the largest encoded payload a frame can carry.
const MaxFrameSize = 0xFFFF

var (
	// ErrMessageTooLarge is returned when a string does not fit in a frame or
	// exceeds the reader's configured limit.
	ErrMessageTooLarge = errors.New("wire: message too large")

	// ErrInvalidEncoding is returned when a frame payload is not valid
	// modified UTF-8.
	ErrInvalidEncoding = errors.New("wire: invalid modified UTF-8")
)

// Encode returns the modified UTF-8 bytes for s without the length prefix.
func Encode(s string) []byte {
	units := utf16.Encode([]rune(s))
	out := make([]byte, 0, len(units))
	for _, u := range units {
		switch {
		case u >= 0x01 && u <= 0x7F:
			out = append(out, byte(u))
		case u <= 0x7FF:
			out = append(out,
				0xC0|byte(u>>6&0x1F),
				0x80|byte(u&0x3F))
		default:
			out = append(out,
				0xE0|byte(u>>12&0x0F),
				0x80|byte(u>>6&0x3F),
				0x80|byte(u&0x3F))
		}
	}
	return out
}

// EncodedLen returns the number of payload bytes Encode would produce for s.
func EncodedLen(s string) int {
	n := 0
	for _, r := range s {
		switch {
		case r >= 0x01 && r <= 0x7F:
			n++
		case r <= 0x7FF:
			n += 2
		case r <= 0xFFFF:
			n += 3
		default:
			n += 6
		}
	}
	return n
}

// Fits reports whether s can be carried in a single frame.
func Fits(s string) bool { return EncodedLen(s) <= MaxFrameSize }

// Decode converts a modified UTF-8 payload back into a Go string. Unpaired
// surrogates decode to U+FFFD.
func Decode(b []byte) (string, error) {
	units := make([]uint16, 0, len(b))
	for i := 0; i < len(b); {
		c := b[i]
		switch c >> 4 {
		case 0, 1, 2, 3, 4, 5, 6, 7:
			units = append(units, uint16(c))
			i++
		case 12, 13:
			if i+1 >= len(b) || b[i+1]&0xC0 != 0x80 {
				return "", fmt.Errorf("%w: bad 2-byte sequence at offset %d", ErrInvalidEncoding, i)
			}
			units = append(units, uint16(c&0x1F)<<6|uint16(b[i+1]&0x3F))
			i += 2
		case 14:
			if i+2 >= len(b) || b[i+1]&0xC0 != 0x80 || b[i+2]&0xC0 != 0x80 {
				return "", fmt.Errorf("%w: bad 3-byte sequence at offset %d", ErrInvalidEncoding, i)
			}
			units = append(units, uint16(c&0x0F)<<12|uint16(b[i+1]&0x3F)<<6|uint16(b[i+2]&0x3F))
			i += 3
		default:
			return "", fmt.Errorf("%w: unexpected byte 0x%02x at offset %d", ErrInvalidEncoding, c, i)
		}
	}
	return string(utf16.Decode(units)), nil
}

// WriteString writes s to w as a single frame.
func WriteString(w io.Writer, s string) error {
	if n := EncodedLen(s); n > MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, n)
	}
	payload := Encode(s)

	frame := make([]byte, 2+len(payload))
	binary.BigEndian.PutUint16(frame, uint16(len(payload)))
	copy(frame[2:], payload)

	_, err := w.Write(frame)
	return err
}

// ReadString reads one frame from r. Frames whose declared length exceeds
// limit are rejected before the payload is read; a limit <= 0 means
// MaxFrameSize. A stream that ends inside a frame yields io.ErrUnexpectedEOF,
// one that ends cleanly between frames yields io.EOF.
func ReadString(r io.Reader, limit int) (string, error) {
	if limit <= 0 || limit > MaxFrameSize {
		limit = MaxFrameSize
	}

	var header [2]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return "", err
	}

	size := int(binary.BigEndian.Uint16(header[:]))
	if size > limit {
		return "", fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrMessageTooLarge, size, limit)
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			return "", io.ErrUnexpectedEOF
		}
		return "", err
	}

	return Decode(payload)
}
