package message

import (
	"bytes"
	"unicode/utf8"
)

// Builder - turns raw read chunks into valid UTF-8 text.
// A multi-byte sequence split by a read boundary is kept back
// and completed by the next Write.
type Builder struct {
	reminder []byte
}

// Write - returns text built from the previous reminder and p.
// Invalid sequences are replaced with U+FFFD, an incomplete trailing sequence is kept back.
// Result is nil when p only extends the incomplete sequence.
func (b *Builder) Write(p []byte) []byte {
	data := p
	if len(b.reminder) > 0 {
		data = append(b.reminder, p...)
		b.reminder = nil
	}
	cut := IncompleteSuffix(data)
	if cut > 0 {
		b.reminder = append([]byte(nil), data[len(data)-cut:]...)
		data = data[:len(data)-cut]
	}
	if len(data) == 0 {
		return nil
	}
	if utf8.Valid(data) {
		return append([]byte(nil), data...)
	}
	return bytes.ToValidUTF8(data, []byte(string(utf8.RuneError)))
}

// Pending - returns number of bytes kept back from previous writes.
func (b *Builder) Pending() int {
	return len(b.reminder)
}

// IncompleteSuffix - returns length of trailing bytes of s which start
// a well-formed but not finished UTF-8 sequence, or 0.
func IncompleteSuffix(s []byte) int {
	// the longest encoding is utf8.UTFMax bytes, so only its prefix may be unfinished
	for i := 1; i < utf8.UTFMax && i <= len(s); i++ {
		c := s[len(s)-i]
		if utf8.RuneStart(c) {
			if utf8.FullRune(s[len(s)-i:]) {
				return 0
			}
			return i
		}
	}
	return 0
}
