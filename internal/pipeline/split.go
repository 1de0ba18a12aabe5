package pipeline

import "unicode/utf8"

// DefaultMessageLimit is the largest message body, in characters, the
// outbound transport accepts.
const DefaultMessageLimit = 2000

// SplitMessage cuts text into chunks of exactly limit characters, the last
// one holding the remainder, so n characters always give ceil(n/limit)
// chunks. The chunks concatenate back to text exactly. An empty text yields
// no chunks.
func SplitMessage(text string, limit int) []string {
	if text == "" {
		return nil
	}
	if limit <= 0 {
		return []string{text}
	}

	chunks := make([]string, 0, (utf8.RuneCountInString(text)+limit-1)/limit)
	for utf8.RuneCountInString(text) > limit {
		cut := byteOffset(text, limit)
		chunks = append(chunks, text[:cut])
		text = text[cut:]
	}
	return append(chunks, text)
}

// byteOffset returns the byte index of the n-th rune of s.
func byteOffset(s string, n int) int {
	for i := range s {
		if n == 0 {
			return i
		}
		n--
	}
	return len(s)
}
