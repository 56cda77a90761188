package text

import (
	"strings"
	"unicode/utf8"
)

// sentenceBoundaries are the characters that may end a synthesizable
// fragment of a streamed response.
const sentenceBoundaries = ".!?;"

// minSentenceRunes guards against synthesizing fragments too short to sound
// natural, like "Hi." followed by the rest of the greeting.
const minSentenceRunes = 10

// ExtractSentence scans buffer for the last sentence boundary and, when the
// leading part is long enough to synthesize, splits there. ok reports whether
// a sentence was extracted; otherwise the whole buffer is returned as rest.
func ExtractSentence(buffer string) (sentence, rest string, ok bool) {
	idx := strings.LastIndexAny(buffer, sentenceBoundaries)
	if idx < 0 {
		return "", buffer, false
	}
	candidate := buffer[:idx+1]
	if utf8.RuneCountInString(strings.TrimSpace(candidate)) <= minSentenceRunes {
		return "", buffer, false
	}
	return strings.TrimSpace(candidate), strings.TrimLeft(buffer[idx+1:], " "), true
}

// Flush returns whatever remains in the buffer once the stream has ended.
// The minimum-length rule no longer applies; a trailing "Bye!" still gets
// spoken. ok is false when the remainder is only whitespace.
func Flush(buffer string) (sentence string, ok bool) {
	trimmed := strings.TrimSpace(buffer)
	return trimmed, trimmed != ""
}
