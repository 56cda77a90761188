package text

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// NormalizeForSpeech prepares LLM output for synthesis: markdown markers and
// emojis read terribly when spoken, so they are stripped before the text is
// sent to the TTS engine.
func NormalizeForSpeech(text string) string {
	text = removeMarkdown(text)
	text = removeEmojis(text)
	text = CollapseWhitespace(text)
	return strings.TrimSpace(text)
}

var markdownReplacer = strings.NewReplacer(
	"**", "", // bold
	"*", "", // italic
	"__", "", // underline
	"~~", "", // strikethrough
	"`", "", // inline code
	"#", "", // headings
)

func removeMarkdown(text string) string {
	return markdownReplacer.Replace(text)
}

func removeEmojis(text string) string {
	return removeEmojiRegex.ReplaceAllString(text, "")
}

// CollapseWhitespace replaces runs of whitespace with a single space.
func CollapseWhitespace(text string) string {
	return multipleSpacesRegex.ReplaceAllString(text, " ")
}

// Truncate caps text at max runes without splitting a rune.
func Truncate(text string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max])
}

var (
	// Keep letters, digits, punctuation and whitespace; everything else
	// (emoji, symbols, control chars) is unpronounceable.
	removeEmojiRegex    = regexp.MustCompile(`[^\p{L}\p{N}\p{P}\p{Z}\s]`)
	multipleSpacesRegex = regexp.MustCompile(`\s+`)

	// Control characters except \n, \r, \t.
	controlCharRegex = regexp.MustCompile("[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]")
)

// Sanitize validates untrusted text input: the length is capped and control
// characters are stripped. Common whitespace (newline, tab) survives.
func Sanitize(input string, maxLength int) (string, error) {
	if n := utf8.RuneCountInString(input); n > maxLength {
		return "", fmt.Errorf("text too long: %d characters (max: %d)", n, maxLength)
	}
	cleaned := strings.TrimSpace(controlCharRegex.ReplaceAllString(input, ""))
	if cleaned == "" {
		return "", fmt.Errorf("text cannot be empty")
	}
	return cleaned, nil
}
