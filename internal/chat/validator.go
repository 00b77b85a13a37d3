package chat

import (
	"errors"
	"strings"
	"unicode/utf8"
)

// Relay limits. The byte bound matches the WebSocket read limit so a frame
// that was accepted can never fail here for size alone.
const (
	MaxMessageBytes = 16384
	MaxTextChars    = 4096
)

var (
	errEmptyText   = errors.New("empty text")
	errTextTooBig  = errors.New("text too large")
	errTextTooLong = errors.New("text too long")
	errBadEncoding = errors.New("invalid utf-8")
)

// validateText returns a user error for text that cannot be relayed.
// Whitespace-only text counts as empty.
func validateText(text string) *Error {
	var cause error
	switch {
	case strings.TrimSpace(text) == "":
		cause = errEmptyText
	case len(text) > MaxMessageBytes:
		cause = errTextTooBig
	case !utf8.ValidString(text):
		cause = errBadEncoding
	case utf8.RuneCountInString(text) > MaxTextChars:
		cause = errTextTooLong
	default:
		return nil
	}
	return &Error{Kind: KindUser, Code: CodeInvalidMessage, Message: TextInvalidMessage, Cause: cause}
}
