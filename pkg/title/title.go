// Package title derives human-readable chat titles from the first message of
// a conversation. Derivation is deterministic and performs no I/O, so the
// same message always yields the same title on every device.
package title

import "strings"

const (
	// maxWords is the number of leading words kept when truncating.
	maxWords = 4
	// ellipsis marks a truncated title.
	ellipsis = "…"
)

// Derive builds a session title from the first user message. Messages of at
// most three whitespace-delimited words are used verbatim; longer messages
// are cut to their first four words followed by an ellipsis.
func Derive(firstMessage string) string {
	words := strings.Fields(firstMessage)
	if len(words) <= maxWords-1 {
		return firstMessage
	}
	truncated := strings.Join(words[:maxWords], " ")
	if len(words) == maxWords {
		return truncated
	}
	return truncated + ellipsis
}
