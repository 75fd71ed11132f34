package classify

import "strings"

// Phrases that mark a message as actionable. Matching is a plain
// case-insensitive substring check, first match wins.
var followupPhrases = []string{
	"please",
	"review",
	"call",
	"send",
	"remind",
	"follow up",
	"schedule",
	"confirm",
	"check",
	"reply",
	"get back",
	"don't forget",
	"asap",
	"deadline",
}

// DetectFollowup returns a follow-up task draft for actionable text. The
// caller is responsible for running it at most once per message; the
// detector itself does no deduplication.
func DetectFollowup(text string) (string, bool) {
	lower := strings.ToLower(text)

	for _, phrase := range followupPhrases {
		if strings.Contains(lower, phrase) {
			return "Follow up: " + strings.TrimSpace(text), true
		}
	}

	return "", false
}
