package classify

import (
	"strings"

	"aimon/app/storage"
)

var interrogatives = []string{
	"who", "what", "when", "where", "why", "how",
	"is", "are", "can", "could", "do", "does",
	"will", "would", "should",
}

// Classify maps message text to a coarse category using a fixed lexical
// rule. It is deterministic and never touches I/O, so the scheduler can run
// it inline over a whole batch.
func Classify(text string) storage.Category {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return storage.CategoryUnclassified
	}

	if strings.HasSuffix(trimmed, "?") {
		return storage.CategoryQuestion
	}

	firstWord := strings.ToLower(trimmed)
	if idx := strings.IndexAny(firstWord, " \t\n"); idx >= 0 {
		firstWord = firstWord[:idx]
	}
	firstWord = strings.TrimRight(firstWord, ",.!;:")

	for _, word := range interrogatives {
		if firstWord == word {
			return storage.CategoryQuestion
		}
	}

	return storage.CategoryStatement
}
