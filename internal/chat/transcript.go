package chat

import "strings"

// Transcript flattens the last limit user/assistant messages into a
// "role: content" transcript, oldest first. System messages are skipped and
// do not count toward the limit. This is the exact text handed to the
// summarization pipeline.
func Transcript(history []Message, limit int) string {
	if limit <= 0 {
		return ""
	}

	var selected []string
	for i := len(history) - 1; i >= 0 && len(selected) < limit; i-- {
		msg := history[i]
		if msg.Role != RoleUser && msg.Role != RoleAssistant {
			continue
		}
		selected = append(selected, msg.Role+": "+msg.Content)
	}

	// selected was gathered newest-first; restore original order.
	for i, j := 0, len(selected)-1; i < j; i, j = i+1, j-1 {
		selected[i], selected[j] = selected[j], selected[i]
	}
	return strings.Join(selected, "\n")
}
