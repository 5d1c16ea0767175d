// Package marker implements idempotent memory-block injection and removal.
//
// Retrieved memories are spliced into outbound LLM payloads wrapped in a
// prefix/suffix pair. Because the same conversation payload may be
// reprocessed across retries and regenerations, previously injected blocks
// must be strippable without touching unrelated content. Marker owns the
// wire format so call sites never see the regex.
package marker

import (
	"regexp"
	"strings"

	"github.com/engramlabs/engram/internal/chat"
)

// Marker is a prefix/suffix pair identifying injected memory blocks.
type Marker struct {
	prefix string
	suffix string
	re     *regexp.Regexp
}

// New builds a Marker for the given prefix and suffix. Both are matched
// literally; the block body may span newlines.
func New(prefix, suffix string) Marker {
	pattern := "(?s)" + regexp.QuoteMeta(prefix) + ".*?" + regexp.QuoteMeta(suffix)
	return Marker{
		prefix: prefix,
		suffix: suffix,
		re:     regexp.MustCompile(pattern),
	}
}

// Wrap encodes formatted memory lines into a single injectable block.
func (m Marker) Wrap(lines []string) string {
	var b strings.Builder
	b.WriteString(m.prefix)
	b.WriteString("\n")
	for _, line := range lines {
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString(m.suffix)
	return b.String()
}

// StripString removes memory blocks from a single string, keeping the
// keep most-recently-seen blocks. keep <= 0 removes all of them.
// Used for the system-prompt injection method.
func (m Marker) StripString(s string, keep int) string {
	if keep <= 0 {
		return m.re.ReplaceAllString(s, "")
	}

	strip := len(m.re.FindAllStringIndex(s, -1)) - keep
	if strip <= 0 {
		return s
	}
	seen := 0
	return m.re.ReplaceAllStringFunc(s, func(block string) string {
		seen++
		if seen > strip {
			return block
		}
		return ""
	})
}

// StripUserMessages removes memory blocks from the content of user-role
// messages, keeping the keep most-recently-seen blocks by scan order across
// the whole list. The keep window is positional: repeated identical block
// text counts once per occurrence, so retry-duplicated payloads still
// converge to keep blocks. Other roles pass through untouched.
func (m Marker) StripUserMessages(msgs []chat.Message, keep int) []chat.Message {
	cleaned := make([]chat.Message, 0, len(msgs))

	if keep <= 0 {
		for _, msg := range msgs {
			if msg.Role == chat.RoleUser {
				msg.Content = m.re.ReplaceAllString(msg.Content, "")
			}
			cleaned = append(cleaned, msg)
		}
		return cleaned
	}

	total := 0
	for _, msg := range msgs {
		if msg.Role == chat.RoleUser {
			total += len(m.re.FindAllStringIndex(msg.Content, -1))
		}
	}
	strip := total - keep

	seen := 0
	for _, msg := range msgs {
		if msg.Role == chat.RoleUser && seen < strip {
			msg.Content = m.re.ReplaceAllStringFunc(msg.Content, func(block string) string {
				seen++
				if seen > strip {
					return block
				}
				return ""
			})
		}
		cleaned = append(cleaned, msg)
	}
	return cleaned
}

// TrimSystemMessages removes the oldest system-role messages beyond keep,
// preserving the relative order of everything else. Used for the
// insert-as-system-message injection method.
func TrimSystemMessages(msgs []chat.Message, keep int) []chat.Message {
	if keep < 0 {
		keep = 0
	}

	var systemIdx []int
	for i, msg := range msgs {
		if msg.Role == chat.RoleSystem {
			systemIdx = append(systemIdx, i)
		}
	}

	drop := make(map[int]bool)
	if excess := len(systemIdx) - keep; excess > 0 {
		for _, i := range systemIdx[:excess] {
			drop[i] = true
		}
	}

	cleaned := make([]chat.Message, 0, len(msgs))
	for i, msg := range msgs {
		if !drop[i] {
			cleaned = append(cleaned, msg)
		}
	}
	return cleaned
}
