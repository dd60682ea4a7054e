package bridge

import "strings"

// MaxMessageLength is the per-message chunk budget. Slack caps messages at
// 4000 characters; 3900 leaves margin for platform decoration.
const MaxMessageLength = 3900

// SplitMessage splits text into chunks of at most max characters for
// transport. Split points are chosen by preference: a paragraph break,
// then a newline, then a space, then a hard cut, always searching at or
// before the limit. Chunks are trimmed at the cut so rejoining them with
// the original separators reconstructs the trimmed text. Returns nil for
// empty input and the text untouched when it already fits.
func SplitMessage(text string, max int) []string {
	if max <= 0 {
		max = MaxMessageLength
	}
	if text == "" {
		return nil
	}
	if len(text) <= max {
		return []string{text}
	}

	var chunks []string
	remaining := text
	for remaining != "" {
		if len(remaining) <= max {
			chunks = append(chunks, remaining)
			break
		}

		split := strings.LastIndex(remaining[:max], "\n\n")
		if split == -1 {
			split = strings.LastIndex(remaining[:max], "\n")
		}
		if split == -1 {
			split = strings.LastIndex(remaining[:max], " ")
		}
		if split == -1 {
			split = max
		}

		chunk := strings.TrimRight(remaining[:split], " \t\n")
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		remaining = strings.TrimLeft(remaining[split:], " \t\n")
	}
	return chunks
}
