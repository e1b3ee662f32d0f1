package telegram

import (
	"strings"
	"unicode/utf8"
)

// htmlLen returns the length Telegram counts for an HTML formatted text:
// tags are not counted and an entity counts as one character.
func htmlLen(text string) int {
	n := 0
	for i := 0; i < len(text); {
		switch text[i] {
		case '<':
			if end := strings.IndexByte(text[i:], '>'); end >= 0 {
				i += end + 1
				continue
			}
		case '&':
			if end := strings.IndexByte(text[i:], ';'); end > 0 && end <= 10 {
				n++
				i += end + 1
				continue
			}
		}
		_, size := utf8.DecodeRuneInString(text[i:])
		n++
		i += size
	}
	return n
}

// splitHTML splits an HTML text into chunks whose visible length fits limit.
// Cuts happen between lines, so a tag opened on a line must be closed on it.
// A single line over the limit is cut outside of tags and entities.
func splitHTML(text string, limit int) []string {
	if htmlLen(text) <= limit {
		return []string{text}
	}

	var (
		chunks []string
		cur    strings.Builder
		curLen int
	)
	flush := func() {
		if cur.Len() > 0 {
			chunks = append(chunks, cur.String())
			cur.Reset()
			curLen = 0
		}
	}

	for _, line := range strings.SplitAfter(text, "\n") {
		lineLen := htmlLen(line)
		if curLen+lineLen <= limit {
			cur.WriteString(line)
			curLen += lineLen
			continue
		}
		flush()
		if lineLen <= limit {
			cur.WriteString(line)
			curLen = lineLen
			continue
		}
		parts := splitLongLine(line, limit)
		chunks = append(chunks, parts[:len(parts)-1]...)
		last := parts[len(parts)-1]
		cur.WriteString(last)
		curLen = htmlLen(last)
	}
	flush()
	return chunks
}

// splitLongLine cuts one line into pieces of at most limit visible
// characters without breaking a tag or an entity.
func splitLongLine(line string, limit int) []string {
	var (
		parts []string
		start int
		n     int
	)
	for i := 0; i < len(line); {
		step := 0
		switch line[i] {
		case '<':
			if end := strings.IndexByte(line[i:], '>'); end >= 0 {
				i += end + 1
				continue
			}
		case '&':
			if end := strings.IndexByte(line[i:], ';'); end > 0 && end <= 10 {
				step = end + 1
			}
		}
		if step == 0 {
			_, step = utf8.DecodeRuneInString(line[i:])
		}
		if n == limit {
			parts = append(parts, line[start:i])
			start = i
			n = 0
		}
		n++
		i += step
	}
	return append(parts, line[start:])
}
