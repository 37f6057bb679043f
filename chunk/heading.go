package chunk

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// Section is a markdown heading with its URL-safe anchor.
type Section struct {
	Level  int    `json:"level"`
	Title  string `json:"title"`
	Anchor string `json:"anchor"`
}

var (
	headingRe   = regexp.MustCompile(`(?m)^(#{1,6})\s+(.+)$`)
	codeBlockRe = regexp.MustCompile("(?s)```.*?```")
)

// Sections returns all H1-H6 headings of a markdown document in order.
// Duplicate anchors get numeric suffixes.
func Sections(markdown string) []Section {
	if markdown == "" {
		return nil
	}

	// # inside fenced code is not a heading
	cleaned := codeBlockRe.ReplaceAllString(markdown, "")
	matches := headingRe.FindAllStringSubmatch(cleaned, -1)
	if len(matches) == 0 {
		return nil
	}

	sections := make([]Section, 0, len(matches))
	seen := make(map[string]int)
	for _, m := range matches {
		title := strings.TrimSpace(m[2])
		base := Anchor(title)
		anchor := base
		if n, ok := seen[base]; ok {
			anchor = base + "-" + strconv.Itoa(n)
			seen[base]++
		} else {
			seen[base] = 1
		}
		sections = append(sections, Section{Level: len(m[1]), Title: title, Anchor: anchor})
	}
	return sections
}

// Anchor converts a heading title into a lowercase, hyphenated anchor.
func Anchor(title string) string {
	var sb strings.Builder
	prevHyphen := false
	for _, r := range strings.ToLower(title) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			sb.WriteRune(r)
			prevHyphen = false
		case unicode.IsSpace(r) || r == '-':
			if !prevHyphen && sb.Len() > 0 {
				sb.WriteRune('-')
				prevHyphen = true
			}
		}
	}
	return strings.TrimSuffix(sb.String(), "-")
}

// leadingHeading returns the first heading among the first five lines of a
// piece, or "".
func leadingHeading(piece string) string {
	lines := strings.SplitN(piece, "\n", 6)
	if len(lines) > 5 {
		lines = lines[:5]
	}
	for _, line := range lines {
		if strings.HasPrefix(line, "#") {
			return strings.TrimSpace(strings.TrimLeft(line, "#"))
		}
	}
	return ""
}

// anchorIndex resolves heading titles to anchors in document order, so the
// second "Usage" heading maps to "usage-1".
type anchorIndex struct {
	queue map[string][]string
}

func newAnchorIndex(sections []Section) *anchorIndex {
	idx := &anchorIndex{queue: make(map[string][]string)}
	for _, s := range sections {
		idx.queue[s.Title] = append(idx.queue[s.Title], s.Anchor)
	}
	return idx
}

func (a *anchorIndex) next(title string) string {
	q := a.queue[title]
	if len(q) == 0 {
		return Anchor(title)
	}
	a.queue[title] = q[1:]
	return q[0]
}
