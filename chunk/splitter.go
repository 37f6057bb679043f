package chunk

import (
	"strings"
)

// markdownSeparators split prose from the coarsest structure down to single
// characters. The empty separator splits into runes.
var markdownSeparators = []string{
	"\n# ", "\n## ", "\n### ", "\n#### ", "\n##### ", "\n###### ",
	"```\n", "\n***\n", "\n---\n", "\n___\n",
	"\n\n", "\n", ". ", " ", "",
}

var codeSeparators = map[string][]string{
	"go": {
		"\nfunc ", "\nvar ", "\nconst ", "\ntype ",
		"\nif ", "\nfor ", "\nswitch ", "\ncase ",
		"\n\n", "\n", " ", "",
	},
	"python": {
		"\nclass ", "\ndef ", "\n\tdef ", "\n    def ",
		"\n\n", "\n", " ", "",
	},
	"javascript": {
		"\nfunction ", "\nconst ", "\nlet ", "\nvar ", "\nclass ",
		"\nif ", "\nfor ", "\nwhile ", "\nswitch ", "\ncase ", "\ndefault ",
		"\n\n", "\n", " ", "",
	},
	"rust": {
		"\nfn ", "\nconst ", "\nlet ", "\nif ", "\nwhile ", "\nfor ", "\nloop ", "\nmatch ",
		"\n\n", "\n", " ", "",
	},
	"java": {
		"\nclass ", "\npublic ", "\nprotected ", "\nprivate ", "\nstatic ",
		"\nif ", "\nfor ", "\nwhile ", "\nswitch ", "\ncase ",
		"\n\n", "\n", " ", "",
	},
	"cpp": {
		"\nclass ", "\nvoid ", "\nint ", "\nfloat ", "\ndouble ",
		"\nif ", "\nfor ", "\nwhile ", "\nswitch ", "\ncase ",
		"\n\n", "\n", " ", "",
	},
	"shell": {
		"\nfunction ", "\nif ", "\nfor ", "\nwhile ", "\ncase ",
		"\n\n", "\n", " ", "",
	},
}

var languageAliases = map[string]string{
	"golang":     "go",
	"py":         "python",
	"js":         "javascript",
	"typescript": "javascript",
	"ts":         "javascript",
	"c":          "cpp",
	"c++":        "cpp",
	"bash":       "shell",
	"sh":         "shell",
}

// separatorsFor returns the split hierarchy for a language, defaulting to
// markdown for documentation and unknown languages.
func separatorsFor(language string) []string {
	lang := strings.ToLower(strings.TrimSpace(language))
	if alias, ok := languageAliases[lang]; ok {
		lang = alias
	}
	if seps, ok := codeSeparators[lang]; ok {
		return seps
	}
	return markdownSeparators
}

// splitter is a recursive character splitter. Size and overlap are measured
// in bytes.
type splitter struct {
	size       int
	overlap    int
	separators []string
}

func newSplitter(size, overlap int, separators []string) *splitter {
	if size <= 0 {
		size = 1
	}
	if overlap >= size {
		overlap = size / 2
	}
	if overlap < 0 {
		overlap = 0
	}
	return &splitter{size: size, overlap: overlap, separators: separators}
}

// Split returns trimmed, non-empty pieces of text no longer than the
// configured size, except where a single rune exceeds it.
func (s *splitter) Split(text string) []string {
	return s.split(text, s.separators)
}

func (s *splitter) split(text string, separators []string) []string {
	sep := ""
	var rest []string
	for i, candidate := range separators {
		if candidate == "" {
			break
		}
		if strings.Contains(text, candidate) {
			sep = candidate
			rest = separators[i+1:]
			break
		}
	}

	var out, good []string
	for _, part := range splitKeep(text, sep) {
		if len(part) <= s.size {
			good = append(good, part)
			continue
		}
		if len(good) > 0 {
			out = append(out, s.merge(good)...)
			good = nil
		}
		if len(rest) == 0 {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				out = append(out, trimmed)
			}
			continue
		}
		out = append(out, s.split(part, rest)...)
	}
	if len(good) > 0 {
		out = append(out, s.merge(good)...)
	}
	return out
}

// merge packs consecutive parts into pieces of at most size bytes, carrying
// up to overlap bytes of trailing parts into the next piece.
func (s *splitter) merge(parts []string) []string {
	var docs, current []string
	total := 0
	for _, part := range parts {
		if total+len(part) > s.size && len(current) > 0 {
			if doc := strings.TrimSpace(strings.Join(current, "")); doc != "" {
				docs = append(docs, doc)
			}
			for len(current) > 0 && (total > s.overlap || total+len(part) > s.size) {
				total -= len(current[0])
				current = current[1:]
			}
		}
		current = append(current, part)
		total += len(part)
	}
	if doc := strings.TrimSpace(strings.Join(current, "")); doc != "" {
		docs = append(docs, doc)
	}
	return docs
}

// splitKeep splits text on sep. Line-leading separators stay at the start of
// the following part, others at the end of the preceding one. An empty
// separator splits into runes.
func splitKeep(text, sep string) []string {
	if sep == "" {
		parts := make([]string, 0, len(text))
		for _, r := range text {
			parts = append(parts, string(r))
		}
		return parts
	}
	leading := strings.HasPrefix(sep, "\n")
	raw := strings.Split(text, sep)
	parts := make([]string, 0, len(raw))
	for i, p := range raw {
		switch {
		case leading && i > 0:
			p = sep + p
		case !leading && i < len(raw)-1:
			p += sep
		}
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}
