package youtube

import (
	"encoding/json"
	"errors"
	"html"
	"strconv"
	"strings"

	"github.com/beevik/etree"
	"github.com/fwojciec/ragkb"
)

// captionTrack is one entry of the player response's caption track list.
type captionTrack struct {
	BaseURL      string `json:"baseUrl"`
	LanguageCode string `json:"languageCode"`
	Kind         string `json:"kind"`
}

// generated reports whether the track is an automatic speech recognition track.
func (t captionTrack) generated() bool { return t.Kind == "asr" }

var errNoCaptions = errors.New("no transcript available")

// captionTracks finds the caption track list embedded in a watch page.
func captionTracks(page string) ([]captionTrack, error) {
	const marker = `"captionTracks":`
	i := strings.Index(page, marker)
	if i < 0 {
		return nil, errNoCaptions
	}
	raw, ok := jsonArray(page[i+len(marker):])
	if !ok {
		return nil, errNoCaptions
	}
	var tracks []captionTrack
	if err := json.Unmarshal([]byte(raw), &tracks); err != nil {
		return nil, err
	}
	if len(tracks) == 0 {
		return nil, errNoCaptions
	}
	return tracks, nil
}

// jsonArray returns the JSON array at the start of s, matching brackets
// outside string literals.
func jsonArray(s string) (string, bool) {
	s = strings.TrimLeft(s, " \t\n")
	if !strings.HasPrefix(s, "[") {
		return "", false
	}
	depth := 0
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '[' || c == '{':
			depth++
		case c == ']' || c == '}':
			depth--
			if depth == 0 {
				return s[:i+1], true
			}
		}
	}
	return "", false
}

// chooseTrack picks a track by language preference. A manual track in a
// language beats a generated one in the same language. With no preferred
// language available the first track is used and reported as "auto".
func chooseTrack(tracks []captionTrack, languages []string) (captionTrack, string) {
	for _, lang := range languages {
		var generated *captionTrack
		for i, t := range tracks {
			if !strings.EqualFold(baseLanguage(t.LanguageCode), lang) {
				continue
			}
			if !t.generated() {
				return t, lang
			}
			if generated == nil {
				generated = &tracks[i]
			}
		}
		if generated != nil {
			return *generated, lang
		}
	}
	return tracks[0], "auto"
}

func baseLanguage(code string) string {
	if i := strings.IndexAny(code, "-_"); i > 0 {
		return code[:i]
	}
	return code
}

// parseTimedText reads timedtext XML. Both the legacy format
// (<text start dur> in seconds) and format 3 (<p t d> in milliseconds)
// are understood.
func parseTimedText(data string) ([]ragkb.TranscriptSegment, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromString(data); err != nil {
		return nil, err
	}
	root := doc.Root()
	if root == nil {
		return nil, errNoCaptions
	}

	var segments []ragkb.TranscriptSegment
	add := func(start, dur float64, text string) {
		text = strings.Join(strings.Fields(html.UnescapeString(text)), " ")
		if text == "" {
			return
		}
		segments = append(segments, ragkb.TranscriptSegment{Start: start, Duration: dur, Text: text})
	}

	if texts := root.SelectElements("text"); len(texts) > 0 {
		for _, el := range texts {
			add(attrFloat(el, "start"), attrFloat(el, "dur"), el.Text())
		}
		return segments, nil
	}

	if body := root.SelectElement("body"); body != nil {
		for _, p := range body.SelectElements("p") {
			text := p.Text()
			for _, s := range p.SelectElements("s") {
				text += s.Text()
			}
			add(attrFloat(p, "t")/1000, attrFloat(p, "d")/1000, text)
		}
	}
	return segments, nil
}

func attrFloat(el *etree.Element, name string) float64 {
	v, err := strconv.ParseFloat(el.SelectAttrValue(name, "0"), 64)
	if err != nil {
		return 0
	}
	return v
}

// transcriptText joins segment text one line per segment.
func transcriptText(segments []ragkb.TranscriptSegment) string {
	lines := make([]string, len(segments))
	for i, s := range segments {
		lines[i] = s.Text
	}
	return strings.Join(lines, "\n")
}
