package chunk

import (
	"context"
	"fmt"
	"strings"

	"github.com/fwojciec/ragkb"
)

// transcript groups timed segments into pieces of about MaxTokens, each
// covering [first segment start, closing segment end]. Consecutive pieces
// share the last OverlapSegments segments.
func (c *Chunker) transcript(ctx context.Context, segments []ragkb.TranscriptSegment) ([]Piece, error) {
	var (
		pieces  []Piece
		window  []ragkb.TranscriptSegment
		fresh   int // segments added since the last emitted piece
		tokens  int
		content string
	)
	for _, seg := range segments {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		window = append(window, seg)
		fresh++

		content = joinSegments(window)
		tokens = c.count(ctx, content)
		if c.MaxTokens <= 0 || tokens < c.MaxTokens {
			continue
		}

		pieces = append(pieces, Piece{
			Content:        content,
			TokenCount:     tokens,
			TimestampStart: FormatTimestamp(window[0].Start),
			TimestampEnd:   FormatTimestamp(seg.Start + seg.Duration),
		})

		keep := c.OverlapSegments
		if keep < 0 {
			keep = 0
		}
		if keep > len(window) {
			keep = len(window)
		}
		window = append([]ragkb.TranscriptSegment(nil), window[len(window)-keep:]...)
		fresh = 0
	}

	if content = joinSegments(window); fresh > 0 && content != "" {
		last := window[len(window)-1]
		pieces = append(pieces, Piece{
			Content:        content,
			TokenCount:     c.count(ctx, content),
			TimestampStart: FormatTimestamp(window[0].Start),
			TimestampEnd:   FormatTimestamp(last.Start + last.Duration),
		})
	}
	return pieces, nil
}

func joinSegments(segments []ragkb.TranscriptSegment) string {
	texts := make([]string, 0, len(segments))
	for _, s := range segments {
		if t := strings.TrimSpace(s.Text); t != "" {
			texts = append(texts, t)
		}
	}
	return strings.Join(texts, " ")
}

// FormatTimestamp renders seconds as HH:MM:SS, or MM:SS under an hour.
func FormatTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
