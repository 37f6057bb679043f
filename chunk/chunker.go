// Package chunk splits scraped content into retrieval-sized pieces using a
// strategy chosen by source type.
package chunk

import (
	"context"
	"log/slog"
	"strings"

	"github.com/fwojciec/ragkb"
)

// charsPerToken converts token budgets into splitter sizes.
const charsPerToken = 4

// Piece is one chunk of content before enrichment and embedding.
type Piece struct {
	Content    string
	TokenCount int

	// Documentation pieces.
	Heading string
	Anchor  string

	// Code pieces.
	CodeType string
	Path     string

	// Transcript pieces, formatted as HH:MM:SS or MM:SS.
	TimestampStart string
	TimestampEnd   string
}

// Chunker splits scrape results into pieces.
type Chunker struct {
	// Tokens counts tokens exactly. When nil or failing, counts are
	// estimated from length.
	Tokens ragkb.TokenCounter

	MaxTokens       int
	MinTokens       int
	OverlapTokens   int
	OverlapSegments int

	Logger *slog.Logger
}

// NewChunker returns a Chunker sized by cfg. tokens may be nil.
func NewChunker(cfg ragkb.ChunkingConfig, tokens ragkb.TokenCounter, logger *slog.Logger) *Chunker {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Chunker{
		Tokens:          tokens,
		MaxTokens:       cfg.MaxTokens,
		MinTokens:       cfg.MinTokens,
		OverlapTokens:   cfg.OverlapTokens,
		OverlapSegments: cfg.TranscriptOverlapSegments,
		Logger:          logger,
	}
}

// Chunk splits a scrape result into pieces. Empty content yields no pieces
// and no error.
func (c *Chunker) Chunk(ctx context.Context, res *ragkb.ScrapeResult, sourceType ragkb.SourceType) ([]Piece, error) {
	if res == nil || strings.TrimSpace(res.Content) == "" {
		c.logger().Warn("empty content provided for chunking", "sourceType", sourceType)
		return nil, nil
	}

	var (
		pieces []Piece
		err    error
	)
	switch {
	case sourceType == ragkb.SourceYouTubeVideo && res.Video != nil && len(res.Video.Segments) > 0:
		pieces, err = c.transcript(ctx, res.Video.Segments)
	case sourceType == ragkb.SourceGitHub:
		pieces, err = c.code(ctx, res)
	default:
		pieces, err = c.structural(ctx, res.Content)
	}
	if err != nil {
		return nil, err
	}

	c.logger().Debug("chunked content", "sourceType", sourceType, "pieces", len(pieces))
	return pieces, nil
}

func (c *Chunker) structural(ctx context.Context, content string) ([]Piece, error) {
	parts := c.newSplitter(markdownSeparators).Split(content)
	anchors := newAnchorIndex(Sections(content))

	pieces := make([]Piece, 0, len(parts))
	var heading, anchor string
	for _, part := range parts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if h := leadingHeading(part); h != "" && h != heading {
			heading, anchor = h, anchors.next(h)
		}
		pieces = append(pieces, Piece{
			Content:    part,
			TokenCount: c.count(ctx, part),
			Heading:    heading,
			Anchor:     anchor,
		})
	}
	return pieces, nil
}

func (c *Chunker) code(ctx context.Context, res *ragkb.ScrapeResult) ([]Piece, error) {
	files := []ragkb.SourceFile{{Content: res.Content}}
	if res.Repo != nil && len(res.Repo.Files) > 0 {
		files = res.Repo.Files
	} else if res.Repo != nil {
		files[0].Language = res.Repo.Language
	}

	var pieces []Piece
	for _, f := range files {
		if strings.TrimSpace(f.Content) == "" {
			continue
		}
		parts := c.newSplitter(separatorsFor(f.Language)).Split(f.Content)
		var filePieces []Piece
		for _, part := range parts {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			filePieces = append(filePieces, Piece{
				Content:    part,
				TokenCount: c.count(ctx, part),
				CodeType:   strings.ToLower(f.Language),
				Path:       f.Path,
			})
		}
		pieces = append(pieces, c.mergeSmall(ctx, filePieces)...)
	}
	return pieces, nil
}

// mergeSmall folds pieces under MinTokens into the following piece of the
// same file while the result stays within MaxTokens.
func (c *Chunker) mergeSmall(ctx context.Context, pieces []Piece) []Piece {
	if c.MinTokens <= 0 || len(pieces) < 2 {
		return pieces
	}
	out := make([]Piece, 0, len(pieces))
	for i := 0; i < len(pieces); i++ {
		p := pieces[i]
		for p.TokenCount < c.MinTokens && i+1 < len(pieces) {
			next := pieces[i+1]
			if c.MaxTokens > 0 && p.TokenCount+next.TokenCount > c.MaxTokens {
				break
			}
			p.Content = p.Content + "\n\n" + next.Content
			p.TokenCount = c.count(ctx, p.Content)
			i++
		}
		out = append(out, p)
	}
	return out
}

func (c *Chunker) newSplitter(separators []string) *splitter {
	return newSplitter(c.MaxTokens*charsPerToken, c.OverlapTokens*charsPerToken, separators)
}

func (c *Chunker) count(ctx context.Context, text string) int {
	if c.Tokens != nil {
		n, err := c.Tokens.CountTokens(ctx, text)
		if err == nil {
			return n
		}
		c.logger().Debug("token counter failed, estimating", "err", err)
	}
	return ragkb.EstimateTokens(text)
}

func (c *Chunker) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.Logger
}
