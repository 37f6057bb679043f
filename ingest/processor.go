// Package ingest turns scraped documents into indexed chunks and drives the
// pending URL queue through scraping and ingestion.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/fwojciec/ragkb"
	"github.com/fwojciec/ragkb/chunk"
	"golang.org/x/sync/errgroup"
)

var _ ragkb.Ingester = (*Processor)(nil)

// defaultEnrichConcurrency bounds parallel enrichment calls per document.
const defaultEnrichConcurrency = 4

// Chunker splits a scrape result into pieces.
type Chunker interface {
	Chunk(ctx context.Context, res *ragkb.ScrapeResult, sourceType ragkb.SourceType) ([]chunk.Piece, error)
}

// Processor chunks, enriches, embeds and stores documents.
type Processor struct {
	Chunker  Chunker
	Enricher ragkb.Enricher
	Embedder ragkb.Embedder
	Index    ragkb.VectorIndex

	EnrichConcurrency int

	// Now returns the processing time. Defaults to time.Now.
	Now func() time.Time

	Logger *slog.Logger
}

// NewProcessor creates a Processor.
func NewProcessor(chunker Chunker, enricher ragkb.Enricher, embedder ragkb.Embedder, index ragkb.VectorIndex, logger *slog.Logger) *Processor {
	return &Processor{
		Chunker:  chunker,
		Enricher: enricher,
		Embedder: embedder,
		Index:    index,
		Logger:   logger,
	}
}

// Ingest stores res as the chunks of the document identified by url.
// Chunk IDs are derived from the document ID and chunk index, so storing
// the same document again replaces its chunks in place. The index is only
// written once every chunk is enriched and embedded; a failure before that
// leaves any earlier version untouched.
func (p *Processor) Ingest(ctx context.Context, url string, sourceType ragkb.SourceType, res *ragkb.ScrapeResult) (*ragkb.IngestResult, error) {
	pieces, err := p.Chunker.Chunk(ctx, res, sourceType)
	if err != nil {
		return nil, fmt.Errorf("chunk %s: %w", url, err)
	}
	if len(pieces) == 0 {
		return nil, &ragkb.ScrapeError{URL: url, Err: errors.New("no chunks created")}
	}

	enrichments := p.enrich(ctx, pieces)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	texts := make([]string, len(pieces))
	for i, piece := range pieces {
		texts[i] = piece.Content
	}
	vectors, err := p.Embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed %s: %w", url, err)
	}
	if len(vectors) != len(pieces) {
		return nil, ragkb.Errorf(ragkb.EINTERNAL, "embedder returned %d vectors for %d chunks", len(vectors), len(pieces))
	}

	documentID := ragkb.HashURL(url)
	now := p.now()
	contentHash := res.ContentHash()
	language := res.Language
	if language == "" {
		language = "en"
	}

	chunks := make([]*ragkb.Chunk, len(pieces))
	for i, piece := range pieces {
		c := &ragkb.Chunk{
			ID:             ragkb.ChunkID(documentID, i),
			DocumentID:     documentID,
			ChunkIndex:     i,
			TotalChunks:    len(pieces),
			Content:        piece.Content,
			Embedding:      vectors[i],
			TokenCount:     piece.TokenCount,
			SourceURL:      url,
			SourceType:     sourceType,
			Domain:         res.Domain,
			ContentHash:    contentHash,
			CommitHash:     res.CommitHash(),
			Language:       language,
			HasCodeExample: ragkb.HasCode(piece.Content),
			ProcessedAt:    now,
			PublishedAt:    res.PublishedAt,
			Source:         sourceFields(sourceType, res, piece),
			Enrichment:     enrichments[i].Enrichment,
			Extra:          maps.Clone(res.Extra),
		}
		if enrichments[i].Source == ragkb.EnrichFallback {
			if c.Extra == nil {
				c.Extra = make(map[string]string)
			}
			c.Extra["enrichment"] = string(ragkb.EnrichFallback)
			c.Extra["enrichment_reason"] = enrichments[i].Reason
		}
		chunks[i] = c
	}

	removed, err := p.Index.ReplaceDocument(ctx, documentID, chunks)
	if err != nil {
		return nil, fmt.Errorf("store chunks for %s: %w", url, err)
	}

	p.logger().Info("document ingested", "url", url, "type", sourceType, "chunks", len(chunks), "removed", removed)
	return &ragkb.IngestResult{DocumentID: documentID, ChunksCreated: len(chunks), ChunksRemoved: removed}, nil
}

// enrich runs the enricher over every piece with bounded concurrency.
func (p *Processor) enrich(ctx context.Context, pieces []chunk.Piece) []ragkb.EnrichResult {
	results := make([]ragkb.EnrichResult, len(pieces))
	if p.Enricher == nil {
		for i, piece := range pieces {
			results[i] = ragkb.EnrichResult{
				Enrichment: ragkb.HeuristicEnrichment(piece.Content),
				Source:     ragkb.EnrichFallback,
				Reason:     "no enricher configured",
			}
		}
		return results
	}

	limit := p.EnrichConcurrency
	if limit <= 0 {
		limit = defaultEnrichConcurrency
	}
	var g errgroup.Group
	g.SetLimit(limit)
	for i, piece := range pieces {
		g.Go(func() error {
			results[i] = p.Enricher.Enrich(ctx, piece.Content)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// sourceFields builds the metadata block matching the source type.
func sourceFields(t ragkb.SourceType, res *ragkb.ScrapeResult, piece chunk.Piece) ragkb.SourceFields {
	switch t {
	case ragkb.SourceYouTubeVideo:
		v := &ragkb.VideoFields{
			Title:          res.Title,
			TimestampStart: piece.TimestampStart,
			TimestampEnd:   piece.TimestampEnd,
		}
		if res.Video != nil {
			v.Channel = res.Video.Channel
			v.Duration = res.Video.Duration
		}
		return ragkb.SourceFields{Video: v}
	case ragkb.SourceGitHub:
		r := &ragkb.RepoFields{CodeType: piece.CodeType, Path: piece.Path}
		if res.Repo != nil {
			r.Name = res.Repo.Name
			r.Stars = res.Repo.Stars
		}
		return ragkb.SourceFields{Repo: r}
	default:
		return ragkb.SourceFields{Page: &ragkb.PageFields{
			Title:   res.Title,
			Heading: piece.Heading,
			Anchor:  piece.Anchor,
		}}
	}
}

func (p *Processor) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now().UTC()
}

func (p *Processor) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return p.Logger
}
