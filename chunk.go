package ragkb

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// chunkNamespace scopes deterministic chunk IDs.
var chunkNamespace = uuid.MustParse("6f1c1f2e-7a4b-4c0e-9b1a-52a0e3d7c9b1")

// ChunkID returns the deterministic ID of the index-th chunk of a document.
// Re-ingesting a document reproduces the same IDs.
func ChunkID(documentID string, index int) string {
	return uuid.NewSHA1(chunkNamespace, []byte(documentID+"#"+strconv.Itoa(index))).String()
}

// Chunk is a retrievable unit of content carrying its embedding and metadata.
type Chunk struct {
	ID          string    `json:"id"`
	DocumentID  string    `json:"documentId"`
	ChunkIndex  int       `json:"chunkIndex"`
	TotalChunks int       `json:"totalChunks"`
	Content     string    `json:"content"`
	Embedding   []float32 `json:"embedding,omitempty"`
	TokenCount  int       `json:"tokenCount"`

	SourceURL   string     `json:"sourceUrl"`
	SourceType  SourceType `json:"sourceType"`
	Domain      string     `json:"domain"`
	ContentHash string     `json:"contentHash,omitempty"`
	CommitHash  string     `json:"commitHash,omitempty"`

	Language       string     `json:"language"`
	HasCodeExample bool       `json:"hasCodeExample"`
	ProcessedAt    time.Time  `json:"processedAt"`
	PublishedAt    *time.Time `json:"publishedAt,omitempty"`

	Source     SourceFields      `json:"source"`
	Enrichment Enrichment        `json:"enrichment"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// SourceFields holds the per-source-type metadata of a chunk.
// Only the block matching the chunk's SourceType is populated.
type SourceFields struct {
	Video *VideoFields `json:"video,omitempty"`
	Repo  *RepoFields  `json:"repo,omitempty"`
	Page  *PageFields  `json:"page,omitempty"`
}

// VideoFields is chunk metadata for YouTube videos.
type VideoFields struct {
	Channel        string `json:"channel"`
	Title          string `json:"title"`
	Duration       string `json:"duration,omitempty"`
	TimestampStart string `json:"timestampStart,omitempty"`
	TimestampEnd   string `json:"timestampEnd,omitempty"`
}

// RepoFields is chunk metadata for GitHub repositories.
type RepoFields struct {
	Name     string `json:"name"`
	Stars    int    `json:"stars"`
	CodeType string `json:"codeType,omitempty"`
	Path     string `json:"path,omitempty"`
}

// PageFields is chunk metadata for web pages.
type PageFields struct {
	Title   string `json:"title"`
	Heading string `json:"heading,omitempty"`
	Anchor  string `json:"anchor,omitempty"`
}

// Validate returns an error if the chunk contains invalid fields.
func (c *Chunk) Validate() error {
	if c.DocumentID == "" {
		return Errorf(EINVALID, "chunk document ID required")
	}
	if c.SourceURL == "" {
		return Errorf(EINVALID, "chunk source URL required")
	}
	if strings.TrimSpace(c.Content) == "" {
		return Errorf(EINVALID, "chunk content required")
	}
	if c.ChunkIndex < 0 || (c.TotalChunks > 0 && c.ChunkIndex >= c.TotalChunks) {
		return Errorf(EINVALID, "chunk index %d out of range [0,%d)", c.ChunkIndex, c.TotalChunks)
	}
	return nil
}

// Key returns the chunk identity used when merging result lists:
// the chunk ID when set, otherwise source_url#chunk_index.
func (c *Chunk) Key() string {
	if c.ID != "" {
		return c.ID
	}
	return c.SourceURL + "#" + strconv.Itoa(c.ChunkIndex)
}

// Title returns the most descriptive title available for display.
func (c *Chunk) Title() string {
	switch {
	case c.Source.Video != nil && c.Source.Video.Title != "":
		return c.Source.Video.Title
	case c.Source.Repo != nil && c.Source.Repo.Path != "":
		return c.Source.Repo.Name + "/" + c.Source.Repo.Path
	case c.Source.Repo != nil:
		return c.Source.Repo.Name
	case c.Source.Page != nil && c.Source.Page.Heading != "":
		return c.Source.Page.Heading
	case c.Source.Page != nil && c.Source.Page.Title != "":
		return c.Source.Page.Title
	}
	return c.SourceURL
}

var codeIndicators = []string{"```", "def ", "class ", "function ", "import ", "const ", "let ", "var "}

// HasCode reports whether content looks like it contains a code example.
func HasCode(content string) bool {
	for _, ind := range codeIndicators {
		if strings.Contains(content, ind) {
			return true
		}
	}
	return false
}
