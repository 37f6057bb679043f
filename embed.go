package ragkb

import (
	"context"
	"math"
)

// Embedder maps text to dense vectors. Corpus and query embeddings must come
// from the same Embedder so their distances are comparable.
type Embedder interface {
	// Embed returns one vector per input text, in order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedSingle embeds one text.
	EmbedSingle(ctx context.Context, text string) ([]float32, error)

	// Dimension returns the vector length, or 0 if not yet known.
	Dimension() int
}

// NormalizeVector scales v to unit length in place and returns it.
// Zero vectors are returned unchanged.
func NormalizeVector(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
	return v
}

// CosineDistance returns 1 - cos(a, b), a value in [0,2].
// Mismatched lengths or zero vectors yield the maximum distance.
func CosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 2
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 2
	}
	d := 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
	return math.Max(0, math.Min(2, d))
}

// DistanceToSimilarity converts cosine distance to a similarity in [0,1].
func DistanceToSimilarity(d float64) float64 {
	return 1 - d/2
}
