package evidence

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

// Embedder turns text into a fixed-length vector. Production deployments
// plug in a hosted embedding provider; HashEmbedder below is the default
// so the library runs deterministically offline and in tests.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// HashEmbedder is a deterministic bag-of-words hashing embedder: each
// token is hashed into one of Dims buckets and the bucket is incremented,
// then the vector is L2-normalized. Two texts sharing vocabulary land
// closer together under cosine similarity, which is enough signal for
// ranking achievements against a job posting without a network call.
type HashEmbedder struct {
	Dims int
}

// NewHashEmbedder returns a HashEmbedder with a sensible default width.
func NewHashEmbedder() *HashEmbedder {
	return &HashEmbedder{Dims: 256}
}

func (h *HashEmbedder) Dimensions() int { return h.Dims }

func (h *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, h.Dims)
	for _, tok := range tokenize(text) {
		hasher := fnv.New32a()
		_, _ = hasher.Write([]byte(tok))
		bucket := int(hasher.Sum32()) % h.Dims
		if bucket < 0 {
			bucket += h.Dims
		}
		vec[bucket]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return vec, nil
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec, nil
}

func tokenize(text string) []string {
	lower := strings.ToLower(text)
	fields := strings.FieldsFunc(lower, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) >= 2 {
			out = append(out, f)
		}
	}
	return out
}

// CosineSimilarity computes cosine similarity between two equal-length
// vectors. Returns 0 if either vector has zero magnitude.
func CosineSimilarity(a, b []float32) float64 {
	var dot, na, nb float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
