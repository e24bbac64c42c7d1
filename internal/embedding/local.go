package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

const DefaultLocalDimensions = 256

// LocalClient is a deterministic feature-hashing embedder. It needs no
// network access, so it backs offline sessions and tests.
type LocalClient struct {
	dimensions int
}

func NewLocalClient(dimensions int) *LocalClient {
	if dimensions <= 0 {
		dimensions = DefaultLocalDimensions
	}
	return &LocalClient{dimensions: dimensions}
}

func (c *LocalClient) Dimensions() int {
	return c.dimensions
}

func (c *LocalClient) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, c.dimensions)
	for _, tok := range tokens(text) {
		h := fnv.New64a()
		_, _ = h.Write([]byte(tok))
		sum := h.Sum64()
		idx := int(sum % uint64(c.dimensions))
		// High bit picks the sign so collisions tend to cancel out.
		if sum>>63 == 1 {
			vec[idx] -= 1
		} else {
			vec[idx] += 1
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec, nil
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec, nil
}

var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "for": true, "from": true, "in": true, "is": true,
	"it": true, "of": true, "on": true, "or": true, "that": true, "the": true,
	"this": true, "to": true, "was": true, "with": true,
}

func tokens(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if !stopwords[f] {
			out = append(out, f)
		}
	}
	return out
}
