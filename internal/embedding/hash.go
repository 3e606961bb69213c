package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"strings"
)

// HashEmbedder is a deterministic, offline embedder for development and tests. Texts that are
// equal after case folding and trimming map to identical vectors.
type HashEmbedder struct {
	Dims int
}

func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = 64
	}
	return &HashEmbedder{Dims: dims}
}

func (e *HashEmbedder) Model() string { return "hash" }

func (e *HashEmbedder) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	out := make([][]float32, len(inputs))
	for i, s := range inputs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = e.vector(strings.ToLower(strings.TrimSpace(s)))
	}
	return out, nil
}

func (e *HashEmbedder) vector(s string) []float32 {
	vec := make([]float32, e.Dims)
	var block [32]byte
	for j := 0; j < e.Dims; j++ {
		if j%8 == 0 {
			block = sha256.Sum256([]byte{byte(j / 8), '\n'})
			block = sha256.Sum256(append(block[:], s...))
		}
		u := binary.LittleEndian.Uint32(block[(j%8)*4:])
		vec[j] = float32(u%10_000)/10_000.0 - 0.5
	}
	return vec
}
