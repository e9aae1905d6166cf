package embedding

import "context"

// Embedder produces dense vectors. Every vector from one Embedder has the same length.
type Embedder interface {
	GetEmbedding(ctx context.Context, text string) ([]float32, error)
	BatchEmbedding(ctx context.Context, texts []string) ([][]float32, error)
	// Model identifies the vector space, chunks embedded by different models are never compared.
	Model() string
}

// Batch splits texts into provider sized calls and concatenates the results.
// Any failing call fails the whole batch.
func Batch(ctx context.Context, texts []string, size int, call func(ctx context.Context, part []string) ([][]float32, error)) ([][]float32, error) {
	if size <= 0 {
		size = len(texts)
	}
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += size {
		end := min(start+size, len(texts))
		vectors, err := call(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vectors...)
	}
	return out, nil
}
