package vectorDB

import (
	"math"
	"testing"

	"github.com/akolanti/CivicRAG/internal/domain/commonModels"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"scaled", []float32{1, 1}, []float32{3, 3}, 1},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0},
		{"length mismatch", []float32{1}, []float32{1, 1}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CosineSimilarity(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("CosineSimilarity() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestUniformDimension(t *testing.T) {
	same := []commonModels.Chunk{{Embedding: []float32{1, 2}}, {Embedding: []float32{3, 4}}}
	if got := UniformDimension(same); got != 2 {
		t.Errorf("expected 2, got %d", got)
	}
	mixed := []commonModels.Chunk{{Embedding: []float32{1, 2}}, {Embedding: []float32{3}}}
	if got := UniformDimension(mixed); got != -1 {
		t.Errorf("expected -1 for mixed dimensions, got %d", got)
	}
	missing := []commonModels.Chunk{{}}
	if got := UniformDimension(missing); got != -1 {
		t.Errorf("expected -1 for missing embeddings, got %d", got)
	}
}
