package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/akolanti/CivicRAG/pkg/logger_i"
	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Tuning holds the retrieval and grounding thresholds. They were tuned by hand against real
// documents and are expected to move, so they are read from a file instead of being constants.
type Tuning struct {
	Language  LanguageTuning  `yaml:"language"`
	Chunking  ChunkTuning     `yaml:"chunking"`
	Retrieval RetrievalTuning `yaml:"retrieval"`
	Rerank    RerankTuning    `yaml:"rerank"`
}

type LanguageTuning struct {
	Pivot           string   `yaml:"pivot"`
	Supported       []string `yaml:"supported"`
	MinDetectLength int      `yaml:"min_detect_length"`
	DetectSample    int      `yaml:"detect_sample"`
	// segments larger than this are translated in pieces so a page never exceeds model output limits
	TranslateSegment int `yaml:"translate_segment"`
}

type ChunkTuning struct {
	TargetSize int `yaml:"target_size"`
	Overlap    int `yaml:"overlap"`
	Tolerance  int `yaml:"tolerance"`
}

type RetrievalTuning struct {
	DenseCandidates       int      `yaml:"dense_candidates"`
	LexicalCandidates     int      `yaml:"lexical_candidates"`
	TopK                  int      `yaml:"top_k"`
	MinSimilarity         float64  `yaml:"min_similarity"`
	RelaxedMinSimilarity  float64  `yaml:"relaxed_min_similarity"`
	LexicalBonus          float64  `yaml:"lexical_bonus"`
	KeywordBonus          float64  `yaml:"keyword_bonus"`
	MinKeywordLength      int      `yaml:"min_keyword_length"`
	KeywordPrefixLength   int      `yaml:"keyword_prefix_length"`
	ExpansionCount        int      `yaml:"expansion_count"`
	Stopwords             []string `yaml:"stopwords"`
	MaxContextChunks      int      `yaml:"max_context_chunks"`
	MaxContextChunkLength int      `yaml:"max_context_chunk_length"`
}

type RerankTuning struct {
	Enabled         bool `yaml:"enabled"`
	TopK            int  `yaml:"top_k"`
	MaxPassageChars int  `yaml:"max_passage_chars"`
}

func DefaultTuning() Tuning {
	return Tuning{
		Language: LanguageTuning{
			Pivot:            "en",
			Supported:        []string{"en", "hi", "mr", "fr", "es", "de", "zh", "ar"},
			MinDetectLength:  10,
			DetectSample:     500,
			TranslateSegment: 4000,
		},
		Chunking: ChunkTuning{
			TargetSize: 1000,
			Overlap:    200,
			Tolerance:  200,
		},
		Retrieval: RetrievalTuning{
			DenseCandidates:       20,
			LexicalCandidates:     20,
			TopK:                  8,
			MinSimilarity:         0.55,
			RelaxedMinSimilarity:  0.25,
			LexicalBonus:          0.15,
			KeywordBonus:          0.10,
			MinKeywordLength:      3,
			KeywordPrefixLength:   5,
			ExpansionCount:        2,
			Stopwords:             defaultStopwords,
			MaxContextChunks:      5,
			MaxContextChunkLength: 1500,
		},
		Rerank: RerankTuning{
			Enabled:         true,
			TopK:            5,
			MaxPassageChars: 600,
		},
	}
}

var defaultStopwords = []string{
	"a", "about", "above", "after", "again", "all", "also", "am", "an", "and", "any", "are", "as", "at",
	"be", "because", "been", "before", "being", "between", "both", "but", "by", "can", "could", "did",
	"do", "does", "doing", "done", "each", "explain", "for", "from", "further", "give", "had", "has",
	"have", "having", "he", "her", "here", "hers", "him", "his", "how", "i", "if", "in", "into", "is",
	"it", "its", "just", "me", "more", "most", "my", "no", "nor", "not", "of", "off", "on", "once",
	"only", "or", "other", "our", "out", "over", "own", "please", "same", "say", "says", "she",
	"should", "so", "some", "such", "tell", "than", "that", "the", "their", "them", "then", "there",
	"these", "they", "this", "those", "through", "to", "too", "under", "until", "up", "very", "was",
	"we", "were", "what", "when", "where", "which", "while", "who", "whom", "why", "will", "with",
	"would", "you", "your",
}

// LoadTuning reads a YAML tuning file on top of the defaults. An empty path returns the defaults.
func LoadTuning(path string) (Tuning, error) {
	tuning := DefaultTuning()
	if path == "" {
		return tuning, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return tuning, fmt.Errorf("read tuning file: %w", err)
	}
	if err := yaml.Unmarshal(data, &tuning); err != nil {
		return DefaultTuning(), fmt.Errorf("parse tuning file: %w", err)
	}
	applyTuningDefaults(&tuning)
	return tuning, nil
}

// zero values in a partial file fall back to the defaults
func applyTuningDefaults(t *Tuning) {
	d := DefaultTuning()
	if t.Language.Pivot == "" {
		t.Language.Pivot = d.Language.Pivot
	}
	if len(t.Language.Supported) == 0 {
		t.Language.Supported = d.Language.Supported
	}
	if t.Language.MinDetectLength <= 0 {
		t.Language.MinDetectLength = d.Language.MinDetectLength
	}
	if t.Language.DetectSample <= 0 {
		t.Language.DetectSample = d.Language.DetectSample
	}
	if t.Language.TranslateSegment <= 0 {
		t.Language.TranslateSegment = d.Language.TranslateSegment
	}
	if t.Chunking.TargetSize <= 0 {
		t.Chunking.TargetSize = d.Chunking.TargetSize
	}
	if t.Chunking.Overlap < 0 || t.Chunking.Overlap >= t.Chunking.TargetSize {
		t.Chunking.Overlap = t.Chunking.TargetSize / 5
	}
	if t.Chunking.Tolerance < 0 {
		t.Chunking.Tolerance = d.Chunking.Tolerance
	}
	if t.Retrieval.DenseCandidates <= 0 {
		t.Retrieval.DenseCandidates = d.Retrieval.DenseCandidates
	}
	if t.Retrieval.LexicalCandidates <= 0 {
		t.Retrieval.LexicalCandidates = d.Retrieval.LexicalCandidates
	}
	if t.Retrieval.TopK <= 0 {
		t.Retrieval.TopK = d.Retrieval.TopK
	}
	if t.Retrieval.MinKeywordLength <= 0 {
		t.Retrieval.MinKeywordLength = d.Retrieval.MinKeywordLength
	}
	if t.Retrieval.KeywordPrefixLength <= 0 {
		t.Retrieval.KeywordPrefixLength = d.Retrieval.KeywordPrefixLength
	}
	if t.Retrieval.Stopwords == nil {
		t.Retrieval.Stopwords = d.Retrieval.Stopwords
	}
	if t.Retrieval.MaxContextChunks <= 0 {
		t.Retrieval.MaxContextChunks = d.Retrieval.MaxContextChunks
	}
	if t.Retrieval.MaxContextChunkLength <= 0 {
		t.Retrieval.MaxContextChunkLength = d.Retrieval.MaxContextChunkLength
	}
	if t.Rerank.TopK <= 0 {
		t.Rerank.TopK = d.Rerank.TopK
	}
	if t.Rerank.MaxPassageChars <= 0 {
		t.Rerank.MaxPassageChars = d.Rerank.MaxPassageChars
	}
}

// TuningSource hands out the current tuning. Components read it per request so a reload takes
// effect on the next query without restarting.
type TuningSource interface {
	Current() Tuning
}

type StaticTuning Tuning

func (s StaticTuning) Current() Tuning { return Tuning(s) }

// TuningWatcher keeps the latest successfully parsed tuning file.
type TuningWatcher struct {
	path    string
	current atomic.Pointer[Tuning]
	logger  *logger_i.Logger
}

func NewTuningWatcher(path string) (*TuningWatcher, error) {
	tuning, err := LoadTuning(path)
	if err != nil {
		return nil, err
	}
	w := &TuningWatcher{path: path, logger: logger_i.NewLogger("tuning")}
	w.current.Store(&tuning)
	return w, nil
}

func (w *TuningWatcher) Current() Tuning {
	return *w.current.Load()
}

// Watch reloads the file whenever it changes until ctx is done. A file that fails to parse keeps
// the previous tuning in place.
func (w *TuningWatcher) Watch(ctx context.Context) error {
	if w.path == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create tuning watcher: %w", err)
	}
	// editors replace files on save, so watch the directory and filter by name
	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch tuning directory: %w", err)
	}

	go func() {
		defer watcher.Close()
		target := filepath.Clean(w.path)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target || !(event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) {
					continue
				}
				w.reload()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				w.logger.Warn("tuning watcher error", "error", err)
			}
		}
	}()
	return nil
}

func (w *TuningWatcher) reload() {
	tuning, err := LoadTuning(w.path)
	if err != nil {
		w.logger.Warn("tuning reload rejected, keeping previous values", "error", err)
		return
	}
	w.current.Store(&tuning)
	w.logger.Info("tuning reloaded", "path", w.path)
}
