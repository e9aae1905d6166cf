package rag_test

import (
	"bytes"
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"unicode"

	"github.com/akolanti/CivicRAG/internal/domain/commonModels"
	"github.com/akolanti/CivicRAG/internal/rag/extract"
	"github.com/akolanti/CivicRAG/internal/rag/lexical"
	"github.com/akolanti/CivicRAG/internal/rag/llm"
	"github.com/akolanti/CivicRAG/internal/rag/vectorDB"
)

// MockLLM implements llm.Provider
type MockLLM struct {
	OnComplete func(ctx context.Context, systemPrompt string, messages []llm.Message) (string, error)
	Calls      atomic.Int32
}

func (m *MockLLM) Complete(ctx context.Context, systemPrompt string, messages []llm.Message, _ ...llm.Option) (string, error) {
	m.Calls.Add(1)
	if m.OnComplete != nil {
		return m.OnComplete(ctx, systemPrompt, messages)
	}
	return "mocked llm response", nil
}

// LastUserMessage is what most scripted responses key on.
func LastUserMessage(messages []llm.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == llm.RoleUser {
			return messages[i].Content
		}
	}
	return ""
}

const HashDimension = 64

// HashEmbedding is a deterministic bag of words vector: texts sharing tokens point the same way.
func HashEmbedding(text string) []float32 {
	v := make([]float32, HashDimension)
	for _, tok := range lexical.Tokenize(text) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(tok))
		v[h.Sum32()%HashDimension]++
	}
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		v[0] = 1
		return v
	}
	n := float32(math.Sqrt(norm))
	for i := range v {
		v[i] /= n
	}
	return v
}

// MockEmbedder implements embedding.Embedder, defaulting to HashEmbedding.
type MockEmbedder struct {
	OnGetEmbedding   func(ctx context.Context, text string) ([]float32, error)
	OnBatchEmbedding func(ctx context.Context, texts []string) ([][]float32, error)
	ModelName        string
	Calls            atomic.Int32
}

func (m *MockEmbedder) GetEmbedding(ctx context.Context, text string) ([]float32, error) {
	m.Calls.Add(1)
	if m.OnGetEmbedding != nil {
		return m.OnGetEmbedding(ctx, text)
	}
	return HashEmbedding(text), nil
}

func (m *MockEmbedder) BatchEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	m.Calls.Add(1)
	if m.OnBatchEmbedding != nil {
		return m.OnBatchEmbedding(ctx, texts)
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = HashEmbedding(t)
	}
	return out, nil
}

func (m *MockEmbedder) Model() string {
	if m.ModelName != "" {
		return m.ModelName
	}
	return "hash-64"
}

// FakeLanguage implements language.Service. Devanagari text is Hindi, everything else is English.
// Translate looks every paragraph up in Dictionary and keeps unknown ones as they are.
type FakeLanguage struct {
	Dictionary map[string]string
	Fail       bool

	DetectCalls    atomic.Int32
	TranslateCalls atomic.Int32
}

func (f *FakeLanguage) Pivot() string { return "en" }

func (f *FakeLanguage) Detect(_ context.Context, text string) string {
	f.DetectCalls.Add(1)
	for _, r := range text {
		if unicode.Is(unicode.Devanagari, r) {
			return "hi"
		}
	}
	return "en"
}

func (f *FakeLanguage) Translate(_ context.Context, text, from, to string) string {
	if from == to || strings.TrimSpace(text) == "" {
		return text
	}
	f.TranslateCalls.Add(1)
	if f.Fail {
		return text
	}
	paragraphs := strings.Split(text, "\n\n")
	for i, p := range paragraphs {
		if t, ok := f.Dictionary[strings.TrimSpace(p)]; ok {
			paragraphs[i] = t
		}
	}
	return strings.Join(paragraphs, "\n\n")
}

// FakeExtractor returns pages as given, or OnExtract's result.
type FakeExtractor struct {
	Pages     []string
	OnExtract func(ctx context.Context, data []byte, fileName string) (extract.Result, error)
}

func (f *FakeExtractor) Extract(ctx context.Context, data []byte, fileName string) (extract.Result, error) {
	if f.OnExtract != nil {
		return f.OnExtract(ctx, data, fileName)
	}
	pages := make([]extract.Page, len(f.Pages))
	for i, p := range f.Pages {
		pages[i] = extract.Page{Number: i + 1, Text: p}
	}
	return extract.Result{
		FullText: strings.Join(f.Pages, extract.PageBreak),
		Pages:    pages,
		FileType: commonModels.PDF,
	}, nil
}

// MockChunkStore implements vectorDB.ChunkStore in memory. The On* hooks replace the default
// behaviour for failure injection.
type MockChunkStore struct {
	OnInsertChunks     func(ctx context.Context, documentId string, chunks []commonModels.Chunk) error
	OnDeleteByDocument func(ctx context.Context, documentId string) (int, error)
	OnSearchDense      func(ctx context.Context, jurisdictionId string, vector []float32, limit int) ([]commonModels.ScoredChunk, error)

	mu          sync.Mutex
	chunks      map[string][]commonModels.Chunk
	DenseCalls  atomic.Int32
	SearchCalls atomic.Int32
}

func NewMockChunkStore() *MockChunkStore {
	return &MockChunkStore{chunks: make(map[string][]commonModels.Chunk)}
}

func (m *MockChunkStore) InsertChunks(ctx context.Context, documentId string, chunks []commonModels.Chunk) error {
	if m.OnInsertChunks != nil {
		if err := m.OnInsertChunks(ctx, documentId, chunks); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks[documentId] = append(m.chunks[documentId], chunks...)
	return nil
}

func (m *MockChunkStore) DeleteByDocument(ctx context.Context, documentId string) (int, error) {
	if m.OnDeleteByDocument != nil {
		return m.OnDeleteByDocument(ctx, documentId)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.chunks[documentId])
	delete(m.chunks, documentId)
	return n, nil
}

func (m *MockChunkStore) FindByDocument(_ context.Context, documentId string) ([]commonModels.Chunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]commonModels.Chunk(nil), m.chunks[documentId]...), nil
}

func (m *MockChunkStore) all(jurisdictionId string) []commonModels.Chunk {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []commonModels.Chunk
	for _, chunks := range m.chunks {
		for _, c := range chunks {
			if c.JurisdictionId == jurisdictionId {
				out = append(out, c)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Id < out[j].Id })
	return out
}

func (m *MockChunkStore) FindByJurisdiction(_ context.Context, jurisdictionId string, text string, limit int) ([]commonModels.Chunk, error) {
	var out []commonModels.Chunk
	for _, c := range m.all(jurisdictionId) {
		if text == "" || strings.Contains(strings.ToLower(c.Text), strings.ToLower(text)) {
			out = append(out, c)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockChunkStore) CountByJurisdiction(_ context.Context, jurisdictionId string) (int, error) {
	return len(m.all(jurisdictionId)), nil
}

func (m *MockChunkStore) SearchDense(ctx context.Context, jurisdictionId string, vector []float32, limit int) ([]commonModels.ScoredChunk, error) {
	m.DenseCalls.Add(1)
	m.SearchCalls.Add(1)
	if m.OnSearchDense != nil {
		return m.OnSearchDense(ctx, jurisdictionId, vector, limit)
	}
	var out []commonModels.ScoredChunk
	for _, c := range m.all(jurisdictionId) {
		out = append(out, commonModels.ScoredChunk{Chunk: c, Score: vectorDB.CosineSimilarity(vector, c.Embedding)})
	}
	return topScored(out, limit), nil
}

func (m *MockChunkStore) SearchLexical(_ context.Context, jurisdictionId string, query vectorDB.LexicalQuery, limit int) ([]commonModels.ScoredChunk, error) {
	m.SearchCalls.Add(1)
	var out []commonModels.ScoredChunk
	for _, c := range m.all(jurisdictionId) {
		if score := lexical.NewIndex(c.Text).Score(query.Terms, query.Prefix); score > 0 {
			out = append(out, commonModels.ScoredChunk{Chunk: c, Score: score})
		}
	}
	return topScored(out, limit), nil
}

func (m *MockChunkStore) Close() error { return nil }

func topScored(hits []commonModels.ScoredChunk, limit int) []commonModels.ScoredChunk {
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

// BuildPDF writes a minimal uncompressed PDF with one text line per page.
func BuildPDF(pages ...string) []byte {
	var objects []string
	kids := ""
	fontObj := 3 + 2*len(pages)
	for i := range pages {
		kids += fmt.Sprintf("%d 0 R ", 3+2*i)
	}
	objects = append(objects,
		"<< /Type /Catalog /Pages 2 0 R >>",
		fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", kids, len(pages)),
	)
	for i, text := range pages {
		content := fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", text)
		objects = append(objects,
			fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents %d 0 R "+
				"/Resources << /Font << /F1 %d 0 R >> >> >>", 4+2*i, fontObj),
			fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
		)
	}
	objects = append(objects, "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

// MemoryCache implements vectorDB.AnswerCache with exact vector matches.
type MemoryCache struct {
	mu          sync.Mutex
	entries     map[string][]cachedAnswer
	Invalidated []string
}

type cachedAnswer struct {
	language string
	vector   []float32
	answer   commonModels.Answer
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string][]cachedAnswer)}
}

func (m *MemoryCache) Lookup(_ context.Context, jurisdictionId, language string, vector []float32) (commonModels.Answer, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries[jurisdictionId] {
		if e.language == language && sameVector(e.vector, vector) {
			return e.answer, true
		}
	}
	return commonModels.Answer{}, false
}

func (m *MemoryCache) Store(_ context.Context, jurisdictionId, language string, vector []float32, answer commonModels.Answer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[jurisdictionId] = append(m.entries[jurisdictionId], cachedAnswer{language: language, vector: vector, answer: answer})
	return nil
}

func (m *MemoryCache) Invalidate(_ context.Context, jurisdictionId string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, jurisdictionId)
	m.Invalidated = append(m.Invalidated, jurisdictionId)
	return nil
}

func (m *MemoryCache) Len(jurisdictionId string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries[jurisdictionId])
}

func sameVector(a, b []float32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
