package commonModels

import "time"

type DocType string

var PDF DocType = "pdf"
var DOCX DocType = "docx"
var ODT DocType = "odt"
var RTF DocType = "rtf"
var TXT DocType = "txt"
var ERR DocType = "error"

type DocumentStatus string

const (
	DocumentProcessing DocumentStatus = "processing"
	DocumentReady      DocumentStatus = "ready"
	DocumentFailed     DocumentStatus = "failed"
)

// Document is the record owning an uploaded file and every chunk derived from it.
type Document struct {
	Id             string         `json:"documentId"`
	JurisdictionId string         `json:"jurisdictionId"`
	FileName       string         `json:"fileName"`
	FileType       DocType        `json:"fileType"`
	SourceUri      string         `json:"sourceUri"`
	SourceLanguage string         `json:"sourceLanguage,omitempty"`
	Status         DocumentStatus `json:"status"`
	ChunkCount     int            `json:"chunkCount"`
	SizeBytes      int64          `json:"sizeBytes"`
	PageCount      int            `json:"pageCount,omitempty"`
	Error          string         `json:"error,omitempty"`
	UploadedBy     string         `json:"uploadedBy,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

// Chunk is the atomic retrievable unit. Immutable after insert, removed only with its document.
type Chunk struct {
	Id             string `json:"id"`
	DocumentId     string `json:"documentId"`
	JurisdictionId string `json:"jurisdictionId"`
	SequenceIndex  int    `json:"sequenceIndex"`
	// nil when the page could not be attributed
	PageNumber     *int      `json:"pageNumber,omitempty"`
	ParagraphIndex int       `json:"paragraphIndex"`
	Text           string    `json:"text"`
	OriginalText   *string   `json:"originalText,omitempty"`
	SourceLanguage string    `json:"sourceLanguage"`
	FileName       string    `json:"fileName"`
	SourceUri      string    `json:"sourceUri"`
	EmbeddingModel string    `json:"embeddingModel"`
	Embedding      []float32 `json:"-"`
	CreatedAt      time.Time `json:"createdAt"`
}

// ScoredChunk is a chunk returned by one of the store's search primitives.
// Score is cosine similarity for dense hits and a relevance score (higher is better) for lexical hits.
type ScoredChunk struct {
	Chunk Chunk
	Score float64
}

type Citation struct {
	ChunkId        string  `json:"chunkId"`
	DocumentId     string  `json:"documentId"`
	FileName       string  `json:"fileName"`
	PageNumber     *int    `json:"pageNumber,omitempty"`
	ParagraphIndex int     `json:"paragraphIndex"`
	SequenceIndex  int     `json:"sequenceIndex"`
	Score          float64 `json:"score"`
	SourceUri      string  `json:"sourceUri"`
}

// Answer is what a query produces, refusals included.
type Answer struct {
	AnswerId         string     `json:"answerId"`
	Content          string     `json:"content"`
	Citations        []Citation `json:"citations"`
	DetectedLanguage string     `json:"detectedLanguage"`
	TranslatedQuery  string     `json:"translatedQuery"`
	Grounded         bool       `json:"grounded"`
	RetrievalTier    string     `json:"retrievalTier,omitempty"`
	Reason           string     `json:"reason,omitempty"`
}

type Verdict string

const (
	VerdictHelpful    Verdict = "helpful"
	VerdictNotHelpful Verdict = "not_helpful"
)

func (v Verdict) Valid() bool {
	return v == VerdictHelpful || v == VerdictNotHelpful
}

// FeedbackRecord is append only.
type FeedbackRecord struct {
	AnswerId  string    `json:"answerId"`
	UserQuery string    `json:"userQuery"`
	Verdict   Verdict   `json:"verdict"`
	CreatedAt time.Time `json:"createdAt"`
}
