package api

import "time"

type ErrorResponse struct {
	Code    int    `json:"code" example:"404"`
	Message string `json:"message" example:"document not found"`
	Retry   bool   `json:"can_retry" example:"false"`
}

type Citation struct {
	ChunkId        string  `json:"chunkId"`
	DocumentId     string  `json:"documentId"`
	FileName       string  `json:"fileName" example:"land-acquisition-act.pdf"`
	PageNumber     *int    `json:"pageNumber,omitempty" example:"12"`
	ParagraphIndex int     `json:"paragraphIndex" example:"3"`
	Score          float64 `json:"score" example:"0.82"`
	SourceUri      string  `json:"sourceUri"`
}

type QueryResponse struct {
	AnswerId         string     `json:"answerId"`
	Content          string     `json:"content"`
	Citations        []Citation `json:"citations"`
	DetectedLanguage string     `json:"detectedLanguage" example:"hi"`
	TranslatedQuery  string     `json:"translatedQuery"`
	Grounded         bool       `json:"grounded"`
	RetrievalTier    string     `json:"retrievalTier,omitempty" example:"keyword-exact"`
}

type DocumentResponse struct {
	DocumentId     string    `json:"documentId"`
	JurisdictionId string    `json:"jurisdictionId"`
	FileName       string    `json:"fileName"`
	FileType       string    `json:"fileType" example:"pdf"`
	SourceUri      string    `json:"sourceUri"`
	SourceLanguage string    `json:"sourceLanguage,omitempty"`
	Status         string    `json:"status" example:"ready"`
	ChunkCount     int       `json:"chunkCount"`
	SizeBytes      int64     `json:"sizeBytes" example:"482113"`
	PageCount      int       `json:"pageCount,omitempty" example:"12"`
	Error          string    `json:"error,omitempty"`
	UploadedBy     string    `json:"uploadedBy,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

type IngestResponse struct {
	DocumentId string `json:"documentId"`
	Status     string `json:"status" example:"processing"`
	StatusURL  string `json:"status_url,omitempty" example:"documents/7c9e6679"`
	Error      string `json:"error,omitempty"`
}

type DeleteResponse struct {
	DocumentId    string `json:"documentId"`
	DeletedChunks int    `json:"deletedChunks"`
}

type FeedbackResponse struct {
	AnswerId  string    `json:"answerId"`
	UserQuery string    `json:"userQuery"`
	Verdict   string    `json:"verdict"`
	CreatedAt time.Time `json:"createdAt"`
}

type AckResponse struct {
	Status string `json:"status" example:"recorded"`
}

// requests---------------------

type QueryRequest struct {
	Query          string `json:"query" validate:"required"`
	JurisdictionId string `json:"jurisdictionId" validate:"required"`
}

type FeedbackRequest struct {
	AnswerId  string `json:"answerId" validate:"required"`
	UserQuery string `json:"userQuery"`
	Verdict   string `json:"verdict" validate:"required" example:"helpful"`
}

type DeleteDocumentRequest struct {
	DocumentId string `json:"documentId" validate:"required"`
}
