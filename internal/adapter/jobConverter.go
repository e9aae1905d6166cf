package adapter

import (
	"fmt"

	"github.com/akolanti/CivicRAG/internal/api"
	"github.com/akolanti/CivicRAG/internal/domain/commonModels"
)

func ToQueryResponse(answer commonModels.Answer) api.QueryResponse {
	citations := make([]api.Citation, 0, len(answer.Citations))
	for _, c := range answer.Citations {
		citations = append(citations, api.Citation{
			ChunkId:        c.ChunkId,
			DocumentId:     c.DocumentId,
			FileName:       c.FileName,
			PageNumber:     c.PageNumber,
			ParagraphIndex: c.ParagraphIndex,
			Score:          c.Score,
			SourceUri:      c.SourceUri,
		})
	}
	return api.QueryResponse{
		AnswerId:         answer.AnswerId,
		Content:          answer.Content,
		Citations:        citations,
		DetectedLanguage: answer.DetectedLanguage,
		TranslatedQuery:  answer.TranslatedQuery,
		Grounded:         answer.Grounded,
		RetrievalTier:    answer.RetrievalTier,
	}
}

func ToDocumentResponse(doc commonModels.Document) api.DocumentResponse {
	return api.DocumentResponse{
		DocumentId:     doc.Id,
		JurisdictionId: doc.JurisdictionId,
		FileName:       doc.FileName,
		FileType:       string(doc.FileType),
		SourceUri:      doc.SourceUri,
		SourceLanguage: doc.SourceLanguage,
		Status:         string(doc.Status),
		ChunkCount:     doc.ChunkCount,
		SizeBytes:      doc.SizeBytes,
		PageCount:      doc.PageCount,
		Error:          doc.Error,
		UploadedBy:     doc.UploadedBy,
		CreatedAt:      doc.CreatedAt,
		UpdatedAt:      doc.UpdatedAt,
	}
}

func ToDocumentList(docs []commonModels.Document) []api.DocumentResponse {
	out := make([]api.DocumentResponse, 0, len(docs))
	for _, d := range docs {
		out = append(out, ToDocumentResponse(d))
	}
	return out
}

func ToIngestResponse(doc commonModels.Document) api.IngestResponse {
	return api.IngestResponse{
		DocumentId: doc.Id,
		Status:     string(doc.Status),
		StatusURL:  fmt.Sprintf("documents/%s", doc.Id),
		Error:      doc.Error,
	}
}

func ToFeedbackRecord(req api.FeedbackRequest) commonModels.FeedbackRecord {
	return commonModels.FeedbackRecord{
		AnswerId:  req.AnswerId,
		UserQuery: req.UserQuery,
		Verdict:   commonModels.Verdict(req.Verdict),
	}
}

func ToFeedbackList(records []commonModels.FeedbackRecord) []api.FeedbackResponse {
	out := make([]api.FeedbackResponse, 0, len(records))
	for _, r := range records {
		out = append(out, api.FeedbackResponse{
			AnswerId:  r.AnswerId,
			UserQuery: r.UserQuery,
			Verdict:   string(r.Verdict),
			CreatedAt: r.CreatedAt,
		})
	}
	return out
}

func ErrorResponse(code int, message string, retry bool) api.ErrorResponse {
	return api.ErrorResponse{
		Code:    code,
		Message: message,
		Retry:   retry,
	}
}
