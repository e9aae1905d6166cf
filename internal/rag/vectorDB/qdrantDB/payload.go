package qdrantDB

import (
	"time"

	"github.com/akolanti/CivicRAG/internal/domain/commonModels"
	"github.com/qdrant/go-client/qdrant"
)

// toPayload leaves nullable fields out instead of storing nulls.
func toPayload(c commonModels.Chunk) map[string]any {
	payload := map[string]any{
		"document_id":     c.DocumentId,
		"jurisdiction_id": c.JurisdictionId,
		"sequence_index":  int64(c.SequenceIndex),
		"paragraph_index": int64(c.ParagraphIndex),
		"text":            c.Text,
		"source_language": c.SourceLanguage,
		"file_name":       c.FileName,
		"source_uri":      c.SourceUri,
		"embedding_model": c.EmbeddingModel,
		"created_at":      c.CreatedAt.Unix(),
	}
	if c.PageNumber != nil {
		payload["page_number"] = int64(*c.PageNumber)
	}
	if c.OriginalText != nil {
		payload["original_text"] = *c.OriginalText
	}
	return payload
}

func fromPayload(id string, payload map[string]*qdrant.Value) commonModels.Chunk {
	c := commonModels.Chunk{
		Id:             id,
		DocumentId:     payload["document_id"].GetStringValue(),
		JurisdictionId: payload["jurisdiction_id"].GetStringValue(),
		SequenceIndex:  int(payload["sequence_index"].GetIntegerValue()),
		ParagraphIndex: int(payload["paragraph_index"].GetIntegerValue()),
		Text:           payload["text"].GetStringValue(),
		SourceLanguage: payload["source_language"].GetStringValue(),
		FileName:       payload["file_name"].GetStringValue(),
		SourceUri:      payload["source_uri"].GetStringValue(),
		EmbeddingModel: payload["embedding_model"].GetStringValue(),
		CreatedAt:      time.Unix(payload["created_at"].GetIntegerValue(), 0).UTC(),
	}
	if v, ok := payload["page_number"]; ok {
		page := int(v.GetIntegerValue())
		c.PageNumber = &page
	}
	if v, ok := payload["original_text"]; ok {
		original := v.GetStringValue()
		c.OriginalText = &original
	}
	return c
}
