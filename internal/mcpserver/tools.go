package mcpserver

import (
	"context"

	"github.com/akolanti/CivicRAG/internal/domain/commonModels"
	"github.com/akolanti/CivicRAG/internal/rag"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type SearchInput struct {
	Query          string `json:"query" jsonschema:"the question or search terms, in any supported language"`
	JurisdictionId string `json:"jurisdictionId" jsonschema:"the jurisdiction whose documents are searched"`
	Limit          int    `json:"limit,omitempty" jsonschema:"maximum number of passages to return"`
}

type PassageOutput struct {
	DocumentId     string  `json:"documentId"`
	FileName       string  `json:"fileName"`
	PageNumber     *int    `json:"pageNumber,omitempty"`
	ParagraphIndex int     `json:"paragraphIndex"`
	Score          float64 `json:"score"`
	SourceUri      string  `json:"sourceUri"`
	Text           string  `json:"text"`
}

type SearchOutput struct {
	DetectedLanguage string          `json:"detectedLanguage"`
	TranslatedQuery  string          `json:"translatedQuery"`
	RetrievalTier    string          `json:"retrievalTier"`
	Passages         []PassageOutput `json:"passages"`
	Count            int             `json:"count"`
}

type AskInput struct {
	Query          string `json:"query" jsonschema:"the question, in any supported language"`
	JurisdictionId string `json:"jurisdictionId" jsonschema:"the jurisdiction whose documents answer it"`
}

type AskOutput struct {
	AnswerId         string                  `json:"answerId"`
	Content          string                  `json:"content"`
	Grounded         bool                    `json:"grounded"`
	DetectedLanguage string                  `json:"detectedLanguage"`
	RetrievalTier    string                  `json:"retrievalTier,omitempty"`
	Citations        []commonModels.Citation `json:"citations"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search_documents",
		Description: "Find passages in a jurisdiction's documents without generating an answer",
	}, s.handleSearch)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "ask_documents",
		Description: "Answer a question strictly from a jurisdiction's documents, with citations",
	}, s.handleAsk)
}

func (s *Server) handleSearch(ctx context.Context, req *mcp.CallToolRequest, input SearchInput) (*mcp.CallToolResult, SearchOutput, error) {
	result, err := s.service.Search(ctx, s.principal(ctx, req), rag.QueryRequest{
		Query:          input.Query,
		JurisdictionId: input.JurisdictionId,
	})
	if err != nil {
		s.logger.WithTrace(ctx).Warn("search_documents failed", "jurisdictionId", input.JurisdictionId, "error", err)
		return nil, SearchOutput{}, err
	}

	passages := result.Passages
	if input.Limit > 0 && len(passages) > input.Limit {
		passages = passages[:input.Limit]
	}
	output := SearchOutput{
		DetectedLanguage: result.DetectedLanguage,
		TranslatedQuery:  result.TranslatedQuery,
		RetrievalTier:    result.RetrievalTier,
		Passages:         make([]PassageOutput, len(passages)),
		Count:            len(passages),
	}
	for i, p := range passages {
		output.Passages[i] = PassageOutput{
			DocumentId:     p.DocumentId,
			FileName:       p.FileName,
			PageNumber:     p.PageNumber,
			ParagraphIndex: p.ParagraphIndex,
			Score:          p.Score,
			SourceUri:      p.SourceUri,
			Text:           p.Text,
		}
	}
	return nil, output, nil
}

func (s *Server) handleAsk(ctx context.Context, req *mcp.CallToolRequest, input AskInput) (*mcp.CallToolResult, AskOutput, error) {
	answer, err := s.service.Query(ctx, s.principal(ctx, req), rag.QueryRequest{
		Query:          input.Query,
		JurisdictionId: input.JurisdictionId,
	})
	if err != nil {
		s.logger.WithTrace(ctx).Warn("ask_documents failed", "jurisdictionId", input.JurisdictionId, "error", err)
		return nil, AskOutput{}, err
	}
	return nil, AskOutput{
		AnswerId:         answer.AnswerId,
		Content:          answer.Content,
		Grounded:         answer.Grounded,
		DetectedLanguage: answer.DetectedLanguage,
		RetrievalTier:    answer.RetrievalTier,
		Citations:        answer.Citations,
	}, nil
}
