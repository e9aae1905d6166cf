package mcpserver

import (
	"context"
	"net/http"
	"testing"

	"github.com/akolanti/CivicRAG/internal/domain/commonModels"
	"github.com/akolanti/CivicRAG/internal/domain/ragErrors"
	"github.com/akolanti/CivicRAG/internal/rag"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockSearcher struct {
	seen    []commonModels.Principal
	answer  commonModels.Answer
	result  rag.SearchResult
	err     error
	queries []rag.QueryRequest
}

func (m *mockSearcher) Query(_ context.Context, p commonModels.Principal, req rag.QueryRequest) (commonModels.Answer, error) {
	m.seen = append(m.seen, p)
	m.queries = append(m.queries, req)
	return m.answer, m.err
}

func (m *mockSearcher) Search(_ context.Context, p commonModels.Principal, req rag.QueryRequest) (rag.SearchResult, error) {
	m.seen = append(m.seen, p)
	m.queries = append(m.queries, req)
	return m.result, m.err
}

func page(n int) *int { return &n }

func headerResolver(h http.Header) commonModels.Principal {
	return commonModels.Principal{UserId: h.Get("X-User-Id"), Role: commonModels.Role(h.Get("X-User-Role"))}
}

func TestNewServer(t *testing.T) {
	t.Run("nil service returns error", func(t *testing.T) {
		server, err := NewServer(nil, nil)
		assert.ErrorIs(t, err, ErrMissingService)
		assert.Nil(t, server)
	})

	t.Run("valid service creates server with handler", func(t *testing.T) {
		server, err := NewServer(&mockSearcher{}, headerResolver)
		require.NoError(t, err)
		assert.NotNil(t, server.Handler())
	})
}

func TestServer_handleSearch(t *testing.T) {
	admin := commonModels.Principal{UserId: "u1", Role: commonModels.RoleAdmin}
	ctx := commonModels.ContextWithPrincipal(context.Background(), admin)

	passages := []rag.Passage{
		{Citation: commonModels.Citation{DocumentId: "doc-1", FileName: "act.pdf", PageNumber: page(3), Score: 0.9}, Text: "Section 26 compensation"},
		{Citation: commonModels.Citation{DocumentId: "doc-1", FileName: "act.pdf", PageNumber: page(4), Score: 0.7}, Text: "Section 27"},
	}

	t.Run("returns passages and uses the context principal", func(t *testing.T) {
		svc := &mockSearcher{result: rag.SearchResult{DetectedLanguage: "en", RetrievalTier: "keyword-exact", Passages: passages}}
		server, err := NewServer(svc, headerResolver)
		require.NoError(t, err)

		_, output, err := server.handleSearch(ctx, nil, SearchInput{Query: "compensation", JurisdictionId: "j1"})
		require.NoError(t, err)
		assert.Equal(t, 2, output.Count)
		assert.Equal(t, "keyword-exact", output.RetrievalTier)
		assert.Equal(t, "Section 26 compensation", output.Passages[0].Text)
		assert.Equal(t, 3, *output.Passages[0].PageNumber)
		assert.Equal(t, []commonModels.Principal{admin}, svc.seen)
		assert.Equal(t, "j1", svc.queries[0].JurisdictionId)
	})

	t.Run("limit truncates", func(t *testing.T) {
		server, err := NewServer(&mockSearcher{result: rag.SearchResult{Passages: passages}}, nil)
		require.NoError(t, err)

		_, output, err := server.handleSearch(ctx, nil, SearchInput{Query: "q", JurisdictionId: "j1", Limit: 1})
		require.NoError(t, err)
		assert.Equal(t, 1, output.Count)
		assert.Equal(t, "doc-1", output.Passages[0].DocumentId)
	})

	t.Run("request headers win over context", func(t *testing.T) {
		svc := &mockSearcher{}
		server, err := NewServer(svc, headerResolver)
		require.NoError(t, err)

		req := &mcp.CallToolRequest{Extra: &mcp.RequestExtra{Header: http.Header{
			"X-User-Id":   []string{"u2"},
			"X-User-Role": []string{"consumer"},
		}}}
		_, _, err = server.handleSearch(ctx, req, SearchInput{Query: "q", JurisdictionId: "j1"})
		require.NoError(t, err)
		assert.Equal(t, commonModels.Principal{UserId: "u2", Role: commonModels.RoleConsumer}, svc.seen[0])
	})

	t.Run("authorization error is returned", func(t *testing.T) {
		server, err := NewServer(&mockSearcher{err: ragErrors.ErrForbidden}, nil)
		require.NoError(t, err)

		_, _, err = server.handleSearch(ctx, nil, SearchInput{Query: "q", JurisdictionId: "j2"})
		assert.ErrorIs(t, err, ragErrors.ErrForbidden)
	})
}

func TestServer_handleAsk(t *testing.T) {
	ctx := commonModels.ContextWithPrincipal(context.Background(), commonModels.Principal{Role: commonModels.RoleConsumer})

	t.Run("returns the grounded answer", func(t *testing.T) {
		answer := commonModels.Answer{
			AnswerId:         "a1",
			Content:          "Compensation is paid under Section 26 [1]",
			Grounded:         true,
			DetectedLanguage: "en",
			RetrievalTier:    "keyword-exact",
			Citations:        []commonModels.Citation{{DocumentId: "doc-1", PageNumber: page(3)}},
		}
		server, err := NewServer(&mockSearcher{answer: answer}, nil)
		require.NoError(t, err)

		_, output, err := server.handleAsk(ctx, nil, AskInput{Query: "compensation?", JurisdictionId: "j1"})
		require.NoError(t, err)
		assert.Equal(t, "a1", output.AnswerId)
		assert.True(t, output.Grounded)
		assert.Len(t, output.Citations, 1)
	})

	t.Run("refusal is not an error", func(t *testing.T) {
		server, err := NewServer(&mockSearcher{answer: commonModels.Answer{AnswerId: "a2", Content: "not found", Citations: []commonModels.Citation{}}}, nil)
		require.NoError(t, err)

		_, output, err := server.handleAsk(ctx, nil, AskInput{Query: "weather?", JurisdictionId: "j1"})
		require.NoError(t, err)
		assert.False(t, output.Grounded)
		assert.Empty(t, output.Citations)
	})

	t.Run("timeout is returned", func(t *testing.T) {
		server, err := NewServer(&mockSearcher{err: context.DeadlineExceeded}, nil)
		require.NoError(t, err)

		_, _, err = server.handleAsk(ctx, nil, AskInput{Query: "q", JurisdictionId: "j1"})
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}
