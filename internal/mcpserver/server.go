package mcpserver

import (
	"context"
	"errors"
	"net/http"

	"github.com/akolanti/CivicRAG/internal/domain/commonModels"
	"github.com/akolanti/CivicRAG/internal/rag"
	"github.com/akolanti/CivicRAG/pkg/logger_i"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Version is the MCP server version.
const Version = "1.0.0"

var ErrMissingService = errors.New("mcp server needs a rag service")

// Searcher is the part of the rag service the tools call.
type Searcher interface {
	Query(ctx context.Context, p commonModels.Principal, req rag.QueryRequest) (commonModels.Answer, error)
	Search(ctx context.Context, p commonModels.Principal, req rag.QueryRequest) (rag.SearchResult, error)
}

// PrincipalResolver turns the forwarded identity headers into a Principal.
type PrincipalResolver func(http.Header) commonModels.Principal

// Server exposes retrieval and grounded answers as MCP tools, with the same authorization as the
// REST routes.
type Server struct {
	service Searcher
	resolve PrincipalResolver
	server  *mcp.Server
	logger  *logger_i.Logger
}

func NewServer(service Searcher, resolve PrincipalResolver) (*Server, error) {
	if service == nil {
		return nil, ErrMissingService
	}
	s := &Server{
		service: service,
		resolve: resolve,
		server: mcp.NewServer(&mcp.Implementation{
			Name:    "civic-rag",
			Version: Version,
		}, nil),
		logger: logger_i.NewLogger("MCP"),
	}
	s.registerTools()
	return s, nil
}

// Handler serves the streamable HTTP transport, mounted at /mcp.
func (s *Server) Handler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(_ *http.Request) *mcp.Server {
		return s.server
	}, nil)
}

// principal prefers the headers of the HTTP request carrying the call and falls back to whatever
// the middleware put on ctx.
func (s *Server) principal(ctx context.Context, req *mcp.CallToolRequest) commonModels.Principal {
	if s.resolve != nil && req != nil && req.Extra != nil && req.Extra.Header != nil {
		if p := s.resolve(req.Extra.Header); p.Role != "" {
			return p
		}
	}
	return commonModels.PrincipalFrom(ctx)
}
