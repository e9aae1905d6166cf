package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/akolanti/CivicRAG/internal/api"
	"github.com/akolanti/CivicRAG/internal/config"
	"github.com/akolanti/CivicRAG/internal/domain/commonModels"
	"github.com/akolanti/CivicRAG/internal/domain/jobModel"
	"github.com/akolanti/CivicRAG/internal/domain/ragErrors"
	"github.com/akolanti/CivicRAG/internal/job"
	"github.com/akolanti/CivicRAG/internal/rag"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockRagService records calls and answers with whatever the test scripted.
type MockRagService struct {
	OnQuery    func(p commonModels.Principal, req rag.QueryRequest) (commonModels.Answer, error)
	OnAccept   func(p commonModels.Principal, req rag.IngestRequest) (jobModel.IngestJob, commonModels.Document, error)
	OnIngest   func(job jobModel.IngestJob) (commonModels.Document, error)
	OnGet      func(p commonModels.Principal, id string) (commonModels.Document, error)
	OnList     func(p commonModels.Principal, f jobModel.DocumentFilter) ([]commonModels.Document, error)
	OnDelete   func(p commonModels.Principal, id string) (int, error)
	OnFeedback func(p commonModels.Principal, r commonModels.FeedbackRecord) error
	OnListFb   func(p commonModels.Principal) ([]commonModels.FeedbackRecord, error)
	Deleted    []string
}

func (m *MockRagService) Query(_ context.Context, p commonModels.Principal, req rag.QueryRequest) (commonModels.Answer, error) {
	return m.OnQuery(p, req)
}

func (m *MockRagService) Search(context.Context, commonModels.Principal, rag.QueryRequest) (rag.SearchResult, error) {
	return rag.SearchResult{}, nil
}

func (m *MockRagService) AcceptDocument(_ context.Context, p commonModels.Principal, req rag.IngestRequest) (jobModel.IngestJob, commonModels.Document, error) {
	return m.OnAccept(p, req)
}

func (m *MockRagService) IngestDocument(_ context.Context, j jobModel.IngestJob) (commonModels.Document, error) {
	return m.OnIngest(j)
}

func (m *MockRagService) GetDocument(_ context.Context, p commonModels.Principal, id string) (commonModels.Document, error) {
	return m.OnGet(p, id)
}

func (m *MockRagService) ListDocuments(_ context.Context, p commonModels.Principal, f jobModel.DocumentFilter) ([]commonModels.Document, error) {
	return m.OnList(p, f)
}

func (m *MockRagService) DeleteDocument(_ context.Context, p commonModels.Principal, id string) (int, error) {
	m.Deleted = append(m.Deleted, id)
	if m.OnDelete == nil {
		return 0, nil
	}
	return m.OnDelete(p, id)
}

func (m *MockRagService) SubmitFeedback(_ context.Context, p commonModels.Principal, r commonModels.FeedbackRecord) error {
	return m.OnFeedback(p, r)
}

func (m *MockRagService) ListFeedback(_ context.Context, p commonModels.Principal) ([]commonModels.FeedbackRecord, error) {
	return m.OnListFb(p)
}

var admin = commonModels.Principal{UserId: "admin-1", Role: commonModels.RoleAdmin}

// newTestRouter mounts the handlers the way the server does, with the principal the gateway
// middleware would have resolved.
func newTestRouter(t *testing.T, svc *MockRagService, jobs *job.Service, p commonModels.Principal) *chi.Mux {
	t.Helper()
	if jobs == nil {
		jobs = job.InitJobService(job.ServiceConfig{
			JobChannel:        make(chan jobModel.IngestJob, 10),
			DispatcherChannel: make(chan bool, 1),
		})
	}
	handlerInstance = &RequestHandler{rag: svc, jobs: jobs}

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(commonModels.ContextWithPrincipal(req.Context(), p)))
		})
	})
	r.Post("/query", QueryHandler)
	r.Post("/ingest", PostIngestHandler)
	r.Get("/documents", ListDocumentsHandler)
	r.Get("/documents/{id}", GetDocumentHandler)
	r.Delete("/documents/{id}", DeleteDocumentHandler)
	r.Delete("/documents", DeleteDocumentHandler)
	r.Put("/feedback", PutFeedbackHandler)
	r.Get("/feedback", ListFeedbackHandler)
	return r
}

func serve(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) api.ErrorResponse {
	t.Helper()
	var body api.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func multipartUpload(t *testing.T, fields map[string]string, fileField, fileName string, data []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if fileField != "" {
		fw, err := mw.CreateFormFile(fileField, fileName)
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/ingest", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantCode  int
		wantRetry bool
	}{
		{"invalid", fmt.Errorf("%w: query is required", ragErrors.ErrInvalidRequest), http.StatusBadRequest, false},
		{"unauthorized", ragErrors.ErrUnauthorized, http.StatusUnauthorized, false},
		{"forbidden", ragErrors.ErrForbidden, http.StatusForbidden, false},
		{"not found", ragErrors.ErrDocumentNotFound, http.StatusNotFound, false},
		{"extraction", fmt.Errorf("%w: bad xref", ragErrors.ErrExtractionFailed), http.StatusUnprocessableEntity, false},
		{"empty", ragErrors.ErrEmptyDocument, http.StatusUnprocessableEntity, false},
		{"deadline", fmt.Errorf("query: %w", context.DeadlineExceeded), http.StatusServiceUnavailable, true},
		{"canceled", context.Canceled, http.StatusServiceUnavailable, true},
		{"provider", ragErrors.ErrGenerationProvider, http.StatusServiceUnavailable, false},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, retry := statusOf(tt.err)
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantRetry, retry)
		})
	}
}

func TestQueryHandler(t *testing.T) {
	page := 4
	t.Run("grounded answer", func(t *testing.T) {
		var got rag.QueryRequest
		var gotPrincipal commonModels.Principal
		svc := &MockRagService{OnQuery: func(p commonModels.Principal, req rag.QueryRequest) (commonModels.Answer, error) {
			got, gotPrincipal = req, p
			return commonModels.Answer{
				AnswerId:         "a1",
				Content:          "Section 26 [1]",
				Citations:        []commonModels.Citation{{DocumentId: "d1", FileName: "act.pdf", PageNumber: &page, Score: 0.8}},
				DetectedLanguage: "en",
				TranslatedQuery:  "compensation?",
				Grounded:         true,
				RetrievalTier:    "keyword-exact",
			}, nil
		}}
		r := newTestRouter(t, svc, nil, admin)

		rec := serve(r, httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(`{"query":"compensation?","jurisdictionId":"J1"}`)))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, rag.QueryRequest{Query: "compensation?", JurisdictionId: "J1"}, got)
		assert.Equal(t, admin, gotPrincipal)
		var body api.QueryResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, "a1", body.AnswerId)
		assert.True(t, body.Grounded)
		require.Len(t, body.Citations, 1)
		assert.Equal(t, 4, *body.Citations[0].PageNumber)
	})

	t.Run("refusal keeps an empty citation list", func(t *testing.T) {
		svc := &MockRagService{OnQuery: func(commonModels.Principal, rag.QueryRequest) (commonModels.Answer, error) {
			return commonModels.Answer{AnswerId: "a2", Content: "not found", Citations: []commonModels.Citation{}}, nil
		}}
		rec := serve(newTestRouter(t, svc, nil, admin), httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(`{"query":"weather","jurisdictionId":"J1"}`)))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"citations":[]`)
	})

	t.Run("malformed body", func(t *testing.T) {
		rec := serve(newTestRouter(t, &MockRagService{}, nil, admin), httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(`{"query":`)))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("errors map to status", func(t *testing.T) {
		tests := []struct {
			err       error
			wantCode  int
			wantRetry bool
		}{
			{ragErrors.ErrInvalidRequest, http.StatusBadRequest, false},
			{ragErrors.ErrUnauthorized, http.StatusUnauthorized, false},
			{ragErrors.ErrForbidden, http.StatusForbidden, false},
			{context.DeadlineExceeded, http.StatusServiceUnavailable, true},
		}
		for _, tt := range tests {
			svc := &MockRagService{OnQuery: func(commonModels.Principal, rag.QueryRequest) (commonModels.Answer, error) {
				return commonModels.Answer{}, tt.err
			}}
			rec := serve(newTestRouter(t, svc, nil, admin), httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(`{"query":"q","jurisdictionId":"J1"}`)))

			assert.Equal(t, tt.wantCode, rec.Code, tt.err.Error())
			body := decodeError(t, rec)
			assert.Equal(t, tt.wantCode, body.Code)
			assert.Equal(t, tt.wantRetry, body.Retry)
		}
	})
}

func acceptingService() *MockRagService {
	return &MockRagService{OnAccept: func(p commonModels.Principal, req rag.IngestRequest) (jobModel.IngestJob, commonModels.Document, error) {
		return jobModel.IngestJob{Id: "job-1", DocumentId: "doc-1", JurisdictionId: req.JurisdictionId, FileName: req.FileName},
			commonModels.Document{Id: "doc-1", JurisdictionId: req.JurisdictionId, FileName: req.FileName, Status: commonModels.DocumentProcessing}, nil
	}}
}

func TestPostIngestHandler(t *testing.T) {
	t.Run("queues and answers 202", func(t *testing.T) {
		svc := acceptingService()
		var accepted rag.IngestRequest
		inner := svc.OnAccept
		svc.OnAccept = func(p commonModels.Principal, req rag.IngestRequest) (jobModel.IngestJob, commonModels.Document, error) {
			accepted = req
			return inner(p, req)
		}
		jobs := job.InitJobService(job.ServiceConfig{JobChannel: make(chan jobModel.IngestJob, 1), DispatcherChannel: make(chan bool, 1)})
		r := newTestRouter(t, svc, jobs, admin)

		rec := serve(r, multipartUpload(t, map[string]string{"jurisdictionId": "J1", "sourceLanguage": "hi"}, "file", "act.pdf", []byte("%PDF-1.4")))

		require.Equal(t, http.StatusAccepted, rec.Code)
		var body api.IngestResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, "doc-1", body.DocumentId)
		assert.Equal(t, "processing", body.Status)
		assert.Equal(t, "documents/doc-1", body.StatusURL)

		assert.Equal(t, "J1", accepted.JurisdictionId)
		assert.Equal(t, "act.pdf", accepted.FileName)
		assert.Equal(t, "hi", accepted.SourceLanguage)
		assert.Equal(t, []byte("%PDF-1.4"), accepted.Data)

		queued := <-jobs.JobChannel
		assert.Equal(t, "job-1", queued.Id)
	})

	t.Run("legacy document field", func(t *testing.T) {
		rec := serve(newTestRouter(t, acceptingService(), nil, admin), multipartUpload(t, map[string]string{"jurisdictionId": "J1"}, "document", "act.txt", []byte("text")))
		assert.Equal(t, http.StatusAccepted, rec.Code)
	})

	t.Run("missing file", func(t *testing.T) {
		rec := serve(newTestRouter(t, acceptingService(), nil, admin), multipartUpload(t, map[string]string{"jurisdictionId": "J1"}, "", "", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("bad wait flag", func(t *testing.T) {
		rec := serve(newTestRouter(t, acceptingService(), nil, admin), multipartUpload(t, map[string]string{"jurisdictionId": "J1", "wait": "soon"}, "file", "act.pdf", []byte("x")))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejected upload", func(t *testing.T) {
		svc := &MockRagService{OnAccept: func(commonModels.Principal, rag.IngestRequest) (jobModel.IngestJob, commonModels.Document, error) {
			return jobModel.IngestJob{}, commonModels.Document{}, ragErrors.ErrForbidden
		}}
		rec := serve(newTestRouter(t, svc, nil, admin), multipartUpload(t, map[string]string{"jurisdictionId": "J2"}, "file", "act.pdf", []byte("x")))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("wait returns 201 when ready", func(t *testing.T) {
		svc := acceptingService()
		svc.OnIngest = func(j jobModel.IngestJob) (commonModels.Document, error) {
			return commonModels.Document{Id: j.DocumentId, Status: commonModels.DocumentReady, ChunkCount: 4}, nil
		}
		rec := serve(newTestRouter(t, svc, nil, admin), multipartUpload(t, map[string]string{"jurisdictionId": "J1", "wait": "true"}, "file", "act.pdf", []byte("x")))

		require.Equal(t, http.StatusCreated, rec.Code)
		assert.Contains(t, rec.Body.String(), `"status":"ready"`)
	})

	t.Run("wait returns 422 when extraction fails", func(t *testing.T) {
		svc := acceptingService()
		svc.OnIngest = func(j jobModel.IngestJob) (commonModels.Document, error) {
			return commonModels.Document{Id: j.DocumentId, Status: commonModels.DocumentFailed, Error: "no text extracted from document"}, ragErrors.ErrEmptyDocument
		}
		rec := serve(newTestRouter(t, svc, nil, admin), multipartUpload(t, map[string]string{"jurisdictionId": "J1", "wait": "1"}, "file", "scan.pdf", []byte("x")))

		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		body := decodeError(t, rec)
		assert.Equal(t, "no text extracted from document", body.Message)
		assert.False(t, body.Retry)
	})

	t.Run("full queue rolls back a new document", func(t *testing.T) {
		enqueueTimeout = 10 * time.Millisecond
		t.Cleanup(func() { enqueueTimeout = config.EnqueueTimeout })

		svc := acceptingService()
		// unbuffered with no worker behind it
		jobs := job.InitJobService(job.ServiceConfig{JobChannel: make(chan jobModel.IngestJob), DispatcherChannel: make(chan bool, 1)})
		r := newTestRouter(t, svc, jobs, admin)

		rec := serve(r, multipartUpload(t, map[string]string{"jurisdictionId": "J1"}, "file", "act.pdf", []byte("x")))
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.True(t, decodeError(t, rec).Retry)
		assert.Equal(t, []string{"doc-1"}, svc.Deleted)

		svc.Deleted = nil
		rec = serve(r, multipartUpload(t, map[string]string{"jurisdictionId": "J1", "documentId": "doc-1"}, "file", "act.pdf", []byte("x")))
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Empty(t, svc.Deleted, "a re-ingest keeps the existing document")
	})
}

func TestDocumentHandlers(t *testing.T) {
	t.Run("get", func(t *testing.T) {
		svc := &MockRagService{OnGet: func(p commonModels.Principal, id string) (commonModels.Document, error) {
			if id != "doc-1" {
				return commonModels.Document{}, ragErrors.ErrDocumentNotFound
			}
			return commonModels.Document{Id: id, JurisdictionId: "J1", Status: commonModels.DocumentReady, ChunkCount: 7, SizeBytes: 482113, PageCount: 12}, nil
		}}
		r := newTestRouter(t, svc, nil, admin)

		rec := serve(r, httptest.NewRequest(http.MethodGet, "/documents/doc-1", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		var body api.DocumentResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, 7, body.ChunkCount)
		assert.EqualValues(t, 482113, body.SizeBytes)
		assert.Equal(t, 12, body.PageCount)
		assert.Equal(t, "ready", body.Status)

		rec = serve(r, httptest.NewRequest(http.MethodGet, "/documents/missing", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("list passes the filter", func(t *testing.T) {
		var got jobModel.DocumentFilter
		svc := &MockRagService{OnList: func(p commonModels.Principal, f jobModel.DocumentFilter) ([]commonModels.Document, error) {
			got = f
			return []commonModels.Document{{Id: "doc-1"}, {Id: "doc-2"}}, nil
		}}
		rec := serve(newTestRouter(t, svc, nil, admin), httptest.NewRequest(http.MethodGet, "/documents?jurisdictionId=J1&status=failed", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, jobModel.DocumentFilter{JurisdictionId: "J1", Status: commonModels.DocumentFailed}, got)
		var body []api.DocumentResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Len(t, body, 2)
	})

	t.Run("delete by path and by body", func(t *testing.T) {
		svc := &MockRagService{OnDelete: func(p commonModels.Principal, id string) (int, error) { return 12, nil }}
		r := newTestRouter(t, svc, nil, admin)

		rec := serve(r, httptest.NewRequest(http.MethodDelete, "/documents/doc-1", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"documentId":"doc-1","deletedChunks":12}`, rec.Body.String())

		rec = serve(r, httptest.NewRequest(http.MethodDelete, "/documents", strings.NewReader(`{"documentId":"doc-2"}`)))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []string{"doc-1", "doc-2"}, svc.Deleted)

		rec = serve(r, httptest.NewRequest(http.MethodDelete, "/documents", strings.NewReader(`{}`)))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("delete forbidden", func(t *testing.T) {
		svc := &MockRagService{OnDelete: func(commonModels.Principal, string) (int, error) { return 0, ragErrors.ErrForbidden }}
		rec := serve(newTestRouter(t, svc, nil, admin), httptest.NewRequest(http.MethodDelete, "/documents/doc-1", nil))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestFeedbackHandlers(t *testing.T) {
	t.Run("submit", func(t *testing.T) {
		var got commonModels.FeedbackRecord
		svc := &MockRagService{OnFeedback: func(p commonModels.Principal, r commonModels.FeedbackRecord) error {
			got = r
			return nil
		}}
		rec := serve(newTestRouter(t, svc, nil, admin), httptest.NewRequest(http.MethodPut, "/feedback", strings.NewReader(`{"answerId":"a1","userQuery":"q","verdict":"helpful"}`)))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, commonModels.FeedbackRecord{AnswerId: "a1", UserQuery: "q", Verdict: commonModels.VerdictHelpful}, got)
	})

	t.Run("invalid verdict", func(t *testing.T) {
		svc := &MockRagService{OnFeedback: func(commonModels.Principal, commonModels.FeedbackRecord) error {
			return fmt.Errorf("%w: verdict", ragErrors.ErrInvalidRequest)
		}}
		rec := serve(newTestRouter(t, svc, nil, admin), httptest.NewRequest(http.MethodPut, "/feedback", strings.NewReader(`{"answerId":"a1","verdict":"meh"}`)))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("list", func(t *testing.T) {
		svc := &MockRagService{OnListFb: func(p commonModels.Principal) ([]commonModels.FeedbackRecord, error) {
			if !p.IsAdmin() {
				return nil, ragErrors.ErrForbidden
			}
			return []commonModels.FeedbackRecord{{AnswerId: "a1", Verdict: commonModels.VerdictNotHelpful}}, nil
		}}

		rec := serve(newTestRouter(t, svc, nil, admin), httptest.NewRequest(http.MethodGet, "/feedback", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"verdict":"not_helpful"`)

		consumer := commonModels.Principal{Role: commonModels.RoleConsumer}
		rec = serve(newTestRouter(t, svc, nil, consumer), httptest.NewRequest(http.MethodGet, "/feedback", nil))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}
