package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/akolanti/CivicRAG/internal/adapter"
	"github.com/akolanti/CivicRAG/internal/adapter/utils"
	"github.com/akolanti/CivicRAG/internal/api"
	"github.com/akolanti/CivicRAG/internal/config"
	"github.com/akolanti/CivicRAG/internal/domain/commonModels"
	"github.com/akolanti/CivicRAG/internal/domain/jobModel"
	"github.com/akolanti/CivicRAG/internal/domain/ragErrors"
	"github.com/akolanti/CivicRAG/internal/rag"
)

var enqueueTimeout = config.EnqueueTimeout

func GetHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// QueryHandler godoc
// @Summary      Ask a question about a jurisdiction's documents
// @Description  Answers only from the jurisdiction's documents, in the language the question was asked in. Refusals come back as 200 with grounded=false.
// @Tags         Query
// @Accept       json
// @Produce      json
// @Param        request  body      api.QueryRequest     true  "Question and jurisdiction"
// @Success      200      {object}  api.QueryResponse
// @Failure      400      {object}  api.ErrorResponse  "Missing query or jurisdiction"
// @Failure      401      {object}  api.ErrorResponse
// @Failure      403      {object}  api.ErrorResponse  "Jurisdiction not allowed for this user"
// @Failure      503      {object}  api.ErrorResponse  "Timed out, can be retried"
// @Router       /query [post]
func QueryHandler(w http.ResponseWriter, r *http.Request) {
	if !validateContext(r.Context()) {
		return
	}
	var requestData api.QueryRequest
	if !decodeBody(w, r, &requestData) {
		return
	}

	answer, err := handlerInstance.rag.Query(r.Context(), commonModels.PrincipalFrom(r.Context()), rag.QueryRequest{
		Query:          requestData.Query,
		JurisdictionId: requestData.JurisdictionId,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJsonResponse(w, http.StatusOK, adapter.ToQueryResponse(answer))
}

// PostIngestHandler godoc
// @Summary      Upload a document for ingestion
// @Description  Stores the file and queues it for extraction, chunking and embedding. With wait=true the ingestion runs inside the request.
// @Tags         Documents
// @Accept       multipart/form-data
// @Produce      json
// @Param        file            formData  file    true   "PDF, DOCX, ODT, RTF or TXT"
// @Param        jurisdictionId  formData  string  true   "Owning jurisdiction"
// @Param        sourceLanguage  formData  string  false  "ISO code, detected when empty"
// @Param        documentId      formData  string  false  "Re-ingest this document"
// @Param        wait            formData  bool    false  "Ingest before responding"
// @Success      201  {object}  api.IngestResponse  "Ingested (wait=true)"
// @Success      202  {object}  api.IngestResponse  "Queued"
// @Failure      400  {object}  api.ErrorResponse   "Missing fields, unsupported type or file too large"
// @Failure      403  {object}  api.ErrorResponse
// @Failure      422  {object}  api.ErrorResponse   "Extraction failed or no text (wait=true)"
// @Failure      503  {object}  api.ErrorResponse   "Queue full or timed out"
// @Router       /ingest [post]
func PostIngestHandler(w http.ResponseWriter, r *http.Request) {
	if !validateContext(r.Context()) {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, config.MaxUploadBytes)
	if err := r.ParseMultipartForm(config.MaxUploadBytes); err != nil {
		WriteErrorResponse(w, http.StatusBadRequest, "File too large or bad request", false)
		return
	}

	fileReader, fileMetadata, err := r.FormFile("file")
	if err != nil {
		// older clients send the file as "document"
		fileReader, fileMetadata, err = r.FormFile("document")
	}
	if err != nil {
		WriteErrorResponse(w, http.StatusBadRequest, "Could not retrieve file", false)
		return
	}
	defer fileReader.Close()

	data, err := io.ReadAll(fileReader)
	if err != nil {
		WriteErrorResponse(w, http.StatusBadRequest, "Could not read file", false)
		return
	}

	wait := false
	if v := r.FormValue("wait"); v != "" {
		if wait, err = strconv.ParseBool(v); err != nil {
			WriteErrorResponse(w, http.StatusBadRequest, "wait must be true or false", false)
			return
		}
	}

	ctx := r.Context()
	principal := commonModels.PrincipalFrom(ctx)
	reingest := strings.TrimSpace(r.FormValue("documentId"))
	job, doc, err := handlerInstance.rag.AcceptDocument(ctx, principal, rag.IngestRequest{
		JurisdictionId: r.FormValue("jurisdictionId"),
		FileName:       fileMetadata.Filename,
		SourceLanguage: strings.TrimSpace(r.FormValue("sourceLanguage")),
		DocumentId:     reingest,
		Data:           data,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	if wait {
		ingestInline(w, r, job)
		return
	}

	enqueueCtx, cancel := context.WithTimeout(ctx, enqueueTimeout)
	defer cancel()
	if err := handlerInstance.jobs.Enqueue(enqueueCtx, job); err != nil {
		logRH.WithTrace(ctx).Error("Could not queue accepted document", "documentId", doc.Id, "error", err)
		if reingest == "" {
			// drop the record no worker will ever pick up
			if _, err := handlerInstance.rag.DeleteDocument(context.WithoutCancel(ctx), principal, doc.Id); err != nil {
				logRH.WithTrace(ctx).Error("Could not roll back unqueued document", "documentId", doc.Id, "error", err)
			}
		}
		WriteErrorResponse(w, http.StatusServiceUnavailable, "ingestion queue is full", true)
		return
	}
	writeJsonResponse(w, http.StatusAccepted, adapter.ToIngestResponse(doc))
}

func ingestInline(w http.ResponseWriter, r *http.Request, job jobModel.IngestJob) {
	ctx, cancel := context.WithTimeout(r.Context(), config.IngestionTimeout)
	defer cancel()

	doc, err := handlerInstance.rag.IngestDocument(ctx, job)
	switch {
	case doc.Status == commonModels.DocumentReady:
		writeJsonResponse(w, http.StatusCreated, adapter.ToIngestResponse(doc))
	case doc.Status == commonModels.DocumentFailed:
		message := doc.Error
		if message == "" && err != nil {
			message = err.Error()
		}
		WriteErrorResponse(w, http.StatusUnprocessableEntity, message, ragErrors.IsRetryable(err))
	case err != nil:
		writeError(w, r, err)
	default:
		writeJsonResponse(w, http.StatusAccepted, adapter.ToIngestResponse(doc))
	}
}

// GetDocumentHandler godoc
// @Summary      Get a document's ingestion status
// @Tags         Documents
// @Produce      json
// @Param        id   path      string  true  "Document ID"
// @Success      200  {object}  api.DocumentResponse
// @Failure      403  {object}  api.ErrorResponse
// @Failure      404  {object}  api.ErrorResponse
// @Router       /documents/{id} [get]
func GetDocumentHandler(w http.ResponseWriter, r *http.Request) {
	if !validateContext(r.Context()) {
		return
	}
	id := utils.GetChiURLParam(r, "id")
	doc, err := handlerInstance.rag.GetDocument(r.Context(), commonModels.PrincipalFrom(r.Context()), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJsonResponse(w, http.StatusOK, adapter.ToDocumentResponse(doc))
}

// ListDocumentsHandler godoc
// @Summary      List documents the caller manages
// @Tags         Documents
// @Produce      json
// @Param        jurisdictionId  query     string  false  "Only this jurisdiction"
// @Param        status          query     string  false  "processing, ready or failed"
// @Success      200  {array}   api.DocumentResponse
// @Failure      403  {object}  api.ErrorResponse
// @Router       /documents [get]
func ListDocumentsHandler(w http.ResponseWriter, r *http.Request) {
	if !validateContext(r.Context()) {
		return
	}
	filter := jobModel.DocumentFilter{
		JurisdictionId: r.URL.Query().Get("jurisdictionId"),
		Status:         commonModels.DocumentStatus(r.URL.Query().Get("status")),
	}
	docs, err := handlerInstance.rag.ListDocuments(r.Context(), commonModels.PrincipalFrom(r.Context()), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJsonResponse(w, http.StatusOK, adapter.ToDocumentList(docs))
}

// DeleteDocumentHandler godoc
// @Summary      Delete a document and every chunk derived from it
// @Tags         Documents
// @Produce      json
// @Param        id   path      string  true  "Document ID"
// @Success      200  {object}  api.DeleteResponse
// @Failure      403  {object}  api.ErrorResponse
// @Failure      404  {object}  api.ErrorResponse
// @Router       /documents/{id} [delete]
func DeleteDocumentHandler(w http.ResponseWriter, r *http.Request) {
	if !validateContext(r.Context()) {
		return
	}
	id := utils.GetChiURLParam(r, "id")
	if id == "" {
		var requestData api.DeleteDocumentRequest
		if !decodeBody(w, r, &requestData) {
			return
		}
		id = requestData.DocumentId
	}
	if strings.TrimSpace(id) == "" {
		WriteErrorResponse(w, http.StatusBadRequest, "documentId is required", false)
		return
	}

	deleted, err := handlerInstance.rag.DeleteDocument(r.Context(), commonModels.PrincipalFrom(r.Context()), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJsonResponse(w, http.StatusOK, api.DeleteResponse{DocumentId: id, DeletedChunks: deleted})
}

// PutFeedbackHandler godoc
// @Summary      Rate an answer
// @Tags         Feedback
// @Accept       json
// @Produce      json
// @Param        request  body      api.FeedbackRequest  true  "answerId from the query response and a verdict"
// @Success      200      {object}  api.AckResponse
// @Failure      400      {object}  api.ErrorResponse
// @Failure      401      {object}  api.ErrorResponse
// @Router       /feedback [put]
func PutFeedbackHandler(w http.ResponseWriter, r *http.Request) {
	if !validateContext(r.Context()) {
		return
	}
	var requestData api.FeedbackRequest
	if !decodeBody(w, r, &requestData) {
		return
	}
	err := handlerInstance.rag.SubmitFeedback(r.Context(), commonModels.PrincipalFrom(r.Context()), adapter.ToFeedbackRecord(requestData))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJsonResponse(w, http.StatusOK, api.AckResponse{Status: "recorded"})
}

// ListFeedbackHandler godoc
// @Summary      List all feedback
// @Description  Admins only.
// @Tags         Feedback
// @Produce      json
// @Success      200  {array}   api.FeedbackResponse
// @Failure      403  {object}  api.ErrorResponse
// @Router       /feedback [get]
func ListFeedbackHandler(w http.ResponseWriter, r *http.Request) {
	if !validateContext(r.Context()) {
		return
	}
	records, err := handlerInstance.rag.ListFeedback(r.Context(), commonModels.PrincipalFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJsonResponse(w, http.StatusOK, adapter.ToFeedbackList(records))
}

func decodeBody(w http.ResponseWriter, r *http.Request, target any) bool {
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			logRH.Error("Couldn't close the request body", "error", err)
		}
	}(r.Body)

	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			err = errors.New("empty body")
		}
		logRH.WithTrace(r.Context()).Warn("Bad request body", "path", r.URL.Path, "error", err)
		WriteErrorResponse(w, http.StatusBadRequest, fmt.Sprintf("Bad Request: %v", err), false)
		return false
	}
	return true
}
