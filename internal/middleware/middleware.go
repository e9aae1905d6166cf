package middleware

import (
	"net/http"
	"strconv"

	"github.com/akolanti/CivicRAG/internal/adapter/utils"
	"github.com/akolanti/CivicRAG/internal/handlers"
	"github.com/akolanti/CivicRAG/internal/metrics"
	"github.com/akolanti/CivicRAG/pkg/logger_i"
)

type requestResponseStruct struct {
	writer     http.ResponseWriter
	req        *http.Request
	badRequest failureStruct
	logger     *logger_i.Logger
}

type failureStruct struct {
	isBadRequest bool
	httpCode     int
	errorMessage string
	retry        bool
}

var GetHandler = Wrap(handlers.GetHandler)

var QueryHandler = Wrap(handlers.QueryHandler)
var PostIngestHandler = Wrap(handlers.PostIngestHandler)
var GetDocumentHandler = Wrap(handlers.GetDocumentHandler)
var ListDocumentsHandler = Wrap(handlers.ListDocumentsHandler)
var DeleteDocumentHandler = Wrap(handlers.DeleteDocumentHandler)
var PutFeedbackHandler = Wrap(handlers.PutFeedbackHandler)
var ListFeedbackHandler = Wrap(handlers.ListFeedbackHandler)

func Wrap(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec := &metrics.HttpStatusRecorder{ResponseWriter: w, Status: 200} //metrics
		re := processRequest(requestResponseStruct{req: r, writer: rec})

		if !handleBadRequest(re) {
			metrics.HttpRequestsTotal.WithLabelValues(utils.GetRoutePattern(r), strconv.Itoa(rec.Status)).Inc()
			return
		}
		next(rec, re.req)

		metrics.HttpRequestsTotal.WithLabelValues(utils.GetRoutePattern(r), strconv.Itoa(rec.Status)).Inc() //metrics
	}
}

// processRequest runs the checks in order and stops at the first failure.
func processRequest(re requestResponseStruct) requestResponseStruct {
	re.logger = logger_i.NewLogger("middleware")
	re.logger.Debug("New request received")
	for _, step := range []func(requestResponseStruct) requestResponseStruct{injectTrace, authenticate, rateLimiter, resolvePrincipal} {
		re = step(re)
		if re.badRequest.isBadRequest {
			return re
		}
	}
	return re
}
