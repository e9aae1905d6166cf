package handlers

import (
	"sync"

	"github.com/akolanti/CivicRAG/internal/job"
	"github.com/akolanti/CivicRAG/internal/rag"
	"github.com/akolanti/CivicRAG/pkg/logger_i"
)

var (
	handlerInstance *RequestHandler //private singleton
	once            sync.Once
	logRH           = logger_i.NewLogger("RequestHandler")
)

// RequestHandler is what every route reaches the rag service and the worker queue through.
type RequestHandler struct {
	rag  rag.Service
	jobs *job.Service
}

func InitHandlers(ragService rag.Service, jobService *job.Service) {
	once.Do(func() {
		handlerInstance = &RequestHandler{rag: ragService, jobs: jobService}
		logRH.Info("Starting request handlers")
	})
}
