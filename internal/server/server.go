package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"sync"

	"github.com/akolanti/CivicRAG/internal/adapter/utils"
	"github.com/akolanti/CivicRAG/internal/config"
	"github.com/akolanti/CivicRAG/internal/middleware"
	"github.com/akolanti/CivicRAG/pkg/logger_i"
)

var (
	server  *http.Server
	_logger = logger_i.NewLogger("Server")
)

type ShutdownParams struct {
	GracefulShutdown chan os.Signal
	StopExecution    chan bool
	WorkerStop       chan bool
	Group            *sync.WaitGroup
	CloseServices    context.CancelFunc
}

// Routes registers every endpoint on the shared router. mcpHandler is optional.
func Routes(mcpHandler http.Handler) http.Handler {
	r := utils.GetRouter()

	r.Router.Get("/health", middleware.GetHandler)
	r.Router.Post("/query", middleware.QueryHandler)
	r.Router.Post("/ingest", middleware.PostIngestHandler)
	r.Router.Get("/documents", middleware.ListDocumentsHandler)
	r.Router.Get("/documents/{id}", middleware.GetDocumentHandler)
	r.Router.Delete("/documents/{id}", middleware.DeleteDocumentHandler)
	r.Router.Delete("/documents", middleware.DeleteDocumentHandler)
	r.Router.Put("/feedback", middleware.PutFeedbackHandler)
	r.Router.Get("/feedback", middleware.ListFeedbackHandler)
	if mcpHandler != nil {
		r.Router.Handle("/mcp", middleware.Wrap(mcpHandler.ServeHTTP))
	}
	return r.Router
}

func CreateServer(listenAddr string, mcpHandler http.Handler) {
	server = &http.Server{
		Addr:         listenAddr,
		Handler:      Routes(mcpHandler),
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	_logger.Info("Server is listening at", "address", listenAddr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		_logger.Error("Server crashed", "error", err.Error(), "addr", listenAddr)
	}
}

// ShutDownHandler waits for a signal, then stops accepting requests, lets the workers drain the
// queue and closes the stores, in that order.
func ShutDownHandler(shutdownParams ShutdownParams) {
	state := <-shutdownParams.GracefulShutdown
	_logger.Info("Server is shutting down", "signal", state.String())

	ctx, cancel := context.WithTimeout(context.Background(), config.ShutdownContextTimeout)
	defer cancel()

	done := make(chan struct{})

	go func() {
		if server != nil {
			server.SetKeepAlivesEnabled(false)
			if err := server.Shutdown(ctx); err != nil {
				_logger.Error("Could not shutdown gracefully", "error", err)
			}
		}

		//close workers
		close(shutdownParams.WorkerStop)
		shutdownParams.Group.Wait()
		shutdownParams.CloseServices()
		close(done)
	}()

	select {
	case <-done:
		_logger.Info("Gracefully shut down")
	case <-ctx.Done():
		_logger.Error("Force shut down, workers did not drain in time")
	}
	close(shutdownParams.StopExecution)
}
