// @title           CivicRAG API
// @version         1.0
// @description     Jurisdiction scoped question answering over uploaded public documents
// @termsOfService  http://swagger.io/terms/

// @contact.name    CivicRAG maintainers
// @contact.url
// @contact.email

// @license.name    Apache 2.0
// @license.url     http://www.apache.org/licenses/LICENSE-2.0.html

// @host      localhost:3000
// @BasePath  /
// @schemes   http https
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/akolanti/CivicRAG/internal/app"
	"github.com/akolanti/CivicRAG/internal/config"
	"github.com/akolanti/CivicRAG/internal/domain/jobModel"
	"github.com/akolanti/CivicRAG/internal/handlers"
	"github.com/akolanti/CivicRAG/internal/job"
	"github.com/akolanti/CivicRAG/internal/mcpserver"
	"github.com/akolanti/CivicRAG/internal/middleware"
	"github.com/akolanti/CivicRAG/internal/server"
	"github.com/akolanti/CivicRAG/internal/worker"
	"github.com/akolanti/CivicRAG/pkg/logger_i"
)

var (
	listenAddr        string
	stopWorkerChannel chan bool
	workerWaitGroup   sync.WaitGroup
)

func main() {

	logger_i.Init(config.IS_PROD, config.LOG_LEVEL_PROD)
	var logger = logger_i.NewLogger("main")

	//config
	settings := config.LoadSettings()
	flag.StringVar(&listenAddr, "listen-addr", settings.ListenAddr, "server listen address")
	flag.StringVar(&settings.TuningFile, "tuning", settings.TuningFile, "YAML file with retrieval tuning, reloaded on change")
	flag.Parse()

	middleware.InitAuth(settings.AuthToken, settings.NoAuthBypass)
	if settings.NoAuthBypass {
		logger.Warn("Bearer authentication is disabled")
	}

	//init buffered job channel
	jobChannel := make(chan jobModel.IngestJob, config.BufferLimit)
	dispatcherChannel := make(chan bool, 1)
	stopWorkerChannel = make(chan bool, 1)

	serviceContext, closeExternalServices := context.WithCancel(context.Background())
	defer closeExternalServices()

	logger.Info("Starting job service")
	jobService := job.InitJobService(job.ServiceConfig{
		JobChannel:        jobChannel,
		DispatcherChannel: dispatcherChannel,
	})

	application, err := app.Build(serviceContext, settings)
	if err != nil {
		logger.Error("One or more external services failed to initialize. Shutting down.", "error", err)
		return
	}

	handlers.InitHandlers(application.Service, jobService)

	//init worker pool
	worker.InitServices(jobService, application.Service)
	worker.InitWorkerPool(stopWorkerChannel, &workerWaitGroup)

	mcpServer, err := mcpserver.NewServer(application.Service, middleware.ParsePrincipal)
	if err != nil {
		logger.Error("Could not start the MCP server", "error", err)
		return
	}

	//server handling
	gracefulShutdown := make(chan os.Signal, 1)
	signal.Notify(gracefulShutdown, syscall.SIGINT, syscall.SIGTERM)
	stopExecution := make(chan bool, 1)

	shutdownParams := server.ShutdownParams{
		GracefulShutdown: gracefulShutdown,
		StopExecution:    stopExecution,
		WorkerStop:       stopWorkerChannel,
		Group:            &workerWaitGroup,
		CloseServices: func() {
			application.Close()
			closeExternalServices()
		},
	}
	go server.ShutDownHandler(shutdownParams)
	go server.CreateServer(listenAddr, mcpServer.Handler())

	<-stopExecution
	logger.Info("Server stopped")
}
