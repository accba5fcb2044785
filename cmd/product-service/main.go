package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/iyhunko/products-crud/internal/config"
	httpAPI "github.com/iyhunko/products-crud/internal/http"
	"github.com/iyhunko/products-crud/internal/http/controller"
	"github.com/iyhunko/products-crud/internal/logger"
	"github.com/iyhunko/products-crud/internal/metrics"
	"github.com/iyhunko/products-crud/internal/repository/sql"
	"github.com/iyhunko/products-crud/internal/service"
	sqspkg "github.com/iyhunko/products-crud/internal/sqs"
)

const shutdownTimeout = 10 * time.Second

func main() {
	conf, err := config.LoadFromEnv()
	handleErr("loading config", err)

	logger.InitJSONLogger(conf.DebugMode)
	if !conf.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := sql.StartDB(ctx, conf.Database)
	handleErr("starting database", err)
	defer db.Close()

	// Create repositories
	productRepository := sql.NewProductRepository(db)
	eventRepository := sql.NewEventRepository(db)
	transactionalRepository := sql.NewTransactionalRepository(db)

	sqsClient, err := sqspkg.NewClient(ctx, conf.AWS)
	handleErr("creating SQS client", err)
	sqsPublisher := sqspkg.NewPublisher(sqsClient, conf.AWS.SQSQueueURL)

	productService := service.NewProductService(productRepository, transactionalRepository)

	outboxWorker := service.NewOutboxWorker(eventRepository, sqsPublisher, conf.Outbox.PollInterval)
	go outboxWorker.Start(ctx)

	ctr := controller.New(conf, db)
	productCtr := controller.NewProductController(productService)
	router := gin.New()
	router = httpAPI.InitRouter(router, ctr, productCtr)

	httpServer := &http.Server{
		Addr:              ":" + conf.HTTPServer.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("HTTP server starting", slog.String("port", conf.HTTPServer.Port))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			handleErr("listening to HTTP requests", err)
		}
	}()

	metricsServer := metrics.StartMetricsServer(conf)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	slog.Info("Shutting down gracefully...")

	outboxWorker.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown failed", slog.Any("err", err))
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("Metrics server shutdown failed", slog.Any("err", err))
	}
}

func handleErr(msg string, err error) {
	if err != nil {
		slog.Error("error while "+msg, slog.Any("err", err))
		os.Exit(1)
	}
}
