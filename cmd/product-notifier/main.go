package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/iyhunko/products-crud/internal/config"
	"github.com/iyhunko/products-crud/internal/logger"
	sqspkg "github.com/iyhunko/products-crud/internal/sqs"
)

func main() {
	conf, err := config.LoadConsumerFromEnv()
	handleErr("loading config", err)

	logger.InitJSONLogger(conf.DebugMode)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sqsClient, err := sqspkg.NewClient(ctx, conf.AWS)
	handleErr("creating SQS client", err)
	consumer := sqspkg.NewConsumer(sqsClient, conf.AWS.SQSQueueURL)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("Consumer error", slog.Any("err", err))
		}
	}()

	slog.Info("Product notifier started. Listening for messages...")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	slog.Info("Shutting down gracefully...")
	cancel()
	<-done
}

func handleErr(msg string, err error) {
	if err != nil {
		slog.Error("error while "+msg, slog.Any("err", err))
		os.Exit(1)
	}
}
