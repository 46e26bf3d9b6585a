package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"TrainAI/config"
	"TrainAI/internal/mq"
	"TrainAI/internal/repo"
	"TrainAI/internal/storage"
	"TrainAI/internal/task"
	"TrainAI/internal/worker"
	"TrainAI/utils"

	"go.uber.org/zap"
)

func main() {
	cfg := config.InitConfig()
	logger, err := utils.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := repo.OpenDatabase(cfg)
	if err != nil {
		logger.Fatal("open database", zap.Error(err))
	}
	store, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		logger.Fatal("open object store", zap.Error(err))
	}

	var notifier task.Notifier
	if mailer := utils.NewMailer(cfg.SMTP); mailer != nil {
		notifier = mailer
	} else {
		logger.Info("smtp not configured, video ready mails disabled")
	}

	client, err := mq.Dial(cfg.RabbitMQURL)
	if err != nil {
		logger.Fatal("connect rabbitmq", zap.Error(err))
	}
	defer client.Close()

	processor := task.NewProcessor(db, store, notifier, logger)
	w := worker.New(worker.OptionsFromConfig(cfg), processor, client, logger)

	logger.Info("upload worker started")
	if err := worker.Run(ctx, client, w); err != nil {
		logger.Fatal("upload worker stopped", zap.Error(err))
	}
}
