package app

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/tazhibaev/lending-service/config"
	"github.com/tazhibaev/lending-service/internal/handler"
	"github.com/tazhibaev/lending-service/internal/repository"
	"github.com/tazhibaev/lending-service/internal/server"
	"github.com/tazhibaev/lending-service/internal/service"
	"github.com/tazhibaev/lending-service/migrations"
	"github.com/tazhibaev/lending-service/pkg/auth"
	"github.com/tazhibaev/lending-service/pkg/kafka"
	"github.com/tazhibaev/lending-service/pkg/logger"
	"github.com/tazhibaev/lending-service/pkg/postgres"
)

func Run(cfg *config.Config) error {
	log := logger.NewLogger(cfg.Log, "lending")
	auth.SetKey(cfg.Auth.JWTSecret)

	db, err := postgres.NewPostgresDB(context.Background(), &cfg.Database, migrations.MigrationFiles)
	if err != nil {
		return fmt.Errorf("db init %w", err)
	}
	repo, err := repository.NewRepository(db, log)
	if err != nil {
		return fmt.Errorf("repo init %w", err)
	}
	svc := service.NewService(repo, log)

	var enqueuer handler.Enqueuer
	var producer sarama.SyncProducer
	if len(cfg.Kafka.Addrs) > 0 {
		producer, err = kafka.NewProducer(cfg.Kafka)
		if err != nil {
			return fmt.Errorf("kafka.NewProducer %w", err)
		}
		enqueuer = handler.NewEnqueuer(producer)
	}

	h := handler.New(svc, svc, svc, enqueuer, log)

	srv := server.NewServer(cfg.Server, h.NewRouter())
	log.Info("http server start ON: ",
		zap.String("addr",
			net.JoinHostPort(cfg.Server.Host, cfg.Server.Port)))
	go func() {
		if err := srv.Run(); err != nil {
			log.Error("server run", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	termSig := <-sig

	log.Debug("Graceful shutdown", zap.Any("signal", termSig))

	closeCtx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	if err = srv.Stop(closeCtx); err != nil {
		log.Error("srv.Stop", zap.Error(err))
	}
	if producer != nil {
		if err = producer.Close(); err != nil {
			log.Error("producer.Close", zap.Error(err))
		}
	}
	db.Close()
	log.Info("Graceful shutdown finished")
	return nil
}
