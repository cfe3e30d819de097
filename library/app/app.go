package app

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Astemirdum/library-borrowing/library/config"
	"github.com/Astemirdum/library-borrowing/library/internal/cache"
	"github.com/Astemirdum/library-borrowing/library/internal/handler"
	"github.com/Astemirdum/library-borrowing/library/internal/notify"
	"github.com/Astemirdum/library-borrowing/library/internal/repository"
	"github.com/Astemirdum/library-borrowing/library/internal/server"
	"github.com/Astemirdum/library-borrowing/library/internal/service"
	"github.com/Astemirdum/library-borrowing/library/migrations"
	"github.com/Astemirdum/library-borrowing/pkg/kafka"
	"github.com/Astemirdum/library-borrowing/pkg/logger"
	"github.com/Astemirdum/library-borrowing/pkg/postgres"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func Run(cfg *config.Config) {
	log := logger.NewLogger(cfg.Log, "library")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.NewPostgresDB(ctx, &cfg.Database, migrations.MigrationFiles)
	if err != nil {
		log.Fatal("db init", zap.Error(err))
	}
	repo, err := repository.NewRepository(db, log)
	if err != nil {
		log.Fatal("repo", zap.Error(err))
	}

	bookCache := cache.NewNop()
	if cfg.Redis.Enabled() {
		rdb, err := cache.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			log.Fatal("cache.NewRedisClient", zap.Error(err))
		}
		defer rdb.Close()
		bookCache = cache.NewRedisCache(rdb, cfg.Redis.TTL, log)
	}

	g, gctx := errgroup.WithContext(ctx)

	sink := notify.NewNop(log)
	if cfg.Notify.Enabled() {
		sink = notify.NewHTTPNotifier(cfg.Notify, log)
	}
	notifier := sink
	if cfg.Kafka.Enabled() {
		producer, err := kafka.NewProducer(cfg.Kafka)
		if err != nil {
			log.Fatal("kafka.NewProducer", zap.Error(err))
		}
		defer producer.Close()
		consumer, err := kafka.NewConsumer(cfg.Kafka, kafka.NotifierConsumerGroup)
		if err != nil {
			log.Fatal("kafka.NewConsumer", zap.Error(err))
		}
		defer consumer.Close()

		notifier = notify.NewKafkaNotifier(producer, kafka.BorrowingTopic)
		relay := notify.NewRelay(sink, log)
		g.Go(func() error {
			return kafka.Consume(gctx, consumer, relay, kafka.BorrowingTopic)
		})
	}
	async := notify.NewAsync(notifier, cfg.Notify.Timeout, log)

	svc := service.NewService(repo, bookCache, async, log)
	h := handler.New(svc, svc, []byte(cfg.Auth.JWTSecret), log)
	srv := server.NewServer(cfg.Server, h.NewRouter())
	log.Info("http server start ON: ",
		zap.String("addr",
			net.JoinHostPort(cfg.Server.Host, cfg.Server.Port)))
	g.Go(srv.Run)
	g.Go(func() error {
		<-gctx.Done()
		log.Debug("Graceful shutdown", zap.Error(context.Cause(gctx)))

		closeCtx, cancel := context.WithTimeout(context.Background(), time.Second*5)
		defer cancel()
		return srv.Stop(closeCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("app stopped", zap.Error(err))
	}
	async.Close()
	if err := db.Close(); err != nil {
		log.Warn("db.Close", zap.Error(err))
	}
	log.Info("Graceful shutdown finished")
}
