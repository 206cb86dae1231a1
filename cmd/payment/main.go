package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-order-saga.git/internal/config"
	kafkax "github.com/ariefcatur/go-order-saga.git/internal/kafka"
	"github.com/ariefcatur/go-order-saga.git/internal/payment"
	"github.com/ariefcatur/go-order-saga.git/internal/postgres"
	"github.com/ariefcatur/go-order-saga.git/internal/redisx"
	"github.com/ariefcatur/go-order-saga.git/internal/saga"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

func main() {
	_ = godotenv.Load()
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	defer db.Close()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	pSucceeded := kafkax.NewProducer(cfg.KafkaBrokers, saga.EventPaymentSucceeded, 1024)
	pSucceeded.Start(ctx)
	pFailed := kafkax.NewProducer(cfg.KafkaBrokers, saga.EventPaymentFailed, 1024)
	pFailed.Start(ctx)

	svc := &payment.Service{
		Store:        &payment.PGStore{DB: db},
		Gateway:      &payment.SimulatedGateway{DeclineOverCents: cfg.GatewayDeclineOverCents},
		Dedup:        &redisx.Dedup{RDB: rdb, Consumer: "payment"},
		PubSucceeded: pSucceeded,
		PubFailed:    pFailed,
		Source:       cfg.ServiceName + "-payment",
	}

	g, gctx := errgroup.WithContext(ctx)
	consume := func(topic string, h kafkax.Handler) {
		cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.ConsumerGroup+"-payment", topic, cfg.Workers)
		g.Go(func() error {
			log.Info().Str("topic", topic).Msg("consumer started")
			return cons.Start(gctx, h)
		})
	}
	consume(saga.EventPaymentRequested, svc.HandlePaymentRequested)
	consume(saga.EventPaymentRefund, svc.HandleRefund)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info().Msg("shutting down...")

	pSucceeded.Close()
	pFailed.Close()
	cancel()
	_ = g.Wait()
	pSucceeded.WaitClosed()
	pFailed.WaitClosed()
}
