package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-order-saga.git/internal/config"
	"github.com/ariefcatur/go-order-saga.git/internal/inventory"
	kafkax "github.com/ariefcatur/go-order-saga.git/internal/kafka"
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

	newProducer := func(topic string) *kafkax.Producer {
		p := kafkax.NewProducer(cfg.KafkaBrokers, topic, 1024)
		p.Start(ctx)
		return p
	}
	pReserved := newProducer(saga.EventInventoryReserved)
	pReleased := newProducer(saga.EventInventoryReleased)
	pOOS := newProducer(saga.EventOutOfStock)
	producers := []*kafkax.Producer{pReserved, pReleased, pOOS}

	svc := &inventory.Service{
		Store:          &inventory.PGStore{DB: db},
		Dedup:          &redisx.Dedup{RDB: rdb, Consumer: "inventory"},
		PubReserved:    pReserved,
		PubReleased:    pReleased,
		PubOutOfStock:  pOOS,
		ReservationTTL: cfg.ReservationTTL,
		Source:         cfg.ServiceName + "-inventory",
	}

	g, gctx := errgroup.WithContext(ctx)
	consume := func(topic string, h kafkax.Handler) {
		cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.ConsumerGroup+"-inventory", topic, cfg.Workers)
		g.Go(func() error {
			log.Info().Str("topic", topic).Msg("consumer started")
			return cons.Start(gctx, h)
		})
	}
	consume(saga.EventOrderCreated, svc.HandleOrderCreated)
	consume(saga.EventPaymentSucceeded, svc.HandlePaymentSucceeded)
	consume(saga.EventOrderFailed, svc.HandleOrderFailed)
	consume(saga.EventInventoryRelease, svc.HandleRelease)

	sweeper := &inventory.Sweeper{Service: svc, Interval: cfg.SweepInterval}
	g.Go(func() error { return sweeper.Run(gctx) })

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info().Msg("shutting down...")

	for _, p := range producers {
		p.Close()
	}
	cancel()
	_ = g.Wait()
	for _, p := range producers {
		p.WaitClosed()
	}
}
