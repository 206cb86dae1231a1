package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-order-saga.git/internal/config"
	"github.com/ariefcatur/go-order-saga.git/internal/httpx"
	kafkax "github.com/ariefcatur/go-order-saga.git/internal/kafka"
	"github.com/ariefcatur/go-order-saga.git/internal/orders"
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
	pCreated := newProducer(saga.EventOrderCreated)
	pConfirmed := newProducer(saga.EventOrderConfirmed)
	pFailed := newProducer(saga.EventOrderFailed)
	pPayReq := newProducer(saga.EventPaymentRequested)
	pInvRelease := newProducer(saga.EventInventoryRelease)
	pPayRefund := newProducer(saga.EventPaymentRefund)
	producers := []*kafkax.Producer{pCreated, pConfirmed, pFailed, pPayReq, pInvRelease, pPayRefund}

	store := &orders.PGStore{DB: db}
	sg := &orders.Saga{
		Store:               store,
		Progress:            &redisx.Progress{RDB: rdb},
		Dedup:               &redisx.Dedup{RDB: rdb, Consumer: "order"},
		PubConfirmed:        pConfirmed,
		PubFailed:           pFailed,
		PubPaymentRequest:   pPayReq,
		PubInventoryRelease: pInvRelease,
		PubPaymentRefund:    pPayRefund,
		Source:              cfg.ServiceName,
	}

	g, gctx := errgroup.WithContext(ctx)
	consume := func(topic string, h kafkax.Handler) {
		cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.ConsumerGroup+"-order", topic, cfg.Workers)
		g.Go(func() error {
			log.Info().Str("topic", topic).Msg("consumer started")
			return cons.Start(gctx, h)
		})
	}
	consume(saga.EventInventoryReserved, sg.HandleInventoryReserved)
	consume(saga.EventOutOfStock, sg.HandleOutOfStock)
	consume(saga.EventInventoryReleased, sg.HandleInventoryReleased)
	consume(saga.EventPaymentSucceeded, sg.HandlePaymentSucceeded)
	consume(saga.EventPaymentFailed, sg.HandlePaymentFailed)

	router := httpx.NewRouter()
	oh := &httpx.OrdersHandler{
		Store:      store,
		PubCreated: pCreated,
		Redis:      rdb,
		Service:    cfg.ServiceName,
	}
	oh.Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("http listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info().Msg("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)

	for _, p := range producers {
		p.Close()
	}
	cancel()
	_ = g.Wait()
	for _, p := range producers {
		p.WaitClosed()
	}
}
