package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/agrosolutions/alert-engine/internal/lifecycle"
	"github.com/agrosolutions/alert-engine/internal/logger"
	"github.com/agrosolutions/alert-engine/internal/outbox"
	"github.com/agrosolutions/alert-engine/internal/replication"
	"github.com/agrosolutions/alert-engine/internal/rules"
	alertengine "github.com/agrosolutions/alert-engine/internal/services/alert-engine"
	"github.com/agrosolutions/alert-engine/internal/storage"
	"github.com/agrosolutions/alert-engine/pkg/rabbitmq"
)

func main() {
	cfg := loadConfig()
	logger.Init(cfg.LogLevel)
	log := logger.WithComponent("alert-engine")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// === Primary store ===
	store, err := storage.OpenMySQL(ctx, cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("mysql connection error")
	}
	defer store.Close()
	if err := store.EnsureSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("schema setup error")
	}

	// === Replication sink (best-effort, optional) ===
	var sink replication.Sink = replication.Noop{}
	if cfg.InfluxToken != "" {
		influx := influxdb2.NewClient(cfg.InfluxURL, cfg.InfluxToken)
		defer influx.Close()
		writeAPI := influx.WriteAPIBlocking(cfg.InfluxOrg, cfg.InfluxBucket)
		sink = replication.NewInfluxSink(writeAPI, logger.WithComponent("replication"))
	} else {
		log.Warn().Msg("no influx token configured, replication disabled")
	}

	// === MQTT ===
	mqttClient, err := rabbitmq.NewConn(ctx, &cfg.Rabbit, logger.WithComponent("rabbitmq"))
	if err != nil {
		log.Fatal().Err(err).Msg("mqtt connection error")
	}
	publisher := rabbitmq.NewPublisher(mqttClient)

	// === Engine ===
	evaluator := rules.NewEvaluator(store, cfg.Rules, nil)
	manager := lifecycle.NewManager(store, sink, cfg.Rules.PestDedupWindow,
		logger.WithComponent("lifecycle"), nil)
	engine := alertengine.NewEngine(store, evaluator, manager, sink,
		logger.WithComponent("engine"))

	consumer := rabbitmq.NewConsumer(mqttClient, cfg.SensorTopic, 1,
		logger.WithComponent("consumer"))
	svc := alertengine.NewService(consumer, engine, cfg.EvaluateTimeout,
		logger.WithComponent("service"))

	// === Outbox dispatcher ===
	dispatcher := outbox.NewDispatcher(store, publisher, cfg.AlertTopicTmpl,
		cfg.OutboxInterval, logger.WithComponent("outbox"))
	go dispatcher.Run(ctx)

	// === HTTP (health + metrics) ===
	mux := http.NewServeMux()
	mux.Handle("/healthz", alertengine.NewHealthHandler(mqttClient, store))
	mux.Handle("/readyz", alertengine.NewReadyHandler(mqttClient, store))
	mux.Handle("/metrics", promhttp.Handler())

	hs := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.HTTPPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info().Int("port", cfg.HTTPPort).Msg("HTTP listening")
		if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server error")
		}
	}()

	// === Consume until signalled ===
	go func() {
		if err := svc.Start(ctx); err != nil {
			log.Fatal().Err(err).Msg("consumer subscribe failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	log.Info().Msg("shutting down")

	cancel()

	shCtx, shCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shCancel()
	_ = hs.Shutdown(shCtx)

	// one final drain so alerts created moments ago are not stuck until restart
	drainCtx, drainCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer drainCancel()
	dispatcher.Drain(drainCtx)

	publisher.Close()
}
