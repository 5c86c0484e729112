// Command basketd runs the trading dashboard backend: it keeps account,
// position, and market data snapshots fresh by polling the configured
// brokerage backend, stages draft orders in a basket, and executes basket
// passes on request. State is served over REST and a websocket stream.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"github.com/daanheslenfeld/etf-test-sub001/internal/basket"
	"github.com/daanheslenfeld/etf-test-sub001/internal/broker"
	"github.com/daanheslenfeld/etf-test-sub001/internal/cache"
	"github.com/daanheslenfeld/etf-test-sub001/internal/config"
	"github.com/daanheslenfeld/etf-test-sub001/internal/gateway"
	"github.com/daanheslenfeld/etf-test-sub001/internal/httpapi"
	"github.com/daanheslenfeld/etf-test-sub001/internal/journal"
	"github.com/daanheslenfeld/etf-test-sub001/internal/notify"
	"github.com/daanheslenfeld/etf-test-sub001/internal/session"
	"github.com/daanheslenfeld/etf-test-sub001/internal/util"
)

func main() {
	cfgPath := "config/basketd.yaml"
	if p := os.Getenv("BASKETD_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	store, err := cache.Open(cfg.Storage.CachePath)
	if err != nil {
		logger.Error("opening snapshot cache", "path", cfg.Storage.CachePath, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	var (
		backend broker.Broker
		status  session.StatusClient
		userID  = cfg.Gateway.CustomerID
	)
	switch cfg.Trading.Broker {
	case "gateway":
		client := gateway.NewClient(cfg.Gateway, logger)
		backend = broker.NewGatewayBroker(client)
		status = client
	case "alpaca":
		backend = broker.NewAlpacaBroker(
			cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.BaseURL, cfg.Alpaca.DataURL)
		userID = "alpaca"
	case "simulator":
		sim := broker.NewSimulatorBroker(decimal.NewFromInt(100000))
		backend = sim
		userID = "simulator"
	}

	var jnl *journal.Journal
	if cfg.Storage.DataDir != "" {
		jnl = journal.New(cfg.Storage.DataDir)
	}

	sess := session.New(session.Options{
		Broker:         backend,
		Status:         status,
		Basket:         basket.NewManager(),
		Cache:          store,
		Journal:        jnl,
		Notifier:       notify.New(cfg.Notify.URL, logger),
		Log:            logger,
		UserID:         userID,
		Email:          cfg.Gateway.CustomerEmail,
		PollInterval:   cfg.Trading.PollInterval(),
		OrderTimeout:   cfg.Trading.OrderTimeout(),
		InterOrderPace: cfg.Trading.InterOrderPace(),
		SettleDelay:    cfg.Trading.SettleDelay(),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := sess.Start(ctx); err != nil {
		logger.Error("starting session", "error", err)
		os.Exit(1)
	}
	defer sess.Stop()

	api := httpapi.NewServer(sess, jnl, userID, logger)
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("basketd listening", "addr", addr, "broker", backend.Name())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
}
