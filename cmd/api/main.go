package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/punchamoorthee/bankledger/internal/api"
	"github.com/punchamoorthee/bankledger/internal/chaincode"
	"github.com/punchamoorthee/bankledger/internal/config"
	"github.com/punchamoorthee/bankledger/internal/logging"
	"github.com/punchamoorthee/bankledger/internal/service"
	"github.com/punchamoorthee/bankledger/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatal(err)
	}
	logger := logging.New("bankledger", cfg.LogLevel, cfg.Env, cfg.LogFile)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := store.OpenBackend(ctx, store.BackendOptions{
		Kind:      cfg.StoreBackend,
		DBSource:  cfg.DBSource,
		BadgerDir: cfg.BadgerDir,
	}, logger)
	if err != nil {
		logger.WithError(err).Fatal("Unable to open ledger store")
	}

	// Initialize Layers
	ledger := store.NewLedger(backend, logger)
	defer ledger.Close()

	svc := service.NewAccountService(service.Options{
		CardPrefix:        cfg.BankCardPrefix,
		CardNoMaxAttempts: cfg.CardNoMaxAttempts,
		Overdraft:         service.ParseOverdraftPolicy(cfg.OverdraftPolicy),
	}, logger)
	dispatcher := chaincode.NewDispatcher(ledger, svc, chaincode.RetryPolicy{
		MaxRetries:   cfg.ConflictMaxRetries,
		BaseInterval: cfg.ConflictRetryBase,
	}, cfg.DefaultHistoryLimit, logger)

	seeded, err := dispatcher.SeedBankBalance(ctx, decimal.NewFromFloat(cfg.InitialBankBalance))
	if err != nil {
		logger.WithError(err).Fatal("Unable to seed bank balance")
	}
	if seeded {
		logger.WithField("balance", cfg.InitialBankBalance).Info("Seeded bank balance")
	}

	// Router
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	api.NewHandler(dispatcher, logger).Register(r)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.WithFields(logrus.Fields{
			"port":    cfg.Port,
			"backend": cfg.StoreBackend,
		}).Info("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server failed")
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Graceful shutdown failed")
	}
}
