package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/r-cryptocurrency/moonbridge/config"
	"github.com/r-cryptocurrency/moonbridge/db"
	"github.com/r-cryptocurrency/moonbridge/logging"
	"github.com/r-cryptocurrency/moonbridge/presenter"
	"github.com/r-cryptocurrency/moonbridge/relayer"
	"github.com/r-cryptocurrency/moonbridge/store"
)

func main() {
	logger := logging.New()

	cfg, err := config.ReadConfigFromFile("config.yml")
	if err != nil {
		logger.WithError(err).Fatal("can't read config")
	}
	logger.SetLevel(cfg.Level())

	privateKey, err := crypto.HexToECDSA(cfg.Relayer.PrivateKey)
	if err != nil {
		logger.WithError(err).Fatal("can't parse relayer private key")
	}

	recordStore := store.NewMemoryStore()
	if cfg.DBConfig != nil {
		dbConn, err2 := db.ConnectToDBAndMigrate(cfg.DBConfig)
		if err2 != nil {
			logger.WithError(err2).Fatal("can't connect to database and apply migrations")
		}
		defer dbConn.Close()
		recordStore = store.NewPostgresStore("processing_records", dbConn)
	}

	http.Handle("/metrics", promhttp.Handler())
	go func() {
		err2 := http.ListenAndServe(":2112", nil)
		if err2 != nil {
			logger.WithError(err2).Fatal("can't start listener for prometheus metrics")
		}
	}()

	if cfg.Presenter != nil {
		pr := presenter.NewPresenter(logger.WithField("service", "presenter"), recordStore)
		go func() {
			err2 := pr.Serve(cfg.Presenter.Host)
			if err2 != nil {
				logger.WithError(err2).Fatal("can't serve presenter")
			}
		}()
	}

	r, err := relayer.New(logger, cfg, recordStore, privateKey)
	if err != nil {
		logger.WithError(err).Fatal("can't initialize relayer")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// A second signal aborts the drain of in-flight settlements.
	go func() {
		<-ctx.Done()
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		logger.Warn("second signal received, aborting in-flight settlement attempts")
		r.Abort()
	}()

	if err = r.Run(ctx); err != nil {
		logger.WithError(err).Fatal("relayer stopped with error")
	}
	logger.Info("relayer stopped")
}
