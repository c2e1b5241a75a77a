package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"anchorcore/config"
	"anchorcore/native/anchor"
	"anchorcore/observability/logging"
	"anchorcore/rpc"
	"anchorcore/storage"
)

func main() {
	configPath := flag.String("config", "./config.toml", "Path to configuration file")
	listenAddr := flag.String("listen", ":8645", "HTTP listen address")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger := logging.Setup("anchord", cfg.Environment)

	params, err := cfg.Protocol.Parameters()
	if err != nil {
		logger.Error("invalid protocol parameters", "error", err)
		os.Exit(1)
	}

	ledgerDB, err := storage.NewLevelDB(cfg.LedgerDir())
	if err != nil {
		logger.Error("failed to open ledger database", "error", err)
		os.Exit(1)
	}
	defer ledgerDB.Close()

	journalDB, err := storage.NewLevelDB(cfg.JournalDir())
	if err != nil {
		logger.Error("failed to open journal database", "error", err)
		os.Exit(1)
	}
	defer journalDB.Close()

	oracleCfg := cfg.Oracle.Normalise()
	manual := anchor.NewManualReference()
	aggregator := anchor.NewReferenceAggregator(oracleCfg.Priority, oracleCfg.MaxSampleAge())
	aggregator.Register("manual", manual)

	stable := anchor.NewKVLedger(ledgerDB, anchor.TokenStable)
	buffer := anchor.NewKVLedger(ledgerDB, anchor.TokenBuffer)

	engine := anchor.NewEngine(stable, buffer, aggregator, params)
	engine.SetJournal(anchor.NewJournal(journalDB))
	engine.SetLogger(logger)

	server := &http.Server{
		Addr:              *listenAddr,
		Handler:           rpc.NewServer(engine, manual, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("anchord listening",
			"addr", *listenAddr,
			"moduleAccount", anchor.ModuleAccount().String(),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}
}
