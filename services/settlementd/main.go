package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"harvestpay/core/inspect"
	"harvestpay/core/multisig"
	"harvestpay/core/settlement"
	"harvestpay/ledger"
	"harvestpay/observability/logging"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := LoadConfigFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	log := logging.Setup("settlementd", cfg.Environment)

	platformKey, err := cfg.PlatformKey()
	if err != nil {
		log.Error("load platform key", slog.String("error", err.Error()))
		os.Exit(1)
	}

	gateway := ledger.NewClient(cfg.NodeURL, cfg.NodeAuthToken, cfg.RequestTimeout)

	engine, err := settlement.NewEngine(settlement.Config{
		NetworkName: cfg.NetworkName,
		PlatformKey: platformKey,
	}, gateway, log)
	if err != nil {
		log.Error("build settlement engine", slog.String("error", err.Error()))
		os.Exit(1)
	}
	provisioner, err := multisig.NewProvisioner(cfg.NetworkName, gateway, log)
	if err != nil {
		log.Error("build multisig provisioner", slog.String("error", err.Error()))
		os.Exit(1)
	}
	inspector, err := inspect.NewInspector(gateway, log)
	if err != nil {
		log.Error("build inspector", slog.String("error", err.Error()))
		os.Exit(1)
	}

	auth := NewAuthenticator(cfg.APIKeys, cfg.AllowedTimestampSkew, cfg.NonceTTL, nil)
	server := NewServer(auth, engine, provisioner, inspector, log)

	srv := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           server,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("settlement daemon listening",
			slog.String("addr", cfg.ListenAddress),
			slog.String("network", cfg.NetworkName),
			slog.String("platform", platformKey.Address().String()),
			logging.MaskField("nodeAuthToken", cfg.NodeAuthToken),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("listen", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info("shutting down settlement daemon")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", slog.String("error", err.Error()))
	}
}
