package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/gotempsh/temps/pkg/api"
	"github.com/gotempsh/temps/pkg/certs"
	"github.com/gotempsh/temps/pkg/config"
	"github.com/gotempsh/temps/pkg/events"
	"github.com/gotempsh/temps/pkg/health"
	"github.com/gotempsh/temps/pkg/ingress"
	"github.com/gotempsh/temps/pkg/jobs"
	"github.com/gotempsh/temps/pkg/log"
	"github.com/gotempsh/temps/pkg/metrics"
	"github.com/gotempsh/temps/pkg/security"
	"github.com/gotempsh/temps/pkg/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the deployment core: API, reverse proxy, certificate renewal, and health monitor",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("api-addr", "127.0.0.1:8080", "Address for the deployment API")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	apiAddr, _ := cmd.Flags().GetString("api-addr")

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	secrets, err := security.NewSecretsManagerFromPassphrase(cfg.SecretsPassphrase)
	if err != nil {
		return fmt.Errorf("init secrets manager: %w", err)
	}

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	jobDeps := jobs.Dependencies{Store: store, DataDir: cfg.DataDir}
	captcha := ingress.NewCaptchaGate(store)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	proxy := ingress.NewProxy(store)
	proxyErrCh := make(chan error, 1)
	go func() {
		if err := proxy.Start(ctx, cfg); err != nil {
			proxyErrCh <- fmt.Errorf("ingress proxy: %w", err)
		}
	}()

	acmeProvider := certs.NewLetsEncryptProvider(cfg, store, secrets)
	go certs.RunRenewalLoop(ctx, acmeProvider, cfg.CertPollInterval)
	log.Info("certificate renewal loop started")

	monitor := health.NewMonitor(store, health.HostPublicURLResolver{}, events.NewJobReceiver(broker))
	if err := monitor.Start(ctx); err != nil {
		return fmt.Errorf("start health monitor: %w", err)
	}
	defer monitor.Stop()
	log.Info("health monitor started")

	collector := metrics.NewCollector(store)
	collector.Start()
	defer collector.Stop()

	apiServer := api.NewServer(store, jobDeps, captcha, cfg.BearerToken, cfg.GitHubWebhookSecret)
	httpServer := &http.Server{
		Addr:         apiAddr,
		Handler:      apiServer.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	apiErrCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			apiErrCh <- fmt.Errorf("api server: %w", err)
		}
	}()
	log.Info(fmt.Sprintf("deployment API listening on %s", apiAddr))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		log.Info("shutting down")
	case err := <-proxyErrCh:
		log.Error(err.Error())
	case err := <-apiErrCh:
		log.Error(err.Error())
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown api server: %w", err)
	}

	log.Info("shutdown complete")
	return nil
}
