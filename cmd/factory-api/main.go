package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/organizations"
	temporalclient "go.temporal.io/sdk/client"

	"github.com/edvin/accountfactory/internal/api"
	"github.com/edvin/accountfactory/internal/config"
	"github.com/edvin/accountfactory/internal/logging"
	"github.com/edvin/accountfactory/internal/orgs"
	"github.com/edvin/accountfactory/internal/starter"
	"github.com/edvin/accountfactory/internal/workflow"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate("factory-api"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg)

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load AWS config")
	}
	orgsClient := orgs.NewClient(organizations.NewFromConfig(awsCfg))

	tlsConfig, err := cfg.TemporalTLS()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure temporal TLS")
	}
	dialOpts := temporalclient.Options{
		HostPort:  cfg.TemporalAddress,
		Namespace: cfg.TemporalNamespace,
	}
	if tlsConfig != nil {
		dialOpts.ConnectionOptions = temporalclient.ConnectionOptions{TLS: tlsConfig}
	}
	tc, err := temporalclient.Dial(dialOpts)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to temporal")
	}
	defer tc.Close()

	runStarter := starter.New(tc, workflow.RunOptions{
		GatePollInterval:       cfg.GatePollInterval,
		DeployPollInterval:     cfg.DeployPollInterval,
		ValidatePollInterval:   cfg.ValidatePollInterval,
		DirectorySyncInterval:  cfg.DirectorySyncInterval,
		DirectorySyncWaitLimit: cfg.DirectorySyncWaitLimit,
	})

	server := api.NewServer(logger, runStarter, orgsClient, tc)
	httpSrv := &http.Server{
		Addr:              cfg.HTTPListenAddr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.HTTPListenAddr).Msg("starting factory API")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("api server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down factory API")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown failed")
	}
}
