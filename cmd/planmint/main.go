package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/planmint/internal/app"
	"github.com/layer-3/planmint/internal/config"
	"github.com/layer-3/planmint/internal/logging"
	"github.com/layer-3/planmint/service"
	transport "github.com/layer-3/planmint/transport/http"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func main() {
	cliApp := &cli.App{
		Name:  "planmint",
		Usage: "issue data plan tokens for signed wallet requests",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the YAML configuration file",
				EnvVars: []string{"PLANMINT_CONFIG"},
			},
		},
		Action: run,
	}

	if err := cliApp.Run(os.Args); err != nil {
		logrus.WithError(err).Fatal("planmint stopped")
	}
}

func run(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	deps := rt.Deps()
	issuance := service.NewIssuanceService(deps, rt.Options())
	soulbound := service.NewSoulboundService(deps, rt.Options())
	health := service.NewHealthService(rt.Ledger, logger)

	go health.Run(ctx, cfg.Server.HeartbeatInterval)

	gin.SetMode(cfg.Server.GinMode)
	handlers := transport.NewHandlers(issuance, soulbound, health, logger)
	router := transport.SetupRouter(handlers, transport.RouterConfig{
		RateLimitRPS:   cfg.Server.RateLimit.RPS,
		RateLimitBurst: cfg.Server.RateLimit.Burst,
	}, logger)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", srv.Addr).Info("planmint listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	// in-flight requests may be waiting on finality
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}
