// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/gatehouse/gatehouse/internal/api"
	"github.com/gatehouse/gatehouse/internal/auth"
	authpg "github.com/gatehouse/gatehouse/internal/auth/postgres"
	"github.com/gatehouse/gatehouse/internal/config"
	"github.com/gatehouse/gatehouse/internal/logging"
	"github.com/gatehouse/gatehouse/internal/mail"
	"github.com/gatehouse/gatehouse/internal/observability"
	"github.com/gatehouse/gatehouse/internal/session"
	"github.com/gatehouse/gatehouse/internal/store"
	"github.com/gatehouse/gatehouse/internal/token"
)

const shutdownTimeout = 5 * time.Second

// newServeCmd creates the serve subcommand with all flags configured.
func newServeCmd() *cobra.Command {
	var dev bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Gatehouse API server",
		Long: `Start the API server along with its metrics and health endpoints.
Requires PostgreSQL and Redis; in --dev mode one-time tokens are held
in memory and mails are logged instead of sent.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configFile, cmd.Flags())
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg, dev)
		},
	}

	cmd.Flags().String("listen-addr", "", "API listen address")
	cmd.Flags().String("metrics-addr", "", "metrics/health HTTP address (empty = disabled)")
	cmd.Flags().String("log-format", "", "log format (json or text)")
	cmd.Flags().BoolVar(&dev, "dev", false, "development mode: in-memory tokens, mails logged")

	return cmd
}

// runServe wires the server together and blocks until a signal or a
// fatal server error.
func runServe(ctx context.Context, cfg *config.Config, dev bool) error {
	logging.SetDefault("gatehouse", version, cfg.LogFormat)
	logger := slog.Default()

	logger.Info("starting gatehouse",
		"listen_addr", cfg.ListenAddr,
		"metrics_addr", cfg.MetricsAddr,
		"dev", dev,
	)

	pool, err := store.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	defer pool.Close()

	var (
		tokens      auth.TokenStore
		sender      auth.EmailSender
		sessStore   session.Store
		redisClient *redis.Client
	)
	if dev {
		// Development mode runs against PostgreSQL alone.
		tokens = token.NewMemoryStore()
		sessStore = session.NewMemoryStore()
		sender = mail.NewLogSender(logger)
	} else {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		defer func() {
			if closeErr := redisClient.Close(); closeErr != nil {
				logger.Warn("error closing redis client", "error", closeErr)
			}
		}()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return oops.Code("REDIS_CONNECT_FAILED").With("addr", cfg.RedisAddr).Wrap(err)
		}

		tokens = token.NewRedisStore(redisClient)
		sessStore = session.NewRedisStore(redisClient)

		smtpSender, smtpErr := mail.NewSMTPSender(mail.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		})
		if smtpErr != nil {
			return smtpErr
		}
		sender = smtpSender
	}

	users := authpg.NewUserRepository(pool)
	hasher := auth.NewArgon2idHasher()

	authService, err := auth.NewService(users, tokens, hasher, sender, cfg.AppURL)
	if err != nil {
		return err
	}
	resetService, err := auth.NewPasswordResetService(users, tokens, hasher, sender, cfg.AppURL)
	if err != nil {
		return err
	}

	sessions, err := session.NewManager(sessStore, cfg.CookieDomain, cfg.Production)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var metrics *observability.Metrics
	var obsServer *observability.Server
	if cfg.MetricsAddr != "" {
		obsServer = observability.NewServer(cfg.MetricsAddr, func() bool {
			pingCtx, pingCancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer pingCancel()
			if pool.Ping(pingCtx) != nil {
				return false
			}
			return redisClient == nil || redisClient.Ping(pingCtx).Err() == nil
		})
		metrics = obsServer.Metrics()

		obsErrCh, obsErr := obsServer.Start()
		if obsErr != nil {
			return obsErr
		}
		go func() {
			if serveErr := <-obsErrCh; serveErr != nil {
				logger.Error("observability server error", "error", serveErr)
				cancel()
			}
		}()
	}

	apiServer, err := api.NewServer(cfg.ListenAddr, api.Deps{
		Auth:     authService,
		Reset:    resetService,
		Sessions: sessions,
		Metrics:  metrics,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	apiErrCh, err := apiServer.Start()
	if err != nil {
		if obsServer != nil {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer stopCancel()
			_ = obsServer.Stop(stopCtx)
		}
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	case serveErr := <-apiErrCh:
		if serveErr != nil {
			logger.Error("api server error", "error", serveErr)
		}
	case <-ctx.Done():
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stopCancel()

	if err := apiServer.Stop(stopCtx); err != nil {
		logger.Error("error stopping api server", "error", err)
	}
	if obsServer != nil {
		if err := obsServer.Stop(stopCtx); err != nil {
			logger.Error("error stopping observability server", "error", err)
		}
	}

	logger.Info("gatehouse stopped")
	return nil
}
