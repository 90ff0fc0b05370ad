package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/safar/hardware-store/internal/api"
	"github.com/safar/hardware-store/internal/auth"
	"github.com/safar/hardware-store/internal/checkout"
	"github.com/safar/hardware-store/internal/courier"
	"github.com/safar/hardware-store/internal/database"
	"github.com/safar/hardware-store/internal/events"
	"github.com/safar/hardware-store/internal/payment"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return serve(ctx)
	},
}

func serve(ctx context.Context) error {
	db, err := database.NewConnection(ctx, &cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()
	logger.Info("connected to database")

	publisher, err := events.New(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	if err != nil {
		return err
	}
	defer publisher.Close()
	if len(cfg.Kafka.Brokers) == 0 {
		logger.Info("no kafka brokers configured, order events are not published")
	}

	gateway := payment.NewGateway(cfg.Stripe)
	checkoutSvc := checkout.NewService(checkout.NewSQLStore(db), gateway, publisher, cfg.Checkout, logger.Named("checkout"))

	router := api.NewRouter(api.Deps{
		DB:                 db,
		Checkout:           checkoutSvc,
		Webhooks:           gateway,
		Tracker:            courier.NewClient(cfg.Courier),
		Publisher:          publisher,
		Issuer:             auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL),
		Logger:             logger.Named("http"),
		MembershipValidity: cfg.Checkout.MembershipValidity,
	}, cfg.Server)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down", zap.Duration("timeout", cfg.Server.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
