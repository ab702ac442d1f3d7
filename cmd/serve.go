package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fjod/coffee-store/internal/cache"
	"github.com/fjod/coffee-store/internal/gateway"
	"github.com/fjod/coffee-store/internal/health"
	h "github.com/fjod/coffee-store/internal/http"
	"github.com/fjod/coffee-store/internal/logger"
	"github.com/fjod/coffee-store/internal/publisher"
	"github.com/fjod/coffee-store/internal/repository"
	"github.com/fjod/coffee-store/internal/service"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"google.golang.org/grpc"
)

func serveCmd(load func() (*Config, error)) *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the gRPC health server and the outbox poller",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if err := cfg.validateServe(); err != nil {
				return err
			}
			return serve(cfg, migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", true, "apply migrations before serving")
	return cmd
}

func serve(cfg *Config, migrate bool) error {
	slog.SetDefault(logger.New(cfg.LogLevel, cfg.LogFormat, os.Stdout))
	otel.SetTextMapPropagator(propagation.TraceContext{})

	repo, err := repository.NewRepository(&cfg.DB)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer repo.Close()

	if migrate {
		if err := repo.RunMigrations(&cfg.DB); err != nil {
			return err
		}
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	defer rdb.Close()
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		// the cart cache is optional; reads fall through to the store
		slog.Warn("redis unavailable, serving carts from the store", "addr", cfg.RedisAddr, "error", err)
	}

	gw := gateway.NewBreakerGateway(
		gateway.NewStripeGateway(gateway.StripeConfig{
			SecretKey:          cfg.StripeSecretKey,
			FrontURL:           cfg.FrontURL,
			Timeout:            cfg.GatewayTimeout,
			APIURL:             cfg.StripeAPIURL,
			PaymentMethodTypes: cfg.PaymentMethodTypes,
		}),
		gateway.BreakerSettings{},
	)
	verifier := gateway.NewWebhookVerifier(cfg.StripeWebhookSecret)

	carts := service.NewCartService(repo, repo, cache.NewRedisCache(rdb))
	checkout := service.NewCheckoutService(repo, repo, repo, gw, cfg.GatewayTimeout)
	reconciler := service.NewReconciliationService(repo, repo, verifier, gw, carts, service.ReconcilerConfig{
		StaleAfter:     cfg.StaleCheckoutAfter,
		GatewayTimeout: cfg.GatewayTimeout,
	})
	orders := service.NewOrderService(repo, reconciler, gw, cfg.GatewayTimeout)

	monitor := health.NewMonitor(repo, cfg.HealthInterval)
	monitor.Check(context.Background())

	poller := publisher.NewOutboxPoller(repo, reconciler, publisher.Config{
		Brokers:      cfg.KafkaBrokers,
		Topic:        cfg.OutboxTopic,
		EventTick:    cfg.OutboxTick,
		RecoveryTick: cfg.RecoveryTick,
	})
	defer poller.Close()

	router := h.NewRouter(h.Handlers{
		Cart:     h.NewCartHandler(carts, cfg.RequestTimeout),
		Payments: h.NewPaymentHandler(checkout, reconciler, cfg.RequestTimeout),
		Orders:   h.NewOrdersHandler(orders, cfg.RequestTimeout),
		Health:   monitor,
	}, cfg.RequestTimeout)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      otelhttp.NewHandler(router, "coffee-store"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		return fmt.Errorf("failed to listen on grpc port: %w", err)
	}
	grpcServer := grpc.NewServer()
	monitor.Register(grpcServer)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		poller.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		monitor.Run(ctx)
	}()

	errCh := make(chan error, 2)
	go func() {
		slog.Info("grpc health server starting", "port", cfg.GRPCPort)
		if err := grpcServer.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()
	go func() {
		slog.Info("http server starting", "port", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-quit:
		slog.Info("shutting down", "signal", sig.String())
	case runErr = <-errCh:
		slog.Error("server failed, shutting down", "error", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server forced to shutdown", "error", err)
	}
	grpcServer.GracefulStop()
	stop()
	wg.Wait()

	slog.Info("server exited")
	return runErr
}
