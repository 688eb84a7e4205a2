package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/solsub/scheduler/libs/admin"
	"github.com/solsub/scheduler/libs/api"
	"github.com/solsub/scheduler/libs/chainrpc"
	"github.com/solsub/scheduler/libs/dispatcher"
	"github.com/solsub/scheduler/libs/health"
	"github.com/solsub/scheduler/libs/metrics"
	"github.com/solsub/scheduler/libs/scheduler"
	"github.com/solsub/scheduler/libs/signer"
	"github.com/solsub/scheduler/libs/store"
	"github.com/solsub/scheduler/libs/validator"
	"github.com/solsub/scheduler/libs/webhook"
	"go.uber.org/zap"
)

func main() {
	var (
		host  = flag.String("host", "0.0.0.0", "API server host")
		port  = flag.Int("port", 8080, "API server port")
		debug = flag.Bool("debug", false, "Enable debug logging")
	)
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "no .env file loaded: %v\n", err)
	}

	var logger *zap.Logger
	var err error
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "debug" {
		*debug = true
	}
	if *debug {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting subscription scheduler",
		zap.String("host", *host), zap.Int("port", *port), zap.Bool("debug", *debug))

	promRegistry := prometheus.NewRegistry()
	promMetrics := metrics.NewPrometheusMetrics(promRegistry)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info("connecting to database")
	databaseURL := getEnv("DATABASE_URL", "postgres://localhost/solsub?sslmode=disable")
	sqlDB, err := sql.Open("postgres", databaseURL)
	if err != nil {
		logger.Fatal("failed to open database connection", zap.Error(err))
	}
	defer sqlDB.Close()

	st, err := store.New(ctx, sqlDB, logger)
	if err != nil {
		logger.Fatal("failed to initialize subscription store", zap.Error(err))
	}
	defer st.Close()
	logger.Info("subscription store initialized")

	logger.Info("loading settlement signer")
	sgn, err := signer.Load(signer.Config{
		KeyPath:          getEnv("SIGNER_KEY_PATH", "./scheduler-signer.key"),
		EncryptionSecret: os.Getenv("SIGNER_ENCRYPTION_SECRET"),
	}, logger)
	if err != nil {
		logger.Fatal("failed to load signer", zap.Error(err))
	}
	logger.Info("signer loaded")

	logger.Info("initializing settlement chain RPC client")
	rpcCfg := chainrpc.DefaultConfig(getEnv("RPC_ENDPOINT", "http://127.0.0.1:8899"))
	rpc := chainrpc.New(rpcCfg, logger)
	logger.Info("chain RPC client initialized", zap.String("endpoint", rpcCfg.Endpoint))

	disp := dispatcher.New(st, sgn, rpc, dispatcher.DefaultConfig(), logger)
	logger.Info("dispatcher initialized")

	logger.Info("starting webhook delivery worker")
	webhookWorker := webhook.NewWorker(webhook.Config{
		SinkURL: os.Getenv("WEBHOOK_SINK_URL"),
	}, logger)
	defer webhookWorker.Stop()

	sched := scheduler.New(st, disp, webhookWorker, scheduler.DefaultConfig(), logger)
	if err := sched.Start(ctx); err != nil {
		logger.Fatal("failed to start scheduler", zap.Error(err))
	}
	defer sched.Stop()
	logger.Info("scheduler started", zap.Int("armed", sched.ArmedCount()))

	h := health.New()
	adminSvc := admin.New(st, sched, sgn, rpc, h, admin.Config{
		InitialFeeAddress: os.Getenv("INITIAL_FEE_ADDRESS"),
	}, logger)
	adminSvc.RegisterHealthCheckers()
	logger.Info("admin surface initialized")

	licenseClient := validator.NewLicenseClient(getEnv("LICENSE_REGISTRY_URL", "http://127.0.0.1:9090"), logger)
	val := validator.New(st, licenseClient, logger)
	logger.Info("validator initialized")

	logger.Info("initializing API handlers")
	handlers := api.NewHandlers(ctx, logger, st, val, sched, adminSvc, promMetrics, promRegistry)

	apiConfig := api.DefaultConfig()
	apiConfig.Host = *host
	apiConfig.Port = *port

	server := api.NewServer(apiConfig, handlers, logger)

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting API server", zap.String("address", fmt.Sprintf("http://%s:%d", *host, *port)))
		serverErr <- server.Start()
	}()

	fmt.Printf("\n")
	fmt.Printf("╔══════════════════════════════════════════════════════════════╗\n")
	fmt.Printf("║              Subscription Scheduler Running                    ║\n")
	fmt.Printf("╠══════════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  API Endpoints:   http://localhost:%d/api/v1                   ║\n", *port)
	fmt.Printf("║  Health Check:    http://localhost:%d/health                   ║\n", *port)
	fmt.Printf("║  Metrics:         http://localhost:%d/metrics                  ║\n", *port)
	fmt.Printf("╚══════════════════════════════════════════════════════════════╝\n")
	fmt.Printf("\nPress Ctrl+C to shutdown gracefully\n\n")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		logger.Fatal("server error", zap.Error(err))
	case sig := <-sigCh:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	}

	logger.Info("shutting down gracefully")
	fmt.Printf("\nShutting down gracefully...\n")

	fmt.Printf("   stopping API server...\n")
	if err := server.Stop(); err != nil {
		logger.Error("error stopping API server", zap.Error(err))
	} else {
		fmt.Printf("   API server stopped\n")
	}

	fmt.Printf("   stopping scheduler...\n")
	sched.Stop()
	fmt.Printf("   scheduler stopped\n")

	fmt.Printf("   stopping webhook worker...\n")
	webhookWorker.Stop()
	fmt.Printf("   webhook worker stopped\n")

	time.Sleep(250 * time.Millisecond)
	fmt.Printf("\nShutdown complete. Goodbye!\n\n")
	logger.Info("shutdown complete")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
