package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/tejusbharadwaj/apavital/internal/api"
	"github.com/tejusbharadwaj/apavital/internal/config"
	"github.com/tejusbharadwaj/apavital/internal/coordinator"
	"github.com/tejusbharadwaj/apavital/internal/database"
	server "github.com/tejusbharadwaj/apavital/internal/grpc"
	"github.com/tejusbharadwaj/apavital/internal/history"
	"github.com/tejusbharadwaj/apavital/internal/homeassistant"
	"github.com/tejusbharadwaj/apavital/internal/httpapi"
	"github.com/tejusbharadwaj/apavital/internal/logging"
	"github.com/tejusbharadwaj/apavital/internal/metrics"
	"github.com/tejusbharadwaj/apavital/internal/scheduler"
)

// Command apavital polls the Apavital water usage API and publishes the
// meter readings as sensors.
//
// The service provides:
//   - Hourly polling with a daily consumption delta
//   - gRPC and HTTP access to the sensor states
//   - Home Assistant MQTT discovery
//   - Optional reading history in PostgreSQL
//   - Prometheus metrics
//
// Usage:
//
//	apavital [flags]
//
// The flags are:
//
//	-config string
//	      path to config file (default "config.yaml")
func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	appConfig, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.New(appConfig.Logging, os.Stdout)
	if err != nil {
		log.Fatalf("Failed to configure logging: %v", err)
	}

	if err := run(appConfig, *configPath, logger); err != nil {
		logger.Fatalf("Service error: %v", err)
	}
}

func run(appConfig *config.Config, configPath string, logger *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loc, err := time.LoadLocation(appConfig.Apavital.Location)
	if err != nil {
		return fmt.Errorf("load location %q: %w", appConfig.Apavital.Location, err)
	}

	client := api.NewUsageClient(appConfig.Apavital.URL, appConfig.Apavital.Timeout, logger).WithLocation(loc)
	coord := coordinator.New(client, coordinator.Options{
		Credentials: api.Credentials{
			ClientCode: appConfig.Apavital.ClientCode,
			Token:      appConfig.Apavital.Token,
		},
		LeakThreshold:  appConfig.Apavital.LeakThreshold,
		UpdateInterval: appConfig.Apavital.Interval(),
		PersistToken: func(token string) error {
			return config.SaveToken(configPath, token)
		},
	}, logger)

	m, err := metrics.New(prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	coord.AddObserver(m)

	health := server.NewHealthChecker()
	health.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	health.SetServingStatus(server.ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
	coord.AddObserver(health)

	if appConfig.Database.Enabled {
		repo, err := setupHistory(ctx, appConfig.Database, coord, logger)
		if err != nil {
			return err
		}
		defer repo.Close()
	}

	if appConfig.MQTT.Enabled {
		publisher, err := setupMQTT(appConfig, logger)
		if err != nil {
			return err
		}
		coord.AddObserver(publisher)
		defer func() {
			if err := publisher.Close(); err != nil {
				logger.WithError(err).Warn("Failed to publish offline status")
			}
		}()
	}

	grpcServer, err := server.SetupServer(coord, server.ServerConfig{
		RateLimit:      appConfig.RateLimit.Rate,
		RateLimitBurst: appConfig.RateLimit.Burst,
	}, health, logger, m)
	if err != nil {
		return fmt.Errorf("setup gRPC server: %w", err)
	}

	grpcAddr := fmt.Sprintf("%s:%d", appConfig.Server.Host, appConfig.Server.GRPCPort)
	lis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", grpcAddr, err)
	}

	accessLog := logger.WriterLevel(logrus.InfoLevel)
	defer accessLog.Close()
	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", appConfig.Server.Host, appConfig.Server.HTTPPort),
		Handler:           httpapi.Wrap(httpapi.NewRouter(coord, prometheus.DefaultGatherer, logger), accessLog, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 2)

	go func() {
		logger.WithField("addr", grpcAddr).Info("Starting gRPC server")
		if err := grpcServer.Serve(lis); err != nil {
			errChan <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()

	go func() {
		logger.WithField("addr", httpServer.Addr).Info("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sched := scheduler.NewScheduler(ctx, m.InstrumentRefresher(coord), appConfig.Apavital.Interval(), appConfig.Apavital.Timeout+5*time.Second, logger)
	go func() {
		if err := sched.Start(); err != nil {
			errChan <- fmt.Errorf("scheduler error: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case runErr = <-errChan:
	}

	shutdown(grpcServer, httpServer, sched, logger)
	return runErr
}

func setupHistory(ctx context.Context, cfg config.DatabaseConfig, coord *coordinator.Coordinator, logger *logrus.Logger) (database.ReadingRepository, error) {
	repo, err := database.NewPostgresRepo(ctx, cfg.ConnString())
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	recorder, err := history.NewRecorder(repo, 0, logger)
	if err != nil {
		repo.Close()
		return nil, err
	}

	baseline, ok, err := recorder.Baseline(ctx)
	switch {
	case err != nil:
		logger.WithError(err).Warn("Failed to load stored index, first daily delta will be 0")
	case ok:
		coord.SeedIndex(baseline)
		logger.WithField("index", baseline).Info("Seeded daily delta from stored index")
	}

	coord.AddObserver(recorder)
	return repo, nil
}

func setupMQTT(appConfig *config.Config, logger *logrus.Logger) (*homeassistant.Publisher, error) {
	mqttClient, err := homeassistant.Connect(appConfig.MQTT, appConfig.Apavital.ClientCode, logger)
	if err != nil {
		return nil, err
	}
	return homeassistant.NewPublisher(mqttClient, homeassistant.Options{
		DiscoveryPrefix: appConfig.MQTT.DiscoveryPrefix,
		BaseTopic:       appConfig.MQTT.BaseTopic,
		NodeID:          appConfig.Apavital.ClientCode,
		Timeout:         appConfig.MQTT.PublishTimeout,
	}, logger), nil
}

// shutdown stops polling first so no cycle publishes after the servers close.
func shutdown(grpcServer *grpc.Server, httpServer *http.Server, sched *scheduler.Scheduler, logger *logrus.Logger) {
	logger.Info("Stopping scheduler...")
	sched.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.WithError(err).Warn("HTTP server shutdown")
	}

	logger.Info("Gracefully stopping gRPC server...")
	grpcServer.GracefulStop()
	logger.Info("Server stopped")
}
