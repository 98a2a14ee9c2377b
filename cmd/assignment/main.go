package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ridelink/transferhub/internal/assignment/auth"
	"github.com/ridelink/transferhub/internal/assignment/db"
	"github.com/ridelink/transferhub/internal/assignment/diagnostics"
	"github.com/ridelink/transferhub/internal/assignment/handlers"
	"github.com/ridelink/transferhub/internal/assignment/intake"
	"github.com/ridelink/transferhub/internal/assignment/notify"
	"github.com/ridelink/transferhub/internal/assignment/oplog"
	"github.com/ridelink/transferhub/internal/assignment/order"
	"github.com/ridelink/transferhub/internal/assignment/processor"
	"github.com/ridelink/transferhub/internal/assignment/queue"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Config struct for YAML configuration
type Config struct {
	HTTPPort              int      `yaml:"HTTP_PORT"`
	DBHost                string   `yaml:"DB_HOST"`
	DBPort                int      `yaml:"DB_PORT"`
	DBUser                string   `yaml:"DB_USER"`
	DBPassword            string   `yaml:"DB_PASSWORD"`
	DBName                string   `yaml:"DB_NAME"`
	DBSSLMode             string   `yaml:"DB_SSLMODE"`
	KafkaBrokers          []string `yaml:"KAFKA_BROKERS"`
	NotifyTopic           string   `yaml:"NOTIFY_TOPIC"`
	IntakeTopic           string   `yaml:"INTAKE_TOPIC"`
	IntakeGroupID         string   `yaml:"INTAKE_GROUP_ID"`
	JWTSecret             string   `yaml:"JWT_SECRET"`
	WorkerIntervalSeconds int      `yaml:"WORKER_INTERVAL_SECONDS"`
	BatchSize             int      `yaml:"BATCH_SIZE"`
}

func main() {
	logger := initLogger()
	defer func(logger *zap.Logger) {
		err := logger.Sync()
		if err != nil {
			logger.Error("failed to sync logger", zap.Error(err))
		}
	}(logger)

	cfg, err := loadConfig()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	repo, err := db.NewRepository(initDatabase(cfg))
	if err != nil {
		log.Fatal("failed to initialize database", err)
	}
	defer repo.Close()

	producer, err := notify.NewProducer(cfg.KafkaBrokers, logger, cfg.NotifyTopic)
	if err != nil {
		log.Fatal("failed to initialize Kafka producer", err)
	}
	defer producer.Close()

	sink := oplog.NewSink(repo, logger, producer)
	engine := queue.NewEngine(repo, sink)
	factory := order.NewFactory(repo, engine, producer, sink)
	proc := processor.New(repo, factory, sink)
	reporter := diagnostics.NewReporter(repo)

	worker := processor.NewWorker(
		proc,
		time.Duration(cfg.WorkerIntervalSeconds)*time.Second,
		cfg.BatchSize,
		logger,
	)

	consumer := intake.NewConsumer(cfg.KafkaBrokers, cfg.IntakeGroupID, cfg.IntakeTopic, factory, logger)
	defer consumer.Close()

	handler := handlers.NewHandler(engine, reporter, factory, proc, logger)
	server := handlers.NewServer(
		cfg.HTTPPort,
		auth.HTTPMiddleware(handler.Mux(), cfg.JWTSecret),
		logger,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	consumer.Start(ctx)
	go worker.Run(ctx)
	go func() {
		if err := server.Start(); err != nil {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	waitForShutdown(server, cancel, logger)
}

// initLogger initializes a Zap production logger.
func initLogger() *zap.Logger {
	logger, _ := zap.NewProduction()
	return logger
}

// loadConfig loads configuration. Use real config tooling (e.g. Viper) in production.
func loadConfig() (*Config, error) {
	configPath := filepath.Join("internal", "assignment", "config", "config.yaml")
	file, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}
	var cfg Config
	err = yaml.Unmarshal(file, &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// initDatabase builds the database connection config.
func initDatabase(cfg *Config) *db.Config {
	return &db.Config{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		DBName:   cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
	}
}

// waitForShutdown blocks until an interrupt or SIGTERM is received,
// then stops the worker, consumer and server.
func waitForShutdown(server *handlers.Server, cancel context.CancelFunc, logger *zap.Logger) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	cancel()
	server.Stop()
	logger.Info("Servers stopped properly")
}
