package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/0x6flab/namegenerator"
	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	kitprometheus "github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"

	runwatch "github.com/fedlens/runwatch"
	"github.com/fedlens/runwatch/cli"
	"github.com/fedlens/runwatch/orchestrator"
	"github.com/fedlens/runwatch/orchestrator/middleware"
	"github.com/fedlens/runwatch/orchestrator/notify"
	"github.com/fedlens/runwatch/pkg/history"
	"github.com/fedlens/runwatch/pkg/mqtt"
	"github.com/fedlens/runwatch/pkg/sdk"
)

const (
	svcName = "runwatch"
	pathEnv = ".env"
)

type envConfig struct {
	LogLevel        string        `env:"RUNWATCH_LOG_LEVEL"         envDefault:"info"`
	BackendURL      string        `env:"RUNWATCH_BACKEND_URL"       envDefault:"http://localhost:8000"`
	TLSVerification bool          `env:"RUNWATCH_TLS_VERIFICATION"  envDefault:"false"`
	ConfigPath      string        `env:"RUNWATCH_CONFIG_PATH"`
	HistoryDir      string        `env:"RUNWATCH_HISTORY_DIR"`
	PollInterval    time.Duration `env:"RUNWATCH_POLL_INTERVAL"     envDefault:"5s"`
	MaxAttempts     int           `env:"RUNWATCH_MAX_POLL_ATTEMPTS" envDefault:"24"`
	AllowForceReady bool          `env:"RUNWATCH_ALLOW_FORCE_READY" envDefault:"false"`
	MQTTAddress     string        `env:"RUNWATCH_MQTT_ADDRESS"`
	MQTTClientID    string        `env:"RUNWATCH_MQTT_CLIENT_ID"`
	MQTTQoS         uint8         `env:"RUNWATCH_MQTT_QOS"          envDefault:"1"`
	MQTTTimeout     time.Duration `env:"RUNWATCH_MQTT_TIMEOUT"      envDefault:"30s"`
	MQTTUsername    string        `env:"RUNWATCH_MQTT_USERNAME"`
	MQTTPassword    string        `env:"RUNWATCH_MQTT_PASSWORD"`
	MQTTBaseTopic   string        `env:"RUNWATCH_MQTT_BASE_TOPIC"   envDefault:"fl/runs"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if _, err := os.Stat(pathEnv); err == nil {
		_ = godotenv.Load(pathEnv)
	}

	cfg := envConfig{}
	if err := env.Parse(&cfg); err != nil {
		return fmt.Errorf("failed to load environment: %w", err)
	}

	logger, err := configureLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	if cfg.ConfigPath != "" {
		fileCfg, err := runwatch.LoadConfig(cfg.ConfigPath)
		if err != nil {
			return err
		}
		applyFileConfig(&cfg, fileCfg)
	}

	s := sdk.NewSDK(sdk.Config{
		BaseURL:         cfg.BackendURL,
		TLSVerification: cfg.TLSVerification,
	})

	counter := kitprometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Namespace: svcName,
		Subsystem: "orchestrator",
		Name:      "request_count",
		Help:      "Number of orchestrator operations.",
	}, []string{"method"})
	latency := kitprometheus.NewSummaryFrom(stdprometheus.SummaryOpts{
		Namespace: svcName,
		Subsystem: "orchestrator",
		Name:      "request_latency_microseconds",
		Help:      "Total duration of orchestrator operations in microseconds.",
	}, []string{"method"})

	namegen := namegenerator.NewGenerator()

	var svc orchestrator.Service
	svc = orchestrator.NewService(s, orchestrator.Options{
		SessionName:     namegen.Generate(),
		PollInterval:    cfg.PollInterval,
		MaxAttempts:     cfg.MaxAttempts,
		AllowForceReady: cfg.AllowForceReady,
	}, logger)
	svc = middleware.Logging(logger, svc)
	svc = middleware.Metrics(counter, latency, svc)

	if cfg.MQTTAddress != "" {
		clientID := cfg.MQTTClientID
		if clientID == "" {
			clientID = svcName + "-" + uuid.NewString()
		}
		pubsub, err := mqtt.NewPubSub(cfg.MQTTAddress, cfg.MQTTQoS,
			clientID, cfg.MQTTUsername, cfg.MQTTPassword,
			cfg.MQTTTimeout, logger)
		if err != nil {
			return fmt.Errorf("failed to connect to MQTT broker: %w", err)
		}
		defer func() {
			if err := pubsub.Disconnect(context.Background()); err != nil {
				logger.Warn("Failed to disconnect MQTT", slog.Any("error", err))
			}
		}()

		svc.Subscribe(notify.NewMQTT(pubsub, cfg.MQTTBaseTopic, logger))
		cli.SetPubSub(pubsub, cfg.MQTTBaseTopic)
	}

	histStore := openHistory(cfg.HistoryDir, logger)
	defer func() {
		if err := histStore.Close(); err != nil {
			logger.Warn("Failed to close history store", slog.Any("error", err))
		}
	}()

	cli.SetSDK(s)
	cli.SetOrchestrator(svc)
	cli.SetHistory(histStore)

	rootCmd := &cobra.Command{
		Use:   "runwatch",
		Short: "Federated-training run watcher",
		Long:  `runwatch starts federated-training runs, follows their round stream, and tracks derived-artifact readiness.`,
	}
	rootCmd.AddCommand(cli.NewWatchCmd(), cli.NewFollowCmd(), cli.NewRunsCmd(),
		cli.NewPredictCmd(), cli.NewPatientsCmd())

	return rootCmd.ExecuteContext(ctx)
}

// openHistory resolves the history directory, defaulting to ~/.runwatch, and
// falls back to the in-memory store when persistent storage cannot open.
func openHistory(dir string, logger *slog.Logger) history.Store {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			logger.Warn("No home directory, session history will not persist", slog.Any("error", err))

			return history.NewInMemory()
		}
		dir = filepath.Join(home, ".runwatch")
	}

	store, err := history.NewStore(dir)
	if err != nil {
		logger.Warn("Failed to open history store, session history will not persist",
			slog.String("dir", dir),
			slog.Any("error", err))

		return history.NewInMemory()
	}

	return store
}

func applyFileConfig(cfg *envConfig, fileCfg *runwatch.Config) {
	if fileCfg.Backend.URL != "" {
		cfg.BackendURL = fileCfg.Backend.URL
		cfg.TLSVerification = fileCfg.Backend.TLSVerification
	}
	if fileCfg.Poll.Interval > 0 {
		cfg.PollInterval = fileCfg.Poll.Interval
	}
	if fileCfg.Poll.MaxAttempts > 0 {
		cfg.MaxAttempts = fileCfg.Poll.MaxAttempts
	}
	if fileCfg.Poll.AllowForceReady {
		cfg.AllowForceReady = true
	}
	if fileCfg.MQTT.Address != "" {
		cfg.MQTTAddress = fileCfg.MQTT.Address
		cfg.MQTTUsername = fileCfg.MQTT.Username
		cfg.MQTTPassword = fileCfg.MQTT.Password
	}
	if fileCfg.MQTT.ClientID != "" {
		cfg.MQTTClientID = fileCfg.MQTT.ClientID
	}
	if fileCfg.MQTT.BaseTopic != "" {
		cfg.MQTTBaseTopic = fileCfg.MQTT.BaseTopic
	}
}

func configureLogger(level string) (*slog.Logger, error) {
	var logLevel slog.Level
	if err := logLevel.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("failed to parse log level: %w", err)
	}

	logHandler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})

	return slog.New(logHandler), nil
}
