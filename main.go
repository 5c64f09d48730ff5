package main

import (
	"context"
	"errors"
	"fmt"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"os"
	"time"
	"yappy/config"
	"yappy/internal"
	"yappy/services"
)

var (
	configPath string
	envFile    string
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "yappy",
		Short:         "Yappy QR payments for the point of sale",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if envFile == "" {
				return nil
			}
			if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("load %s: %w", envFile, err)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&configPath, "conf", "config.yml", "path to config file")
	root.PersistentFlags().StringVar(&envFile, "env", ".env", "optional environment file")

	root.AddCommand(newServeCommand())
	root.AddCommand(newPayCommand())
	root.AddCommand(newConfigCommand())
	return root
}

// app holds the wired services shared by all commands.
type app struct {
	conf        *config.Config
	logger      *internal.Logger
	database    services.Database
	credentials *internal.CredentialsStore
	remote      *internal.RemoteConfig
	payments    *internal.Payments
	shutdown    func(context.Context) error
}

// close flushes pending spans.
func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.shutdown(ctx); err != nil {
		a.logger.Error("tracer shutdown", err)
	}
}

func loadConfig(logger *internal.Logger) (*config.Config, error) {
	if _, err := os.Stat(configPath); err != nil {
		logger.Warn(fmt.Sprintf("config file %s not found, using environment", configPath))
		return config.Default()
	}
	logger.Info("using config file: " + configPath)
	return config.GetConfig(configPath)
}

func newApp() (*app, error) {
	logger := internal.NewLogger("internal", false, nil)

	conf, err := loadConfig(logger)
	if err != nil {
		logger.Error("boot", err)
		return nil, err
	}

	shutdown, err := internal.InitTracer(context.Background(), conf.Otel.Endpoint, conf.Otel.ServiceName)
	if err != nil {
		logger.Error("tracer", err)
		return nil, err
	}
	if conf.Otel.Endpoint != "" {
		logger.Info("exporting traces to " + conf.Otel.Endpoint)
	}

	var database services.Database
	var backend services.KeyValue
	if conf.Mongo.Enabled {
		mongo, err := internal.NewMongoClient(conf)
		if err != nil {
			logger.Error("mongo client", err)
			return nil, err
		}
		database = mongo
		backend = mongo
		logger.Info("mongo client initialized")
	} else {
		backend = internal.NewMemoryKeyValue()
	}

	masterKey := conf.Store.MasterKey
	if masterKey == "" {
		logger.Warn("store master key not set, stored values will not survive a restart")
		masterKey = uuid.NewString()
		backend = internal.NewMemoryKeyValue()
	}
	encryptor, err := internal.NewEncryptor(masterKey)
	if err != nil {
		logger.Error("store encryptor", err)
		return nil, err
	}

	storeLogger := internal.NewLogger("store", conf.IsDebug, database)
	credentials := internal.NewCredentialsStore(internal.NewSecureStore(backend, encryptor), conf, storeLogger)

	remote := internal.NewRemoteConfig(conf, credentials, internal.NewLogger("config", conf.IsDebug, database))

	payments := internal.NewPayments(conf, credentials, internal.NewLogger("payments", conf.IsDebug, database))
	payments.SetDatabase(database)

	return &app{
		conf:        conf,
		logger:      logger,
		database:    database,
		credentials: credentials,
		remote:      remote,
		payments:    payments,
		shutdown:    shutdown,
	}, nil
}

func refreshOnBoot(ctx context.Context, a *app) {
	if a.conf.Remote.Url == "" {
		return
	}
	if _, err := a.remote.Refresh(ctx); err != nil {
		a.logger.Error("remote config", err)
	}
}
