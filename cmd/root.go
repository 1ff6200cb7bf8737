package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rmb938/franz-graphql-registry/pkg/artifacts"
	"github.com/rmb938/franz-graphql-registry/pkg/config"
	"github.com/rmb938/franz-graphql-registry/pkg/database"
	"github.com/rmb938/franz-graphql-registry/pkg/database/migrations"
	"github.com/rmb938/franz-graphql-registry/pkg/metrics"
	"github.com/rmb938/franz-graphql-registry/pkg/registry"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	cfgFile string
	cfg     config.Config
)

var rootCmd = &cobra.Command{
	Use:   "franz-graphql-registry",
	Short: "A GraphQL schema registry",
	Long:  `A GraphQL schema registry keeping a validated version history of single, stitched and federated schemas and publishing them to a CDN.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(viper.GetViper(), cfgFile)
		if err != nil {
			return err
		}
		cfg = loaded
		return nil
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file")
	rootCmd.PersistentFlags().String("database-driver", "", "database driver, postgres or sqlite")
	rootCmd.PersistentFlags().String("database-dsn", "", "database connection string")

	_ = viper.BindPFlag("database.driver", rootCmd.PersistentFlags().Lookup("database-driver"))
	_ = viper.BindPFlag("database.dsn", rootCmd.PersistentFlags().Lookup("database-dsn"))

	rootCmd.AddCommand(serveCmd, migrateCmd, syncCDNCmd)
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func newLogger(cfg config.LogConfig) (logr.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	z, err := zc.Build()
	if err != nil {
		return logr.Discard(), fmt.Errorf("who watches the watchmen (%w)?", err)
	}
	return zapr.NewLogger(z), nil
}

func openDatabase(log logr.Logger, cfg config.DatabaseConfig) (*gorm.DB, error) {
	db, err := database.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, err
	}

	log.Info("Running database migrations")
	if err := migrations.RunMigrations(db); err != nil {
		return nil, fmt.Errorf("error running database migrations: %w", err)
	}
	log.Info("Done running database migrations")

	return db, nil
}

func newStore(ctx context.Context, cfg config.ArtifactsConfig) (artifacts.Store, error) {
	switch cfg.Backend {
	case "redis":
		return artifacts.NewRedisStore(cfg.Redis)
	case "gcs":
		return artifacts.NewGCSStore(ctx, cfg.GCS)
	default:
		return artifacts.NewMemoryStore(), nil
	}
}

// app holds everything the commands share.
type app struct {
	log       logr.Logger
	db        *gorm.DB
	publisher *artifacts.Publisher
	metrics   *metrics.Metrics
	registry  *registry.Registry
	store     artifacts.Store
}

func (a *app) close() {
	if closer, ok := a.store.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			a.log.Error(err, "error closing artifact store")
		}
	}
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func newApp(ctx context.Context, registerer prometheus.Registerer) (*app, error) {
	log, err := newLogger(cfg.Log)
	if err != nil {
		return nil, err
	}

	db, err := openDatabase(log, cfg.Database)
	if err != nil {
		return nil, err
	}

	store, err := newStore(ctx, cfg.Artifacts)
	if err != nil {
		return nil, fmt.Errorf("error creating artifact store: %w", err)
	}
	publisher := artifacts.NewPublisher(store, log.WithName("artifacts"))

	m := metrics.New(registerer)
	return &app{
		log:       log,
		db:        db,
		publisher: publisher,
		metrics:   m,
		store:     store,
		registry: registry.NewRegistry(db, publisher, log.WithName("registry"),
			registry.WithMetrics(m),
			registry.WithContractWorkers(cfg.Registry.ContractWorkers),
		),
	}, nil
}
