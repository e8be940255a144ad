package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"luminate/backend/cache"
	"luminate/backend/config"
	"luminate/backend/models"
	"luminate/backend/routes"
	"luminate/backend/seed"
	"luminate/backend/utils"
	"luminate/backend/workers"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const shutdownTimeout = 10 * time.Second

func openDB(cfg *config.Config) (*gorm.DB, error) {
	db, err := utils.InitDB(cfg)
	if err != nil {
		return nil, err
	}
	if err := models.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			log, err := utils.InitLogger(cfg.LogMode)
			if err != nil {
				return err
			}
			defer log.Sync()

			db, err := openDB(cfg)
			if err != nil {
				return err
			}
			topicCache, err := cache.NewTopicCache(cfg, log)
			if err != nil {
				return err
			}
			defer topicCache.Close()

			app := routes.NewApp(db, cfg, log, topicCache)
			snapshots := workers.NewPopularitySnapshotter(db, cfg.SnapshotInterval, log)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			g, ctx := errgroup.WithContext(ctx)

			g.Go(func() error {
				snapshots.Run(ctx)
				return nil
			})
			g.Go(func() error {
				log.Info("listening", "port", cfg.ServerPort, "db", cfg.DBDriver)
				return app.Listen(":" + cfg.ServerPort)
			})
			g.Go(func() error {
				<-ctx.Done()
				log.Info("shutting down")
				return app.ShutdownWithTimeout(shutdownTimeout)
			})
			return g.Wait()
		},
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if _, err := openDB(cfg); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Database is up to date")
			return nil
		},
	}
}

func newSeedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load a topic catalog into the database",
		Long:  "Loads the built-in starter catalog, or a YAML catalog given with --file. Topics that already exist are skipped.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			log, err := utils.InitLogger(cfg.LogMode)
			if err != nil {
				return err
			}
			defer log.Sync()

			catalog, err := loadCatalog(cmd)
			if err != nil {
				return err
			}
			db, err := openDB(cfg)
			if err != nil {
				return err
			}
			n, err := seed.Apply(cmd.Context(), db, catalog, log)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d of %d topics\n", n, len(catalog.Topics))
			return nil
		},
	}
	cmd.Flags().String("file", "", "YAML catalog to load instead of the built-in one")
	return cmd
}

func loadCatalog(cmd *cobra.Command) (seed.Catalog, error) {
	if path, _ := cmd.Flags().GetString("file"); path != "" {
		return seed.LoadFile(path)
	}
	return seed.Default()
}
