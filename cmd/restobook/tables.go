package main

import (
	"context"
	"fmt"
	"os"

	"restobook/internal/config"
	"restobook/internal/database"
	"restobook/internal/logging"
	"restobook/internal/models"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"
)

func newTablesCmd(root *rootOptions) *cobra.Command {
	var (
		tablesPath string
		list       bool
	)

	defaultTables := os.Getenv("TABLES_PATH")
	if defaultTables == "" {
		defaultTables = "configs/tables.yaml"
	}

	cmd := &cobra.Command{
		Use:   "tables",
		Short: "Seed restaurant tables from the tables file into the store",
		Long: "Upserts every table from the tables file. The scheduler picks up new tables\n" +
			"on its next rebuild (nightly cleanup or restart).",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, closer, err := loadConfigAndLogger(root, "cli")
			if err != nil {
				return err
			}
			defer closeQuietly(closer)

			db, err := database.NewDB(cfg.Database.Path, logging.Component(logger, "database"))
			if err != nil {
				return err
			}
			defer db.Close()

			ctx := contextOrBackground(cmd.Context())
			if !list {
				tables, err := loadTables(tablesPath, cfg.Scheduler.MaxPersons, logger)
				if err != nil {
					return err
				}
				if err := seedTables(ctx, db, tables); err != nil {
					return err
				}
				logger.Info().Int("tables", len(tables)).Str("tables_path", tablesPath).Msg("tables seeded")
			}
			return printTables(ctx, cmd, db)
		},
	}
	cmd.Flags().StringVar(&tablesPath, "file", defaultTables, "tables yaml file")
	cmd.Flags().BoolVar(&list, "list", false, "only list stored tables")
	return cmd
}

func loadTables(path string, maxPersons int, logger *zerolog.Logger) ([]models.RestTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Error().Err(err).Str("tables_path", path).Msg("read tables")
		return nil, err
	}

	var tablesConfig struct {
		Tables []models.RestTable `yaml:"tables"`
	}
	if err := yaml.Unmarshal(data, &tablesConfig); err != nil {
		logger.Error().Err(err).Str("tables_path", path).Msg("parse tables")
		return nil, err
	}

	if err := config.ValidateTables(tablesConfig.Tables, maxPersons); err != nil {
		logger.Error().Err(err).Msg("Tables validation failed")
		return nil, err
	}
	return tablesConfig.Tables, nil
}

func seedTables(ctx context.Context, db *database.DB, tables []models.RestTable) error {
	for i := range tables {
		if err := db.UpsertTable(ctx, &tables[i]); err != nil {
			return fmt.Errorf("table %d: %w", tables[i].TableNumber, err)
		}
	}
	return nil
}

func printTables(ctx context.Context, cmd *cobra.Command, db *database.DB) error {
	tables, err := db.ListTables(ctx)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, t := range tables {
		fmt.Fprintf(out, "%3d  %d seats  %s\n", t.TableNumber, t.Capacity, t.Note)
	}
	return nil
}
