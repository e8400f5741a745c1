package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/xerrors"
)

// Version is the bqetl version.
var Version = "development"

func prepare() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "bqetl",
		Short:        "Load records from open data APIs into BigQuery",
		SilenceUsage: true,
		Version:      Version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig()
		},
	}

	viper.SetEnvPrefix("BQETL")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "", "YAML, TOML or .env config file")
	flags.String("log-level", "info", "log level. One of trace, debug, info, warn, error, fatal, panic")
	flags.Bool("pretty", false, "print human friendly logs")
	flags.String("project", "", "GCP project of destination BigQuery tables")
	flags.String("dataset", "", "BigQuery dataset of destination tables")
	flags.String("bucket", "", "Cloud Storage bucket for failure reports. Reports are written locally when empty")
	flags.String("report-dir", "", "local directory for failure reports when no bucket is set")
	flags.String("postgres-url", "", "load into Postgres tables at this URL instead of BigQuery. --dataset is the schema")
	flags.Int("limit", 0, "maximum number of records fetched per pipeline. 0 keeps the pipeline default")
	flags.Int("concurrency", 1, "number of pipelines running at once")
	flags.String("sf311-table", "311_data", "destination table of the sf311 pipeline")
	flags.String("github-table", "github_repos", "destination table of the github pipeline")
	flags.String("github-repo", "PrefectHQ/prefect", "repository loaded by the github pipeline")
	flags.String("storage-table", "storage_rows", "destination table of the storage pipeline")
	flags.String("storage-bucket", "", "Cloud Storage bucket of the file loaded by the storage pipeline")
	flags.String("storage-object", "", "object name of the file loaded by the storage pipeline")
	flags.String("storage-format", "csv", "format of the storage pipeline's file. One of csv, xls")
	flags.String("storage-encoding", "", "character encoding of the storage pipeline's file such as shift_jis")
	flags.Int("storage-skip-rows", 0, "rows skipped before the header of the storage pipeline's file")
	flags.StringSlice("storage-fields", nil, "columns loaded by the storage pipeline")

	serveCmd.Flags().String("cron", "0 1 * * *", "cron schedule of runs")

	for _, f := range []string{"config", "log-level", "pretty", "project", "dataset", "bucket", "report-dir",
		"postgres-url", "limit", "concurrency", "sf311-table", "github-table", "github-repo", "storage-table",
		"storage-bucket", "storage-object", "storage-format", "storage-encoding", "storage-skip-rows",
		"storage-fields"} {
		_ = viper.BindPFlag(f, flags.Lookup(f))
	}
	_ = viper.BindPFlag("cron", serveCmd.Flags().Lookup("cron"))

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(serveCmd)

	return rootCmd
}

func loadConfig() error {
	cfg := viper.GetString("config")
	if cfg == "" {
		return nil
	}

	viper.SetConfigFile(cfg)
	if err := viper.ReadInConfig(); err != nil {
		return xerrors.Errorf("failed to read config %s: %w", cfg, err)
	}

	return nil
}

func withSignalWatcher(fn func(ctx context.Context, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
		defer stop()

		return fn(ctx, args)
	}
}
