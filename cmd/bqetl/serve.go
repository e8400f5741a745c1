package main

import (
	"context"
	"os"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/xerrors"
)

var serveCmd = &cobra.Command{
	Use:   "serve [pipeline...]",
	Short: "Runs pipelines on a cron schedule until interrupted",
	RunE:  withSignalWatcher(serve),
}

func serve(ctx context.Context, args []string) error {
	logger := zerolog.New(os.Stderr).With().Timestamp().Str("cmd", "serve").Logger()

	e, closeAll, err := buildETL(ctx, args)
	if err != nil {
		return err
	}
	defer closeAll()

	spec := viper.GetString("cron")

	c := cron.New()
	if _, err := c.AddFunc(spec, func() {
		reports, err := e.RunAll(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("scheduled run failed")
		}
		printReports(os.Stdout, reports)
	}); err != nil {
		return xerrors.Errorf("invalid cron expression %q: %w", spec, err)
	}

	c.Start()
	logger.Info().Str("cron", spec).Strs("pipelines", e.Pipelines()).Msg("scheduled pipelines")

	<-ctx.Done()
	<-c.Stop().Done()

	return nil
}
