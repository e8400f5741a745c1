package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"go.nownabe.dev/bqetl"
)

var runCmd = &cobra.Command{
	Use:     "run [pipeline...]",
	Short:   "Runs pipelines once, all known pipelines when none is given",
	Example: "bqetl run sf311 --project my-project --dataset test_dataset --bucket my-bucket",
	RunE:    withSignalWatcher(run),
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Lists known pipelines",
	Run: func(cmd *cobra.Command, _ []string) {
		for _, name := range knownPipelines {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
	},
}

func run(ctx context.Context, args []string) error {
	e, closeAll, err := buildETL(ctx, args)
	if err != nil {
		return err
	}
	defer closeAll()

	reports, err := e.RunAll(ctx)
	printReports(os.Stdout, reports)

	return err
}

func printReports(w io.Writer, reports []*bqetl.Report) {
	for _, r := range reports {
		if r.Failed == 0 {
			fmt.Fprintf(w, "%s: all %d records were inserted successfully\n", r.Pipeline, r.Total)
			continue
		}
		fmt.Fprintf(w, "%s: %d of %d records failed, report: %s\n", r.Pipeline, r.Failed, r.Total, r.Location)
	}
}
