package pipelines

import (
	"context"

	"go.nownabe.dev/bqetl"
)

// Table identifies BigQuery table.
type Table struct {
	Project string
	Dataset string
	Table   string
}

// TableGenerator returns a function building Tables in the same dataset.
func TableGenerator(project, dataset string) func(string) Table {
	return func(table string) Table {
		return Table{Project: project, Dataset: dataset, Table: table}
	}
}

// Reports tells where failure reports go: a Cloud Storage bucket, or a local
// directory when Bucket is empty. Each pipeline writes under its own name.
type Reports struct {
	Bucket string
	Dir    string
}

// MustAddPipelines adds pipelines to e and panics on error.
func MustAddPipelines(ctx context.Context, e bqetl.ETL, ps ...*bqetl.Pipeline) {
	for _, p := range ps {
		e.MustAddPipeline(ctx, p)
	}
}

func newPipeline(name string, f bqetl.Fetcher, fields []string, t Table, r Reports, n bqetl.Notifier) *bqetl.Pipeline {
	return &bqetl.Pipeline{
		Name:     name,
		Fetcher:  f,
		Fields:   fields,
		Notifier: n,

		Project: t.Project,
		Dataset: t.Dataset,
		Table:   t.Table,

		Bucket:    r.Bucket,
		ReportDir: r.Dir,
	}
}
