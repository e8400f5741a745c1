package bqetl

import (
	"context"

	"github.com/rs/zerolog/log"
	"golang.org/x/xerrors"
)

// Pipeline defines how records are fetched, which fields are kept and where
// they are loaded.
type Pipeline struct {
	// Name is the pipeline's name used in logs and notifications.
	Name string

	Fetcher Fetcher

	// Limit caps the number of fetched records. Zero leaves it to the source.
	Limit int

	// Fields is the allow-list of fields loaded into the destination.
	Fields []string

	Notifier Notifier

	// LogSuccessfulRecords logs each inserted record at info level.
	LogSuccessfulRecords bool

	// Project specifies GCP project name of destination BigQuery table.
	Project string

	// Dataset specifies BigQuery dataset ID of destination table.
	Dataset string

	// Table specifies BigQuery table ID as destination.
	Table string

	// Bucket is the Cloud Storage bucket receiving failure reports. Reports
	// are written to local files when empty.
	Bucket string

	// ReportDir is the directory of local failure reports.
	ReportDir string

	// ReportPath is a fixed local file for failure reports. It takes
	// precedence over ReportDir and cannot be shared with another pipeline.
	ReportPath string

	// Destination overrides the BigQuery table built from Project, Dataset
	// and Table.
	Destination Destination

	// ArtifactStore overrides the store built from Bucket, ReportDir and
	// ReportPath.
	ArtifactStore ArtifactStore
}

// Report summarizes a pipeline run.
type Report struct {
	Pipeline string

	// Total is the number of records the run tried to insert.
	Total int

	// Failed is the number of rejected records.
	Failed int

	// Location is where the failure report was written, empty when every
	// record was inserted.
	Location string
}

func (p *Pipeline) validate() error {
	if p.Name == "" {
		return xerrors.New("pipeline name is required")
	}
	if p.Fetcher == nil {
		return xerrors.Errorf("pipeline %s: fetcher is required", p.Name)
	}
	if len(p.Fields) == 0 {
		return xerrors.Errorf("pipeline %s: fields are required", p.Name)
	}
	return nil
}

// reportPath returns the fixed local file receiving p's reports, if any.
func (p *Pipeline) reportPath() string {
	if s, ok := p.ArtifactStore.(*FileArtifactStore); ok {
		return s.Path
	}
	if p.ArtifactStore == nil && p.Bucket == "" {
		return p.ReportPath
	}
	return ""
}

func (p *Pipeline) setDefaults(ctx context.Context) error {
	if p.Destination == nil {
		d, err := NewBigQueryDestination(ctx, p.Project, p.Dataset, p.Table)
		if err != nil {
			return err
		}
		p.Destination = d
	}

	if p.ArtifactStore == nil {
		if p.Bucket != "" {
			s, err := NewStorageArtifactStore(ctx, p.Bucket)
			if err != nil {
				return err
			}
			p.ArtifactStore = s
		} else {
			p.ArtifactStore = &FileArtifactStore{Dir: p.ReportDir, Path: p.ReportPath}
		}
	}

	return nil
}

// run executes fetch, transform, load and report in order.
func (p *Pipeline) run(ctx context.Context) (*Report, error) {
	l := log.Ctx(ctx)

	raw, err := p.Fetcher.Fetch(ctx, p.Limit)
	if err != nil {
		return nil, xerrors.Errorf("failed to fetch: %w", err)
	}
	l.Info().Int("records", len(raw)).Msg("fetched records")

	records := Project(raw, NewAllowList(p.Fields...))

	loader := &RecordLoader{Destination: p.Destination, LogSuccessfulRecords: p.LogSuccessfulRecords}
	failures, err := loader.Load(ctx, records)
	if err != nil {
		return nil, xerrors.Errorf("failed to load: %w", err)
	}

	reporter := &FailureReporter{Store: p.ArtifactStore, Pipeline: p.Name}
	location, err := reporter.Report(ctx, failures)
	if err != nil {
		return nil, xerrors.Errorf("failed to report: %w", err)
	}

	return &Report{
		Pipeline: p.Name,
		Total:    len(records),
		Failed:   len(failures),
		Location: location,
	}, nil
}
