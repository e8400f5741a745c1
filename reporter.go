package bqetl

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"cloud.google.com/go/storage"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"golang.org/x/xerrors"

	ijson "go.nownabe.dev/bqetl/internal/json"
)

const reportContentType = "text/plain; charset=utf-8"

// ArtifactStore persists run artifacts such as failure reports.
type ArtifactStore interface {
	// Write stores content under name and returns where it was written.
	Write(ctx context.Context, name string, content []byte, contentType string) (string, error)
}

// FailureReporter writes a report of rejected records.
type FailureReporter struct {
	Store ArtifactStore

	// Pipeline, when set, is the directory of reports in the store.
	Pipeline string

	// Clock dates reports when the context carries no run start time.
	Clock clockwork.Clock
}

// ReportName returns the artifact name of a report for the run date t.
func ReportName(t time.Time) string {
	return fmt.Sprintf("failed_records_report_%s.txt", t.Format("2006-01-02"))
}

// ReportKey returns the key of a report of the pipeline for the run date t,
// such as "sf311/failed_records_report_2024-08-15.txt".
func ReportKey(pipeline string, t time.Time) string {
	if pipeline == "" {
		return ReportName(t)
	}
	return path.Join(pipeline, ReportName(t))
}

// RenderReport renders failures as text, one block per failure.
func RenderReport(failures []InsertFailure) []byte {
	buf := &bytes.Buffer{}
	for _, f := range failures {
		fmt.Fprintf(buf, "Record: %s\n", f.Record)
		fmt.Fprintf(buf, "Errors: %s\n", renderErrors(f.Errors))
		buf.WriteString("\n---\n\n")
	}
	return buf.Bytes()
}

func renderErrors(errs []ErrorDescriptor) string {
	ss := make([]string, len(errs))
	for i, e := range errs {
		ss[i] = e.String()
	}
	b, err := ijson.Marshal(ss)
	if err != nil {
		return fmt.Sprintf("%q", ss)
	}
	return string(b)
}

// Report persists a report of failures and returns its location. With no
// failures it only logs a success notice and returns an empty location.
func (r *FailureReporter) Report(ctx context.Context, failures []InsertFailure) (string, error) {
	l := log.Ctx(ctx)

	if len(failures) == 0 {
		l.Info().Msg("all records were inserted successfully")
		return "", nil
	}

	name := ReportKey(r.Pipeline, r.runDate(ctx))
	location, err := r.Store.Write(ctx, name, RenderReport(failures), reportContentType)
	if err != nil {
		return "", xerrors.Errorf("failed to write failure report %s: %w", name, err)
	}

	l.Info().Int("failures", len(failures)).Str("location", location).
		Msg("report of failed records has been written")

	return location, nil
}

func (r *FailureReporter) runDate(ctx context.Context) time.Time {
	if t, ok := startedTimeFrom(ctx); ok {
		return t
	}
	if r.Clock != nil {
		return r.Clock.Now()
	}
	return time.Now()
}

// StorageArtifactStore writes artifacts as Cloud Storage objects.
type StorageArtifactStore struct {
	Bucket string

	storage *storage.Client
}

// NewStorageArtifactStore builds a store writing into bucket.
func NewStorageArtifactStore(ctx context.Context, bucket string) (*StorageArtifactStore, error) {
	s, err := storage.NewClient(ctx)
	if err != nil {
		return nil, xerrors.Errorf("failed to build storage client: %w", err)
	}

	return &StorageArtifactStore{Bucket: bucket, storage: s}, nil
}

// Write implements ArtifactStore.
func (s *StorageArtifactStore) Write(ctx context.Context, name string, content []byte, contentType string) (string, error) {
	w := s.storage.Bucket(s.Bucket).Object(name).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := w.Write(content); err != nil {
		_ = w.Close()
		return "", xerrors.Errorf("failed to upload %s: %w", name, err)
	}

	if err := w.Close(); err != nil {
		return "", xerrors.Errorf("failed to finalize %s: %w", name, err)
	}

	return fmt.Sprintf("gs://%s/%s", s.Bucket, name), nil
}

// FileArtifactStore writes artifacts to the local file system.
type FileArtifactStore struct {
	// Dir is where named artifacts are written.
	Dir string

	// Path, when set, is a fixed file used for every artifact. A fixed path
	// belongs to one pipeline.
	Path string
}

// Write implements ArtifactStore.
func (s *FileArtifactStore) Write(_ context.Context, name string, content []byte, _ string) (string, error) {
	p := s.Path
	if p == "" {
		p = filepath.Join(s.Dir, filepath.FromSlash(name))
	}

	if dir := filepath.Dir(p); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", xerrors.Errorf("failed to create %s: %w", dir, err)
		}
	}

	if err := os.WriteFile(p, content, 0o644); err != nil {
		return "", xerrors.Errorf("failed to write %s: %w", p, err)
	}

	return p, nil
}
