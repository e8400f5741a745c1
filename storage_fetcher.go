package bqetl

import (
	"context"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/encoding"
	"golang.org/x/text/transform"
	"golang.org/x/xerrors"
)

// extractor opens objects in storage such as Cloud Storage.
type extractor interface {
	extract(ctx context.Context, bucket, object string) (io.Reader, func(), error)
}

type defaultExtractor struct {
	storage *storage.Client
}

func newDefaultExtractor(ctx context.Context) (extractor, error) {
	s, err := storage.NewClient(ctx)
	if err != nil {
		return nil, xerrors.Errorf("failed to build storage client: %w", err)
	}

	return &defaultExtractor{storage: s}, nil
}

func (e *defaultExtractor) extract(ctx context.Context, bucket, object string) (io.Reader, func(), error) {
	r, err := e.storage.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, nil, xerrors.Errorf("failed to get reader of gs://%s/%s: %w", bucket, object, err)
	}

	return r, func() { r.Close() }, nil
}

// StorageFetcher reads records from a tabular file in Cloud Storage. The
// first row after the skipped leading rows is the header naming the fields.
type StorageFetcher struct {
	Bucket string
	Object string

	// Encoding decodes the file into UTF-8 when set.
	Encoding encoding.Encoding

	// Parser defaults to CSVParser.
	Parser Parser

	// SkipLeadingRows rows are dropped before the header row.
	SkipLeadingRows int

	extractor extractor
}

// NewStorageFetcher builds a fetcher for gs://bucket/object.
func NewStorageFetcher(ctx context.Context, bucket, object string) (*StorageFetcher, error) {
	ex, err := newDefaultExtractor(ctx)
	if err != nil {
		return nil, err
	}

	return &StorageFetcher{Bucket: bucket, Object: object, extractor: ex}, nil
}

// Fetch implements Fetcher.
func (f *StorageFetcher) Fetch(ctx context.Context, limit int) ([]RawRecord, error) {
	if f.extractor == nil {
		ex, err := newDefaultExtractor(ctx)
		if err != nil {
			return nil, err
		}
		f.extractor = ex
	}

	r, closer, err := f.extractor.extract(ctx, f.Bucket, f.Object)
	if err != nil {
		return nil, xerrors.Errorf("failed to extract: %w", err)
	}
	defer closer()

	if f.Encoding != nil {
		r = transform.NewReader(r, f.Encoding.NewDecoder())
	}

	parser := f.Parser
	if parser == nil {
		parser = CSVParser()
	}

	rows, err := parser(ctx, r)
	if err != nil {
		return nil, xerrors.Errorf("failed to parse %s: %w", f.path(), err)
	}

	if len(rows) <= f.SkipLeadingRows {
		log.Ctx(ctx).Warn().Str("object", f.path()).Msg("no header row found")
		return []RawRecord{}, nil
	}
	rows = rows[f.SkipLeadingRows:]

	return truncate(rowsToRecords(rows[0], rows[1:]), limit), nil
}

func (f *StorageFetcher) path() string {
	return fmt.Sprintf("gs://%s/%s", f.Bucket, f.Object)
}

// rowsToRecords maps rows to records by header. Missing trailing cells
// become null and cells without a header are dropped.
func rowsToRecords(header []string, rows [][]string) []RawRecord {
	records := make([]RawRecord, len(rows))
	for i, row := range rows {
		r := make(RawRecord, len(header))
		for j, name := range header {
			if j < len(row) {
				r[name] = TextValue(row[j])
			} else {
				r[name] = NullValue()
			}
		}
		records[i] = r
	}
	return records
}
