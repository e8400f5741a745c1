package pipelines

import (
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/xerrors"

	"go.nownabe.dev/bqetl"
)

// File formats of StorageFile.
const (
	FormatCSV = "csv"
	FormatXLS = "xls"
)

// StorageFile describes a tabular file in Cloud Storage.
type StorageFile struct {
	Bucket string
	Object string

	// Format is FormatCSV or FormatXLS. Defaults to FormatCSV.
	Format string

	// Sheet is the XLS sheet index.
	Sheet int

	// Encoding is a character encoding name such as "shift_jis". Empty
	// means UTF-8.
	Encoding string

	SkipLeadingRows int

	// Fields is the allow-list of columns.
	Fields []string
}

// FromStorage builds a pipeline loading the rows of a CSV or XLS file in
// Cloud Storage.
func FromStorage(name string, f StorageFile, t Table, r Reports, n bqetl.Notifier) (*bqetl.Pipeline, error) {
	var parser bqetl.Parser
	switch f.Format {
	case "", FormatCSV:
		parser = bqetl.CSVParser()
	case FormatXLS:
		parser = bqetl.XLSParser(f.Sheet)
	default:
		return nil, xerrors.Errorf("%s: unsupported format %q", name, f.Format)
	}

	var enc encoding.Encoding
	if f.Encoding != "" {
		e, err := htmlindex.Get(f.Encoding)
		if err != nil {
			return nil, xerrors.Errorf("%s: unsupported encoding %q: %w", name, f.Encoding, err)
		}
		enc = e
	}

	fetcher := &bqetl.StorageFetcher{
		Bucket:          f.Bucket,
		Object:          f.Object,
		Encoding:        enc,
		Parser:          parser,
		SkipLeadingRows: f.SkipLeadingRows,
	}

	return newPipeline(name, fetcher, f.Fields, t, r, n), nil
}
