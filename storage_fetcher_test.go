package bqetl

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"
)

type testExtractor struct {
	source io.Reader
	err    error

	bucket, object string
}

func (e *testExtractor) extract(_ context.Context, bucket, object string) (io.Reader, func(), error) {
	e.bucket, e.object = bucket, object
	if e.err != nil {
		return nil, nil, e.err
	}
	return e.source, func() {}, nil
}

func TestStorageFetcher_Fetch(t *testing.T) {
	t.Parallel()

	src := "exported 2024-08-15\nname,age,city\nAndy,33,SF\nBob,10\nCarol,41,LA\n"
	ex := &testExtractor{source: bytes.NewBufferString(src)}

	f := &StorageFetcher{
		Bucket:          "bucket",
		Object:          "exports/people.csv",
		SkipLeadingRows: 1,
		extractor:       ex,
	}

	records, err := f.Fetch(context.Background(), 2)
	require.NoError(t, err)
	require.Equal(t, "bucket", ex.bucket)
	require.Equal(t, "exports/people.csv", ex.object)

	require.Equal(t, []RawRecord{
		{"name": TextValue("Andy"), "age": TextValue("33"), "city": TextValue("SF")},
		{"name": TextValue("Bob"), "age": TextValue("10"), "city": NullValue()},
	}, records)
}

func TestStorageFetcher_Fetch_encoding(t *testing.T) {
	t.Parallel()

	sjis, _, err := transform.String(japanese.ShiftJIS.NewEncoder(), "名前,金額\n三井,100\n")
	require.NoError(t, err)

	f := &StorageFetcher{
		Bucket:    "bucket",
		Object:    "statement.csv",
		Encoding:  japanese.ShiftJIS,
		Parser:    CSVParser(),
		extractor: &testExtractor{source: bytes.NewBufferString(sjis)},
	}

	records, err := f.Fetch(context.Background(), 0)
	require.NoError(t, err)
	require.Equal(t, []RawRecord{{"名前": TextValue("三井"), "金額": TextValue("100")}}, records)
}

func TestStorageFetcher_Fetch_errors(t *testing.T) {
	t.Parallel()

	errObject := errors.New("object doesn't exist")

	f := &StorageFetcher{Bucket: "bucket", Object: "missing.csv", extractor: &testExtractor{err: errObject}}
	_, err := f.Fetch(context.Background(), 0)
	require.ErrorIs(t, err, errObject)

	errParse := errors.New("parse error")
	f = &StorageFetcher{
		Bucket: "bucket",
		Object: "broken.csv",
		Parser: func(context.Context, io.Reader) ([][]string, error) {
			return nil, errParse
		},
		extractor: &testExtractor{source: bytes.NewBufferString("")},
	}
	_, err = f.Fetch(context.Background(), 0)
	require.ErrorIs(t, err, errParse)
}

func TestStorageFetcher_Fetch_empty(t *testing.T) {
	t.Parallel()

	f := &StorageFetcher{Bucket: "bucket", Object: "empty.csv", extractor: &testExtractor{source: bytes.NewBufferString("")}}

	records, err := f.Fetch(context.Background(), 0)
	require.NoError(t, err)
	require.Empty(t, records)
}
