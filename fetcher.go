package bqetl

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
	"golang.org/x/xerrors"

	ijson "go.nownabe.dev/bqetl/internal/json"
)

// Fetcher retrieves raw records from a source. A limit of zero or less
// leaves the number of records to the source.
type Fetcher interface {
	Fetch(ctx context.Context, limit int) ([]RawRecord, error)
}

// HTTPClient sends HTTP requests. *http.Client satisfies it.
type HTTPClient interface {
	Do(*http.Request) (*http.Response, error)
}

const errorBodyLimit = 1024

// SocrataFetcher fetches rows of a dataset from a Socrata open data portal
// through the SODA API.
type SocrataFetcher struct {
	// Domain is the portal host such as "data.sfgov.org".
	Domain string

	// Dataset is the dataset identifier such as "vw6y-z8j6".
	Dataset string

	AppToken string
	Username string
	Password string

	HTTPClient HTTPClient
}

// Fetch implements Fetcher.
func (f *SocrataFetcher) Fetch(ctx context.Context, limit int) ([]RawRecord, error) {
	u := url.URL{
		Scheme: "https",
		Host:   f.Domain,
		Path:   "/resource/" + f.Dataset + ".json",
	}
	if limit > 0 {
		q := url.Values{}
		q.Set("$limit", strconv.Itoa(limit))
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, xerrors.Errorf("failed to build http request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if f.AppToken != "" {
		req.Header.Set("X-App-Token", f.AppToken)
	}
	if f.Username != "" {
		req.SetBasicAuth(f.Username, f.Password)
	}

	body, err := doRequest(ctx, httpClientOrDefault(f.HTTPClient), req)
	if err != nil {
		return nil, xerrors.Errorf("failed to fetch dataset %s from %s: %w", f.Dataset, f.Domain, err)
	}

	return decodeRecords(ctx, body, "", limit)
}

// HTTPFetcher fetches records from a JSON endpoint.
type HTTPFetcher struct {
	URL string

	// Method defaults to GET.
	Method  string
	Headers map[string]string

	// DataPath is a gjson path to the records in the response body. The
	// whole body is used when empty. An object yields a single record.
	DataPath string

	HTTPClient HTTPClient
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, limit int) ([]RawRecord, error) {
	method := f.Method
	if method == "" {
		method = http.MethodGet
	}

	req, err := http.NewRequestWithContext(ctx, method, f.URL, nil)
	if err != nil {
		return nil, xerrors.Errorf("failed to build http request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	for k, v := range f.Headers {
		req.Header.Set(k, v)
	}

	body, err := doRequest(ctx, httpClientOrDefault(f.HTTPClient), req)
	if err != nil {
		return nil, xerrors.Errorf("failed to fetch %s: %w", f.URL, err)
	}

	return decodeRecords(ctx, body, f.DataPath, limit)
}

func httpClientOrDefault(c HTTPClient) HTTPClient {
	if c == nil {
		return &http.Client{}
	}
	return c
}

func doRequest(ctx context.Context, c HTTPClient, req *http.Request) ([]byte, error) {
	l := log.Ctx(ctx)

	l.Debug().Str("method", req.Method).Str("url", req.URL.Redacted()).Msg("sending request")

	resp, err := c.Do(req)
	if err != nil {
		return nil, xerrors.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		return nil, xerrors.Errorf("request failed with status code %d (%s)", resp.StatusCode, excerpt)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, xerrors.Errorf("failed to read response body: %w", err)
	}

	return body, nil
}

func decodeRecords(ctx context.Context, body []byte, path string, limit int) ([]RawRecord, error) {
	if path != "" {
		res := gjson.GetBytes(body, path)
		if !res.Exists() {
			return nil, xerrors.Errorf("data path %q not found in response", path)
		}
		body = []byte(res.Raw)
	}

	var doc any
	if err := ijson.Unmarshal(body, &doc); err != nil {
		return nil, xerrors.Errorf("failed to unmarshal response body: %w", err)
	}

	var records []RawRecord
	switch v := doc.(type) {
	case []any:
		records = make([]RawRecord, 0, len(v))
		for i, item := range v {
			m, ok := item.(map[string]any)
			if !ok {
				log.Ctx(ctx).Warn().Int("index", i).Msgf("skipping non-object element of type %T", item)
				continue
			}
			records = append(records, NewRawRecord(ctx, m))
		}
	case map[string]any:
		records = []RawRecord{NewRawRecord(ctx, v)}
	default:
		return nil, xerrors.Errorf("unexpected response of type %T", doc)
	}

	return truncate(records, limit), nil
}

func truncate(records []RawRecord, limit int) []RawRecord {
	if limit > 0 && len(records) > limit {
		return records[:limit]
	}
	return records
}
