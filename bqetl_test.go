package bqetl

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

var testRunDate = time.Date(2024, 8, 15, 1, 0, 0, 0, time.UTC)

type testFetcher struct {
	records []RawRecord
	err     error
	limit   int
}

func (f *testFetcher) Fetch(_ context.Context, limit int) ([]RawRecord, error) {
	f.limit = limit
	if f.err != nil {
		return nil, f.err
	}
	return truncate(f.records, limit), nil
}

// testDestination rejects records whose "name" field is listed in reject and
// fails the call for records listed in broken.
type testDestination struct {
	reject map[string][]ErrorDescriptor
	broken map[string]error

	mu       sync.Mutex
	attempts []ProjectedRecord
	inserted []ProjectedRecord
}

func newTestDestination() *testDestination {
	return &testDestination{
		reject: map[string][]ErrorDescriptor{},
		broken: map[string]error{},
	}
}

func (d *testDestination) InsertOne(_ context.Context, r ProjectedRecord) ([]ErrorDescriptor, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.attempts = append(d.attempts, r)

	name := r["name"].StringVal
	if err, ok := d.broken[name]; ok {
		return nil, err
	}
	if errs, ok := d.reject[name]; ok {
		return errs, nil
	}

	d.inserted = append(d.inserted, r)
	return nil, nil
}

// testStore keeps every written object; name and content are the last write.
type testStore struct {
	err error

	mu          sync.Mutex
	writes      int
	objects     map[string]string
	name        string
	content     string
	contentType string
}

func (s *testStore) Write(_ context.Context, name string, content []byte, contentType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.writes++
	if s.err != nil {
		return "", s.err
	}
	if s.objects == nil {
		s.objects = map[string]string{}
	}
	s.objects[name] = string(content)
	s.name = name
	s.content = string(content)
	s.contentType = contentType
	return "mem://" + name, nil
}

type testNotifier struct {
	mu      sync.Mutex
	results []*Result
}

func (n *testNotifier) Notify(_ context.Context, r *Result) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.results = append(n.results, r)
	return nil
}

func namedRecords(names ...string) []RawRecord {
	rs := make([]RawRecord, len(names))
	for i, n := range names {
		rs[i] = RawRecord{"name": TextValue(n), "seq": mustValue(i + 1), "extra": TextValue("x")}
	}
	return rs
}

func mustValue(v any) Value {
	val, err := ValueOf(v)
	if err != nil {
		panic(err)
	}
	return val
}

func newTestETL(t *testing.T, opts ...Option) ETL {
	t.Helper()

	opts = append([]Option{WithLogLevel("debug"), WithClock(clockwork.NewFakeClockAt(testRunDate))}, opts...)
	e, err := New(opts...)
	require.NoError(t, err)

	return e
}

func TestETL_Run(t *testing.T) {
	t.Parallel()

	dst := newTestDestination()
	dst.reject["bob"] = []ErrorDescriptor{{Reason: "invalid", Message: "no such field: seq"}}
	store := &testStore{}
	notifier := &testNotifier{}
	fetcher := &testFetcher{records: namedRecords("andy", "bob", "carol")}

	e := newTestETL(t)
	e.MustAddPipeline(context.Background(), &Pipeline{
		Name:          "test-pipeline",
		Fetcher:       fetcher,
		Limit:         10,
		Fields:        []string{"name", "seq"},
		Notifier:      notifier,
		Destination:   dst,
		ArtifactStore: store,
	})

	report, err := e.Run(context.Background(), "test-pipeline")
	require.NoError(t, err)

	require.Equal(t, &Report{
		Pipeline: "test-pipeline",
		Total:    3,
		Failed:   1,
		Location: "mem://test-pipeline/failed_records_report_2024-08-15.txt",
	}, report)

	require.Equal(t, 10, fetcher.limit)
	require.Len(t, dst.attempts, 3)
	require.Len(t, dst.inserted, 2)
	require.Equal(t, "andy", dst.inserted[0]["name"].StringVal)
	require.Equal(t, "carol", dst.inserted[1]["name"].StringVal)

	require.Equal(t, 1, store.writes)
	require.Equal(t, "test-pipeline/failed_records_report_2024-08-15.txt", store.name)
	require.Equal(t, "text/plain; charset=utf-8", store.contentType)
	require.Equal(t,
		"Record: {\"name\":\"bob\",\"seq\":\"2\"}\n"+
			"Errors: [\"invalid: no such field: seq\"]\n"+
			"\n---\n\n",
		store.content)

	require.Len(t, notifier.results, 1)
	require.Equal(t, report, notifier.results[0].Report)
	require.NoError(t, notifier.results[0].Error)
}

func TestETL_Run_allInserted(t *testing.T) {
	t.Parallel()

	dst := newTestDestination()
	store := &testStore{}

	e := newTestETL(t)
	e.MustAddPipeline(context.Background(), &Pipeline{
		Name:          "test-pipeline",
		Fetcher:       &testFetcher{records: namedRecords("andy", "bob")},
		Fields:        []string{"name"},
		Destination:   dst,
		ArtifactStore: store,
	})

	report, err := e.Run(context.Background(), "test-pipeline")
	require.NoError(t, err)
	require.Equal(t, 2, report.Total)
	require.Zero(t, report.Failed)
	require.Empty(t, report.Location)
	require.Zero(t, store.writes)
	require.Len(t, dst.inserted, 2)
}

func TestETL_Run_runDateFromContext(t *testing.T) {
	t.Parallel()

	dst := newTestDestination()
	dst.reject["andy"] = []ErrorDescriptor{{Message: "duplicate key"}}
	store := &testStore{}

	e := newTestETL(t)
	e.MustAddPipeline(context.Background(), &Pipeline{
		Name:          "test-pipeline",
		Fetcher:       &testFetcher{records: namedRecords("andy")},
		Fields:        []string{"name"},
		Destination:   dst,
		ArtifactStore: store,
	})

	ctx := WithRunDate(context.Background(), time.Date(2023, 1, 2, 23, 0, 0, 0, time.UTC))
	_, err := e.Run(ctx, "test-pipeline")
	require.NoError(t, err)
	require.Equal(t, "test-pipeline/failed_records_report_2023-01-02.txt", store.name)
}

func TestETL_Run_errors(t *testing.T) {
	t.Parallel()

	errFetch := errors.New("fetch error")
	errInsert := errors.New("connection refused")
	errStore := errors.New("bucket not found")

	cases := []struct {
		name     string
		fetcher  *testFetcher
		broken   map[string]error
		reject   map[string][]ErrorDescriptor
		storeErr error
		expect   error
		inserted int
	}{
		{
			name:    "fetch",
			fetcher: &testFetcher{err: errFetch},
			expect:  errFetch,
		},
		{
			name:     "insert call",
			fetcher:  &testFetcher{records: namedRecords("andy", "bob", "carol")},
			broken:   map[string]error{"bob": errInsert},
			expect:   errInsert,
			inserted: 1,
		},
		{
			name:     "report",
			fetcher:  &testFetcher{records: namedRecords("andy", "bob")},
			reject:   map[string][]ErrorDescriptor{"andy": {{Message: "duplicate key"}}},
			storeErr: errStore,
			expect:   errStore,
			inserted: 1,
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()

			dst := newTestDestination()
			for k, v := range c.broken {
				dst.broken[k] = v
			}
			for k, v := range c.reject {
				dst.reject[k] = v
			}
			notifier := &testNotifier{}

			e := newTestETL(t, WithNotifier(notifier))
			e.MustAddPipeline(context.Background(), &Pipeline{
				Name:          "test-pipeline",
				Fetcher:       c.fetcher,
				Fields:        []string{"name"},
				Destination:   dst,
				ArtifactStore: &testStore{err: c.storeErr},
			})

			report, err := e.Run(context.Background(), "test-pipeline")
			require.ErrorIs(t, err, c.expect)
			require.Nil(t, report)
			require.Len(t, dst.inserted, c.inserted)

			require.Len(t, notifier.results, 1)
			require.ErrorIs(t, notifier.results[0].Error, c.expect)
		})
	}
}

func TestETL_Run_notFound(t *testing.T) {
	t.Parallel()

	e := newTestETL(t)

	_, err := e.Run(context.Background(), "missing")
	require.ErrorIs(t, err, ErrPipelineNotFound)
}

func TestETL_AddPipeline(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newTestETL(t)

	valid := func(name string) *Pipeline {
		return &Pipeline{
			Name:          name,
			Fetcher:       &testFetcher{},
			Fields:        []string{"name"},
			Destination:   newTestDestination(),
			ArtifactStore: &testStore{},
		}
	}

	require.NoError(t, e.AddPipeline(ctx, valid("a")))
	require.NoError(t, e.AddPipeline(ctx, valid("b")))
	require.ErrorIs(t, e.AddPipeline(ctx, valid("a")), ErrDuplicatePipeline)

	noFetcher := valid("c")
	noFetcher.Fetcher = nil
	require.Error(t, e.AddPipeline(ctx, noFetcher))

	noFields := valid("d")
	noFields.Fields = nil
	require.Error(t, e.AddPipeline(ctx, noFields))

	require.Equal(t, []string{"a", "b"}, e.Pipelines())
}

func TestETL_AddPipeline_localReports(t *testing.T) {
	t.Parallel()

	e := newTestETL(t)
	p := &Pipeline{
		Name:        "local",
		Fetcher:     &testFetcher{},
		Fields:      []string{"name"},
		Destination: newTestDestination(),
		ReportPath:  "failed_records.txt",
	}

	require.NoError(t, e.AddPipeline(context.Background(), p))
	require.Equal(t, &FileArtifactStore{Path: "failed_records.txt"}, p.ArtifactStore)
}

func TestETL_AddPipeline_sharedReportPath(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newTestETL(t)

	local := func(name, path string) *Pipeline {
		return &Pipeline{
			Name:        name,
			Fetcher:     &testFetcher{},
			Fields:      []string{"name"},
			Destination: newTestDestination(),
			ReportPath:  path,
		}
	}

	require.NoError(t, e.AddPipeline(ctx, local("first", "failed_records.txt")))
	require.ErrorIs(t, e.AddPipeline(ctx, local("second", "failed_records.txt")), ErrSharedReportPath)
	require.NoError(t, e.AddPipeline(ctx, local("third", "other.txt")))
	require.NoError(t, e.AddPipeline(ctx, &Pipeline{
		Name:          "fourth",
		Fetcher:       &testFetcher{},
		Fields:        []string{"name"},
		Destination:   newTestDestination(),
		ArtifactStore: &FileArtifactStore{Dir: "reports"},
	}))

	require.Equal(t, []string{"first", "third", "fourth"}, e.Pipelines())
}

func TestETL_RunAll_sharedStore(t *testing.T) {
	t.Parallel()

	dst := newTestDestination()
	dst.reject["sf311-bad"] = []ErrorDescriptor{{Message: "bad sf311 row"}}
	dst.reject["github-bad"] = []ErrorDescriptor{{Message: "bad github row"}}
	store := &testStore{}

	e := newTestETL(t, WithConcurrency(2))
	ctx := context.Background()

	for _, name := range []string{"sf311", "github"} {
		e.MustAddPipeline(ctx, &Pipeline{
			Name:          name,
			Fetcher:       &testFetcher{records: namedRecords(name+"-ok", name+"-bad")},
			Fields:        []string{"name"},
			Destination:   dst,
			ArtifactStore: store,
		})
	}

	reports, err := e.RunAll(ctx)
	require.NoError(t, err)
	require.Len(t, reports, 2)
	require.Equal(t, "mem://sf311/failed_records_report_2024-08-15.txt", reports[0].Location)
	require.Equal(t, "mem://github/failed_records_report_2024-08-15.txt", reports[1].Location)

	require.Len(t, store.objects, 2)
	require.Equal(t,
		"Record: {\"name\":\"sf311-bad\"}\nErrors: [\"bad sf311 row\"]\n\n---\n\n",
		store.objects["sf311/failed_records_report_2024-08-15.txt"])
	require.Equal(t,
		"Record: {\"name\":\"github-bad\"}\nErrors: [\"bad github row\"]\n\n---\n\n",
		store.objects["github/failed_records_report_2024-08-15.txt"])
}

func TestETL_RunAll(t *testing.T) {
	t.Parallel()

	errFetch := errors.New("fetch error")
	dst := newTestDestination()

	e := newTestETL(t, WithConcurrency(2))
	ctx := context.Background()

	for _, p := range []*Pipeline{
		{Name: "first", Fetcher: &testFetcher{records: namedRecords("a1", "a2")}},
		{Name: "broken", Fetcher: &testFetcher{err: errFetch}},
		{Name: "third", Fetcher: &testFetcher{records: namedRecords("c1")}},
	} {
		p.Fields = []string{"name"}
		p.Destination = dst
		p.ArtifactStore = &testStore{}
		e.MustAddPipeline(ctx, p)
	}

	reports, err := e.RunAll(ctx)
	require.ErrorIs(t, err, errFetch)
	require.Len(t, reports, 2)
	require.Equal(t, "first", reports[0].Pipeline)
	require.Equal(t, "third", reports[1].Pipeline)
	require.Len(t, dst.inserted, 3)
}

func TestNew_invalidOptions(t *testing.T) {
	t.Parallel()

	_, err := New(WithLogLevel("loud"))
	require.Error(t, err)

	_, err = New(WithConcurrency(0))
	require.Error(t, err)
}
