package bqetl

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"
)

var (
	// ErrPipelineNotFound is returned when running an unknown pipeline.
	ErrPipelineNotFound = errors.New("pipeline not found")

	// ErrDuplicatePipeline is returned when adding a pipeline whose name is
	// already registered.
	ErrDuplicatePipeline = errors.New("duplicate pipeline")

	// ErrSharedReportPath is returned when adding a pipeline whose fixed
	// report file is already used by another pipeline.
	ErrSharedReportPath = errors.New("report path is used by another pipeline")
)

// ETL runs pipelines that load records from sources into BigQuery tables.
type ETL interface {
	AddPipeline(context.Context, *Pipeline) error
	MustAddPipeline(context.Context, *Pipeline)
	Pipelines() []string
	Run(ctx context.Context, name string) (*Report, error)
	RunAll(context.Context) ([]*Report, error)
}

// New builds a new ETL.
func New(opts ...Option) (ETL, error) {
	e := &etl{
		pipelines:   []*Pipeline{},
		concurrency: 1,
		clock:       clockwork.NewRealClock(),
		logLevel:    zerolog.InfoLevel,
	}

	for _, o := range opts {
		if err := o.apply(e); err != nil {
			return nil, err
		}
	}

	var w io.Writer = os.Stderr
	if e.prettyLogging {
		w = zerolog.ConsoleWriter{Out: os.Stderr}
	}
	e.logger = zerolog.New(w).Level(e.logLevel).With().Timestamp().Logger()

	return e, nil
}

type etl struct {
	pipelines []*Pipeline
	mu        sync.RWMutex

	concurrency   int
	clock         clockwork.Clock
	notifier      Notifier
	logLevel      zerolog.Level
	prettyLogging bool
	logger        zerolog.Logger
}

func (e *etl) AddPipeline(ctx context.Context, p *Pipeline) error {
	if err := p.validate(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.lookup(p.Name) != nil {
		return xerrors.Errorf("%s: %w", p.Name, ErrDuplicatePipeline)
	}

	if path := p.reportPath(); path != "" {
		for _, other := range e.pipelines {
			if other.reportPath() == path {
				return xerrors.Errorf("%s: %s: %w", p.Name, path, ErrSharedReportPath)
			}
		}
	}

	if err := p.setDefaults(ctx); err != nil {
		return xerrors.Errorf("failed to set up pipeline %s: %w", p.Name, err)
	}

	if p.Notifier == nil {
		p.Notifier = e.notifier
	}

	e.pipelines = append(e.pipelines, p)

	return nil
}

func (e *etl) MustAddPipeline(ctx context.Context, p *Pipeline) {
	if err := e.AddPipeline(ctx, p); err != nil {
		panic(err)
	}
}

func (e *etl) Pipelines() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	names := make([]string, len(e.pipelines))
	for i, p := range e.pipelines {
		names[i] = p.Name
	}
	return names
}

func (e *etl) lookup(name string) *Pipeline {
	for _, p := range e.pipelines {
		if p.Name == name {
			return p
		}
	}
	return nil
}

func (e *etl) Run(ctx context.Context, name string) (*Report, error) {
	e.mu.RLock()
	p := e.lookup(name)
	e.mu.RUnlock()

	if p == nil {
		return nil, xerrors.Errorf("%s: %w", name, ErrPipelineNotFound)
	}

	return e.run(ctx, p)
}

// RunAll runs every pipeline, up to the configured concurrency at once. A
// failing pipeline does not stop the others; the first error is returned
// along with the reports of the runs that succeeded.
func (e *etl) RunAll(ctx context.Context) ([]*Report, error) {
	e.mu.RLock()
	pipelines := append([]*Pipeline{}, e.pipelines...)
	e.mu.RUnlock()

	reports := make([]*Report, len(pipelines))

	var g errgroup.Group
	g.SetLimit(e.concurrency)

	for i, p := range pipelines {
		g.Go(func() error {
			r, err := e.run(ctx, p)
			reports[i] = r
			return err
		})
	}

	err := g.Wait()

	done := make([]*Report, 0, len(reports))
	for _, r := range reports {
		if r != nil {
			done = append(done, r)
		}
	}

	return done, err
}

func (e *etl) run(ctx context.Context, p *Pipeline) (*Report, error) {
	logger := e.logger.With().Str("pipeline", p.Name).Logger()
	ctx = logger.WithContext(ctx)

	if _, ok := startedTimeFrom(ctx); !ok {
		ctx = withStartedTime(ctx, e.clock.Now())
	}

	logger.Info().Msg("pipeline started")
	defer logger.Info().Msg("pipeline finished")

	report, err := p.run(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("pipeline failed")
	}

	if p.Notifier != nil {
		if nerr := p.Notifier.Notify(ctx, &Result{Pipeline: p, Report: report, Error: err}); nerr != nil {
			logger.Error().Err(nerr).Msg("failed to notify")
		}
	}

	return report, err
}
