package bqetl

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/xerrors"
)

// Destination inserts single records into a table.
//
// InsertOne returns the structured errors the table reported for the record,
// empty when the record was committed. A non-nil error means the insert call
// itself could not be executed.
type Destination interface {
	InsertOne(context.Context, ProjectedRecord) ([]ErrorDescriptor, error)
}

// ErrorDescriptor is one error reported by a destination for one record.
type ErrorDescriptor struct {
	Reason   string `json:"reason,omitempty"`
	Location string `json:"location,omitempty"`
	Message  string `json:"message"`
}

func (e ErrorDescriptor) String() string {
	var b strings.Builder
	if e.Reason != "" {
		b.WriteString(e.Reason)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	if e.Location != "" {
		b.WriteString(" (")
		b.WriteString(e.Location)
		b.WriteString(")")
	}
	return b.String()
}

// InsertFailure is a record rejected by a destination.
type InsertFailure struct {
	Record ProjectedRecord
	Errors []ErrorDescriptor
}

// RecordLoader inserts records one at a time and collects the rejected ones.
//
// Records are independent: a rejected record never stops or rolls back the
// others. There is no deduplication, so loading the same records twice may
// insert duplicate rows.
type RecordLoader struct {
	Destination Destination

	// LogSuccessfulRecords logs every committed record at info level
	// instead of debug level.
	LogSuccessfulRecords bool
}

// Load inserts records in order and returns the failures in input order.
// An empty result means every record was committed.
//
// If the destination fails to execute an insert, Load stops and returns the
// error with the failures collected so far.
func (l *RecordLoader) Load(ctx context.Context, records []ProjectedRecord) ([]InsertFailure, error) {
	logger := log.Ctx(ctx)
	failures := []InsertFailure{}

	for i, r := range records {
		errs, err := l.Destination.InsertOne(ctx, r)
		if err != nil {
			logger.Error().Err(err).Int("index", i).Msg("insert call failed")
			return failures, xerrors.Errorf("failed to insert record %d: %w", i, err)
		}

		if len(errs) > 0 {
			failures = append(failures, InsertFailure{Record: r, Errors: errs})
			logger.Warn().Int("index", i).Stringer("record", r).Msg("record rejected")
			continue
		}

		ev := logger.Debug()
		if l.LogSuccessfulRecords {
			ev = logger.Info()
		}
		ev.Stringer("record", r).Msg("record inserted successfully")
	}

	return failures, nil
}

// Load inserts records into dst with a default RecordLoader.
func Load(ctx context.Context, dst Destination, records []ProjectedRecord) ([]InsertFailure, error) {
	l := &RecordLoader{Destination: dst}
	return l.Load(ctx, records)
}
