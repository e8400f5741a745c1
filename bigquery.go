package bqetl

import (
	"context"
	"errors"

	"cloud.google.com/go/bigquery"
	"golang.org/x/xerrors"
)

// BigQueryDestination streams records into a BigQuery table one row per call.
type BigQueryDestination struct {
	client   *bigquery.Client
	inserter *bigquery.Inserter
}

// NewBigQueryDestination builds a destination for project.dataset.table.
func NewBigQueryDestination(ctx context.Context, project, dataset, table string) (*BigQueryDestination, error) {
	bq, err := bigquery.NewClient(ctx, project)
	if err != nil {
		return nil, xerrors.Errorf("failed to build bigquery client for %s: %w", project, err)
	}

	t := bq.Dataset(dataset).Table(table)

	return &BigQueryDestination{client: bq, inserter: t.Inserter()}, nil
}

// InsertOne implements Destination.
func (d *BigQueryDestination) InsertOne(ctx context.Context, r ProjectedRecord) ([]ErrorDescriptor, error) {
	return putErrors(d.inserter.Put(ctx, []bigquery.ValueSaver{r}))
}

// Close closes the underlying client.
func (d *BigQueryDestination) Close() error {
	return d.client.Close()
}

// putErrors splits the result of Inserter.Put into row errors, which are
// returned as descriptors, and call errors.
func putErrors(err error) ([]ErrorDescriptor, error) {
	if err == nil {
		return nil, nil
	}

	var pme bigquery.PutMultiError
	if !errors.As(err, &pme) {
		return nil, err
	}

	descs := []ErrorDescriptor{}
	for _, rie := range pme {
		for _, e := range rie.Errors {
			var be *bigquery.Error
			if errors.As(e, &be) {
				descs = append(descs, ErrorDescriptor{Reason: be.Reason, Location: be.Location, Message: be.Message})
				continue
			}
			descs = append(descs, ErrorDescriptor{Message: e.Error()})
		}
	}

	// A PutMultiError without row details still rejected the row.
	if len(descs) == 0 {
		descs = append(descs, ErrorDescriptor{Message: pme.Error()})
	}

	return descs, nil
}
