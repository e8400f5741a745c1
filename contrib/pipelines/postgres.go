package pipelines

import (
	"context"

	"go.nownabe.dev/bqetl"
)

// UsePostgres makes pipelines insert into Postgres at url instead of
// BigQuery. Each pipeline's Table names the table and its Dataset, when set,
// the schema. The returned func closes the connection pools.
func UsePostgres(ctx context.Context, url string, ps ...*bqetl.Pipeline) (func(), error) {
	dsts := make([]*bqetl.PostgresDestination, 0, len(ps))
	closeAll := func() {
		for _, d := range dsts {
			d.Close()
		}
	}

	for _, p := range ps {
		table := p.Table
		if p.Dataset != "" {
			table = p.Dataset + "." + p.Table
		}

		d, err := bqetl.NewPostgresDestination(ctx, url, table)
		if err != nil {
			closeAll()
			return nil, err
		}

		dsts = append(dsts, d)
		p.Destination = d
	}

	return closeAll, nil
}
