package pipelines

import (
	"context"

	"golang.org/x/xerrors"

	"go.nownabe.dev/bqetl"
)

const (
	sf311Domain  = "data.sfgov.org"
	sf311Dataset = "vw6y-z8j6"

	// DefaultSF311Limit is the number of cases fetched per run.
	DefaultSF311Limit = 100
)

// Secret names used by SF311.
const (
	SecretSocrataAppToken = "socrata-app-token"
	SecretSocrataUsername = "socrata-username"
	SecretSocrataPassword = "socrata-password"
)

// SF311Fields are the columns of 311 cases loaded into BigQuery.
var SF311Fields = []string{
	"service_request_id",
	"requested_datetime",
	"closed_date",
	"updated_datetime",
	"status_description",
	"status_notes",
	"agency_responsible",
	"service_name",
	"service_subtype",
	"service_details",
	"address",
	"street",
	"supervisor_district",
	"neighborhoods_sffind_boundaries",
	"police_district",
	"lat",
	"long",
	"source",
}

// SF311 builds a pipeline loading San Francisco 311 cases from DataSF.
// Socrata credentials are read from secrets once, when building.
func SF311(
	ctx context.Context,
	name string,
	secrets bqetl.SecretProvider,
	t Table,
	r Reports,
	n bqetl.Notifier,
) (*bqetl.Pipeline, error) {
	creds := make(map[string]string, 3)
	for _, s := range []string{SecretSocrataAppToken, SecretSocrataUsername, SecretSocrataPassword} {
		v, err := secrets.Secret(ctx, s)
		if err != nil {
			return nil, xerrors.Errorf("failed to fetch secret %s: %w", s, err)
		}
		creds[s] = v
	}

	fetcher := &bqetl.SocrataFetcher{
		Domain:   sf311Domain,
		Dataset:  sf311Dataset,
		AppToken: creds[SecretSocrataAppToken],
		Username: creds[SecretSocrataUsername],
		Password: creds[SecretSocrataPassword],
	}

	p := newPipeline(name, fetcher, SF311Fields, t, r, n)
	p.Limit = DefaultSF311Limit
	p.LogSuccessfulRecords = true

	return p, nil
}
