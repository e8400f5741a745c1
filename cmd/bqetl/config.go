package main

import (
	"context"

	"github.com/spf13/viper"
	"golang.org/x/xerrors"

	"go.nownabe.dev/bqetl"
	"go.nownabe.dev/bqetl/contrib/pipelines"
)

var knownPipelines = []string{"sf311", "github", "storage"}

// viperSecrets reads secrets from the config file or BQETL_ environment
// variables.
var viperSecrets = bqetl.SecretFunc(func(_ context.Context, name string) (string, error) {
	if v := viper.GetString(name); v != "" {
		return v, nil
	}
	return "", xerrors.Errorf("%s: %w", name, bqetl.ErrSecretNotFound)
})

func etlOptions() []bqetl.Option {
	opts := []bqetl.Option{
		bqetl.WithLogLevel(viper.GetString("log-level")),
		bqetl.WithConcurrency(max(viper.GetInt("concurrency"), 1)),
	}

	if viper.GetBool("pretty") {
		opts = append(opts, bqetl.WithPrettyLogging())
	}

	if token := viper.GetString("slack-token"); token != "" {
		opts = append(opts, bqetl.WithNotifier(&bqetl.SlackNotifier{
			Token:   token,
			Channel: viper.GetString("slack-channel"),
		}))
	}

	return opts
}

// defaultPipelines returns the pipelines run when none is named. The storage
// pipeline needs an object to read.
func defaultPipelines() []string {
	if viper.GetString("storage-object") == "" {
		return []string{"sf311", "github"}
	}
	return knownPipelines
}

// buildETL registers the named pipelines, the default ones when names is
// empty. The returned func releases destination connections.
func buildETL(ctx context.Context, names []string) (bqetl.ETL, func(), error) {
	if len(names) == 0 {
		names = defaultPipelines()
	}

	e, err := bqetl.New(etlOptions()...)
	if err != nil {
		return nil, nil, err
	}

	table := pipelines.TableGenerator(viper.GetString("project"), viper.GetString("dataset"))
	reports := pipelines.Reports{Bucket: viper.GetString("bucket"), Dir: viper.GetString("report-dir")}

	ps := make([]*bqetl.Pipeline, 0, len(names))
	for _, name := range names {
		var p *bqetl.Pipeline

		switch name {
		case "sf311":
			p, err = pipelines.SF311(ctx, name, viperSecrets, table(viper.GetString("sf311-table")), reports, nil)
		case "github":
			p = pipelines.GitHubRepo(name, viper.GetString("github-repo"), table(viper.GetString("github-table")), reports, nil)
		case "storage":
			p, err = pipelines.FromStorage(name, pipelines.StorageFile{
				Bucket:          viper.GetString("storage-bucket"),
				Object:          viper.GetString("storage-object"),
				Format:          viper.GetString("storage-format"),
				Encoding:        viper.GetString("storage-encoding"),
				SkipLeadingRows: viper.GetInt("storage-skip-rows"),
				Fields:          viper.GetStringSlice("storage-fields"),
			}, table(viper.GetString("storage-table")), reports, nil)
		default:
			err = xerrors.Errorf("%s: %w", name, bqetl.ErrPipelineNotFound)
		}
		if err != nil {
			return nil, nil, err
		}

		if limit := viper.GetInt("limit"); limit > 0 {
			p.Limit = limit
		}

		ps = append(ps, p)
	}

	closeAll := func() {}
	if url := viper.GetString("postgres-url"); url != "" {
		closeAll, err = pipelines.UsePostgres(ctx, url, ps...)
		if err != nil {
			return nil, nil, err
		}
	}

	for _, p := range ps {
		if err := e.AddPipeline(ctx, p); err != nil {
			closeAll()
			return nil, nil, err
		}
	}

	return e, closeAll, nil
}
