/*

Package bqetl is a small batch ETL framework to fetch records from open data
APIs or REST endpoints and load them into BigQuery tables.

A pipeline fetches records, keeps an allow-list of fields converted to text,
and inserts the records one by one. Records rejected by the table do not stop
the run; they are collected and written to a report in Cloud Storage or a
local directory, under the pipeline's name and named after the run date:
sf311/failed_records_report_2006-01-02.txt.

Getting started

	package main

	import (
		"context"
		"os"

		"go.nownabe.dev/bqetl"
	)

	func main() {
		etl, err := bqetl.New(bqetl.WithLogLevel("info"))
		if err != nil {
			panic(err)
		}

		etl.MustAddPipeline(context.Background(), &bqetl.Pipeline{
			Name: "sf311",
			Fetcher: &bqetl.SocrataFetcher{
				Domain:   "data.sfgov.org",
				Dataset:  "vw6y-z8j6",
				AppToken: os.Getenv("SOCRATA_APP_TOKEN"),
			},
			Limit:  100,
			Fields: []string{"service_request_id", "requested_datetime", "status_description"},

			// Destination.
			Project: os.Getenv("BIGQUERY_PROJECT_ID"),
			Dataset: os.Getenv("BIGQUERY_DATASET_ID"),
			Table:   os.Getenv("BIGQUERY_TABLE_ID"),

			// Failure reports.
			Bucket: os.Getenv("REPORT_BUCKET"),
		})

		if _, err := etl.Run(context.Background(), "sf311"); err != nil {
			panic(err)
		}
	}

Pre-configured pipelines live in go.nownabe.dev/bqetl/contrib/pipelines.

*/
package bqetl
