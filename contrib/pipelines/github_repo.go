package pipelines

import (
	"go.nownabe.dev/bqetl"
)

// GitHubRepoFields are the repository statistics loaded into BigQuery.
var GitHubRepoFields = []string{
	"full_name",
	"stargazers_count",
	"forks_count",
	"open_issues_count",
	"watchers_count",
	"pushed_at",
}

// GitHubRepo builds a pipeline loading statistics of a GitHub repository
// such as "PrefectHQ/prefect". Each run inserts one snapshot row.
func GitHubRepo(name, repo string, t Table, r Reports, n bqetl.Notifier) *bqetl.Pipeline {
	fetcher := &bqetl.HTTPFetcher{
		URL:     "https://api.github.com/repos/" + repo,
		Headers: map[string]string{"Accept": "application/vnd.github+json"},
	}

	return newPipeline(name, fetcher, GitHubRepoFields, t, r, n)
}
