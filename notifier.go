package bqetl

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"
	"golang.org/x/xerrors"

	ijson "go.nownabe.dev/bqetl/internal/json"
)

// Notifier notifies results for each pipeline run.
type Notifier interface {
	Notify(context.Context, *Result) error
}

// Result is a result for each pipeline run.
type Result struct {
	Pipeline *Pipeline
	Report   *Report
	Error    error
}

// SlackNotifier is a notifier for Slack.
type SlackNotifier struct {
	Channel    string
	IconEmoji  string
	Username   string
	Token      string
	HTTPClient HTTPClient
}

type slackMessage struct {
	Channel   string `json:"channel"`
	IconEmoji string `json:"icon_emoji,omitempty"`
	Text      string `json:"text"`
	Username  string `json:"username,omitempty"`
}

type slackResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

func resultText(r *Result) string {
	name := r.Pipeline.Name

	switch {
	case r.Error != nil:
		return fmt.Sprintf("%s pipeline failed: %s", name, r.Error)
	case r.Report != nil && r.Report.Failed > 0:
		return fmt.Sprintf("%s pipeline failed to insert %d of %d records. Report: %s",
			name, r.Report.Failed, r.Report.Total, r.Report.Location)
	case r.Report != nil:
		return fmt.Sprintf("%s pipeline successfully loaded %d records", name, r.Report.Total)
	default:
		return fmt.Sprintf("%s pipeline finished", name)
	}
}

// Notify notifies results to Slack channel.
func (n *SlackNotifier) Notify(ctx context.Context, r *Result) error {
	l := log.Ctx(ctx)

	m := &slackMessage{
		Channel:   n.Channel,
		IconEmoji: n.IconEmoji,
		Text:      resultText(r),
		Username:  n.Username,
	}
	l.Debug().Msgf("m = %+v", m)

	if err := n.postMessage(ctx, m); err != nil {
		return xerrors.Errorf("slack postMessage failed: %w", err)
	}

	return nil
}

func (n *SlackNotifier) postMessage(ctx context.Context, m *slackMessage) error {
	l := log.Ctx(ctx)

	reqJSON, err := ijson.Marshal(m)
	if err != nil {
		return xerrors.Errorf("failed to marshal json: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://slack.com/api/chat.postMessage", bytes.NewReader(reqJSON))
	if err != nil {
		return xerrors.Errorf("failed to build http request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+n.Token)

	resp, err := httpClientOrDefault(n.HTTPClient).Do(req)
	if err != nil {
		return xerrors.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return xerrors.Errorf("failed to read response body: %w", err)
	}

	l.Debug().Msgf("body = %s", body)

	if resp.StatusCode >= 400 {
		return xerrors.Errorf(
			"slack webhook request failed with status code %d (%s)", resp.StatusCode, body)
	}

	var sres slackResponse
	if err := ijson.Unmarshal(body, &sres); err != nil {
		return xerrors.Errorf("failed to unmarshal response body: %w", err)
	}

	if !sres.OK {
		return xerrors.Errorf("failed to send message: %s", sres.Error)
	}

	return nil
}
