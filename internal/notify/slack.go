package notify

import (
	"context"
	"strings"
	"time"

	"github.com/viperadnan-git/usbackup/internal/model"
)

type slackTransport struct {
	webhookURL string
}

func newSlackTransport(spec model.Notifier) (Transport, error) {
	url, err := webhookOpt(spec.Options, "webhook_url")
	if err != nil {
		return nil, err
	}
	return &slackTransport{webhookURL: url}, nil
}

func (s *slackTransport) Name() string { return "slack" }

func (s *slackTransport) Send(ctx context.Context, jobName string, jobType model.JobType, results []model.RunResult, elapsed time.Duration) error {
	payload, err := buildSlackPayload(jobName, jobType, results, elapsed)
	if err != nil {
		return err
	}
	return postJSON(ctx, s.webhookURL, payload)
}

func buildSlackPayload(jobName string, jobType model.JobType, results []model.RunResult, elapsed time.Duration) ([]byte, error) {
	status := aggregateStatus(results)

	lines := make([]string, 0, len(results))
	for _, r := range results {
		lines = append(lines, resultLine(r))
	}

	fields := []map[string]interface{}{
		{"title": "Status", "value": strings.ToUpper(status), "short": true},
		{"title": "Type", "value": string(jobType), "short": true},
		{"title": "Elapsed", "value": elapsed.Round(time.Second).String(), "short": true},
		{"title": "Sources", "value": strings.Join(lines, "\n"), "short": false},
	}

	payload := map[string]interface{}{
		"text": "usbackup job " + status + ": " + jobName,
		"attachments": []map[string]interface{}{
			{
				"color":  statusColorHex(status),
				"fields": fields,
				"ts":     time.Now().Unix(),
			},
		},
	}

	return marshalPayload(payload)
}
