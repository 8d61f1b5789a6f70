package notify

import (
	"context"
	"strings"
	"time"

	"github.com/viperadnan-git/usbackup/internal/model"
)

type discordTransport struct {
	webhookURL string
}

func newDiscordTransport(spec model.Notifier) (Transport, error) {
	url, err := webhookOpt(spec.Options, "webhook_url")
	if err != nil {
		return nil, err
	}
	return &discordTransport{webhookURL: url}, nil
}

func (d *discordTransport) Name() string { return "discord" }

func (d *discordTransport) Send(ctx context.Context, jobName string, jobType model.JobType, results []model.RunResult, elapsed time.Duration) error {
	payload, err := buildDiscordPayload(jobName, jobType, results, elapsed)
	if err != nil {
		return err
	}
	return postJSON(ctx, d.webhookURL, payload)
}

func buildDiscordPayload(jobName string, jobType model.JobType, results []model.RunResult, elapsed time.Duration) ([]byte, error) {
	status := aggregateStatus(results)

	lines := make([]string, 0, len(results))
	for _, r := range results {
		lines = append(lines, resultLine(r))
	}

	fields := []map[string]interface{}{
		{"name": "Status", "value": strings.ToUpper(status), "inline": true},
		{"name": "Type", "value": string(jobType), "inline": true},
		{"name": "Elapsed", "value": elapsed.Round(time.Second).String(), "inline": true},
		{"name": "Sources", "value": strings.Join(lines, "\n"), "inline": false},
	}

	payload := map[string]interface{}{
		"embeds": []map[string]interface{}{
			{
				"title":     "usbackup job " + status + ": " + jobName,
				"color":     statusColorInt(status),
				"fields":    fields,
				"timestamp": time.Now().UTC().Format(time.RFC3339),
			},
		},
	}

	return marshalPayload(payload)
}
