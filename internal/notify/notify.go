// Package notify implements the notifier contract: one
// Dispatcher fans a job's aggregate result out to every configured webhook
// transport (slack/discord), generalizing the base codebase's single-source,
// single-webhook internal/notify package to a
// (job_name, job_type, results[], elapsed, notification_policy) call
// covering every source a job ran.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/viperadnan-git/usbackup/internal/logger"
	"github.com/viperadnan-git/usbackup/internal/model"
)

// Transport sends one notification about a finished job run somewhere.
// slackTransport and discordTransport are the two built-in kinds.
type Transport interface {
	Name() string
	Send(ctx context.Context, jobName string, jobType model.JobType, results []model.RunResult, elapsed time.Duration) error
}

// Factory constructs a Transport from a configured Notifier's options.
type Factory func(model.Notifier) (Transport, error)

var registry = map[string]Factory{
	"slack":   newSlackTransport,
	"discord": newDiscordTransport,
}

// New constructs the Transport for spec.Kind, or a ConfigInvalid error if
// the kind is unregistered.
func New(spec model.Notifier) (Transport, error) {
	factory, ok := registry[spec.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: unknown notifier kind %q", model.ErrConfigInvalid, spec.Kind)
	}
	return factory(spec)
}

// Dispatcher holds every configured notifier transport and enforces
// notification policy once per call: a single logical notification even
// though multiple transports may be configured at once.
type Dispatcher struct {
	transports []Transport
}

// NewDispatcher constructs a transport for every configured Notifier. A
// transport construction failure is returned immediately: structural
// notifier config problems surface at load time, not at notify time.
func NewDispatcher(specs []model.Notifier) (*Dispatcher, error) {
	d := &Dispatcher{}
	for _, spec := range specs {
		t, err := New(spec)
		if err != nil {
			return nil, err
		}
		d.transports = append(d.transports, t)
	}
	return d, nil
}

// Notify sends one notification per configured transport if policy allows
// it given the aggregate status of results. It never returns an error: a
// transport failure is logged and the remaining transports still run,
// mirroring the base codebase's "never fail the backup over a notification
// issue" guarantee.
func (d *Dispatcher) Notify(ctx context.Context, jobName string, jobType model.JobType, results []model.RunResult, elapsed time.Duration, policy model.NotificationPolicy) {
	if len(d.transports) == 0 {
		return
	}

	status := aggregateStatus(results)
	if !shouldNotify(string(policy), status) {
		logger.Log.Debug().Str("job", jobName).Str("notification_policy", string(policy)).Str("status", status).Msg("skipping notification per policy")
		return
	}

	for _, t := range d.transports {
		if err := t.Send(ctx, jobName, jobType, results, elapsed); err != nil {
			logger.Log.Warn().Err(err).Str("transport", t.Name()).Str("job", jobName).Msg("notification failed")
			continue
		}
		logger.Log.Info().Str("transport", t.Name()).Str("job", jobName).Msg("notification sent")
	}
}

// aggregateStatus is "failure" if any RunResult failed, else "success".
func aggregateStatus(results []model.RunResult) string {
	for _, r := range results {
		if r.Failed() {
			return "failure"
		}
	}
	return "success"
}

func shouldNotify(notifyOn, status string) bool {
	switch notifyOn {
	case string(model.NotifyAlways):
		return true
	case string(model.NotifyNever):
		return false
	case string(model.NotifyOnFailure):
		return status == "failure"
	default:
		return status == "failure"
	}
}

// FormatSize returns a human-readable byte count for a transport payload.
func FormatSize(bytes int64) string {
	if bytes == 0 {
		return "unknown"
	}
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

func statusEmoji(status string) string {
	if status == "success" {
		return "✅"
	}
	return "❌"
}

func statusColorHex(status string) string {
	if status == "success" {
		return "#36a64f"
	}
	return "#dc3545"
}

func statusColorInt(status string) int {
	if status == "success" {
		return 0x36a64f
	}
	return 0xdc3545
}
