package model

import "fmt"

// JobType distinguishes a regular backup job from a storage-to-storage
// replication job.
type JobType string

const (
	JobBackup      JobType = "backup"
	JobReplication JobType = "replication"
)

// NotificationPolicy controls when a JobCoordinator invokes the notifier.
type NotificationPolicy string

const (
	NotifyNever      NotificationPolicy = "never"
	NotifyAlways     NotificationPolicy = "always"
	NotifyOnFailure  NotificationPolicy = "on-failure"
	DefaultNotifyPol                   = NotifyAlways
)

// Job is a scheduled unit of work joining sources to a storage with a policy.
type Job struct {
	Name               string
	Type               JobType
	Dest               string
	Replicate          string
	Limit              []string
	Exclude            []string
	Schedule           string
	Retention          RetentionPolicy
	NotificationPolicy NotificationPolicy
	Concurrency        int
	PreRunCmd          []string
	PostRunCmd         []string
}

// DefaultSchedule is applied when a job omits its schedule.
const DefaultSchedule = "0 0 * * *"

// Validate checks the job's structural invariants. It does not
// resolve Dest/Replicate against a Storage registry; callers do that
// separately, treating a missing name as a distinct hard failure from a
// structurally invalid job.
func (j Job) Validate() error {
	if j.Name == "" {
		return fmt.Errorf("%w: job has no name", ErrConfigInvalid)
	}
	if j.Type != JobBackup && j.Type != JobReplication {
		return fmt.Errorf("%w: job %q has invalid type %q", ErrConfigInvalid, j.Name, j.Type)
	}
	if j.Dest == "" {
		return fmt.Errorf("%w: job %q has no dest", ErrConfigInvalid, j.Name)
	}
	if j.Type == JobReplication {
		if j.Replicate == "" {
			return fmt.Errorf("%w: replication job %q requires replicate", ErrConfigInvalid, j.Name)
		}
		if j.Replicate == j.Dest {
			return fmt.Errorf("%w: replication job %q has replicate == dest", ErrConfigInvalid, j.Name)
		}
	}
	if j.Concurrency < 1 {
		return fmt.Errorf("%w: job %q has concurrency < 1", ErrConfigInvalid, j.Name)
	}
	switch j.NotificationPolicy {
	case NotifyNever, NotifyAlways, NotifyOnFailure, "":
	default:
		return fmt.Errorf("%w: job %q has invalid notification_policy %q", ErrConfigInvalid, j.Name, j.NotificationPolicy)
	}
	for bucket := range j.Retention {
		if !IsValidBucket(string(bucket)) {
			return fmt.Errorf("%w: job %q has unknown retention bucket %q", ErrConfigInvalid, j.Name, bucket)
		}
	}
	for bucket, n := range j.Retention {
		if n < 1 {
			return fmt.Errorf("%w: job %q bucket %q has count < 1", ErrConfigInvalid, j.Name, bucket)
		}
	}
	return nil
}

// EffectiveSchedule returns Schedule, defaulting.
func (j Job) EffectiveSchedule() string {
	if j.Schedule == "" {
		return DefaultSchedule
	}
	return j.Schedule
}

// EffectiveNotificationPolicy returns NotificationPolicy, defaulting.
func (j Job) EffectiveNotificationPolicy() NotificationPolicy {
	if j.NotificationPolicy == "" {
		return DefaultNotifyPol
	}
	return j.NotificationPolicy
}

// EffectiveConcurrency returns Concurrency, defaulting to 1.
func (j Job) EffectiveConcurrency() int {
	if j.Concurrency < 1 {
		return 1
	}
	return j.Concurrency
}
