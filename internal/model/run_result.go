package model

import "time"

// RunResult is produced once per source per job run.
type RunResult struct {
	SourceName string    `json:"source_name"`
	DestPath   string    `json:"dest_path"`
	StartedAt  time.Time `json:"started_at"`
	Elapsed    time.Duration `json:"elapsed"`
	ErrorKind  Kind      `json:"error_kind,omitempty"`
	ErrorMsg   string    `json:"error_msg,omitempty"`
	LogBuffer  string    `json:"log_buffer,omitempty"`

	// err is the original error, kept for in-process notifier/coordinator
	// use (errors.Is/As); ErrorKind/ErrorMsg are its serialized projection
	// for the Datastore and notifications.
	err error `json:"-"`
}

// Failed returns true if this result carries an error.
func (r RunResult) Failed() bool { return r.err != nil || r.ErrorMsg != "" }

// Err returns the original error, if any.
func (r RunResult) Err() error { return r.err }

// NewFailedResult builds a failed RunResult synthesized from err, classifying
// it into the error taxonomy. Used for runner construction failures that
// never produce a real RunResult of their own.
func NewFailedResult(sourceName string, startedAt time.Time, elapsed time.Duration, err error) RunResult {
	return RunResult{
		SourceName: sourceName,
		StartedAt:  startedAt,
		Elapsed:    elapsed,
		ErrorKind:  Classify(err),
		ErrorMsg:   err.Error(),
		err:        err,
	}
}
