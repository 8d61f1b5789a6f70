package model

import "fmt"

// Notifier is a configured side channel that receives job run summaries: a
// name, a discriminating kind, and kind-specific options, mirroring
// HandlerSpec's shape for sources.
type Notifier struct {
	Name    string
	Kind    string
	Options map[string]any
}

// Validate checks the structural invariants names for a notifier
// entry; kind-specific option validation (e.g. webhook_url) happens when the
// notifier transport is constructed.
func (n Notifier) Validate() error {
	if n.Name == "" {
		return fmt.Errorf("%w: notifier has no name", ErrConfigInvalid)
	}
	if n.Kind == "" {
		return fmt.Errorf("%w: notifier %q has no kind", ErrConfigInvalid, n.Name)
	}
	return nil
}
