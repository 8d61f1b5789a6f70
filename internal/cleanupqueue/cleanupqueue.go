// Package cleanupqueue implements a LIFO deferred-action registry: actions
// are pushed under an opaque id and either consumed individually on the
// happy path or drained wholesale on shutdown.
package cleanupqueue

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/viperadnan-git/usbackup/internal/model"
)

// Action is a deferred cleanup action. It takes no arguments because callers
// close over whatever state they need when constructing the closure instead
// of needing a generic args bag.
type Action func() error

type entry struct {
	id     string
	action Action
}

// Queue is an explicitly-constructed registry: pass it through
// constructors, don't smuggle it via a package-level singleton. It is not
// process-wide: the supervisor holds one for daemon-level actions, and the
// JobCoordinator creates a separate one for each source run.
type Queue struct {
	mu      sync.Mutex
	order   []string
	entries map[string]Action
	log     zerolog.Logger
}

// New constructs an empty Queue.
func New(log zerolog.Logger) *Queue {
	return &Queue{
		entries: make(map[string]Action),
		log:     log,
	}
}

// Push registers fn under id. Fails with model.ErrDuplicateID if id is
// already registered.
func (q *Queue) Push(id string, fn Action) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, exists := q.entries[id]; exists {
		return fmt.Errorf("%w: %s", model.ErrDuplicateID, id)
	}
	q.entries[id] = fn
	q.order = append(q.order, id)
	return nil
}

// Pop removes the entry for id without executing it. Fails with
// model.ErrUnknownID if absent: a no-op pop is a caller bug, not a silent
// success, because the caller must track what it deferred.
func (q *Queue) Pop(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.removeLocked(id)
}

// Consume removes and executes the entry for id. Fails with
// model.ErrUnknownID if absent.
func (q *Queue) Consume(id string) error {
	q.mu.Lock()
	fn, exists := q.entries[id]
	if !exists {
		q.mu.Unlock()
		return fmt.Errorf("%w: %s", model.ErrUnknownID, id)
	}
	_ = q.removeLocked(id)
	q.mu.Unlock()
	return fn()
}

// Drain repeatedly pops the most recently pushed entry and executes it until
// the queue is empty. Errors during drain are logged and do not abort the
// drain.
func (q *Queue) Drain() {
	for {
		q.mu.Lock()
		if len(q.order) == 0 {
			q.mu.Unlock()
			return
		}
		id := q.order[len(q.order)-1]
		fn := q.entries[id]
		_ = q.removeLocked(id)
		q.mu.Unlock()

		if err := fn(); err != nil {
			q.log.Error().Err(err).Str("cleanup_id", id).Msg("cleanup action failed during drain")
		}
	}
}

// Len reports the number of pending entries. Useful in tests.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.order)
}

// removeLocked removes id from both the map and the LIFO order slice.
// Caller must hold q.mu.
func (q *Queue) removeLocked(id string) error {
	if _, exists := q.entries[id]; !exists {
		return fmt.Errorf("%w: %s", model.ErrUnknownID, id)
	}
	delete(q.entries, id)
	for i, v := range q.order {
		if v == id {
			q.order = append(q.order[:i], q.order[i+1:]...)
			break
		}
	}
	return nil
}
