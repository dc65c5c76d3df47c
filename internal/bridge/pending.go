package bridge

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// Errors returned by Pending.
var (
	ErrDuplicateID = errors.New("duplicate invocation id")
	ErrClosed      = errors.New("bridge closed")
)

// PendingInvocation describes a dispatched invocation that has not yet
// delivered its outcome.
type PendingInvocation struct {
	ID      string
	Cmd     string
	Started time.Time
}

type pendingEntry struct {
	info   PendingInvocation
	cancel context.CancelCauseFunc
}

// Pending is the table of dispatched invocations keyed by correlation token.
// An entry is removed exactly once, and only the caller that removes it may
// deliver the outcome.
type Pending struct {
	mu      sync.Mutex
	entries map[string]*pendingEntry
	closed  bool
}

// NewPending creates an empty table.
func NewPending() *Pending {
	return &Pending{entries: make(map[string]*pendingEntry)}
}

// Add registers an invocation. It fails with ErrDuplicateID when the id is
// already live and with ErrClosed after Close.
func (p *Pending) Add(info PendingInvocation, cancel context.CancelCauseFunc) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}
	if _, exists := p.entries[info.ID]; exists {
		return ErrDuplicateID
	}
	p.entries[info.ID] = &pendingEntry{info: info, cancel: cancel}
	return nil
}

// Remove deletes the entry for id and reports whether it was live.
func (p *Pending) Remove(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.entries[id]; !exists {
		return false
	}
	delete(p.entries, id)
	return true
}

// Cancel cancels the context of a live invocation with the given cause. The
// entry stays registered so its worker still delivers an outcome. It
// reports whether id was live.
func (p *Pending) Cancel(id string, cause error) bool {
	p.mu.Lock()
	entry, exists := p.entries[id]
	p.mu.Unlock()

	if !exists {
		return false
	}
	if entry.cancel != nil {
		entry.cancel(cause)
	}
	return true
}

// Len returns the number of live invocations.
func (p *Pending) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// List returns a snapshot of live invocations ordered by start time.
func (p *Pending) List() []PendingInvocation {
	p.mu.Lock()
	result := make([]PendingInvocation, 0, len(p.entries))
	for _, entry := range p.entries {
		result = append(result, entry.info)
	}
	p.mu.Unlock()

	sort.Slice(result, func(i, j int) bool {
		if result[i].Started.Equal(result[j].Started) {
			return result[i].ID < result[j].ID
		}
		return result[i].Started.Before(result[j].Started)
	})
	return result
}

// Close rejects further additions and cancels every live invocation with
// cause.
func (p *Pending) Close(cause error) {
	p.mu.Lock()
	p.closed = true
	cancels := make([]context.CancelCauseFunc, 0, len(p.entries))
	for _, entry := range p.entries {
		if entry.cancel != nil {
			cancels = append(cancels, entry.cancel)
		}
	}
	p.mu.Unlock()

	for _, cancel := range cancels {
		cancel(cause)
	}
}
