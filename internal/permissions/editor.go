package permissions

import (
	"context"
	"sync"

	"github.com/odyssey-crm/odyssey-crm/internal/permissions/catalog"
)

// EditorState tracks whether an Editor holds the subject's stored overrides.
type EditorState int

const (
	// EditorUninitialized rejects mutations; loading stored state never persists.
	EditorUninitialized EditorState = iota
	// EditorReady persists every applied mutation.
	EditorReady
)

func (s EditorState) String() string {
	if s == EditorReady {
		return "ready"
	}
	return "uninitialized"
}

// Store persists the complete override set of one subject.
type Store interface {
	Save(ctx context.Context, acc OverrideSet) error
}

// StoreFunc adapts a function to Store.
type StoreFunc func(ctx context.Context, acc OverrideSet) error

// Save calls f.
func (f StoreFunc) Save(ctx context.Context, acc OverrideSet) error { return f(ctx, acc) }

// EditorConfig tunes failure handling.
type EditorConfig struct {
	// KeepOnFailure keeps the optimistic state when Save fails instead of
	// rolling back to the state before the mutation.
	KeepOnFailure bool
}

// Editor applies mutations to one subject's override set and persists the
// result. It is safe for concurrent use; mutations are serialised.
type Editor struct {
	mu       sync.Mutex
	catalog  catalog.Catalog
	store    Store
	cfg      EditorConfig
	state    EditorState
	current  OverrideSet
	template OverrideSet
}

// NewEditor returns an uninitialized editor.
func NewEditor(c catalog.Catalog, store Store, cfg EditorConfig) *Editor {
	return &Editor{catalog: c, store: store, cfg: cfg}
}

// Hydrate installs the stored overrides and the template used by resets,
// then marks the editor ready. It never persists.
func (e *Editor) Hydrate(acc, template OverrideSet) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.current = acc.Clone()
	e.template = template.Clone()
	e.state = EditorReady
}

// State returns the lifecycle state.
func (e *Editor) State() EditorState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Current returns a copy of the in-memory override set.
func (e *Editor) Current() OverrideSet {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current.Clone()
}

// Apply runs m, persists the complete resulting set and returns the proposal.
// A mutation that changes nothing is not persisted. When Save fails the
// returned error is a *PersistenceError.
func (e *Editor) Apply(ctx context.Context, m Mutation) (Proposal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != EditorReady {
		return Proposal{}, ErrNotReady
	}
	after, err := Apply(e.catalog, e.current, e.template, m)
	if err != nil {
		return Proposal{}, err
	}
	proposal := Propose(e.current, after)
	if proposal.Empty() {
		return proposal, nil
	}
	e.current = after
	if err := e.store.Save(ctx, after.Clone()); err != nil {
		if !e.cfg.KeepOnFailure {
			e.current = proposal.Rollback()
		}
		return proposal, &PersistenceError{Proposal: proposal, Err: err}
	}
	return proposal, nil
}

// MutationObserver receives the outcome of every applied mutation. Subject
// names the kind of override set, such as "role_template" or "member".
type MutationObserver interface {
	RecordMutation(subject string, op Op, changes int, err error)
}
