package permissions

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingStore struct {
	mu    sync.Mutex
	saved []OverrideSet
	err   error
}

func (s *recordingStore) Save(ctx context.Context, acc OverrideSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.saved = append(s.saved, acc)
	return nil
}

func TestEditorRejectsMutationsBeforeHydrate(t *testing.T) {
	store := &recordingStore{}
	ed := NewEditor(testCatalog(), store, EditorConfig{})
	assert.Equal(t, EditorUninitialized, ed.State())

	_, err := ed.Apply(context.Background(), Mutation{Op: OpSetAll, Value: true})
	assert.ErrorIs(t, err, ErrNotReady)
	assert.Empty(t, store.saved)
}

func TestEditorHydrateDoesNotPersist(t *testing.T) {
	store := &recordingStore{}
	ed := NewEditor(testCatalog(), store, EditorConfig{})
	ed.Hydrate(OverrideSet{"acc_v_chat": false}, nil)
	assert.Equal(t, EditorReady, ed.State())
	assert.Empty(t, store.saved)
	assert.Equal(t, OverrideSet{"acc_v_chat": false}, ed.Current())
}

func TestEditorPersistsCompleteSet(t *testing.T) {
	store := &recordingStore{}
	ed := NewEditor(testCatalog(), store, EditorConfig{})
	ed.Hydrate(OverrideSet{"acc_v_chat": false}, nil)

	p, err := ed.Apply(context.Background(), Mutation{Op: OpSetOne, Param: "acc_e_client", Value: true})
	require.NoError(t, err)
	require.Len(t, p.Changes, 1)
	assert.Equal(t, "acc_e_client", p.Changes[0].Param)

	require.Len(t, store.saved, 1)
	assert.Equal(t, OverrideSet{"acc_v_chat": false, "acc_e_client": true}, store.saved[0])
}

func TestEditorSkipsNoopMutation(t *testing.T) {
	store := &recordingStore{}
	ed := NewEditor(testCatalog(), store, EditorConfig{})
	ed.Hydrate(OverrideSet{"acc_v_chat": false}, nil)

	p, err := ed.Apply(context.Background(), Mutation{Op: OpSetOne, Param: "acc_v_chat", Value: false})
	require.NoError(t, err)
	assert.True(t, p.Empty())
	assert.Empty(t, store.saved)
}

func TestEditorRollsBackOnFailure(t *testing.T) {
	boom := errors.New("db down")
	store := &recordingStore{err: boom}
	ed := NewEditor(testCatalog(), store, EditorConfig{})
	ed.Hydrate(OverrideSet{"acc_v_chat": true}, nil)

	p, err := ed.Apply(context.Background(), Mutation{Op: OpSetOne, Param: "acc_v_chat", Value: false})
	require.Error(t, err)
	var perr *PersistenceError
	require.True(t, errors.As(err, &perr))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, p.ID, perr.Proposal.ID)
	assert.Equal(t, OverrideSet{"acc_v_chat": false}, p.After)
	assert.Equal(t, OverrideSet{"acc_v_chat": true}, ed.Current())
}

func TestEditorKeepOnFailure(t *testing.T) {
	store := &recordingStore{err: errors.New("timeout")}
	ed := NewEditor(testCatalog(), store, EditorConfig{KeepOnFailure: true})
	ed.Hydrate(nil, nil)

	_, err := ed.Apply(context.Background(), Mutation{Op: OpSetAll, Value: false})
	require.Error(t, err)
	assert.Len(t, ed.Current(), len(testCatalog().Params()))
}

func TestEditorResetUsesTemplate(t *testing.T) {
	store := &recordingStore{}
	ed := NewEditor(testCatalog(), store, EditorConfig{})
	ed.Hydrate(OverrideSet{"acc_v_chat": true, "acc_e_client": true}, OverrideSet{"acc_v_deposit": false})

	_, err := ed.Apply(context.Background(), Mutation{Op: OpResetToTemplate})
	require.NoError(t, err)
	assert.Equal(t, OverrideSet{"acc_v_deposit": false}, ed.Current())
	require.Len(t, store.saved, 1)
}
