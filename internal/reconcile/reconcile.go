// Package reconcile is the client-side optimistic update discipline: apply
// a status change to local state immediately, issue the confirming request,
// and roll back to the pre-update snapshot if the request fails. Every
// client applies it identically instead of scattering ad hoc snapshot
// variables through UI code.
package reconcile

import (
	"context"
	"sync"
)

// Command is one optimistic mutation. Apply produces the predicted local
// state; Confirm issues the authoritative request and returns the server's
// version of the state, which covers fields the client could not predict.
type Command[S any] struct {
	Apply   func(S) S
	Confirm func(ctx context.Context) (S, error)
}

// State holds a client's local copy of some server-owned state and runs
// optimistic commands against it. Commands are serialized: one in-flight
// command at a time per State.
type State[S any] struct {
	mu      sync.Mutex
	current S
}

func NewState[S any](initial S) *State[S] {
	return &State[S]{current: initial}
}

func (st *State[S]) Get() S {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.current
}

// Set replaces local state with an authoritative value, e.g. one received
// on a push topic or from the active-job recovery query.
func (st *State[S]) Set(s S) {
	st.mu.Lock()
	st.current = s
	st.mu.Unlock()
}

// Run applies cmd optimistically, confirms it, and reconciles. On success
// the local state becomes the server's returned value; on failure it rolls
// back to the snapshot taken before Apply and the error is returned for the
// UI to surface. A timeout from Confirm counts as failure; there is no
// automatic retry.
func (st *State[S]) Run(ctx context.Context, cmd Command[S]) (S, error) {
	st.mu.Lock()
	snapshot := st.current
	st.current = cmd.Apply(snapshot)
	st.mu.Unlock()

	confirmed, err := cmd.Confirm(ctx)
	st.mu.Lock()
	defer st.mu.Unlock()
	if err != nil {
		st.current = snapshot
		return snapshot, err
	}
	st.current = confirmed
	return confirmed, nil
}
