// Package tx carries per-request transaction state through context.
//
// The effect recorder only ever reads two facts off this state: whether a
// transaction was opened for the request and whether it committed. Stores
// additionally pick up the live *sql.Tx so writes join the request's
// transaction.
package tx

import (
	"context"
	"database/sql"
)

type ctxKey struct{}
type stateKey struct{}

// State records the outcome of the transaction opened for a request. It is
// created by the component that opens the transaction and mutated only on
// that request's synchronous path, so no locking is needed.
type State struct {
	active    bool
	committed bool
}

// NewState returns a State with no transaction opened.
func NewState() *State { return &State{} }

// MarkActive records that a transaction was opened for this request.
func (s *State) MarkActive() { s.active = true }

// MarkCommitted records that the transaction committed.
func (s *State) MarkCommitted() { s.committed = true }

// Active reports whether a transaction was opened.
func (s *State) Active() bool { return s != nil && s.active }

// Committed reports whether the transaction committed.
func (s *State) Committed() bool { return s != nil && s.committed }

// WithState stores transaction state in context.
func WithState(ctx context.Context, state *State) context.Context {
	if state == nil {
		return ctx
	}
	return context.WithValue(ctx, stateKey{}, state)
}

// StateFrom extracts transaction state from context if present.
func StateFrom(ctx context.Context) (*State, bool) {
	state, ok := ctx.Value(stateKey{}).(*State)
	return state, ok
}

// WithTx stores a SQL transaction in context for downstream store usage.
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, tx)
}

// From extracts a SQL transaction from context if present.
func From(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(ctxKey{}).(*sql.Tx)
	return tx, ok
}

// Runner executes a function inside a database transaction, recording the
// outcome in a State that travels with the callback's context. Services use
// it so commit-gated effects can observe whether the write actually
// persisted.
type Runner struct {
	db *sql.DB
}

// NewRunner builds a Runner over the given pool. A nil db yields a Runner
// that executes callbacks without a real transaction (memory-store setups);
// the State is then never marked active and buffered effects release
// unconditionally.
func NewRunner(db *sql.DB) *Runner {
	return &Runner{db: db}
}

// RunInTx runs fn within a transaction. The callback context carries both
// the *sql.Tx (for stores) and the request's State (for the recorder). On a
// nil pool the callback runs directly.
func (r *Runner) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	state, ok := StateFrom(ctx)
	if !ok {
		state = NewState()
		ctx = WithState(ctx, state)
	}

	if r == nil || r.db == nil {
		return fn(ctx)
	}

	sqlTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	state.MarkActive()

	if err := fn(WithTx(ctx, sqlTx)); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return err
	}
	state.MarkCommitted()
	return nil
}
