// Package statemachine declares the user extension point (component
// C3's counterpart contract, spec §6) and the serial executor that
// guarantees every callback into it is observably atomic.
package statemachine

import (
	"io"

	"github.com/arekkw/atomix/internal/entry"
	"github.com/arekkw/atomix/internal/session"
)

// CompactionContext carries whatever information the compaction run
// needs to hand to Filter; its shape is intentionally minimal since
// spec.md treats the compaction mechanism itself as a named external
// collaborator.
type CompactionContext struct {
	// Boundary is the highest log index the compaction pass is
	// permitted to discard.
	Boundary uint64
}

// StateMachine is the interface every application built on this
// runtime implements. All four methods, plus Snapshot/Restore, are
// invoked exclusively from the Executor's single logical thread.
type StateMachine interface {
	// Register is called once per session creation.
	Register(s *session.Session)
	// Expire is called once when a session transitions to Expired.
	Expire(s *session.Session)
	// Apply executes a Command or Query against the state machine.
	Apply(commit entry.Commit) ([]byte, error)
	// Filter decides, deterministically across replicas, whether a
	// Command entry should survive log compaction.
	Filter(commit entry.Commit, cctx CompactionContext) bool
	// Snapshot writes enough state to reconstruct the machine via
	// Restore. Supplements spec §9's mention of a snapshot/restore
	// pair without specifying its shape.
	Snapshot(w io.Writer) error
	// Restore reconstructs state previously written by Snapshot.
	Restore(r io.Reader) error
}
