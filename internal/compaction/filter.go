// Package compaction implements the compaction filter (component C5):
// a deterministic keep/discard predicate evaluated per entry during
// log cleaning.
package compaction

import (
	"github.com/arekkw/atomix/internal/entry"
	"github.com/arekkw/atomix/internal/metrics"
	"github.com/arekkw/atomix/internal/session"
	"github.com/arekkw/atomix/internal/statemachine"
)

// Filter decides whether entries survive compaction.
type Filter struct {
	registry *session.Registry
	exec     *statemachine.Executor
	sm       statemachine.StateMachine
	publish  func(sessionID uint64, payload []byte)
}

// NewFilter constructs a Filter bound to the live registry and state
// machine, so Command filtering decisions can consult current session
// state and invoke the user callback on the serial executor.
func NewFilter(registry *session.Registry, exec *statemachine.Executor, sm statemachine.StateMachine, publish func(sessionID uint64, payload []byte)) *Filter {
	return &Filter{registry: registry, exec: exec, sm: sm, publish: publish}
}

// Keep reports whether e should be retained during compaction.
func (f *Filter) Keep(e entry.Entry, cctx statemachine.CompactionContext) bool {
	return recordDecision(e.Kind.String(), f.keep(e, cctx))
}

func (f *Filter) keep(e entry.Entry, cctx statemachine.CompactionContext) bool {
	switch e.Kind {
	case entry.KindRegister:
		// A session's id equals the log index of the Register entry
		// that created it, so looking it up by that index tells us
		// whether the session is still live.
		var ok bool
		f.exec.Execute(func() {
			_, ok = f.registry.Lookup(e.LogIndex)
		})
		return ok

	case entry.KindKeepAlive:
		var keep bool
		f.exec.Execute(func() {
			sess, ok := f.registry.Lookup(e.KeepAlive.SessionID)
			// Only the latest keep-alive per session survives.
			keep = ok && sess.LastIndex == e.LogIndex
		})
		return keep

	case entry.KindCommand:
		var keep bool
		f.exec.Execute(func() {
			sess, ok := f.registry.Lookup(e.Command.SessionID)
			if !ok {
				sess = session.Synthetic(e.Command.SessionID, e.Command.Timestamp)
			}
			commit := entry.Commit{
				Index:     e.LogIndex,
				Session:   sess,
				Timestamp: e.Command.Timestamp,
				Payload:   e.Command.Payload,
				Publish:   f.publish,
			}
			keep = f.sm.Filter(commit, cctx)
		})
		return keep

	case entry.KindNoOp:
		return false

	default:
		return false
	}
}

func recordDecision(kind string, keep bool) bool {
	decision := "discard"
	if keep {
		decision = "keep"
	}
	metrics.CompactionDecisions.WithLabelValues(kind, decision).Inc()
	return keep
}
