// Package dispatch implements the entry dispatcher (component C2): the
// tagged-variant switch that drives an applied log Entry through the
// session registry, the state machine executor, and the query
// scheduler, in the order spec §4.2 mandates.
package dispatch

import (
	"fmt"
	"time"

	"github.com/arekkw/atomix/internal/apierr"
	"github.com/arekkw/atomix/internal/entry"
	"github.com/arekkw/atomix/internal/metrics"
	"github.com/arekkw/atomix/internal/publish"
	"github.com/arekkw/atomix/internal/query"
	"github.com/arekkw/atomix/internal/session"
	"github.com/arekkw/atomix/internal/statemachine"
	"github.com/sirupsen/logrus"
)

// Completion is the user-visible outcome of applying one Entry.
type Completion struct {
	Index     uint64
	SessionID uint64
	Value     []byte
	Err       error
}

// Dispatcher routes committed entries to the session registry, the
// user state machine, and the query scheduler that make up the
// server-side half of the runtime.
type Dispatcher struct {
	registry  *session.Registry
	exec      *statemachine.Executor
	sm        statemachine.StateMachine
	scheduler *query.Scheduler
	publisher *publish.Publisher
	log       logrus.FieldLogger

	lastApplied uint64
}

// New constructs a Dispatcher. scheduler and publisher may be nil for
// tests that only exercise session/command semantics.
func New(registry *session.Registry, exec *statemachine.Executor, sm statemachine.StateMachine, scheduler *query.Scheduler, publisher *publish.Publisher, log logrus.FieldLogger) *Dispatcher {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Dispatcher{registry: registry, exec: exec, sm: sm, scheduler: scheduler, publisher: publisher, log: log}
}

func (d *Dispatcher) publishFunc() func(sessionID uint64, payload []byte) {
	if d.publisher == nil {
		return nil
	}
	return d.publisher.Publish
}

// Apply dispatches e on the serial executor and blocks until it has
// been fully processed, per spec §4.2's order of operations:
//  1. advance last_applied,
//  2. fire any queries newly unblocked by that advance,
//  3. perform the entry-specific logic.
//
// Every step here runs inside a single Executor.Execute call, so
// scheduler.SetLastApplied is invoked directly rather than through
// Execute or a blocking Post — resubmitting to the executor from code
// that is already running on it would deadlock the lone worker
// goroutine (see query.Scheduler's doc comment).
func (d *Dispatcher) Apply(e entry.Entry) Completion {
	var out Completion
	d.exec.Execute(func() {
		out = d.apply(e)
	})
	return out
}

func (d *Dispatcher) apply(e entry.Entry) Completion {
	start := time.Now()
	kind := e.Kind.String()
	out := d.applyLocked(e)
	metrics.ApplyDurations.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	if out.Err != nil {
		metrics.ApplyErrors.WithLabelValues(apierr.KindOf(out.Err).String()).Inc()
	}
	if d.registry != nil {
		metrics.SessionCount.Set(float64(d.registry.Len()))
	}
	return out
}

func (d *Dispatcher) applyLocked(e entry.Entry) Completion {
	switch e.Kind {
	case entry.KindRegister, entry.KindKeepAlive, entry.KindCommand, entry.KindQuery, entry.KindNoOp:
		// recognized tag, fall through
	default:
		return Completion{Index: e.LogIndex, Err: apierr.ProtocolViolation(fmt.Sprintf("unknown entry kind %d", e.Kind))}
	}

	d.lastApplied = e.LogIndex
	if d.scheduler != nil {
		d.scheduler.SetLastApplied(d.lastApplied)
	}

	if ts, ok := e.Timestamp(); ok && d.registry != nil {
		for _, expired := range d.registry.ExpireAllDue(ts) {
			d.sm.Expire(expired)
			metrics.SessionExpirations.Inc()
		}
	}

	switch e.Kind {
	case entry.KindRegister:
		return d.applyRegister(e)
	case entry.KindKeepAlive:
		return d.applyKeepAlive(e)
	case entry.KindCommand:
		return d.applyCommand(e)
	case entry.KindQuery:
		return d.applyLoggedQuery(e)
	case entry.KindNoOp:
		return Completion{Index: e.LogIndex}
	default:
		// unreachable: filtered above
		return Completion{Index: e.LogIndex}
	}
}

func (d *Dispatcher) applyRegister(e entry.Entry) Completion {
	sess := d.registry.Register(e.LogIndex, e.Register.Timestamp, e.Register.Member)
	d.sm.Register(sess)
	d.log.WithField("session_id", sess.ID).Info("dispatch: session registered")
	return Completion{Index: e.LogIndex, SessionID: sess.ID, Value: encodeSessionID(sess.ID)}
}

func (d *Dispatcher) applyKeepAlive(e entry.Entry) Completion {
	sessionID := e.KeepAlive.SessionID
	tr, sess := d.registry.Touch(sessionID, e.LogIndex, e.KeepAlive.Timestamp)
	switch tr {
	case session.TouchExpired:
		d.sm.Expire(sess)
		metrics.SessionExpirations.Inc()
		return Completion{Index: e.LogIndex, SessionID: sessionID, Err: apierr.UnknownSession()}
	case session.TouchUnknown:
		return Completion{Index: e.LogIndex, SessionID: sessionID, Err: apierr.UnknownSession()}
	default:
		return Completion{Index: e.LogIndex, SessionID: sessionID}
	}
}

func (d *Dispatcher) applyCommand(e entry.Entry) Completion {
	cmd := e.Command
	sess, ok := d.registry.Lookup(cmd.SessionID)
	if !ok {
		return Completion{Index: e.LogIndex, SessionID: cmd.SessionID, Err: apierr.UnknownSession()}
	}

	tr, touched := d.registry.Touch(cmd.SessionID, e.LogIndex, cmd.Timestamp)
	if tr == session.TouchExpired {
		d.sm.Expire(touched)
		metrics.SessionExpirations.Inc()
		return Completion{Index: e.LogIndex, SessionID: cmd.SessionID, Err: apierr.UnknownSession()}
	}
	if tr == session.TouchUnknown {
		return Completion{Index: e.LogIndex, SessionID: cmd.SessionID, Err: apierr.UnknownSession()}
	}
	sess = touched

	if cached, ok := d.registry.GetCached(cmd.SessionID, cmd.RequestNo); ok {
		return Completion{Index: e.LogIndex, SessionID: cmd.SessionID, Value: cached}
	}

	commit := entry.Commit{
		Index:     e.LogIndex,
		Session:   sess,
		Timestamp: cmd.Timestamp,
		Payload:   cmd.Payload,
		Publish:   d.publishFunc(),
	}
	value, err := d.sm.Apply(commit)
	if err != nil {
		return Completion{Index: e.LogIndex, SessionID: cmd.SessionID, Err: apierr.UserErrorOf(err)}
	}

	d.registry.CacheResponse(cmd.SessionID, cmd.RequestNo, value)
	d.registry.TrimResponses(cmd.SessionID, cmd.ResponseAck)
	return Completion{Index: e.LogIndex, SessionID: cmd.SessionID, Value: value}
}

// applyLoggedQuery handles a Query entry that was committed to the log
// rather than dispatched directly through query.Scheduler.ApplyQuery.
// The required version is necessarily already satisfied (last_applied
// was just advanced past this entry's own index), so it always
// executes immediately.
func (d *Dispatcher) applyLoggedQuery(e entry.Entry) Completion {
	q := e.Query
	tr, sess := d.registry.Touch(q.SessionID, e.LogIndex, q.Timestamp)
	if tr == session.TouchExpired {
		d.sm.Expire(sess)
		metrics.SessionExpirations.Inc()
		return Completion{Index: e.LogIndex, SessionID: q.SessionID, Err: apierr.UnknownSession()}
	}
	if tr == session.TouchUnknown {
		return Completion{Index: e.LogIndex, SessionID: q.SessionID, Err: apierr.UnknownSession()}
	}

	commit := entry.Commit{
		Index:     e.LogIndex,
		Session:   sess,
		Timestamp: q.Timestamp,
		Payload:   q.Payload,
		Publish:   d.publishFunc(),
	}
	value, err := d.sm.Apply(commit)
	if err != nil {
		return Completion{Index: e.LogIndex, SessionID: q.SessionID, Err: apierr.UserErrorOf(err)}
	}
	return Completion{Index: e.LogIndex, SessionID: q.SessionID, Value: value}
}

// LastApplied returns the dispatcher's view of the watermark. Safe to
// call from any goroutine; the value is only ever a snapshot.
func (d *Dispatcher) LastApplied() uint64 {
	ch := make(chan uint64, 1)
	d.exec.Execute(func() { ch <- d.lastApplied })
	return <-ch
}

func encodeSessionID(id uint64) []byte {
	return []byte(fmt.Sprintf("%d", id))
}
