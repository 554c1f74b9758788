// Package query implements the query scheduler (component C4): it
// defers a query whose required version has not yet been applied, and
// fires every query parked against a version as soon as last_applied
// reaches it. Queries that unblock together fire lowest required
// version first, and in insertion order within one version.
package query

import (
	"sort"
	"sync"

	"github.com/arekkw/atomix/internal/apierr"
	"github.com/arekkw/atomix/internal/clock"
	"github.com/arekkw/atomix/internal/entry"
	"github.com/arekkw/atomix/internal/metrics"
	"github.com/arekkw/atomix/internal/session"
	"github.com/arekkw/atomix/internal/statemachine"
)

// Result is delivered on the channel ApplyQuery returns.
type Result struct {
	Value []byte
	Err   error
}

type pendingItem struct {
	version uint64
	seq     uint64
	work    func()
}

// Scheduler parks queries until the server's last_applied watermark
// reaches their required version.
//
// SetLastApplied MUST be called from the same executor thread that
// runs Dispatcher.Apply, since it invokes the unblocked queries'
// work directly rather than re-posting to the executor — re-posting
// would deadlock a caller that is itself blocked inside
// Executor.Execute waiting for the outer entry-apply task to finish.
type Scheduler struct {
	exec      *statemachine.Executor
	registry  *session.Registry
	sm        statemachine.StateMachine
	publish   func(sessionID uint64, payload []byte)

	mu          sync.Mutex
	lastApplied uint64
	nextSeq     uint64
	pending     map[uint64][]pendingItem
}

// NewScheduler constructs a Scheduler bound to the given registry and
// state machine, driven through exec.
func NewScheduler(exec *statemachine.Executor, registry *session.Registry, sm statemachine.StateMachine, publish func(sessionID uint64, payload []byte)) *Scheduler {
	return &Scheduler{
		exec:     exec,
		registry: registry,
		sm:       sm,
		publish:  publish,
		pending:  make(map[uint64][]pendingItem),
	}
}

// SetLastApplied advances the scheduler's view of last_applied and
// fires every query parked at or below it, lowest required version
// first, preserving insertion order among queries that share a
// version (spec §4.4's tie-break rule).
func (s *Scheduler) SetLastApplied(index uint64) {
	s.mu.Lock()
	s.lastApplied = index
	var due []pendingItem
	var versions []uint64
	for v := range s.pending {
		if v <= index {
			versions = append(versions, v)
		}
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i] < versions[j] })
	for _, v := range versions {
		due = append(due, s.pending[v]...)
		delete(s.pending, v)
	}
	metrics.QueriesParked.Set(float64(s.pendingCountLocked()))
	s.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool {
		if due[i].version != due[j].version {
			return due[i].version < due[j].version
		}
		return due[i].seq < due[j].seq
	})
	for _, item := range due {
		item.work()
	}
}

// LastApplied returns the scheduler's current view of last_applied.
func (s *Scheduler) LastApplied() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastApplied
}

// ApplyQuery executes, or parks, a query. It may be called from any
// goroutine (this is precisely why the Scheduler exists: queries may
// bypass the log and arrive concurrently with log-driven entries).
func (s *Scheduler) ApplyQuery(index uint64, sessionID uint64, ts clock.Time, requiredVersion uint64, payload []byte) <-chan Result {
	resultCh := make(chan Result, 1)
	work := func() {
		tr, sess := s.registry.Touch(sessionID, index, ts)
		if tr == session.TouchExpired {
			s.sm.Expire(sess)
		}
		if tr != session.TouchOK {
			resultCh <- Result{Err: apierr.UnknownSession()}
			close(resultCh)
			return
		}
		commit := entry.Commit{
			Index:     index,
			Session:   sess,
			Timestamp: ts,
			Payload:   payload,
			Publish:   s.publish,
		}
		val, err := s.sm.Apply(commit)
		if err != nil {
			resultCh <- Result{Err: apierr.UserErrorOf(err)}
			close(resultCh)
			return
		}
		resultCh <- Result{Value: val}
		close(resultCh)
	}

	s.mu.Lock()
	if requiredVersion > s.lastApplied {
		s.nextSeq++
		s.pending[requiredVersion] = append(s.pending[requiredVersion], pendingItem{
			version: requiredVersion,
			seq:     s.nextSeq,
			work:    work,
		})
		metrics.QueriesParked.Set(float64(s.pendingCountLocked()))
		s.mu.Unlock()
		return resultCh
	}
	s.mu.Unlock()
	s.exec.Post(work)
	return resultCh
}

// PendingCount reports how many queries are currently parked, for
// diagnostics and tests.
func (s *Scheduler) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingCountLocked()
}

func (s *Scheduler) pendingCountLocked() int {
	n := 0
	for _, items := range s.pending {
		n += len(items)
	}
	return n
}
