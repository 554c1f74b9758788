package query

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/arekkw/atomix/internal/clock"
	"github.com/arekkw/atomix/internal/entry"
	"github.com/arekkw/atomix/internal/session"
	"github.com/arekkw/atomix/internal/statemachine"
	"github.com/arekkw/atomix/internal/stopper"
	"github.com/stretchr/testify/require"
)

type recordingSM struct {
	mu    sync.Mutex
	order []string
}

func (r *recordingSM) Register(*session.Session) {}
func (r *recordingSM) Expire(*session.Session)   {}
func (r *recordingSM) Apply(commit entry.Commit) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = append(r.order, string(commit.Payload))
	return commit.Payload, nil
}
func (r *recordingSM) Filter(entry.Commit, statemachine.CompactionContext) bool { return true }
func (r *recordingSM) Snapshot(io.Writer) error                                 { return nil }
func (r *recordingSM) Restore(io.Reader) error                                  { return nil }

func newTestScheduler(t *testing.T) (*Scheduler, *session.Registry, *recordingSM, func()) {
	t.Helper()
	stop := stopper.WithContext(context.Background())
	exec := statemachine.NewExecutor(stop, 0)
	registry := session.NewRegistry(5 * time.Second)
	registry.Register(1, clock.Time(0), nil)
	sm := &recordingSM{}
	sched := NewScheduler(exec, registry, sm, nil)
	return sched, registry, sm, func() { stop.Stop(time.Second) }
}

func TestQueryExecutesImmediatelyWhenVersionSatisfied(t *testing.T) {
	sched, _, _, cleanup := newTestScheduler(t)
	defer cleanup()

	sched.SetLastApplied(8)
	ch := sched.ApplyQuery(8, 1, clock.Time(0), 8, []byte("now"))
	select {
	case res := <-ch:
		require.NoError(t, res.Err)
		require.Equal(t, []byte("now"), res.Value)
	case <-time.After(time.Second):
		t.Fatal("query never completed")
	}
}

func TestQueryParksUntilVersionReached(t *testing.T) {
	sched, _, sm, cleanup := newTestScheduler(t)
	defer cleanup()

	sched.SetLastApplied(8)
	ch := sched.ApplyQuery(8, 1, clock.Time(0), 10, []byte("parked"))

	require.Equal(t, 1, sched.PendingCount())

	sched.SetLastApplied(9)
	select {
	case <-ch:
		t.Fatal("query fired before its required version was reached")
	case <-time.After(50 * time.Millisecond):
	}

	sched.SetLastApplied(10)
	select {
	case res := <-ch:
		require.NoError(t, res.Err)
		require.Equal(t, []byte("parked"), res.Value)
	case <-time.After(time.Second):
		t.Fatal("query never fired after reaching its required version")
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()
	require.Equal(t, []string{"parked"}, sm.order)
}

func TestQueriesFireInsertionOrderWithinSameVersion(t *testing.T) {
	sched, _, sm, cleanup := newTestScheduler(t)
	defer cleanup()

	sched.SetLastApplied(5)
	ch1 := sched.ApplyQuery(5, 1, clock.Time(0), 10, []byte("first"))
	ch2 := sched.ApplyQuery(5, 1, clock.Time(0), 10, []byte("second"))

	sched.SetLastApplied(10)
	<-ch1
	<-ch2

	sm.mu.Lock()
	defer sm.mu.Unlock()
	require.Equal(t, []string{"first", "second"}, sm.order)
}

func TestQueryOnUnknownSessionFails(t *testing.T) {
	sched, _, _, cleanup := newTestScheduler(t)
	defer cleanup()

	ch := sched.ApplyQuery(1, 999, clock.Time(0), 0, nil)
	res := <-ch
	require.Error(t, res.Err)
}
