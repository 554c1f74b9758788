package dispatch

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/arekkw/atomix/internal/apierr"
	"github.com/arekkw/atomix/internal/clock"
	"github.com/arekkw/atomix/internal/entry"
	"github.com/arekkw/atomix/internal/publish"
	"github.com/arekkw/atomix/internal/query"
	"github.com/arekkw/atomix/internal/session"
	"github.com/arekkw/atomix/internal/statemachine"
	"github.com/arekkw/atomix/internal/stopper"
	"github.com/stretchr/testify/require"
)

type kvStateMachine struct {
	applyCount  int
	expireCount int
	store       map[string]string
}

func newKVStateMachine() *kvStateMachine { return &kvStateMachine{store: make(map[string]string)} }

func (k *kvStateMachine) Register(*session.Session) {}
func (k *kvStateMachine) Expire(*session.Session)   { k.expireCount++ }
func (k *kvStateMachine) Apply(commit entry.Commit) ([]byte, error) {
	k.applyCount++
	return []byte("ok"), nil
}
func (k *kvStateMachine) Filter(entry.Commit, statemachine.CompactionContext) bool { return true }
func (k *kvStateMachine) Snapshot(io.Writer) error                                 { return nil }
func (k *kvStateMachine) Restore(io.Reader) error                                  { return nil }

func newTestDispatcher(t *testing.T, timeout time.Duration) (*Dispatcher, func()) {
	t.Helper()
	stop := stopper.WithContext(context.Background())
	exec := statemachine.NewExecutor(stop, 0)
	registry := session.NewRegistry(timeout)
	sm := newKVStateMachine()
	sched := query.NewScheduler(exec, registry, sm, nil)
	pub := publish.New(nil)
	d := New(registry, exec, sm, sched, pub, nil)
	return d, func() { stop.Stop(time.Second) }
}

func TestBasicCommandAndReplayWithoutReapply(t *testing.T) {
	d, cleanup := newTestDispatcher(t, 5*time.Second)
	defer cleanup()

	reg := d.Apply(entry.NewRegister(1, clock.Time(0), nil))
	require.NoError(t, reg.Err)
	require.Equal(t, uint64(1), reg.SessionID)

	cmd := entry.NewCommand(2, 1, 1, 0, clock.Time(0), []byte("SET x=5"))
	first := d.Apply(cmd)
	require.NoError(t, first.Err)
	require.Equal(t, []byte("ok"), first.Value)
	require.Equal(t, uint64(2), d.LastApplied())

	sm := d.sm.(*kvStateMachine)
	require.Equal(t, 1, sm.applyCount)

	second := d.Apply(entry.NewCommand(3, 1, 1, 0, clock.Time(0), []byte("SET x=5")))
	require.NoError(t, second.Err)
	require.Equal(t, first.Value, second.Value)
	require.Equal(t, 1, sm.applyCount, "replayed request_no must not re-invoke apply")
}

func TestSessionExpiryByElapsedLogTime(t *testing.T) {
	d, cleanup := newTestDispatcher(t, 5*time.Second)
	defer cleanup()

	reg := d.Apply(entry.NewRegister(1, clock.Time(1000), nil))
	require.NoError(t, reg.Err)

	noop := d.Apply(entry.NewNoOp(2))
	require.NoError(t, noop.Err)
	_ = noop

	// Advance log-derived time past session_timeout via a timestamped
	// entry; ExpireAllDue runs on every entry that carries a timestamp,
	// which the NoOp above does not.
	expired := d.Apply(entry.NewKeepAlive(3, 1, clock.Time(7000)))
	require.Error(t, expired.Err)
	require.True(t, apierr.Is(expired.Err, apierr.KindUnknownSession))

	sm := d.sm.(*kvStateMachine)
	require.Equal(t, 1, sm.expireCount)

	again := d.Apply(entry.NewKeepAlive(4, 1, clock.Time(7100)))
	require.Error(t, again.Err)
	require.Equal(t, 1, sm.expireCount, "expire must fire exactly once")
}

func TestUnknownSessionOnCommand(t *testing.T) {
	d, cleanup := newTestDispatcher(t, 5*time.Second)
	defer cleanup()

	resp := d.Apply(entry.NewCommand(1, 999, 1, 0, clock.Time(0), nil))
	require.Error(t, resp.Err)
	require.True(t, apierr.Is(resp.Err, apierr.KindUnknownSession))
}

func TestProtocolViolationOnUnknownKind(t *testing.T) {
	d, cleanup := newTestDispatcher(t, 5*time.Second)
	defer cleanup()

	bad := entry.Entry{Kind: entry.Kind(99), LogIndex: 1}
	resp := d.Apply(bad)
	require.Error(t, resp.Err)
	require.True(t, apierr.Is(resp.Err, apierr.KindProtocolViolation))
	require.Equal(t, uint64(0), d.LastApplied(), "unrecognized tag must not advance last_applied")
}

func TestNoOpAdvancesLastApplied(t *testing.T) {
	d, cleanup := newTestDispatcher(t, 5*time.Second)
	defer cleanup()

	resp := d.Apply(entry.NewNoOp(5))
	require.NoError(t, resp.Err)
	require.Equal(t, uint64(5), d.LastApplied())
}
