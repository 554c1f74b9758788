package client

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/arekkw/atomix/internal/stopper"
	"github.com/arekkw/atomix/internal/transport"
	"github.com/stretchr/testify/require"
)

// fakeTransport is an in-memory transport.Transport used to drive the
// client runtime without a real RPC stack, in the spirit of the
// teacher's internal/sinktest fixtures (small in-memory fakes rather
// than a mocking framework).
type fakeTransport struct {
	mu sync.Mutex

	nextSession  uint64
	leader       uint64
	term         uint64
	members      []transport.Member
	lastApplied  uint64
	sessions     map[uint64]bool
	requestSeen  map[uint64]map[uint64][]byte
	applyCounts  map[uint64]map[uint64]int
	registerErr  error
	commandErr   error
	commandCount int32
	failUntil    int

	// dropResponseUntil simulates a response lost in transit *after*
	// the command was already applied server-side: the first N
	// Command calls mutate requestSeen/applyCounts exactly as a
	// successful call would, but return an error instead of the
	// response, so a caller must resubmit to learn the outcome.
	dropResponseUntil int
}

func newFakeTransport(members []transport.Member) *fakeTransport {
	return &fakeTransport{
		leader:      members[0].ID,
		members:     members,
		sessions:    make(map[uint64]bool),
		requestSeen: make(map[uint64]map[uint64][]byte),
		applyCounts: make(map[uint64]map[uint64]int),
	}
}

func (f *fakeTransport) Register(ctx context.Context, member transport.Member, req *transport.RegisterRequest) (*transport.RegisterResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.registerErr != nil {
		return nil, f.registerErr
	}
	f.nextSession++
	id := f.nextSession
	f.sessions[id] = true
	f.requestSeen[id] = make(map[uint64][]byte)
	return &transport.RegisterResponse{
		Status:    transport.StatusOK,
		Term:      f.term,
		Leader:    f.leader,
		SessionID: id,
		Members:   f.members,
	}, nil
}

func (f *fakeTransport) KeepAlive(ctx context.Context, member transport.Member, req *transport.KeepAliveRequest) (*transport.KeepAliveResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.sessions[req.SessionID] {
		return &transport.KeepAliveResponse{Status: transport.StatusUnknownSession}, nil
	}
	f.lastApplied++
	return &transport.KeepAliveResponse{
		Status:  transport.StatusOK,
		Term:    f.term,
		Leader:  f.leader,
		Version: f.lastApplied,
		Members: f.members,
	}, nil
}

func (f *fakeTransport) Command(ctx context.Context, member transport.Member, req *transport.CommandRequest) (*transport.CommandResponse, error) {
	n := atomic.AddInt32(&f.commandCount, 1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.commandErr != nil && int(n) <= f.failUntil {
		return nil, f.commandErr
	}
	if !f.sessions[req.SessionID] {
		return &transport.CommandResponse{Status: transport.StatusUnknownSession}, nil
	}
	dropResponse := int(n) <= f.dropResponseUntil
	cache := f.requestSeen[req.SessionID]
	if v, ok := cache[req.RequestNo]; ok {
		f.lastApplied++
		if dropResponse {
			return nil, errString("simulated lost response")
		}
		return &transport.CommandResponse{Status: transport.StatusOK, Result: v, Version: f.lastApplied}, nil
	}
	counts := f.applyCounts[req.SessionID]
	if counts == nil {
		counts = make(map[uint64]int)
		f.applyCounts[req.SessionID] = counts
	}
	counts[req.RequestNo]++
	result := append([]byte(nil), req.Payload...)
	cache[req.RequestNo] = result
	for reqNo := range cache {
		if reqNo <= req.ResponseAck {
			delete(cache, reqNo)
		}
	}
	f.lastApplied++
	if dropResponse {
		return nil, errString("simulated lost response")
	}
	return &transport.CommandResponse{Status: transport.StatusOK, Result: result, Version: f.lastApplied}, nil
}

func (f *fakeTransport) Query(ctx context.Context, member transport.Member, req *transport.QueryRequest) (*transport.QueryResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.sessions[req.SessionID] {
		return &transport.QueryResponse{Status: transport.StatusUnknownSession}, nil
	}
	return &transport.QueryResponse{Status: transport.StatusOK, Result: []byte("read"), Version: f.lastApplied}, nil
}

func (f *fakeTransport) expire(sessionID uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, sessionID)
}

func testConfig() Config {
	return Config{
		KeepAliveInterval: 10 * time.Millisecond,
		RequestTimeout:    time.Second,
		BackoffMin:        time.Millisecond,
		BackoffMax:        10 * time.Millisecond,
	}
}

func TestRegisterAdoptsResponse(t *testing.T) {
	members := []transport.Member{{ID: 1, Address: "a"}, {ID: 2, Address: "b"}}
	tr := newFakeTransport(members)
	stop := stopper.WithContext(context.Background())
	defer stop.Stop(time.Second)

	s := New(stop, tr, members, testConfig(), nil)
	require.NoError(t, s.Register(context.Background()))
	require.Equal(t, uint64(1), s.SessionID())
	leader, ok := s.Leader()
	require.True(t, ok)
	require.Equal(t, uint64(1), leader.ID)
}

func TestRegisterIsIdempotentUnderConcurrency(t *testing.T) {
	members := []transport.Member{{ID: 1, Address: "a"}}
	tr := newFakeTransport(members)
	stop := stopper.WithContext(context.Background())
	defer stop.Stop(time.Second)

	s := New(stop, tr, members, testConfig(), nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, s.Register(context.Background()))
		}()
	}
	wg.Wait()
	require.Equal(t, uint64(1), tr.nextSession, "only one session should have been created")
}

func TestKeepAliveUpdatesVersion(t *testing.T) {
	members := []transport.Member{{ID: 1, Address: "a"}}
	tr := newFakeTransport(members)
	stop := stopper.WithContext(context.Background())
	defer stop.Stop(time.Second)

	s := New(stop, tr, members, testConfig(), nil)
	require.NoError(t, s.Register(context.Background()))

	require.Eventually(t, func() bool {
		return s.Version() > 0
	}, time.Second, 5*time.Millisecond)
}
