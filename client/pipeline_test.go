package client

import (
	"context"
	"testing"
	"time"

	"github.com/arekkw/atomix/internal/apierr"
	"github.com/arekkw/atomix/internal/stopper"
	"github.com/arekkw/atomix/internal/transport"
	"github.com/stretchr/testify/require"
)

func TestSubmitAssignsMonotonicRequestNumbers(t *testing.T) {
	members := []transport.Member{{ID: 1, Address: "a"}}
	tr := newFakeTransport(members)
	stop := stopper.WithContext(context.Background())
	defer stop.Stop(time.Second)

	s := New(stop, tr, members, testConfig(), nil)
	p := NewPipeline(s)

	res, err := p.Submit(context.Background(), []byte("SET x=1"))
	require.NoError(t, err)
	require.Equal(t, []byte("SET x=1"), res)
	require.Equal(t, uint64(1), p.RequestNo())

	res2, err := p.Submit(context.Background(), []byte("SET x=2"))
	require.NoError(t, err)
	require.Equal(t, []byte("SET x=2"), res2)
	require.Equal(t, uint64(2), p.RequestNo())
}

func TestSubmitRetriesOnTransportError(t *testing.T) {
	members := []transport.Member{{ID: 1, Address: "a"}}
	tr := newFakeTransport(members)
	tr.commandErr = apierr.Transport(nil)
	tr.failUntil = 1
	stop := stopper.WithContext(context.Background())
	defer stop.Stop(time.Second)

	s := New(stop, tr, members, testConfig(), nil)
	p := NewPipeline(s)

	res, err := p.Submit(context.Background(), []byte("payload"))
	require.NoError(t, err)
	require.Equal(t, []byte("payload"), res)
}

func TestSubmitRetriesLostResponseWithSameRequestNo(t *testing.T) {
	members := []transport.Member{{ID: 1, Address: "a"}}
	tr := newFakeTransport(members)
	tr.dropResponseUntil = 1
	stop := stopper.WithContext(context.Background())
	defer stop.Stop(time.Second)

	s := New(stop, tr, members, testConfig(), nil)
	p := NewPipeline(s)

	res, err := p.Submit(context.Background(), []byte("SET x=1"))
	require.NoError(t, err)
	require.Equal(t, []byte("SET x=1"), res)
	require.Equal(t, uint64(1), p.RequestNo())
	require.Equal(t, 1, tr.applyCounts[s.SessionID()][1],
		"a retried request_no must be applied at most once server-side")
}

func TestSubmitReregistersOnUnknownSession(t *testing.T) {
	members := []transport.Member{{ID: 1, Address: "a"}}
	tr := newFakeTransport(members)
	stop := stopper.WithContext(context.Background())
	defer stop.Stop(time.Second)

	s := New(stop, tr, members, testConfig(), nil)
	p := NewPipeline(s)

	_, err := p.Submit(context.Background(), []byte("first"))
	require.NoError(t, err)
	oldSession := s.SessionID()

	tr.expire(oldSession)

	res, err := p.Submit(context.Background(), []byte("second"))
	require.NoError(t, err)
	require.Equal(t, []byte("second"), res)
	require.NotEqual(t, oldSession, s.SessionID())
	// request numbering restarts under the new session.
	require.Equal(t, uint64(1), p.RequestNo())
}

func TestQueryDoesNotAdvanceRequestWatermark(t *testing.T) {
	members := []transport.Member{{ID: 1, Address: "a"}}
	tr := newFakeTransport(members)
	stop := stopper.WithContext(context.Background())
	defer stop.Stop(time.Second)

	s := New(stop, tr, members, testConfig(), nil)
	p := NewPipeline(s)

	res, err := p.Query(context.Background(), []byte("GET x"), true)
	require.NoError(t, err)
	require.Equal(t, []byte("read"), res)
	require.Equal(t, uint64(0), p.RequestNo())
}
