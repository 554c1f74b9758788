package session

import (
	"bytes"
	"testing"
	"time"

	"github.com/arekkw/atomix/internal/clock"
	"github.com/arekkw/atomix/internal/transport"
	"github.com/stretchr/testify/require"
)

var transportMember = transport.Member{ID: 9, Address: "localhost:9"}

func TestRegisterAndLookup(t *testing.T) {
	r := NewRegistry(5 * time.Second)
	s := r.Register(1, clock.Time(1000), nil)
	require.Equal(t, uint64(1), s.ID)
	require.Equal(t, Open, s.State)

	found, ok := r.Lookup(1)
	require.True(t, ok)
	require.Same(t, s, found)
}

func TestTouchExpiresOnElapsedLogTime(t *testing.T) {
	r := NewRegistry(5000 * time.Millisecond)
	r.Register(1, clock.Time(1000), nil)

	result, s := r.Touch(1, 2, clock.Time(3000))
	require.Equal(t, TouchOK, result)
	require.Equal(t, clock.Time(3000), s.LastTimestamp)

	result, expired := r.Touch(1, 3, clock.Time(9000))
	require.Equal(t, TouchExpired, result)
	require.Equal(t, Expired, expired.State)

	_, ok := r.Lookup(1)
	require.False(t, ok)
}

func TestTouchUnknownSession(t *testing.T) {
	r := NewRegistry(5 * time.Second)
	result, s := r.Touch(42, 1, clock.Time(0))
	require.Equal(t, TouchUnknown, result)
	require.Nil(t, s)
}

func TestResponseCacheAndTrim(t *testing.T) {
	r := NewRegistry(5 * time.Second)
	r.Register(1, clock.Time(0), nil)

	_, ok := r.GetCached(1, 1)
	require.False(t, ok)

	r.CacheResponse(1, 1, []byte("ok1"))
	r.CacheResponse(1, 2, []byte("ok2"))

	v, ok := r.GetCached(1, 1)
	require.True(t, ok)
	require.Equal(t, []byte("ok1"), v)

	r.TrimResponses(1, 1)
	_, ok = r.GetCached(1, 1)
	require.False(t, ok)
	v, ok = r.GetCached(1, 2)
	require.True(t, ok)
	require.Equal(t, []byte("ok2"), v)
}

func TestExpireAllDue(t *testing.T) {
	r := NewRegistry(1000 * time.Millisecond)
	r.Register(1, clock.Time(0), nil)
	r.Register(2, clock.Time(5000), nil)

	expired := r.ExpireAllDue(clock.Time(5000))
	require.Len(t, expired, 1)
	require.Equal(t, uint64(1), expired[0].ID)

	_, ok := r.Lookup(1)
	require.False(t, ok)
	_, ok = r.Lookup(2)
	require.True(t, ok)
}

func TestSnapshotRoundTrip(t *testing.T) {
	r := NewRegistry(5 * time.Second)
	r.Register(1, clock.Time(10), &transportMember)
	r.CacheResponse(1, 1, []byte("hi"))

	var buf bytes.Buffer
	require.NoError(t, r.Snapshot(&buf))

	restored := NewRegistry(5 * time.Second)
	require.NoError(t, restored.Restore(&buf))

	s, ok := restored.Lookup(1)
	require.True(t, ok)
	require.Equal(t, clock.Time(10), s.LastTimestamp)

	v, ok := restored.GetCached(1, 1)
	require.True(t, ok)
	require.Equal(t, []byte("hi"), v)
}

func TestSynthetic(t *testing.T) {
	s := Synthetic(7, clock.Time(100))
	require.True(t, s.IsSynthetic())
	require.Equal(t, Expired, s.State)
	require.Equal(t, uint64(7), s.ID)
}
