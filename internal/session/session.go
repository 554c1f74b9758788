// Package session implements the session registry (component C1): it
// tracks live sessions, their last observed activity, and their cached
// command responses. It is owned exclusively by the state-machine
// executor's single logical thread of execution and is never touched
// from another goroutine, mirroring the teacher's rule that
// internal/util/notify.Var and friends are only ever mutated from the
// loop that owns them.
package session

import (
	"io"
	"time"

	"github.com/arekkw/atomix/internal/clock"
	"github.com/arekkw/atomix/internal/transport"
)

// State is the lifecycle state of a Session.
type State int

const (
	Open State = iota
	Expired
	Closed
)

func (s State) String() string {
	switch s {
	case Open:
		return "Open"
	case Expired:
		return "Expired"
	case Closed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// Session is a logical client identity established by a Register entry
// and kept alive by KeepAlive entries.
type Session struct {
	ID            uint64
	Member        *transport.Member
	LastIndex     uint64
	LastTimestamp clock.Time
	State         State

	responses map[uint64][]byte

	// synthetic marks a Session manufactured by the compaction filter
	// to stand in for one that no longer exists in the registry. It is
	// never inserted into a Registry's session map.
	synthetic bool
}

// Synthetic constructs a short-lived, already-Expired Session so the
// compaction filter can still invoke the user state machine's Filter
// callback for a Command whose session has already been removed.
func Synthetic(id uint64, ts clock.Time) *Session {
	return &Session{
		ID:            id,
		LastTimestamp: ts,
		State:         Expired,
		synthetic:     true,
	}
}

// IsSynthetic reports whether this Session was manufactured by
// Synthetic rather than created by a real Register entry.
func (s *Session) IsSynthetic() bool { return s.synthetic }

// TouchResult describes the outcome of Registry.Touch.
type TouchResult int

const (
	// TouchOK means the session was found, open, and its activity was
	// refreshed.
	TouchOK TouchResult = iota
	// TouchExpired means the session's idle timeout elapsed as of this
	// touch; the session has been removed from the registry.
	TouchExpired
	// TouchUnknown means no open session exists under that id.
	TouchUnknown
)

// Registry tracks every live Session. It has no internal locking: the
// state-machine executor (component C3) is the sole caller, on its
// single logical thread, by design (spec §5).
type Registry struct {
	timeout  time.Duration
	sessions map[uint64]*Session
}

// NewRegistry creates an empty registry that expires sessions after
// timeout of log-derived idle time.
func NewRegistry(timeout time.Duration) *Registry {
	return &Registry{
		timeout:  timeout,
		sessions: make(map[uint64]*Session),
	}
}

// Register creates a new Open session keyed by index (the log index of
// the Register entry that created it) and returns it.
func (r *Registry) Register(index uint64, ts clock.Time, member *transport.Member) *Session {
	s := &Session{
		ID:            index,
		Member:        member,
		LastIndex:     index,
		LastTimestamp: ts,
		State:         Open,
		responses:     make(map[uint64][]byte),
	}
	r.sessions[index] = s
	return s
}

// Touch refreshes a session's last-activity watermark, or expires it
// if too much log-derived time has elapsed since its last activity.
func (r *Registry) Touch(id uint64, index uint64, ts clock.Time) (TouchResult, *Session) {
	s, ok := r.sessions[id]
	if !ok || s.State != Open {
		return TouchUnknown, nil
	}
	if ts.Sub(s.LastTimestamp) > r.timeout {
		s.State = Expired
		delete(r.sessions, id)
		return TouchExpired, s
	}
	if ts.After(s.LastTimestamp) {
		s.LastTimestamp = ts
	}
	s.LastIndex = index
	return TouchOK, s
}

// Lookup returns the session for id, if it is still open.
func (r *Registry) Lookup(id uint64) (*Session, bool) {
	s, ok := r.sessions[id]
	if !ok || s.State != Open {
		return nil, false
	}
	return s, true
}

// CacheResponse records the result of applying request_no so a
// duplicate command never re-invokes the user state machine.
func (r *Registry) CacheResponse(id uint64, requestNo uint64, value []byte) {
	s, ok := r.sessions[id]
	if !ok {
		return
	}
	s.responses[requestNo] = value
}

// GetCached returns the cached result for request_no, if any.
func (r *Registry) GetCached(id uint64, requestNo uint64) ([]byte, bool) {
	s, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	v, ok := s.responses[requestNo]
	return v, ok
}

// TrimResponses drops cached responses at or below ack, per the
// client's response watermark (spec §4.8.1).
func (r *Registry) TrimResponses(id uint64, ack uint64) {
	s, ok := r.sessions[id]
	if !ok {
		return
	}
	for reqNo := range s.responses {
		if reqNo <= ack {
			delete(s.responses, reqNo)
		}
	}
}

// ExpireAllDue expires every session whose idle timeout has elapsed as
// of ts. The dispatcher calls it on every entry that carries a
// timestamp (NoOp entries carry none), regardless of which session, if
// any, the entry names.
func (r *Registry) ExpireAllDue(ts clock.Time) []*Session {
	var expired []*Session
	for id, s := range r.sessions {
		if s.State != Open {
			continue
		}
		if ts.Sub(s.LastTimestamp) > r.timeout {
			s.State = Expired
			expired = append(expired, s)
			delete(r.sessions, id)
		}
	}
	return expired
}

// Remove deletes a session outright, without marking it Expired.
func (r *Registry) Remove(id uint64) {
	delete(r.sessions, id)
}

// Len returns the number of currently open sessions.
func (r *Registry) Len() int { return len(r.sessions) }

// snapshotEntry is the on-disk shape of one Session for Snapshot/Restore.
type snapshotEntry struct {
	ID            uint64
	MemberID      uint64
	MemberAddress string
	HasMember     bool
	LastIndex     uint64
	LastTimestamp clock.Time
	Responses     map[uint64][]byte
}

// Snapshot serializes every open session, in support of the
// supplemented snapshot/restore pair described in SPEC_FULL.md §4.
func (r *Registry) Snapshot(w io.Writer) error {
	return encodeSnapshot(w, r.sessions)
}

// Restore replaces the registry's contents with a previously written
// snapshot. It is only safe to call before the registry is driven by
// live entries.
func (r *Registry) Restore(rd io.Reader) error {
	sessions, err := decodeSnapshot(rd)
	if err != nil {
		return err
	}
	r.sessions = sessions
	return nil
}
