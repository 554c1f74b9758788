package client

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/arekkw/atomix/internal/apierr"
	"github.com/arekkw/atomix/internal/metrics"
	"github.com/arekkw/atomix/internal/notify"
	"github.com/arekkw/atomix/internal/stopper"
	"github.com/arekkw/atomix/internal/transport"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Config holds the client runtime's operational parameters (spec §6).
type Config struct {
	KeepAliveInterval time.Duration
	RequestTimeout    time.Duration
	BackoffMin        time.Duration
	BackoffMax        time.Duration
}

// DefaultConfig returns the parameter defaults named in spec §6.
func DefaultConfig() Config {
	return Config{
		KeepAliveInterval: time.Second,
		RequestTimeout:    10 * time.Second,
		BackoffMin:        100 * time.Millisecond,
		BackoffMax:        5 * time.Second,
	}
}

// Session is the client-side session runtime (component C7). A single
// mutex owns every field that spec §5 calls out as client-context-
// owned (session id, leader, term, version, the active member); public
// methods marshal onto it the same way the grounded Atomix Go client's
// primitive.Session guards its own fields with sync.RWMutex rather
// than an explicit task queue, since there is no user callback here
// that needs serial-executor isolation the way the server side does.
type Session struct {
	tr  transport.Transport
	cfg Config
	log logrus.FieldLogger

	mu        sync.Mutex
	members   []transport.Member
	sessionID uint64
	leader    uint64
	term      uint64
	connID    uint64
	hasConn   bool
	conn      transport.Connection
	open      bool

	version *notify.Var[uint64]

	registerMu   sync.Mutex
	registerOnce *registerCall

	keepAliveMu      sync.Mutex
	keepAliveBusy    bool
	keepAliveStarted bool

	stop *stopper.Context
	rnd  *rand.Rand
}

type registerCall struct {
	done chan struct{}
	err  error
}

// New constructs a Session against an initial, possibly incomplete,
// view of cluster members. It does not register eagerly; the first
// Submit call does (spec §4.8, "if session_id == 0, first run
// register()").
func New(stop *stopper.Context, tr transport.Transport, members []transport.Member, cfg Config, log logrus.FieldLogger) *Session {
	if log == nil {
		log = logrus.StandardLogger()
	}
	s := &Session{
		tr:      tr,
		cfg:     cfg,
		log:     log,
		members: append([]transport.Member(nil), members...),
		open:    true,
		version: notify.New(uint64(0)),
		stop:    stop,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	return s
}

// SessionID returns the currently assigned session id, or 0 if the
// session has never successfully registered.
func (s *Session) SessionID() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// Version returns the highest last_applied watermark observed from
// any server response (spec §4.8.1).
func (s *Session) Version() uint64 {
	v, _ := s.version.Get()
	return v
}

func (s *Session) advanceVersion(v uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, _ := s.version.Get()
	if v > cur {
		s.version.Set(v)
	}
}

// Leader returns the member the session currently believes is leader,
// and whether one is known.
func (s *Session) Leader() (transport.Member, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.leader == 0 {
		return transport.Member{}, false
	}
	for _, m := range s.members {
		if m.ID == s.leader {
			return m, true
		}
	}
	return transport.Member{ID: s.leader}, true
}

// Members returns the session's current view of cluster membership.
func (s *Session) Members() []transport.Member {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]transport.Member(nil), s.members...)
}

// Register establishes a new session, retrying with exponential
// backoff (spec §4.7.1). It is idempotent: concurrent callers share a
// single in-flight attempt.
func (s *Session) Register(ctx context.Context) error {
	s.registerMu.Lock()
	if s.registerOnce != nil {
		call := s.registerOnce
		s.registerMu.Unlock()
		select {
		case <-call.done:
			return call.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	call := &registerCall{done: make(chan struct{})}
	s.registerOnce = call
	s.registerMu.Unlock()

	err := s.registerWithRetry(ctx)
	call.err = err
	close(call.done)

	s.registerMu.Lock()
	if s.registerOnce == call {
		s.registerOnce = nil
	}
	s.registerMu.Unlock()
	return err
}

func (s *Session) registerWithRetry(ctx context.Context) error {
	attempt := 0
	for {
		member, err := s.selectMember(false)
		if err == nil {
			rctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
			resp, rerr := s.tr.Register(rctx, member, &transport.RegisterRequest{})
			cancel()
			if rerr == nil && resp != nil && resp.Status == transport.StatusOK {
				s.applyRegisterResponse(resp)
				s.startKeepAlive()
				metrics.ClientRegistrations.Inc()
				s.log.WithFields(logrus.Fields{
					"session_id": resp.SessionID,
					"leader":     resp.Leader,
				}).Info("client: session registered")
				return nil
			}
			if rerr != nil {
				s.log.WithError(rerr).Debug("client: register attempt failed")
			}
		}

		s.mu.Lock()
		s.leader = 0
		s.mu.Unlock()

		delay := backoff(attempt, s.cfg.BackoffMin, s.cfg.BackoffMax)
		attempt++
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return errors.WithStack(ctx.Err())
		case <-s.stop.Stopping():
			return apierr.Transport(errors.New("client: session closed during registration"))
		}
	}
}

func (s *Session) applyRegisterResponse(resp *transport.RegisterResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionID = resp.SessionID
	s.term = resp.Term
	s.leader = resp.Leader
	if len(resp.Members) > 0 {
		s.members = resp.Members
	}
}

// startKeepAlive launches the periodic keep-alive loop the first time
// a session is established. Re-entrancy is guarded by keepAliveBusy so
// at most one keep-alive RPC is ever in flight (spec §4.7.2).
func (s *Session) startKeepAlive() {
	s.keepAliveMu.Lock()
	started := s.keepAliveStarted
	s.keepAliveStarted = true
	s.keepAliveMu.Unlock()
	if started {
		return
	}
	s.stop.Go(func() error {
		ticker := time.NewTicker(s.cfg.KeepAliveInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.keepAlive()
			case <-s.stop.Stopping():
				return nil
			}
		}
	})
}

func (s *Session) keepAlive() {
	s.keepAliveMu.Lock()
	if s.keepAliveBusy {
		s.keepAliveMu.Unlock()
		return
	}
	s.keepAliveBusy = true
	s.keepAliveMu.Unlock()
	defer func() {
		s.keepAliveMu.Lock()
		s.keepAliveBusy = false
		s.keepAliveMu.Unlock()
	}()

	sessionID := s.SessionID()
	if sessionID == 0 {
		return
	}
	member, err := s.selectMember(true)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.RequestTimeout)
	defer cancel()
	resp, err := s.tr.KeepAlive(ctx, member, &transport.KeepAliveRequest{SessionID: sessionID})
	if err != nil {
		// No corrective action per spec §4.7.2: the next command or
		// query will trigger re-registration if the session is gone.
		s.log.WithError(err).Debug("client: keep-alive failed")
		return
	}
	s.mu.Lock()
	s.term = resp.Term
	s.leader = resp.Leader
	if len(resp.Members) > 0 {
		s.members = resp.Members
	}
	s.mu.Unlock()
	s.advanceVersion(resp.Version)
}

// resetSession clears the session id so the next Submit re-registers
// from scratch, per spec §4.8's UnknownSession handling.
func (s *Session) resetSession() {
	s.mu.Lock()
	s.sessionID = 0
	s.mu.Unlock()
}

// selectMember implements spec §4.7.3: a command, or a leader-
// consistent query, always prefers the known leader; otherwise a
// member is chosen uniformly at random.
func (s *Session) selectMember(requireLeader bool) (transport.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if requireLeader {
		if s.leader != 0 {
			for _, m := range s.members {
				if m.ID == s.leader {
					return m, nil
				}
			}
			return transport.Member{ID: s.leader}, nil
		}
	}
	if len(s.members) == 0 {
		return transport.Member{}, apierr.NoLeader()
	}
	return s.members[s.rnd.Intn(len(s.members))], nil
}

// dial closes the prior connection, if any, before opening a new one
// to member, enforcing spec §4.7.4's "one connection at a time."
func (s *Session) dial(ctx context.Context, member transport.Member) error {
	dialer, ok := s.tr.(transport.Dialer)
	if !ok {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hasConn && s.connID == member.ID {
		return nil
	}
	if s.hasConn && s.conn != nil {
		_ = s.conn.Close()
	}
	conn, err := dialer.Dial(ctx, member)
	if err != nil {
		s.hasConn = false
		return errors.WithStack(err)
	}
	s.conn = conn
	s.connID = member.ID
	s.hasConn = true
	return nil
}

// Close cancels the keep-alive timer and releases the active
// connection. Close is cooperative (spec §5): in-flight RPCs complete
// or time out naturally rather than being forcibly aborted. The open
// flag makes every call after the first a no-op, so Close never
// re-enters itself.
func (s *Session) Close(grace time.Duration) error {
	s.mu.Lock()
	if !s.open {
		s.mu.Unlock()
		return nil
	}
	s.open = false
	conn := s.conn
	s.conn = nil
	s.hasConn = false
	s.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	return s.stop.Stop(grace)
}

// IsOpen reports whether Close has been called.
func (s *Session) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}
