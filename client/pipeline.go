package client

import (
	"context"
	"sync"
	"time"

	"github.com/arekkw/atomix/internal/apierr"
	"github.com/arekkw/atomix/internal/metrics"
	"github.com/arekkw/atomix/internal/transport"
)

// pauseBeforeRetry paces a retry loop using the same backoff bounds
// registration uses (spec §6's backoff_min/backoff_max), so a
// persistently unreachable cluster degrades to a slow poll instead of
// a tight spin. It returns early if ctx is done first.
func pauseBeforeRetry(ctx context.Context, s *Session, attempt int) {
	delay := backoff(attempt, s.cfg.BackoffMin, s.cfg.BackoffMax)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// Pipeline is the client request pipeline (component C8): it assigns
// monotonic request ids to commands, retries according to spec §7's
// classification, and maintains the request/response/version
// watermarks described in spec §4.8.1.
type Pipeline struct {
	session *Session

	mu       sync.Mutex
	request  uint64
	response uint64
}

// NewPipeline binds a Pipeline to session. A Session may be shared by
// multiple primitives, each with its own Pipeline instance, since the
// request/response counters are per logical caller, not per
// connection.
func NewPipeline(session *Session) *Pipeline {
	return &Pipeline{session: session}
}

// Submit sends a command, retrying per spec §7 until it succeeds or a
// non-retryable error is returned. A request_no is assigned once per
// logical call and held fixed across Timeout/NoLeader/Transport
// retries, since those retries may be racing a response that was lost
// after the server already applied the command: resubmitting under
// the same request_no lets the server's response cache answer from
// the cache instead of applying the command a second time. Only
// StatusUnknownSession abandons the request_no — the server has no
// cache to hit once the session itself is gone — and starts over with
// a freshly registered session and a new request_no.
func (p *Pipeline) Submit(ctx context.Context, payload []byte) ([]byte, error) {
	for {
		if p.session.SessionID() == 0 {
			if err := p.session.Register(ctx); err != nil {
				return nil, err
			}
		}

		p.mu.Lock()
		p.request++
		reqNo := p.request
		ack := p.response
		p.mu.Unlock()

		result, restart, err := p.submitOnce(ctx, payload, reqNo, ack)
		if restart {
			continue
		}
		return result, err
	}
}

// submitOnce drives a single request_no through transport-level and
// status-level retries until it either succeeds, fails permanently, or
// the session is declared gone, in which case restart is true and the
// caller assigns a fresh request_no.
func (p *Pipeline) submitOnce(ctx context.Context, payload []byte, reqNo, ack uint64) (result []byte, restart bool, err error) {
	attempt := 0
	for {
		sessionID := p.session.SessionID()
		member, err := p.session.selectMember(true)
		if err != nil {
			metrics.ClientRetries.WithLabelValues("no_leader").Inc()
			pauseBeforeRetry(ctx, p.session, attempt)
			attempt++
			continue
		}

		rctx, cancel := context.WithTimeout(ctx, p.session.cfg.RequestTimeout)
		if derr := p.session.dial(rctx, member); derr != nil {
			cancel()
			continue
		}
		resp, err := p.session.tr.Command(rctx, member, &transport.CommandRequest{
			SessionID:   sessionID,
			RequestNo:   reqNo,
			ResponseAck: ack,
			Payload:     payload,
		})
		cancel()

		if err != nil {
			metrics.ClientRetries.WithLabelValues("transport").Inc()
			p.session.mu.Lock()
			p.session.leader = 0
			p.session.mu.Unlock()
			select {
			case <-ctx.Done():
				return nil, false, apierr.Timeout(ctx.Err())
			default:
			}
			pauseBeforeRetry(ctx, p.session, attempt)
			attempt++
			continue
		}

		switch resp.Status {
		case transport.StatusOK:
			p.mu.Lock()
			if reqNo > p.response {
				p.response = reqNo
			}
			p.mu.Unlock()
			p.session.advanceVersion(resp.Version)
			return resp.Result, false, nil

		case transport.StatusUnknownSession:
			metrics.ClientRetries.WithLabelValues("unknown_session").Inc()
			p.session.resetSession()
			p.mu.Lock()
			p.request = 0
			p.response = 0
			p.mu.Unlock()
			if err := p.session.Register(ctx); err != nil {
				return nil, false, err
			}
			return nil, true, nil

		case transport.StatusTimeout, transport.StatusNoLeader, transport.StatusTransport:
			metrics.ClientRetries.WithLabelValues(resp.Status.String()).Inc()
			if resp.Status == transport.StatusNoLeader {
				p.session.mu.Lock()
				p.session.leader = 0
				p.session.mu.Unlock()
			}
			pauseBeforeRetry(ctx, p.session, attempt)
			attempt++
			continue

		case transport.StatusProtocolViolation:
			return nil, false, apierr.ProtocolViolation(resp.Error)

		default:
			return nil, false, apierr.UserErrorOf(errString(resp.Error))
		}
	}
}

// Query sends a non-mutating read. Queries carry no request/response
// watermark (they are not deduplicated) and may be freely re-issued;
// on UnknownSession the caller re-registers and retries exactly like a
// command, but always starting a fresh attempt rather than reusing a
// request number, since queries never had one.
func (p *Pipeline) Query(ctx context.Context, payload []byte, requireLeader bool) ([]byte, error) {
	attempt := 0
	for {
		sessionID := p.session.SessionID()
		if sessionID == 0 {
			if err := p.session.Register(ctx); err != nil {
				return nil, err
			}
			sessionID = p.session.SessionID()
		}

		member, err := p.session.selectMember(requireLeader)
		if err != nil {
			pauseBeforeRetry(ctx, p.session, attempt)
			attempt++
			continue
		}

		rctx, cancel := context.WithTimeout(ctx, p.session.cfg.RequestTimeout)
		if derr := p.session.dial(rctx, member); derr != nil {
			cancel()
			continue
		}
		resp, err := p.session.tr.Query(rctx, member, &transport.QueryRequest{
			SessionID: sessionID,
			Version:   p.session.Version(),
			Payload:   payload,
		})
		cancel()

		if err != nil {
			select {
			case <-ctx.Done():
				return nil, apierr.Timeout(ctx.Err())
			default:
			}
			pauseBeforeRetry(ctx, p.session, attempt)
			attempt++
			continue
		}

		switch resp.Status {
		case transport.StatusOK:
			p.session.advanceVersion(resp.Version)
			return resp.Result, nil
		case transport.StatusUnknownSession:
			p.session.resetSession()
			if err := p.session.Register(ctx); err != nil {
				return nil, err
			}
			continue
		case transport.StatusTimeout, transport.StatusNoLeader, transport.StatusTransport:
			if resp.Status == transport.StatusNoLeader {
				p.session.mu.Lock()
				p.session.leader = 0
				p.session.mu.Unlock()
			}
			pauseBeforeRetry(ctx, p.session, attempt)
			attempt++
			continue
		case transport.StatusProtocolViolation:
			return nil, apierr.ProtocolViolation(resp.Error)
		default:
			return nil, apierr.UserErrorOf(errString(resp.Error))
		}
	}
}

// RequestNo returns the highest request number this pipeline has
// assigned, for diagnostics and tests.
func (p *Pipeline) RequestNo() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.request
}

// ResponseAck returns the highest request number acknowledged to the
// server so far.
func (p *Pipeline) ResponseAck() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.response
}

type errString string

func (e errString) Error() string { return string(e) }
