// Package publish implements the event publisher (component C6): a
// best-effort fan-out of state-machine-originated messages to whichever
// client session subscribes to them. Delivery is never guaranteed;
// per spec §4.6, clients rely on their session's version watermark to
// detect and recover from missed events.
package publish

import (
	"bytes"
	"encoding/gob"
	"sync"

	"github.com/arekkw/atomix/internal/metrics"
	"github.com/arekkw/atomix/internal/transport"
	"github.com/sirupsen/logrus"
)

// Sink receives events addressed to a single session. Implementations
// must not block: a slow or absent sink must never stall the state
// machine executor that triggered the publish.
type Sink func(payload []byte)

// Publisher fans out Publish calls from the state machine to whichever
// session sinks are currently subscribed. Subscription is keyed by
// session id so a session that migrates connections, or re-registers
// after expiry, simply re-subscribes under its (possibly new) id.
type Publisher struct {
	mu   sync.RWMutex
	subs map[uint64]Sink
	log  logrus.FieldLogger
}

// New constructs an empty Publisher.
func New(log logrus.FieldLogger) *Publisher {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Publisher{subs: make(map[uint64]Sink), log: log}
}

// Subscribe registers sink to receive events for sessionID, replacing
// any previous subscription. Unsubscribe removes it.
func (p *Publisher) Subscribe(sessionID uint64, sink Sink) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subs[sessionID] = sink
}

// Unsubscribe drops sessionID's sink, if any.
func (p *Publisher) Unsubscribe(sessionID uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.subs, sessionID)
}

// Publish delivers payload to sessionID's sink if one is currently
// subscribed. The sink is called synchronously on the caller's
// goroutine, so Publish returns only after the sink returns; calling
// it from the state-machine executor thread is safe as long as the
// sink honours the non-blocking contract documented on Sink.
func (p *Publisher) Publish(sessionID uint64, payload []byte) {
	p.mu.RLock()
	sink, ok := p.subs[sessionID]
	p.mu.RUnlock()
	if !ok {
		metrics.PublishedEvents.WithLabelValues("dropped").Inc()
		p.log.WithField("session_id", sessionID).Debug("publish: no subscriber, dropping event")
		return
	}
	metrics.PublishedEvents.WithLabelValues("delivered").Inc()
	sink(payload)
}

// leaderChangePayload is the wire shape of a PublishLeaderChange
// notification. It is gob-encoded for the same reason session
// snapshots are (see internal/session/snapshot.go): this payload never
// crosses a process boundary on its own, it rides inside whatever
// transport.PublishMessage.Payload the server's transport already
// serializes, so a general-purpose interchange format would buy
// nothing a third-party codec isn't already providing one layer up.
type leaderChangePayload struct {
	Term   uint64
	Leader transport.Member
}

// PublishLeaderChange is the supplemented leadership-view notification
// described in SPEC_FULL.md §4: the server's raft layer calls this
// whenever its term or leader changes, so a subscribed session learns
// about the new leader without waiting for its next keep-alive round
// trip. Each call notifies only sessionID; other subscribed sessions
// are not notified.
func (p *Publisher) PublishLeaderChange(sessionID uint64, term uint64, leader transport.Member) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(leaderChangePayload{Term: term, Leader: leader}); err != nil {
		p.log.WithError(err).Error("publish: failed to encode leader change")
		return
	}
	p.Publish(sessionID, buf.Bytes())
}

// DecodeLeaderChange decodes a payload produced by PublishLeaderChange.
// Clients call this after recognizing an event on a session's
// well-known leader-change channel.
func DecodeLeaderChange(payload []byte) (term uint64, leader transport.Member, err error) {
	var v leaderChangePayload
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&v); err != nil {
		return 0, transport.Member{}, err
	}
	return v.Term, v.Leader, nil
}
