// Package entry defines the tagged-variant log entry shapes of spec
// §3 and §6, and the Commit value passed to the user state machine.
// Kind is a closed sum type dispatched with a single switch, per
// spec §9 ("tagged dispatch on entry subtype should be a sum type
// with a single switch; avoid open class hierarchies").
package entry

import (
	"github.com/arekkw/atomix/internal/clock"
	"github.com/arekkw/atomix/internal/session"
	"github.com/arekkw/atomix/internal/transport"
)

// Kind identifies which variant of Entry is populated.
type Kind uint8

const (
	KindRegister Kind = iota
	KindKeepAlive
	KindCommand
	KindQuery
	KindNoOp
)

func (k Kind) String() string {
	switch k {
	case KindRegister:
		return "Register"
	case KindKeepAlive:
		return "KeepAlive"
	case KindCommand:
		return "Command"
	case KindQuery:
		return "Query"
	case KindNoOp:
		return "NoOp"
	default:
		return "Unknown"
	}
}

// RegisterData creates a new session.
type RegisterData struct {
	Timestamp clock.Time
	Member    *transport.Member
}

// KeepAliveData refreshes an existing session's activity watermark.
type KeepAliveData struct {
	SessionID uint64
	Timestamp clock.Time
}

// CommandData is a state-mutating, exactly-once operation.
type CommandData struct {
	SessionID   uint64
	RequestNo   uint64
	ResponseAck uint64
	Timestamp   clock.Time
	Payload     []byte
}

// QueryData is a non-mutating, version-bounded read. Queries typically
// bypass the log, but share this shape when they do appear in it.
type QueryData struct {
	SessionID       uint64
	RequiredVersion uint64
	Timestamp       clock.Time
	Payload         []byte
}

// Entry is a tagged union over the five log entry variants. Only the
// field named by Kind is populated.
type Entry struct {
	Kind     Kind
	LogIndex uint64

	Register  *RegisterData
	KeepAlive *KeepAliveData
	Command   *CommandData
	Query     *QueryData
}

// NewRegister builds a Register entry.
func NewRegister(logIndex uint64, ts clock.Time, member *transport.Member) Entry {
	return Entry{Kind: KindRegister, LogIndex: logIndex, Register: &RegisterData{Timestamp: ts, Member: member}}
}

// NewKeepAlive builds a KeepAlive entry.
func NewKeepAlive(logIndex uint64, sessionID uint64, ts clock.Time) Entry {
	return Entry{Kind: KindKeepAlive, LogIndex: logIndex, KeepAlive: &KeepAliveData{SessionID: sessionID, Timestamp: ts}}
}

// NewCommand builds a Command entry.
func NewCommand(logIndex uint64, sessionID, requestNo, responseAck uint64, ts clock.Time, payload []byte) Entry {
	return Entry{Kind: KindCommand, LogIndex: logIndex, Command: &CommandData{
		SessionID:   sessionID,
		RequestNo:   requestNo,
		ResponseAck: responseAck,
		Timestamp:   ts,
		Payload:     payload,
	}}
}

// NewQuery builds a Query entry.
func NewQuery(logIndex uint64, sessionID, requiredVersion uint64, ts clock.Time, payload []byte) Entry {
	return Entry{Kind: KindQuery, LogIndex: logIndex, Query: &QueryData{
		SessionID:       sessionID,
		RequiredVersion: requiredVersion,
		Timestamp:       ts,
		Payload:         payload,
	}}
}

// NewNoOp builds a NoOp entry.
func NewNoOp(logIndex uint64) Entry {
	return Entry{Kind: KindNoOp, LogIndex: logIndex}
}

// Timestamp returns the log-derived timestamp carried by the entry, if
// it has one. NoOp entries carry no timestamp of their own.
func (e Entry) Timestamp() (clock.Time, bool) {
	switch e.Kind {
	case KindRegister:
		return e.Register.Timestamp, true
	case KindKeepAlive:
		return e.KeepAlive.Timestamp, true
	case KindCommand:
		return e.Command.Timestamp, true
	case KindQuery:
		return e.Query.Timestamp, true
	default:
		return clock.Zero(), false
	}
}

// Commit is passed to the user state machine's Apply and Filter
// callbacks. Publish lets the callback emit a best-effort message back
// to a session (component C6) without this package depending on the
// publisher package.
type Commit struct {
	Index     uint64
	Session   *session.Session
	Timestamp clock.Time
	Payload   []byte
	Publish   func(sessionID uint64, payload []byte)
}
