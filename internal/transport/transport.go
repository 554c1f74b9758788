// Package transport defines the abstract RPC shapes of spec §6. The
// concrete wire encoding and RPC framework are named external
// collaborators (out of scope): this package only fixes the Go
// interface and message structs that the server-side runtime and the
// client-side runtime agree on.
package transport

import "context"

// Member describes an addressable cluster endpoint. It is the concrete
// resolution of the abstract "member descriptor" spec.md leaves
// unspecified.
type Member struct {
	ID      uint64
	Address string
}

// Status mirrors the error taxonomy of spec §7 at the wire boundary.
type Status int

const (
	StatusOK Status = iota
	StatusUnknownSession
	StatusNoLeader
	StatusTimeout
	StatusTransport
	StatusProtocolViolation
	StatusUserError
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusUnknownSession:
		return "UnknownSession"
	case StatusNoLeader:
		return "NoLeader"
	case StatusTimeout:
		return "Timeout"
	case StatusTransport:
		return "Transport"
	case StatusProtocolViolation:
		return "ProtocolViolation"
	case StatusUserError:
		return "UserError"
	default:
		return "Unknown"
	}
}

// RegisterRequest carries no payload; a session is created from
// whichever log index the server assigns it.
type RegisterRequest struct{}

// RegisterResponse is returned by the leader once a new session has
// been durably registered.
type RegisterResponse struct {
	Status    Status
	Term      uint64
	Leader    uint64
	SessionID uint64
	Members   []Member
}

// KeepAliveRequest touches a session to keep it from expiring.
type KeepAliveRequest struct {
	SessionID uint64
}

// KeepAliveResponse carries the server's current view of consensus
// term, leader and applied version, so the client can refresh its
// watermarks even without issuing a command.
type KeepAliveResponse struct {
	Status  Status
	Term    uint64
	Leader  uint64
	Version uint64
	Members []Member
}

// CommandRequest is a state-mutating, exactly-once operation keyed by
// RequestNo within SessionID. ResponseAck tells the server it may
// discard cached responses at or below that request number.
type CommandRequest struct {
	SessionID   uint64
	RequestNo   uint64
	ResponseAck uint64
	Payload     []byte
}

// CommandResponse carries the result of applying (or replaying) a
// command. Version is not part of the minimal wire shape in spec §6,
// but spec §4.8.1 requires the client to learn the server's applied
// watermark "in any response" — so it travels here too.
type CommandResponse struct {
	Status  Status
	Result  []byte
	Error   string
	Version uint64
}

// QueryRequest is a non-mutating, version-bounded read.
type QueryRequest struct {
	SessionID uint64
	Version   uint64
	Payload   []byte
}

// QueryResponse mirrors CommandResponse's shape.
type QueryResponse struct {
	Status  Status
	Result  []byte
	Error   string
	Version uint64
}

// PublishMessage is a server-to-client, fire-and-forget event.
type PublishMessage struct {
	SessionID uint64
	Payload   []byte
}

// Transport is implemented by the concrete RPC layer. This runtime
// depends only on this interface; dialing, framing and retries at the
// network level are out of scope.
type Transport interface {
	Register(ctx context.Context, member Member, req *RegisterRequest) (*RegisterResponse, error)
	KeepAlive(ctx context.Context, member Member, req *KeepAliveRequest) (*KeepAliveResponse, error)
	Command(ctx context.Context, member Member, req *CommandRequest) (*CommandResponse, error)
	Query(ctx context.Context, member Member, req *QueryRequest) (*QueryResponse, error)
}

// Connection is an optional handle a Transport may return from Dial so
// the client session runtime can enforce "one connection at a time"
// (spec §4.7.4) by closing the prior handle before opening a new one.
type Connection interface {
	Close() error
}

// Dialer is an optional capability a Transport may implement. When
// absent, the client session runtime tracks the active member without
// an explicit connection handle.
type Dialer interface {
	Dial(ctx context.Context, member Member) (Connection, error)
}

// PublishSink receives fire-and-forget Publish messages delivered over
// the client's currently open connection.
type PublishSink interface {
	OnPublish(msg *PublishMessage)
}
