package main

import (
	"context"

	"github.com/arekkw/atomix/internal/apierr"
	"github.com/arekkw/atomix/internal/transport"
)

// unconfiguredTransport satisfies transport.Transport without dialing
// anything. Wire serialization and the RPC framework are named
// external collaborators (spec §1); an embedding application supplies
// a real transport.Transport and would use clientwire.New directly
// instead of this command-line wrapper.
type unconfiguredTransport struct{}

func newUnconfiguredTransport() transport.Transport { return unconfiguredTransport{} }

func (unconfiguredTransport) Register(context.Context, transport.Member, *transport.RegisterRequest) (*transport.RegisterResponse, error) {
	return nil, apierr.Transport(errNoTransport)
}

func (unconfiguredTransport) KeepAlive(context.Context, transport.Member, *transport.KeepAliveRequest) (*transport.KeepAliveResponse, error) {
	return nil, apierr.Transport(errNoTransport)
}

func (unconfiguredTransport) Command(context.Context, transport.Member, *transport.CommandRequest) (*transport.CommandResponse, error) {
	return nil, apierr.Transport(errNoTransport)
}

func (unconfiguredTransport) Query(context.Context, transport.Member, *transport.QueryRequest) (*transport.QueryResponse, error) {
	return nil, apierr.Transport(errNoTransport)
}

type transportError string

func (e transportError) Error() string { return string(e) }

const errNoTransport = transportError("atomixctl: no transport.Transport configured; this wrapper is a wiring proof, not an RPC client")
