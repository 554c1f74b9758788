//go:build wireinject
// +build wireinject

// Package clientwire assembles the client-side runtime (components
// C7-C8) via google/wire, mirroring internal/serverwire's convention.
package clientwire

import (
	"github.com/arekkw/atomix/client"
	"github.com/arekkw/atomix/internal/stopper"
	"github.com/arekkw/atomix/internal/transport"
	"github.com/google/wire"
	"github.com/sirupsen/logrus"
)

// New wires a client Runtime against the given transport, initial
// member view and config.
func New(stop *stopper.Context, tr transport.Transport, members []transport.Member, cfg client.Config, log logrus.FieldLogger) *Runtime {
	panic(wire.Build(
		ProvideSession,
		ProvidePipeline,
		wire.Struct(new(Runtime), "*"),
	))
}
