//go:build wireinject
// +build wireinject

// Package serverwire assembles the server-side runtime (components
// C1-C6) via google/wire, the same dependency-injection convention the
// teacher uses for its source/cdc and source/mylogical object graphs:
// a //go:build wireinject injector file here, a hand-maintained
// wire_gen.go alongside it.
package serverwire

import (
	"github.com/arekkw/atomix/internal/serverconfig"
	"github.com/arekkw/atomix/internal/statemachine"
	"github.com/arekkw/atomix/internal/stopper"
	"github.com/google/wire"
	"github.com/sirupsen/logrus"
)

// New wires a Runtime for sm, bound to cfg and logging to log.
func New(stop *stopper.Context, cfg *serverconfig.Config, sm statemachine.StateMachine, log logrus.FieldLogger) (*Runtime, error) {
	panic(wire.Build(
		ProvideRegistry,
		ProvideExecutor,
		ProvidePublisher,
		ProvideScheduler,
		ProvideFilter,
		ProvideDispatcher,
		wire.Struct(new(Runtime), "*"),
	))
}
