package serverwire

import (
	"github.com/arekkw/atomix/internal/compaction"
	"github.com/arekkw/atomix/internal/dispatch"
	"github.com/arekkw/atomix/internal/publish"
	"github.com/arekkw/atomix/internal/query"
	"github.com/arekkw/atomix/internal/serverconfig"
	"github.com/arekkw/atomix/internal/session"
	"github.com/arekkw/atomix/internal/statemachine"
	"github.com/arekkw/atomix/internal/stopper"
	"github.com/sirupsen/logrus"
)

// Runtime bundles the components a server process needs to drive a
// user StateMachine from a committed log.
type Runtime struct {
	Registry   *session.Registry
	Executor   *statemachine.Executor
	Dispatcher *dispatch.Dispatcher
	Scheduler  *query.Scheduler
	Filter     *compaction.Filter
	Publisher  *publish.Publisher
}

// ProvideRegistry constructs the session registry (component C1) sized
// by the configured session timeout.
func ProvideRegistry(cfg *serverconfig.Config) *session.Registry {
	return session.NewRegistry(cfg.SessionTimeout)
}

// ProvideExecutor starts the serial state-machine executor (component
// C3's single logical thread) bound to the runtime's stopper, with its
// task channel sized by the configured apply queue depth.
func ProvideExecutor(stop *stopper.Context, cfg *serverconfig.Config) *statemachine.Executor {
	return statemachine.NewExecutor(stop, cfg.ApplyQueueDepth)
}

// ProvidePublisher constructs the event publisher (component C6).
func ProvidePublisher(log logrus.FieldLogger) *publish.Publisher {
	return publish.New(log)
}

// ProvideScheduler constructs the query scheduler (component C4),
// bound to the same registry, executor and state machine the
// dispatcher uses.
func ProvideScheduler(exec *statemachine.Executor, reg *session.Registry, sm statemachine.StateMachine, pub *publish.Publisher) *query.Scheduler {
	return query.NewScheduler(exec, reg, sm, pub.Publish)
}

// ProvideFilter constructs the compaction filter (component C5).
func ProvideFilter(reg *session.Registry, exec *statemachine.Executor, sm statemachine.StateMachine, pub *publish.Publisher) *compaction.Filter {
	return compaction.NewFilter(reg, exec, sm, pub.Publish)
}

// ProvideDispatcher constructs the entry dispatcher (component C2).
func ProvideDispatcher(reg *session.Registry, exec *statemachine.Executor, sm statemachine.StateMachine, sched *query.Scheduler, pub *publish.Publisher, log logrus.FieldLogger) *dispatch.Dispatcher {
	return dispatch.New(reg, exec, sm, sched, pub, log)
}
