// Command atomixd is a thin wrapper around the server-side runtime:
// flag parsing, logging setup, runtime wiring and signal-driven
// shutdown. Fatal exits go through stdlib log, matching the teacher's
// own root-level main glue (sink.go, resolved_table.go); informational
// messages go through logrus.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/arekkw/atomix/examples/kvstore"
	"github.com/arekkw/atomix/internal/serverconfig"
	"github.com/arekkw/atomix/internal/serverwire"
	"github.com/arekkw/atomix/internal/stopper"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

func main() {
	cfg := &serverconfig.Config{}
	cfg.Bind(pflag.CommandLine)
	pflag.Parse()

	if err := cfg.Preflight(); err != nil {
		log.Fatalf("atomixd: invalid configuration: %v", err)
	}

	logger := logrus.StandardLogger()
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	stop := stopper.WithContext(ctx)
	sm := kvstore.New(logger)

	runtime, err := serverwire.New(stop, cfg, sm, logger)
	if err != nil {
		log.Fatalf("atomixd: failed to wire server runtime: %v", err)
	}

	logger.WithField("bindAddr", cfg.BindAddr).Info("atomixd: server runtime started")
	// The Raft log, leader election and RPC listener that would feed
	// entries to runtime.Dispatcher are external collaborators (spec
	// §1) not implemented by this module; this wrapper only proves the
	// runtime wires together and shuts down cleanly.
	_ = runtime

	<-ctx.Done()
	logger.Info("atomixd: shutting down")
	if err := stop.Stop(cfg.ShutdownGrace); err != nil {
		log.Fatalf("atomixd: shutdown error: %v", err)
	}
}
