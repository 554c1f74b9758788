// Command atomixctl is a minimal CLI wrapper around the client-side
// session runtime. Like atomixd, it uses stdlib log for fatal exits and
// logrus for informational output (spec §1 names the RPC transport as an external
// collaborator, so this binary has nothing concrete to dial without
// one being supplied by an embedding application).
package main

import (
	"context"
	"log"
	"time"

	"github.com/arekkw/atomix/clientconfig"
	"github.com/arekkw/atomix/clientwire"
	"github.com/arekkw/atomix/internal/stopper"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

func main() {
	cfg := &clientconfig.Config{}
	cfg.Bind(pflag.CommandLine)
	pflag.Parse()

	if err := cfg.Preflight(); err != nil {
		log.Fatalf("atomixctl: invalid configuration: %v", err)
	}

	members, err := cfg.ParseMembers()
	if err != nil {
		log.Fatalf("atomixctl: %v", err)
	}

	payload := pflag.Arg(0)
	if payload == "" {
		log.Fatal("atomixctl: usage: atomixctl [flags] <command payload>")
	}

	logger := logrus.StandardLogger()
	stop := stopper.WithContext(context.Background())
	defer stop.Stop(5 * time.Second)

	tr := newUnconfiguredTransport()
	runtime := clientwire.New(stop, tr, members, cfg.RuntimeConfig(), logger)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
	defer cancel()

	result, err := runtime.Pipeline.Submit(ctx, []byte(payload))
	if err != nil {
		log.Fatalf("atomixctl: command failed: %v", err)
	}
	logger.WithField("result", string(result)).Info("atomixctl: command succeeded")
}
