package clientwire

import (
	"github.com/arekkw/atomix/client"
	"github.com/arekkw/atomix/internal/stopper"
	"github.com/arekkw/atomix/internal/transport"
	"github.com/sirupsen/logrus"
)

// Runtime bundles the client session and its request pipeline.
type Runtime struct {
	Session  *client.Session
	Pipeline *client.Pipeline
}

// ProvideSession constructs the client session runtime (component C7).
func ProvideSession(stop *stopper.Context, tr transport.Transport, members []transport.Member, cfg client.Config, log logrus.FieldLogger) *client.Session {
	return client.New(stop, tr, members, cfg, log)
}

// ProvidePipeline constructs the client request pipeline (component
// C8), bound to the session it submits through.
func ProvidePipeline(s *client.Session) *client.Pipeline {
	return client.NewPipeline(s)
}
