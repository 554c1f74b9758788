// Package serverconfig contains the user-visible configuration for
// running a server-side runtime, bound with pflag the way the
// teacher's internal/source/server.Config does.
package serverconfig

import (
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
)

// Config holds the operational parameters named in spec §6.
type Config struct {
	BindAddr string

	// SessionTimeout is the idle window after which a session expires
	// at the next log-derived time check (spec §6, default 5,000 ms).
	SessionTimeout time.Duration

	// ApplyQueueDepth bounds the serial executor's task channel.
	ApplyQueueDepth int

	// ShutdownGrace bounds how long Stop waits for in-flight work
	// before canceling outright.
	ShutdownGrace time.Duration
}

// Bind registers flags on flags.
func (c *Config) Bind(flags *pflag.FlagSet) {
	flags.StringVar(
		&c.BindAddr,
		"bindAddr",
		":8700",
		"the network address the server-side runtime binds to")
	flags.DurationVar(
		&c.SessionTimeout,
		"sessionTimeout",
		5*time.Second,
		"idle window after which a session is expired")
	flags.IntVar(
		&c.ApplyQueueDepth,
		"applyQueueDepth",
		256,
		"the buffer depth of the state-machine executor's task queue")
	flags.DurationVar(
		&c.ShutdownGrace,
		"shutdownGrace",
		5*time.Second,
		"how long to wait for in-flight work during a clean shutdown")
}

// Preflight validates the configuration after flags have been parsed.
func (c *Config) Preflight() error {
	if c.BindAddr == "" {
		return errors.New("bindAddr unset")
	}
	if c.SessionTimeout <= 0 {
		return errors.New("sessionTimeout must be positive")
	}
	if c.ApplyQueueDepth <= 0 {
		return errors.New("applyQueueDepth must be positive")
	}
	if c.ShutdownGrace < 0 {
		return errors.New("shutdownGrace must not be negative")
	}
	return nil
}
