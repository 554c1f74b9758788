// Package clientconfig contains the user-visible configuration for the
// client-side session runtime, bound with pflag the way the teacher's
// internal/source/server.Config binds server-side flags.
package clientconfig

import (
	"strconv"
	"strings"
	"time"

	"github.com/arekkw/atomix/client"
	"github.com/arekkw/atomix/internal/transport"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
)

// Config holds the client runtime's operational parameters, mirroring
// spec §6's named defaults.
type Config struct {
	Members           []string
	KeepAliveInterval time.Duration
	RequestTimeout    time.Duration
	BackoffMin        time.Duration
	BackoffMax        time.Duration
}

// Bind registers flags on flags.
func (c *Config) Bind(flags *pflag.FlagSet) {
	flags.StringSliceVar(
		&c.Members,
		"members",
		nil,
		"comma-separated id=address pairs of the initial cluster view")
	flags.DurationVar(
		&c.KeepAliveInterval,
		"keepAliveInterval",
		time.Second,
		"client keep-alive frequency")
	flags.DurationVar(
		&c.RequestTimeout,
		"requestTimeout",
		10*time.Second,
		"per-RPC deadline")
	flags.DurationVar(
		&c.BackoffMin,
		"backoffMin",
		100*time.Millisecond,
		"minimum registration retry backoff")
	flags.DurationVar(
		&c.BackoffMax,
		"backoffMax",
		5*time.Second,
		"maximum registration retry backoff")
}

// Preflight validates the configuration after flags have been parsed.
func (c *Config) Preflight() error {
	if len(c.Members) == 0 {
		return errors.New("members unset")
	}
	for _, m := range c.Members {
		if !strings.Contains(m, "=") {
			return errors.Errorf("malformed member %q, expected id=address", m)
		}
	}
	if c.KeepAliveInterval <= 0 {
		return errors.New("keepAliveInterval must be positive")
	}
	if c.RequestTimeout <= 0 {
		return errors.New("requestTimeout must be positive")
	}
	if c.BackoffMin <= 0 || c.BackoffMax < c.BackoffMin {
		return errors.New("backoffMin must be positive and no greater than backoffMax")
	}
	return nil
}

// ParseMembers converts the bound --members flag into transport.Member
// values for client.New.
func (c *Config) ParseMembers() ([]transport.Member, error) {
	members := make([]transport.Member, 0, len(c.Members))
	for _, m := range c.Members {
		parts := strings.SplitN(m, "=", 2)
		if len(parts) != 2 {
			return nil, errors.Errorf("malformed member %q, expected id=address", m)
		}
		id, err := strconv.ParseUint(parts[0], 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "malformed member id %q", parts[0])
		}
		members = append(members, transport.Member{ID: id, Address: parts[1]})
	}
	return members, nil
}

// RuntimeConfig converts the parsed flags into a client.Config.
func (c *Config) RuntimeConfig() client.Config {
	return client.Config{
		KeepAliveInterval: c.KeepAliveInterval,
		RequestTimeout:    c.RequestTimeout,
		BackoffMin:        c.BackoffMin,
		BackoffMax:        c.BackoffMax,
	}
}
