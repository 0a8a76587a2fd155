package client

import (
	"time"

	"github.com/rcrowley/go-metrics"
)

// Hashing selects how keys are placed on connections.
type Hashing int

const (
	// HashRing is a consistent-hash ring with VirtualNodes positions per
	// connection.
	HashRing Hashing = iota
	// HashJump uses jump consistent hashing over the connection list.
	HashJump
)

func (h Hashing) String() string {
	if h == HashJump {
		return "jump"
	}
	return "ring"
}

const (
	DefaultConnectionsPerAddress = 1
	DefaultVirtualNodes          = 1
)

// Options tune a Client. The zero value is usable.
type Options struct {
	ConnectionsPerAddress int // 0 => 1
	VirtualNodes          int // ring positions per connection; 0 => 1
	Hashing               Hashing

	// MaxConcurrent caps callers holding or waiting for one connection.
	// Past the cap an operation fails with ErrConnectionOverloaded without
	// any I/O. 0 disables the cap.
	MaxConcurrent int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	Logger  Logger           // nil => NopLogger
	Metrics metrics.Registry // nil => private registry

	// Dial opens one backend connection. Defaults to Dial.
	Dial func(addr string, opts ConnOptions) (*Conn, error)
}

func (o Options) withDefaults() Options {
	o.ConnectionsPerAddress = coalesce(o.ConnectionsPerAddress, DefaultConnectionsPerAddress)
	o.VirtualNodes = coalesce(o.VirtualNodes, DefaultVirtualNodes)
	o.Logger = coalesce[Logger](o.Logger, NopLogger{})
	if o.Metrics == nil {
		o.Metrics = metrics.NewRegistry()
	}
	if o.Dial == nil {
		o.Dial = Dial
	}
	return o
}

func (o Options) connOptions() ConnOptions {
	return ConnOptions{
		DialTimeout:  o.DialTimeout,
		ReadTimeout:  o.ReadTimeout,
		WriteTimeout: o.WriteTimeout,
		Logger:       o.Logger,
	}
}
