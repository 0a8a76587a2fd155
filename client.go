package client

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rcrowley/go-metrics"

	"github.com/jsp-lqk/bmemcached/internal/binprot"
	"github.com/jsp-lqk/bmemcached/router"
)

// node is one pooled connection. mu is held for a full request/response
// exchange so frames from different callers never interleave.
type node struct {
	id       string
	mu       sync.Mutex
	inflight atomic.Int32
	conn     *Conn
}

// Client routes each key to one of a fixed set of connections. It is safe
// for concurrent use.
type Client struct {
	nodes         []*node
	router        router.Router
	log           Logger
	metrics       *clientMetrics
	maxConcurrent int32
}

// Default connects to addrs with default options.
func Default(addrs ...string) (*Client, error) {
	return New(addrs, Options{})
}

// New opens ConnectionsPerAddress connections to every address up front. If
// any connect fails, the connections opened so far are closed and the error
// is returned.
func New(addrs []string, opts Options) (*Client, error) {
	if len(addrs) == 0 {
		return nil, errors.New("bmemcached: at least one address is required")
	}
	if opts.ConnectionsPerAddress < 0 || opts.VirtualNodes < 0 || opts.MaxConcurrent < 0 {
		return nil, errors.New("bmemcached: negative option value")
	}
	opts = opts.withDefaults()

	c := &Client{
		log:           opts.Logger,
		metrics:       newClientMetrics(opts.Metrics),
		maxConcurrent: int32(opts.MaxConcurrent),
	}

	// the ordinal counts earlier connections to the same address, so ring
	// identities stay unique even when an address is listed twice
	ordinals := make(map[string]int)
	for _, addr := range addrs {
		for i := 0; i < opts.ConnectionsPerAddress; i++ {
			conn, err := opts.Dial(addr, opts.connOptions())
			if err != nil {
				_ = c.Close()
				return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
			}
			ord := ordinals[addr]
			ordinals[addr]++
			c.nodes = append(c.nodes, &node{id: fmt.Sprintf("%s#%d", addr, ord), conn: conn})
		}
	}

	switch {
	case len(c.nodes) == 1:
		c.router = router.Direct{}
	case opts.Hashing == HashJump:
		c.router = router.NewJump(len(c.nodes))
	default:
		ids := make([]string, len(c.nodes))
		for i, n := range c.nodes {
			ids[i] = n.id
		}
		c.router = router.NewRing(ids, opts.VirtualNodes)
	}

	c.log.Debug("client ready", Fields{
		"addrs":       addrs,
		"connections": len(c.nodes),
		"hashing":     opts.Hashing,
	})
	return c, nil
}

// Close closes every connection.
func (c *Client) Close() error {
	var errs []error
	for _, n := range c.nodes {
		n.mu.Lock()
		if err := n.conn.Close(); err != nil {
			errs = append(errs, err)
		}
		n.mu.Unlock()
	}
	return errors.Join(errs...)
}

// Metrics exposes the registry the client records into.
func (c *Client) Metrics() metrics.Registry { return c.metrics.registry }

// Route returns the identity of the connection that owns key.
func (c *Client) Route(key string) string {
	return c.nodes[c.router.Route(key)].id
}

func (c *Client) Set(key string, value any, ttl uint32) error {
	return c.do(binprot.OpSet, key, func(conn *Conn) error { return conn.Set(key, value, ttl) })
}

func (c *Client) Add(key string, value any, ttl uint32) error {
	return c.do(binprot.OpAdd, key, func(conn *Conn) error { return conn.Add(key, value, ttl) })
}

func (c *Client) Replace(key string, value any, ttl uint32) error {
	return c.do(binprot.OpReplace, key, func(conn *Conn) error { return conn.Replace(key, value, ttl) })
}

// GetItem fetches the raw flags and payload stored under key.
func (c *Client) GetItem(key string) (Item, error) {
	var it Item
	err := c.do(binprot.OpGet, key, func(conn *Conn) error {
		var err error
		it, err = conn.GetItem(key)
		return err
	})
	return it, err
}

// GetInto fetches key and decodes it into dst. Decoding runs after the
// connection is released.
func (c *Client) GetInto(key string, dst any) error {
	it, err := c.GetItem(key)
	if err != nil {
		return err
	}
	return DecodeInto(dst, it.Flags, it.Value)
}

func (c *Client) Delete(key string) error {
	return c.do(binprot.OpDelete, key, func(conn *Conn) error { return conn.Delete(key) })
}

func (c *Client) Increment(key string, amount, initial uint64, ttl uint32) (uint64, error) {
	var n uint64
	err := c.do(binprot.OpIncrement, key, func(conn *Conn) error {
		var err error
		n, err = conn.Increment(key, amount, initial, ttl)
		return err
	})
	return n, err
}

func (c *Client) Decrement(key string, amount, initial uint64, ttl uint32) (uint64, error) {
	var n uint64
	err := c.do(binprot.OpDecrement, key, func(conn *Conn) error {
		var err error
		n, err = conn.Decrement(key, amount, initial, ttl)
		return err
	})
	return n, err
}

// do validates the key, routes it and runs fn with exclusive use of the
// owning connection.
func (c *Client) do(op binprot.Opcode, key string, fn func(*Conn) error) (err error) {
	if l := len(key); l == 0 || l > binprot.MaxKeyLength {
		return &KeyTooLongError{Len: l}
	}
	n := c.nodes[c.router.Route(key)]

	if in := n.inflight.Add(1); c.maxConcurrent > 0 && in > c.maxConcurrent {
		n.inflight.Add(-1)
		c.metrics.overloaded.Inc(1)
		return fmt.Errorf("%w: %s", ErrConnectionOverloaded, n.id)
	}
	defer n.inflight.Add(-1)

	start := time.Now()
	defer func() { c.metrics.observe(op, start, err) }()

	n.mu.Lock()
	defer n.mu.Unlock()
	return fn(n.conn)
}
