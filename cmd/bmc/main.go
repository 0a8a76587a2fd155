// Command bmc talks to memcached over the binary protocol.
//
//	bmc -addr 127.0.0.1:11211 set greeting hello
//	bmc -addr 127.0.0.1:11211 get greeting
//	bmc -addr 127.0.0.1:11211 -type u64 incr hits 1
//	bmc -memtest demo
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rcrowley/go-metrics"
	"go.uber.org/zap"

	client "github.com/jsp-lqk/bmemcached"
	"github.com/jsp-lqk/bmemcached/internal/memtest"
	zaplog "github.com/jsp-lqk/bmemcached/log/zap"
)

var (
	addrs    = flag.String("addr", "127.0.0.1:11211", "comma separated backend addresses")
	conns    = flag.Int("conns", 1, "connections per address")
	vnodes   = flag.Int("vnodes", 1, "ring positions per connection")
	hashing  = flag.String("hash", "ring", "key placement: ring or jump")
	maxConc  = flag.Int("max-concurrent", 0, "callers allowed per connection, 0 for no limit")
	ttl      = flag.Uint("ttl", 0, "expiration in seconds")
	kind     = flag.String("type", "string", "value type: string, bytes, u8, u16, u32, u64")
	timeout  = flag.Duration("timeout", 2*time.Second, "dial, read and write timeout")
	verbose  = flag.Bool("v", false, "debug logging")
	inproc   = flag.Bool("memtest", false, "run against an in-process test server")
	workers  = flag.Int("workers", 8, "demo: concurrent goroutines")
	requests = flag.Int("requests", 1000, "demo: set/get/delete rounds per goroutine")
)

func usage() {
	fmt.Fprintf(os.Stderr, `usage: bmc [flags] <command> [args]

commands:
  get <key>
  set|add|replace <key> <value>
  delete <key>
  incr|decr <key> <amount> [initial]
  route <key>
  demo

flags:
`)
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	logger, err := newLogger(*verbose)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	targets := strings.Split(*addrs, ",")
	if *inproc {
		s, err := memtest.Listen()
		if err != nil {
			logger.Fatal("failed to start test server", zap.Error(err))
		}
		defer s.Close()
		targets = []string{s.Addr()}
	}

	opts := client.Options{
		ConnectionsPerAddress: *conns,
		VirtualNodes:          *vnodes,
		MaxConcurrent:         *maxConc,
		DialTimeout:           *timeout,
		ReadTimeout:           *timeout,
		WriteTimeout:          *timeout,
		Logger:                zaplog.ZapLogger{L: logger},
	}
	switch *hashing {
	case "ring":
		opts.Hashing = client.HashRing
	case "jump":
		opts.Hashing = client.HashJump
	default:
		logger.Fatal("unknown hashing", zap.String("hash", *hashing))
	}

	c, err := client.New(targets, opts)
	if err != nil {
		logger.Fatal("failed to connect", zap.Strings("addrs", targets), zap.Error(err))
	}
	defer c.Close()

	if err := run(c, logger, flag.Args()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		c.Close()
		os.Exit(1)
	}
}

func newLogger(debug bool) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	if !debug {
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}
	return cfg.Build()
}

var errUsage = errors.New("wrong number of arguments, see -h")

func run(c *client.Client, logger *zap.Logger, args []string) error {
	cmd, args := args[0], args[1:]
	switch cmd {
	case "get":
		if len(args) != 1 {
			return errUsage
		}
		return get(c, args[0])

	case "set", "add", "replace":
		if len(args) != 2 {
			return errUsage
		}
		v, err := parseValue(args[1])
		if err != nil {
			return err
		}
		store := map[string]func(string, any, uint32) error{
			"set": c.Set, "add": c.Add, "replace": c.Replace,
		}[cmd]
		if err := store(args[0], v, uint32(*ttl)); err != nil {
			return err
		}
		fmt.Println("STORED")
		return nil

	case "delete":
		if len(args) != 1 {
			return errUsage
		}
		if err := c.Delete(args[0]); err != nil {
			return err
		}
		fmt.Println("DELETED")
		return nil

	case "incr", "decr":
		if len(args) < 2 || len(args) > 3 {
			return errUsage
		}
		amount, err := strconv.ParseUint(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("bad amount: %w", err)
		}
		var initial uint64
		if len(args) == 3 {
			if initial, err = strconv.ParseUint(args[2], 10, 64); err != nil {
				return fmt.Errorf("bad initial value: %w", err)
			}
		}
		counter := c.Increment
		if cmd == "decr" {
			counter = c.Decrement
		}
		n, err := counter(args[0], amount, initial, uint32(*ttl))
		if err != nil {
			return err
		}
		fmt.Println(n)
		return nil

	case "route":
		if len(args) != 1 {
			return errUsage
		}
		fmt.Println(c.Route(args[0]))
		return nil

	case "demo":
		return demo(c, logger)
	}
	return fmt.Errorf("unknown command %q", cmd)
}

func parseValue(s string) (any, error) {
	var (
		n   uint64
		err error
	)
	switch *kind {
	case "string":
		return s, nil
	case "bytes":
		return []byte(s), nil
	case "u8":
		n, err = strconv.ParseUint(s, 10, 8)
		return uint8(n), err
	case "u16":
		n, err = strconv.ParseUint(s, 10, 16)
		return uint16(n), err
	case "u32":
		n, err = strconv.ParseUint(s, 10, 32)
		return uint32(n), err
	case "u64":
		n, err = strconv.ParseUint(s, 10, 64)
		return n, err
	}
	return nil, fmt.Errorf("unknown type %q", *kind)
}

func get(c *client.Client, key string) error {
	var (
		v   any
		err error
	)
	switch *kind {
	case "string":
		v, err = client.Get[string](c, key)
	case "bytes":
		var b []byte
		b, err = client.Get[[]byte](c, key)
		v = fmt.Sprintf("%x", b)
	case "u8":
		v, err = client.Get[uint8](c, key)
	case "u16":
		v, err = client.Get[uint16](c, key)
	case "u32":
		v, err = client.Get[uint32](c, key)
	case "u64":
		v, err = client.Get[uint64](c, key)
	default:
		return fmt.Errorf("unknown type %q", *kind)
	}
	if err != nil {
		return err
	}
	fmt.Println(v)
	return nil
}

// demo runs set/get/delete rounds from many goroutines on distinct keys and
// reports the client metrics.
func demo(c *client.Client, logger *zap.Logger) error {
	var (
		wg       sync.WaitGroup
		failures atomic.Int64
		prefix   = uuid.NewString()
	)
	start := time.Now()
	for w := 0; w < *workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < *requests; i++ {
				k := fmt.Sprintf("%s-%d-%d", prefix, w, i)
				if err := round(c, k); err != nil {
					failures.Add(1)
					logger.Warn("round failed", zap.String("key", k), zap.Error(err))
				}
			}
		}(w)
	}
	wg.Wait()
	elapsed := time.Since(start)

	total := *workers * *requests
	fmt.Printf("%d rounds in %s (%.0f rounds/s), %d failed\n",
		total, elapsed, float64(total)/elapsed.Seconds(), failures.Load())
	c.Metrics().Each(func(name string, m any) {
		switch m := m.(type) {
		case metrics.Timer:
			if m.Count() > 0 {
				fmt.Printf("  %-22s n=%-8d p50=%-10s p99=%s\n", name, m.Count(),
					time.Duration(m.Percentile(0.5)), time.Duration(m.Percentile(0.99)))
			}
		case metrics.Counter:
			fmt.Printf("  %-22s %d\n", name, m.Count())
		}
	})
	if n := failures.Load(); n > 0 {
		return fmt.Errorf("%d rounds failed", n)
	}
	return nil
}

func round(c *client.Client, k string) error {
	if err := c.Set(k, k, 100); err != nil {
		return err
	}
	v, err := client.Get[string](c, k)
	if err != nil {
		return err
	}
	if v != k {
		return fmt.Errorf("got %q back", v)
	}
	return c.Delete(k)
}
