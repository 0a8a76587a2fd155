package client

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/jsp-lqk/bmemcached/internal/binprot"
)

// ConnOptions tune a single backend connection. Zero values mean no timeout.
type ConnOptions struct {
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Logger       Logger
}

// Conn is one stream to one backend. It runs exactly one request/response
// exchange at a time and is not safe for concurrent use; Client serializes
// access to its connections.
//
// After a transport error or a protocol desync the connection is
// invalid: Err reports the cause and every later command returns it
// without touching the stream.
type Conn struct {
	addr string
	nc   net.Conn
	r    *bufio.Reader
	w    *bufio.Writer
	opts ConnOptions
	log  Logger

	err    error
	extras []byte
}

// Dial connects to addr over TCP.
func Dial(addr string, opts ConnOptions) (*Conn, error) {
	d := net.Dialer{Timeout: opts.DialTimeout}
	nc, err := d.Dial("tcp", addr)
	if err != nil {
		return nil, &TransportError{Addr: addr, Op: "dial", Err: err}
	}
	return NewConn(nc, addr, opts), nil
}

// NewConn wraps an already open stream. addr is used as the identity.
func NewConn(nc net.Conn, addr string, opts ConnOptions) *Conn {
	c := &Conn{
		addr:   addr,
		nc:     nc,
		r:      bufio.NewReader(nc),
		w:      bufio.NewWriter(nc),
		opts:   opts,
		log:    coalesce[Logger](opts.Logger, NopLogger{}),
		extras: make([]byte, 0, binprot.CounterExtrasLen),
	}
	c.log.Debug("connected", Fields{"addr": addr})
	return c
}

// Identity is the address this connection was opened against.
func (c *Conn) Identity() string { return c.addr }

// Err returns the error that invalidated the connection, if any.
func (c *Conn) Err() error { return c.err }

func (c *Conn) Close() error {
	if c.err == nil {
		c.err = ErrClosed
	}
	c.log.Debug("closing connection", Fields{"addr": c.addr})
	return c.nc.Close()
}

func (c *Conn) Set(key string, value any, ttl uint32) error {
	return c.store(binprot.OpSet, key, value, ttl)
}

// Add stores value only if key does not exist yet; otherwise it fails with
// ErrKeyExists.
func (c *Conn) Add(key string, value any, ttl uint32) error {
	return c.store(binprot.OpAdd, key, value, ttl)
}

// Replace stores value only if key already exists; otherwise it fails with
// ErrKeyNotFound.
func (c *Conn) Replace(key string, value any, ttl uint32) error {
	return c.store(binprot.OpReplace, key, value, ttl)
}

func (c *Conn) store(op binprot.Opcode, key string, value any, ttl uint32) error {
	payload, flags, err := Encode(value)
	if err != nil {
		return err
	}
	extras := binprot.AppendStoreExtras(c.extras[:0], uint32(flags), ttl)
	rh, err := c.roundTrip(op, key, extras, payload)
	if err != nil {
		return err
	}
	if err := c.discard(rh); err != nil {
		return err
	}
	if rh.Status != binprot.StatusSuccess {
		return &StatusError{Status: rh.Status}
	}
	return nil
}

// GetInto fetches key and decodes it into dst. See DecodeInto for the
// accepted destinations.
func (c *Conn) GetInto(key string, dst any) error {
	it, err := c.GetItem(key)
	if err != nil {
		return err
	}
	return DecodeInto(dst, it.Flags, it.Value)
}

// GetItem fetches the raw flags and payload stored under key.
func (c *Conn) GetItem(key string) (Item, error) {
	rh, err := c.roundTrip(binprot.OpGet, key, nil, nil)
	if err != nil {
		return Item{}, err
	}
	if rh.Status != binprot.StatusSuccess {
		if err := c.discard(rh); err != nil {
			return Item{}, err
		}
		return Item{}, &StatusError{Status: rh.Status}
	}
	if rh.ExtraLength != binprot.GetExtrasLen {
		if err := c.discard(rh); err != nil {
			return Item{}, err
		}
		return Item{}, c.fail(fmt.Errorf("%w: get response has %d bytes of extras", ErrProtocolDesync, rh.ExtraLength))
	}
	body, err := c.readBody(rh)
	if err != nil {
		return Item{}, err
	}
	return Item{
		Flags: StoredType(binary.BigEndian.Uint32(body[:binprot.GetExtrasLen])),
		Value: body[binprot.GetExtrasLen+int(rh.KeyLength):],
	}, nil
}

// Delete removes key. A missing key is not an error.
func (c *Conn) Delete(key string) error {
	rh, err := c.roundTrip(binprot.OpDelete, key, nil, nil)
	if err != nil {
		return err
	}
	if err := c.discard(rh); err != nil {
		return err
	}
	switch rh.Status {
	case binprot.StatusSuccess:
		if rh.TotalBodyLength != 0 {
			return c.fail(fmt.Errorf("%w: delete response carries a %d byte body", ErrProtocolDesync, rh.TotalBodyLength))
		}
		return nil
	case binprot.StatusKeyNotFound:
		return nil
	}
	return &StatusError{Status: rh.Status}
}

// Increment adds amount to the counter at key, creating it with initial if
// it does not exist, and returns the new value.
func (c *Conn) Increment(key string, amount, initial uint64, ttl uint32) (uint64, error) {
	return c.counter(binprot.OpIncrement, key, amount, initial, ttl)
}

// Decrement is like Increment but subtracts; the server saturates at 0.
func (c *Conn) Decrement(key string, amount, initial uint64, ttl uint32) (uint64, error) {
	return c.counter(binprot.OpDecrement, key, amount, initial, ttl)
}

func (c *Conn) counter(op binprot.Opcode, key string, amount, initial uint64, ttl uint32) (uint64, error) {
	extras := binprot.AppendCounterExtras(c.extras[:0], amount, initial, ttl)
	rh, err := c.roundTrip(op, key, extras, nil)
	if err != nil {
		return 0, err
	}
	if rh.Status != binprot.StatusSuccess {
		if err := c.discard(rh); err != nil {
			return 0, err
		}
		return 0, &StatusError{Status: rh.Status}
	}
	if rh.ExtraLength != 0 || rh.KeyLength != 0 || rh.TotalBodyLength != binprot.CounterValueLen {
		if err := c.discard(rh); err != nil {
			return 0, err
		}
		return 0, c.fail(fmt.Errorf("%w: %s response has extras=%d key=%d body=%d",
			ErrProtocolDesync, op, rh.ExtraLength, rh.KeyLength, rh.TotalBodyLength))
	}
	body, err := c.readBody(rh)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(body), nil
}

// roundTrip writes one request and reads the matching response header. The
// returned header always has a known status and consistent lengths; the
// caller owns reading or discarding the body.
func (c *Conn) roundTrip(op binprot.Opcode, key string, extras, value []byte) (binprot.ResponseHeader, error) {
	if c.err != nil {
		return binprot.ResponseHeader{}, c.err
	}
	req, err := binprot.MakeRequestHeader(op, len(key), len(value), len(extras), 0)
	if err != nil {
		return binprot.ResponseHeader{}, err
	}

	if d := c.opts.WriteTimeout; d > 0 {
		_ = c.nc.SetWriteDeadline(time.Now().Add(d))
	}
	if err := c.writeRequest(req, key, extras, value); err != nil {
		return binprot.ResponseHeader{}, c.fail(&TransportError{Addr: c.addr, Op: "write", Err: err})
	}

	if d := c.opts.ReadTimeout; d > 0 {
		_ = c.nc.SetReadDeadline(time.Now().Add(d))
	}
	rh, err := binprot.ReadResponseHeader(c.r)
	if err != nil {
		if errors.Is(err, binprot.ErrDesync) {
			return rh, c.fail(err)
		}
		return rh, c.fail(&TransportError{Addr: c.addr, Op: "read", Err: err})
	}
	if rh.ValueLength() < 0 {
		return rh, c.fail(fmt.Errorf("%w: body length %d shorter than extras %d + key %d",
			ErrProtocolDesync, rh.TotalBodyLength, rh.ExtraLength, rh.KeyLength))
	}
	if !rh.Status.Known() {
		if err := c.discard(rh); err != nil {
			return rh, err
		}
		return rh, c.fail(fmt.Errorf("%w: unknown status 0x%04x", ErrProtocolDesync, uint16(rh.Status)))
	}
	if rh.Opcode != op {
		if err := c.discard(rh); err != nil {
			return rh, err
		}
		return rh, c.fail(fmt.Errorf("%w: sent %s, got response for %s", ErrProtocolDesync, op, rh.Opcode))
	}
	return rh, nil
}

// writeRequest sends header, extras, key and value, in that order.
func (c *Conn) writeRequest(req binprot.RequestHeader, key string, extras, value []byte) error {
	if err := binprot.WriteRequestHeader(c.w, req); err != nil {
		return err
	}
	if _, err := c.w.Write(extras); err != nil {
		return err
	}
	if _, err := c.w.WriteString(key); err != nil {
		return err
	}
	if _, err := c.w.Write(value); err != nil {
		return err
	}
	return c.w.Flush()
}

func (c *Conn) readBody(rh binprot.ResponseHeader) ([]byte, error) {
	body := make([]byte, rh.TotalBodyLength)
	if _, err := io.ReadFull(c.r, body); err != nil {
		return nil, c.fail(&TransportError{Addr: c.addr, Op: "read", Err: err})
	}
	return body, nil
}

// discard drains the response body so the stream is back at a frame boundary.
func (c *Conn) discard(rh binprot.ResponseHeader) error {
	if rh.TotalBodyLength == 0 {
		return nil
	}
	if _, err := io.CopyN(io.Discard, c.r, int64(rh.TotalBodyLength)); err != nil {
		return c.fail(&TransportError{Addr: c.addr, Op: "read", Err: err})
	}
	return nil
}

func (c *Conn) fail(err error) error {
	if c.err == nil {
		c.err = err
		c.log.Warn("connection invalidated", Fields{"addr": c.addr, "err": err})
	}
	return err
}
