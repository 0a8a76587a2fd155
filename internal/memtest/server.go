// Package memtest is an in-process memcached binary protocol server for
// tests. It implements get, set, add, replace, delete, increment and
// decrement, and can be told to corrupt its next response.
package memtest

import (
	"bufio"
	"encoding/binary"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/edwingeng/deque/v2"

	"github.com/jsp-lqk/bmemcached/internal/binprot"
)

// statusNonNumeric is what memcached answers for incr/decr on a value that
// is not a decimal number. Clients only know five statuses, so this one is
// useful for exercising desync handling too.
const statusNonNumeric binprot.Status = 0x0006

// Fault corrupts the response to one request.
type Fault int

const (
	FaultNone          Fault = iota
	FaultBadMagic            // response magic is 0x80
	FaultUnknownStatus       // status 0x0086 with an empty body
	FaultBadGetExtras        // get response with 2 bytes of extras
	FaultWrongOpcode         // response echoes a different opcode
	FaultCounterBody         // counter response with a 4 byte body
	FaultDeleteBody          // delete success with a body
	FaultStall               // read the request, never answer
	FaultHangup              // close the connection instead of answering
)

type entry struct {
	data    []byte
	flags   uint32
	exptime time.Time
	seq     uint64
}

type slot struct {
	key string
	seq uint64
}

func (e entry) expired(now time.Time) bool {
	return !e.exptime.IsZero() && !now.Before(e.exptime)
}

type Server struct {
	// MaxItems bounds the store; the oldest writes are evicted first.
	// 0 means unbounded.
	MaxItems int

	ln     net.Listener
	mu     sync.Mutex
	data   map[string]entry
	order  *deque.Deque[slot]
	seq    uint64
	conns  map[net.Conn]struct{}
	fault  atomic.Int64
	reqs   atomic.Int64
	wg     sync.WaitGroup
	once   sync.Once
	closed chan struct{}
}

// Listen starts a server on a random loopback port.
func Listen() (*Server, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	s := &Server{
		ln:     ln,
		data:   make(map[string]entry),
		order:  deque.NewDeque[slot](),
		conns:  make(map[net.Conn]struct{}),
		closed: make(chan struct{}),
	}
	s.wg.Add(1)
	go s.serve()
	return s, nil
}

func (s *Server) Addr() string { return s.ln.Addr().String() }

// Requests is the number of request frames read so far.
func (s *Server) Requests() int64 { return s.reqs.Load() }

// Inject arms f for the next request on any connection.
func (s *Server) Inject(f Fault) { s.fault.Store(int64(f)) }

// Len is the number of live items.
func (s *Server) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	n := 0
	for _, e := range s.data {
		if !e.expired(now) {
			n++
		}
	}
	return n
}

// Close stops the listener and drops every open connection. It is safe to
// call more than once.
func (s *Server) Close() error {
	var err error
	s.once.Do(func() {
		close(s.closed)
		err = s.ln.Close()
		s.mu.Lock()
		for c := range s.conns {
			_ = c.Close()
		}
		s.mu.Unlock()
		s.wg.Wait()
	})
	return err
}

func (s *Server) serve() {
	defer s.wg.Done()
	for {
		c, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		select {
		case <-s.closed:
			s.mu.Unlock()
			_ = c.Close()
			return
		default:
		}
		s.conns[c] = struct{}{}
		s.mu.Unlock()
		s.wg.Add(1)
		go s.handle(c)
	}
}

func (s *Server) handle(c net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, c)
		s.mu.Unlock()
		_ = c.Close()
	}()

	r := bufio.NewReader(c)
	w := bufio.NewWriter(c)
	for {
		req, err := binprot.ReadRequestHeader(r)
		if err != nil || req.ValueLength() < 0 {
			return
		}
		body := make([]byte, req.TotalBodyLength)
		if _, err := io.ReadFull(r, body); err != nil {
			return
		}
		s.reqs.Add(1)

		extras := body[:req.ExtraLength]
		key := string(body[req.ExtraLength : int(req.ExtraLength)+int(req.KeyLength)])
		value := body[int(req.ExtraLength)+int(req.KeyLength):]

		f := Fault(s.fault.Swap(int64(FaultNone)))
		switch f {
		case FaultStall:
			<-s.closed
			return
		case FaultHangup:
			return
		}

		res := s.apply(req.Opcode, key, extras, value)
		res.opaque = req.OpaqueToken
		res.corrupt(f)
		if err := res.write(w); err != nil {
			return
		}
	}
}

type response struct {
	opcode binprot.Opcode
	status binprot.Status
	extras []byte
	value  []byte
	opaque uint32
	magic  uint8
}

func (res *response) corrupt(f Fault) {
	switch f {
	case FaultBadMagic:
		res.magic = binprot.MagicRequest
	case FaultUnknownStatus:
		res.status = 0x0086
		res.extras, res.value = nil, nil
	case FaultBadGetExtras:
		res.extras = []byte{0, 0}
	case FaultWrongOpcode:
		res.opcode ^= 0x01
	case FaultCounterBody:
		res.value = []byte{0, 0, 0, 1}
	case FaultDeleteBody:
		res.value = []byte("surprise")
	}
}

func (res *response) write(w *bufio.Writer) error {
	rh := binprot.MakeResponseHeader(res.opcode, res.status, 0, len(res.value), len(res.extras), res.opaque)
	if res.magic != 0 {
		rh.Magic = res.magic
	}
	if err := binprot.WriteResponseHeader(w, rh); err != nil {
		return err
	}
	if _, err := w.Write(res.extras); err != nil {
		return err
	}
	if _, err := w.Write(res.value); err != nil {
		return err
	}
	return w.Flush()
}

func (s *Server) apply(op binprot.Opcode, key string, extras, value []byte) *response {
	res := &response{opcode: op}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	cur, ok := s.data[key]
	if ok && cur.expired(now) {
		delete(s.data, key)
		ok = false
	}

	switch op {
	case binprot.OpGet:
		if !ok {
			res.status = binprot.StatusKeyNotFound
			res.value = []byte("Not found")
			return res
		}
		res.extras = binary.BigEndian.AppendUint32(nil, cur.flags)
		res.value = cur.data

	case binprot.OpSet, binprot.OpAdd, binprot.OpReplace:
		flags, exp, valid := binprot.ParseStoreExtras(extras)
		if !valid {
			res.status = binprot.StatusUnknownCommand
			return res
		}
		if op == binprot.OpAdd && ok {
			res.status = binprot.StatusKeyExists
			res.value = []byte("Data exists for key.")
			return res
		}
		if op == binprot.OpReplace && !ok {
			res.status = binprot.StatusKeyNotFound
			res.value = []byte("Not found")
			return res
		}
		s.put(key, entry{data: append([]byte(nil), value...), flags: flags, exptime: expiry(now, exp)})

	case binprot.OpDelete:
		if !ok {
			res.status = binprot.StatusKeyNotFound
			res.value = []byte("Not found")
			return res
		}
		delete(s.data, key)

	case binprot.OpIncrement, binprot.OpDecrement:
		amount, initial, exp, valid := binprot.ParseCounterExtras(extras)
		if !valid {
			res.status = binprot.StatusUnknownCommand
			return res
		}
		var n uint64
		if !ok {
			// 0xffffffff asks the server not to create the counter
			if exp == 0xffffffff {
				res.status = binprot.StatusKeyNotFound
				res.value = []byte("Not found")
				return res
			}
			n = initial
			cur = entry{exptime: expiry(now, exp)}
		} else {
			v, err := strconv.ParseUint(string(cur.data), 10, 64)
			if err != nil {
				res.status = statusNonNumeric
				res.value = []byte("Non-numeric server-side value for incr or decr")
				return res
			}
			switch {
			case op == binprot.OpIncrement:
				n = v + amount
			case amount > v:
				n = 0
			default:
				n = v - amount
			}
		}
		cur.data = strconv.AppendUint(nil, n, 10)
		s.put(key, cur)
		res.value = binary.BigEndian.AppendUint64(nil, n)

	default:
		res.status = binprot.StatusUnknownCommand
		res.value = []byte("Unknown command")
	}
	return res
}

// put stores e and evicts the oldest keys past MaxItems. Must hold mu.
func (s *Server) put(key string, e entry) {
	if old, exists := s.data[key]; exists {
		e.seq = old.seq
	} else {
		s.seq++
		e.seq = s.seq
		s.order.PushBack(slot{key: key, seq: e.seq})
	}
	s.data[key] = e
	for s.MaxItems > 0 && len(s.data) > s.MaxItems && s.order.Len() > 0 {
		sl := s.order.PopFront()
		// slots of deleted or re-created keys are stale
		if cur, ok := s.data[sl.key]; ok && cur.seq == sl.seq {
			delete(s.data, sl.key)
		}
	}
}

// expiry follows memcached: values up to 30 days are relative seconds,
// larger ones are unix timestamps.
func expiry(now time.Time, exp uint32) time.Time {
	switch {
	case exp == 0:
		return time.Time{}
	case exp <= 60*60*24*30:
		return now.Add(time.Duration(exp) * time.Second)
	default:
		return time.Unix(int64(exp), 0)
	}
}
