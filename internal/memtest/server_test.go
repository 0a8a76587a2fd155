package memtest

import (
	"bufio"
	"encoding/binary"
	"io"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsp-lqk/bmemcached/internal/binprot"
)

type rawConn struct {
	t *testing.T
	c net.Conn
	r *bufio.Reader
}

func dial(t *testing.T, s *Server) *rawConn {
	c, err := net.Dial("tcp", s.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return &rawConn{t: t, c: c, r: bufio.NewReader(c)}
}

func (rc *rawConn) do(op binprot.Opcode, key string, extras, value []byte) (binprot.ResponseHeader, []byte) {
	rh, err := binprot.MakeRequestHeader(op, len(key), len(value), len(extras), 0)
	require.NoError(rc.t, err)
	w := bufio.NewWriter(rc.c)
	require.NoError(rc.t, binprot.WriteRequestHeader(w, rh))
	w.Write(extras)
	w.WriteString(key)
	w.Write(value)
	require.NoError(rc.t, w.Flush())

	res, err := binprot.ReadResponseHeader(rc.r)
	require.NoError(rc.t, err)
	body := make([]byte, res.TotalBodyLength)
	_, err = io.ReadFull(rc.r, body)
	require.NoError(rc.t, err)
	return res, body
}

func TestSetGet(t *testing.T) {
	s, err := Listen()
	require.NoError(t, err)
	defer s.Close()
	rc := dial(t, s)

	res, _ := rc.do(binprot.OpSet, "a", binprot.AppendStoreExtras(nil, 42, 0), []byte("hi"))
	assert.Equal(t, binprot.StatusSuccess, res.Status)

	res, body := rc.do(binprot.OpGet, "a", nil, nil)
	assert.Equal(t, binprot.StatusSuccess, res.Status)
	assert.Equal(t, uint8(4), res.ExtraLength)
	assert.Equal(t, uint32(42), binary.BigEndian.Uint32(body[:4]))
	assert.Equal(t, []byte("hi"), body[4:])

	res, _ = rc.do(binprot.OpGet, "missing", nil, nil)
	assert.Equal(t, binprot.StatusKeyNotFound, res.Status)
	assert.Equal(t, int64(3), s.Requests())
}

func TestEviction(t *testing.T) {
	s, err := Listen()
	require.NoError(t, err)
	defer s.Close()
	s.MaxItems = 2
	rc := dial(t, s)

	for _, k := range []string{"a", "b", "c"} {
		rc.do(binprot.OpSet, k, binprot.AppendStoreExtras(nil, 0, 0), []byte(k))
	}
	assert.Equal(t, 2, s.Len())
	res, _ := rc.do(binprot.OpGet, "a", nil, nil)
	assert.Equal(t, binprot.StatusKeyNotFound, res.Status)

	// a re-created key goes to the back of the line
	rc.do(binprot.OpDelete, "b", nil, nil)
	rc.do(binprot.OpSet, "b", binprot.AppendStoreExtras(nil, 0, 0), []byte("b"))
	rc.do(binprot.OpSet, "d", binprot.AppendStoreExtras(nil, 0, 0), []byte("d"))
	res, _ = rc.do(binprot.OpGet, "b", nil, nil)
	assert.Equal(t, binprot.StatusSuccess, res.Status)
	res, _ = rc.do(binprot.OpGet, "c", nil, nil)
	assert.Equal(t, binprot.StatusKeyNotFound, res.Status)
}

func TestCounterIsDecimalText(t *testing.T) {
	s, err := Listen()
	require.NoError(t, err)
	defer s.Close()
	rc := dial(t, s)

	res, body := rc.do(binprot.OpIncrement, "n", binprot.AppendCounterExtras(nil, 1, 41, 0), nil)
	require.Equal(t, binprot.StatusSuccess, res.Status)
	assert.Equal(t, uint64(41), binary.BigEndian.Uint64(body))
	rc.do(binprot.OpIncrement, "n", binprot.AppendCounterExtras(nil, 1, 0, 0), nil)

	_, body = rc.do(binprot.OpGet, "n", nil, nil)
	assert.Equal(t, []byte("42"), body[4:])

	res, _ = rc.do(binprot.OpIncrement, "m", binprot.AppendCounterExtras(nil, 1, 0, 0xffffffff), nil)
	assert.Equal(t, binprot.StatusKeyNotFound, res.Status)
}

func TestInjectBadMagic(t *testing.T) {
	s, err := Listen()
	require.NoError(t, err)
	defer s.Close()
	rc := dial(t, s)

	s.Inject(FaultBadMagic)
	rh, _ := binprot.MakeRequestHeader(binprot.OpGet, 1, 0, 0, 0)
	w := bufio.NewWriter(rc.c)
	require.NoError(t, binprot.WriteRequestHeader(w, rh))
	w.WriteString("k")
	require.NoError(t, w.Flush())

	_, err = binprot.ReadResponseHeader(rc.r)
	assert.ErrorIs(t, err, binprot.ErrBadMagic)
}
