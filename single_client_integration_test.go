//go:build integration

package client

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSingleConnection(t *testing.T) {
	ctx, memcachedContainer, addr := setup(t)
	defer memcachedContainer.Terminate(ctx)

	textProtocolInterop(t, addr)
	triggerTimeout(t, addr)
}

// values written over the binary protocol are visible to a text protocol
// client with the same flags, and the other way round
func textProtocolInterop(t *testing.T, addr string) {
	c, err := Dial(addr, ConnOptions{DialTimeout: time.Second})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	mc := memcache.New(addr)

	require.NoError(t, c.Set("interop-str", "World", 0))
	it, err := mc.Get("interop-str")
	require.NoError(t, err)
	assert.Equal(t, []byte("World"), it.Value)
	assert.Equal(t, uint32(TypeString), it.Flags)

	require.NoError(t, c.Set("interop-u64", uint64(42), 0))
	it, err = mc.Get("interop-u64")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), binary.BigEndian.Uint64(it.Value))
	assert.Equal(t, uint32(TypeU64), it.Flags)

	require.NoError(t, mc.Set(&memcache.Item{Key: "from-text", Value: []byte{0, 7}, Flags: uint32(TypeU16)}))
	v, err := Get[uint16](c, "from-text")
	require.NoError(t, err)
	assert.Equal(t, uint16(7), v)

	require.NoError(t, mc.Set(&memcache.Item{Key: "untyped", Value: []byte("x")}))
	_, err = Get[string](c, "untyped")
	var tm *TypeMismatchError
	require.ErrorAs(t, err, &tm)
	assert.Equal(t, StoredType(0), tm.Flags)

	require.NoError(t, mc.Delete("interop-str"))
	_, err = c.GetItem("interop-str")
	assert.ErrorIs(t, err, ErrKeyNotFound)
	assert.NoError(t, c.Err())
}

func triggerTimeout(t *testing.T, addr string) {
	c, err := New([]string{addr}, Options{ConnectionsPerAddress: 4, ReadTimeout: time.Microsecond})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	var wg sync.WaitGroup
	var timeoutHit atomic.Bool

	for i := 0; i < 500; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := c.Set(fmt.Sprintf("key-%d", i), []byte(fmt.Sprintf("value-%d", i)), 0)
			if errors.Is(err, ErrTimeout) {
				timeoutHit.Store(true)
			}
		}(i)
	}
	wg.Wait()
	assert.True(t, timeoutHit.Load(), "Expected to hit the timeout")
}
