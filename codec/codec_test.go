package codec_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/wrapperspb"

	client "github.com/jsp-lqk/bmemcached"
	"github.com/jsp-lqk/bmemcached/codec"
	"github.com/jsp-lqk/bmemcached/internal/memtest"
)

type data struct {
	Name  string    `json:"name" msgpack:"name" cbor:"name"`
	Count int       `json:"count" msgpack:"count" cbor:"count"`
	When  time.Time `json:"when" msgpack:"when" cbor:"when"`
}

func sample() data {
	return data{Name: "widget", Count: 3, When: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func TestCodecsRoundTrip(t *testing.T) {
	codecs := map[string]codec.Codec[data]{
		"json":    codec.JSON[data]{},
		"msgpack": codec.Msgpack[data]{},
		"cbor":    codec.MustCBOR[data](false),
		"cbordet": codec.MustCBOR[data](true),
		"snappy":  codec.Snappy[data]{Inner: codec.JSON[data]{}},
		"limit":   codec.Limit[data]{Inner: codec.Msgpack[data]{}, MaxDecode: 1024},
	}
	for name, c := range codecs {
		t.Run(name, func(t *testing.T) {
			b, err := c.Encode(sample())
			require.NoError(t, err)
			got, err := c.Decode(b)
			require.NoError(t, err)
			assert.Equal(t, sample().Name, got.Name)
			assert.Equal(t, sample().Count, got.Count)
			assert.True(t, sample().When.Equal(got.When))
		})
	}
}

func TestCBORDeterministic(t *testing.T) {
	c := codec.MustCBOR[map[string]int](true)
	a, err := c.Encode(map[string]int{"b": 2, "a": 1, "c": 3})
	require.NoError(t, err)
	b, err := c.Encode(map[string]int{"c": 3, "a": 1, "b": 2})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestLimit(t *testing.T) {
	c := codec.Limit[string]{Inner: codec.JSON[string]{}, MaxDecode: 8}
	b, err := c.Encode(strings.Repeat("x", 20))
	require.NoError(t, err)
	_, err = c.Decode(b)
	assert.ErrorIs(t, err, codec.ErrTooLarge)
}

func TestProtobuf(t *testing.T) {
	c := codec.NewProtobuf(func() *wrapperspb.StringValue { return &wrapperspb.StringValue{} })
	b, err := c.Encode(wrapperspb.String("hello"))
	require.NoError(t, err)
	got, err := c.Decode(b)
	require.NoError(t, err)
	assert.True(t, proto.Equal(wrapperspb.String("hello"), got))
}

func startConn(t *testing.T) *client.Conn {
	s, err := memtest.Listen()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	c, err := client.Dial(s.Addr(), client.ConnOptions{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestBinding(t *testing.T) {
	c := startConn(t)
	b := codec.Bind[data](codec.JSON[data]{}, client.TypeUserDefined1)

	require.NoError(t, c.Set("data", b.Value(sample()), 0))
	got, err := b.Get(c, "data")
	require.NoError(t, err)
	assert.Equal(t, "widget", got.Name)

	it, err := c.GetItem("data")
	require.NoError(t, err)
	assert.Equal(t, client.TypeUserDefined1, it.Flags)

	// the serialized form is readable as raw bytes
	raw, err := client.Get[[]byte](c, "data")
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"name":"widget"`)

	other := codec.Bind[data](codec.JSON[data]{}, client.TypeUserDefined2)
	_, err = other.Get(c, "data")
	var tm *client.TypeMismatchError
	require.ErrorAs(t, err, &tm)
	assert.Equal(t, client.TypeUserDefined1, tm.Flags)

	_, err = b.Get(c, "missing")
	assert.ErrorIs(t, err, client.ErrKeyNotFound)
}

func TestCompressedBinding(t *testing.T) {
	c := startConn(t)
	plain := codec.Bind[data](codec.Msgpack[data]{}, client.TypeUserDefined5)
	packed := plain.Compressed()
	assert.Equal(t, client.TypeUserDefined5|client.TypeCompressed, packed.Flags())

	require.NoError(t, c.Set("packed", packed.Value(sample()), 0))
	got, err := packed.Get(c, "packed")
	require.NoError(t, err)
	assert.Equal(t, 3, got.Count)

	it, err := c.GetItem("packed")
	require.NoError(t, err)
	assert.True(t, it.Flags.Has(client.TypeCompressed))
	decoded, err := packed.Decode(it.Flags, it.Value)
	require.NoError(t, err)
	assert.Equal(t, "widget", decoded.Name)

	// the compressed binding refuses values written without compression
	require.NoError(t, c.Set("plain", plain.Value(sample()), 0))
	_, err = packed.Get(c, "plain")
	var tm *client.TypeMismatchError
	assert.ErrorAs(t, err, &tm)
}
