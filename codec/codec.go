// Package codec stores structured Go values through the client's
// user-defined flag bits.
//
//	users := codec.Bind[User](codec.JSON[User]{}, client.TypeUserDefined1)
//	err := c.Set("user:1", users.Value(u), 0)
//	u, err := users.Get(c, "user:1")
package codec

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}
