package router

import "github.com/dgryski/go-jump"

// Jump routes with jump consistent hashing. It keeps no per-node state, so
// node names do not matter, only their count and order.
type Jump struct {
	n int
}

func NewJump(n int) *Jump {
	return &Jump{n: n}
}

func (r *Jump) Route(key string) int {
	if r.n <= 0 {
		return -1
	}
	return int(jump.Hash(stringToUint64(key), r.n))
}

func (r *Jump) Len() int { return r.n }
