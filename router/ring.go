package router

import (
	"sort"
	"strconv"
)

type point struct {
	hash uint64
	node int
}

// Ring is a consistent-hash ring. Each node owns vnodes positions derived
// from its name; a key belongs to the first position at or after its hash,
// wrapping to the lowest position.
type Ring struct {
	points []point
	nodes  int
}

// NewRing places names on the ring. Names must be unique, otherwise their
// positions collide. vnodes below 1 is treated as 1.
func NewRing(names []string, vnodes int) *Ring {
	if vnodes < 1 {
		vnodes = 1
	}
	r := &Ring{
		points: make([]point, 0, len(names)*vnodes),
		nodes:  len(names),
	}
	for i, name := range names {
		for v := 0; v < vnodes; v++ {
			r.points = append(r.points, point{hash: stringToUint64(vnodeName(name, v)), node: i})
		}
	}
	sort.Slice(r.points, func(i, j int) bool {
		if r.points[i].hash == r.points[j].hash {
			return r.points[i].node < r.points[j].node
		}
		return r.points[i].hash < r.points[j].hash
	})
	return r
}

func vnodeName(name string, v int) string {
	return name + "-" + strconv.Itoa(v)
}

func (r *Ring) Route(key string) int {
	if len(r.points) == 0 {
		return -1
	}
	h := stringToUint64(key)
	i := sort.Search(len(r.points), func(i int) bool { return r.points[i].hash >= h })
	if i == len(r.points) {
		i = 0
	}
	return r.points[i].node
}

func (r *Ring) Len() int { return r.nodes }
