package net

import (
	"errors"
	"fmt"
	"sync"
)

var ErrNoPortsAvailable = errors.New("no ports available")

// The Portranger interface hands out pairs of consecutive UDP ports for RTP and RTCP
// from a pool. The RTP port is always even.
type Portranger interface {
	// Get returns a free port pair. The ports are marked as used until they are put back.
	Get() (rtp, rtcp int, err error)

	// Put returns the pair with the given RTP port to the pool. Ports that are not
	// in use or not in the range are ignored.
	Put(rtp int)
}

type portrange struct {
	// First even port of the range
	min int

	// used[i] is true if the pair starting at min+2*i is in use
	used []bool

	// Smallest index in used that is free, -1 if all are in use
	next int

	lock sync.Mutex
}

// NewPortrange returns a Portranger for the ports between min and max, including.
// The range is clamped to 1..65535 and must contain at least one pair.
func NewPortrange(min, max int) (Portranger, error) {
	if min <= 0 {
		min = 1
	}

	if max > 65535 {
		max = 65535
	}

	if min%2 == 1 {
		min++
	}

	pairs := (max - min + 1) / 2
	if pairs <= 0 {
		return nil, fmt.Errorf("invalid port range [%d,%d]", min, max)
	}

	r := &portrange{
		min:  min,
		used: make([]bool, pairs),
	}

	return r, nil
}

func (r *portrange) Get() (int, int, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	if r.next == -1 {
		return -1, -1, fmt.Errorf("range [%d,%d]: %w", r.min, r.min+2*len(r.used)-1, ErrNoPortsAvailable)
	}

	index := r.next
	r.used[index] = true

	r.next = -1
	for i := index + 1; i < len(r.used); i++ {
		if !r.used[i] {
			r.next = i
			break
		}
	}

	port := r.min + 2*index

	return port, port + 1, nil
}

func (r *portrange) Put(port int) {
	r.lock.Lock()
	defer r.lock.Unlock()

	if port < r.min || (port-r.min)%2 != 0 {
		return
	}

	index := (port - r.min) / 2
	if index >= len(r.used) {
		return
	}

	r.used[index] = false

	if index < r.next || r.next == -1 {
		r.next = index
	}
}
