// Package shard hashes a deviceId to a fixed worker slot so that every
// per-device operation (ingest, alert evaluation, presence transition) that
// routes through the same slot is serialized without a global lock, while
// unrelated devices proceed in parallel.
package shard

import (
	"hash/fnv"
	"sync"
)

// Slots is a fixed-size pool of mutexes. Index selection is a pure function
// of deviceId, so two calls for the same device always contend on the same
// mutex, and calls for different devices usually don't.
type Slots struct {
	mus []sync.Mutex
}

func New(n int) *Slots {
	if n <= 0 {
		n = 1
	}
	return &Slots{mus: make([]sync.Mutex, n)}
}

func (s *Slots) indexFor(deviceID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(deviceID))
	return int(h.Sum32()) % len(s.mus)
}

// With runs fn while holding the slot for deviceID. fn must not block on a
// suspension point that depends on another device's slot, or it risks
// holding the lock across an I/O wait.
func (s *Slots) With(deviceID string, fn func()) {
	i := s.indexFor(deviceID)
	s.mus[i].Lock()
	defer s.mus[i].Unlock()
	fn()
}
