package session

import (
	"fmt"
	"hash/fnv"
	"sync"
)

// DefaultShards is the shard count used when NewRegistry is given a non-positive value.
const DefaultShards = 32

// Registry is a sharded, concurrent map from session id to Handle. Each shard
// has its own lock, so operations on sessions in different shards never
// contend. Removed ids are remembered and can never be inserted again.
type Registry struct {
	shards []*registryShard
	mask   uint32
}

type registryShard struct {
	mu      sync.RWMutex
	handles map[string]*Handle
	retired map[string]struct{}
}

// NewRegistry constructs a registry with shardCount shards, rounded up to a power of two.
func NewRegistry(shardCount int) *Registry {
	if shardCount <= 0 {
		shardCount = DefaultShards
	}
	n := nextPowerOfTwo(uint32(shardCount))
	shards := make([]*registryShard, n)
	for i := range shards {
		shards[i] = &registryShard{
			handles: make(map[string]*Handle),
			retired: make(map[string]struct{}),
		}
	}
	return &Registry{shards: shards, mask: n - 1}
}

func (r *Registry) shard(id string) *registryShard {
	return r.shards[fnv32(id)&r.mask]
}

// Insert publishes s under its id and returns the new handle. A collision
// with a live or previously removed id is an invariant violation.
func (r *Registry) Insert(s *Session) (*Handle, error) {
	sh := r.shard(s.id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if _, ok := sh.handles[s.id]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateID, s.id)
	}
	if _, ok := sh.retired[s.id]; ok {
		return nil, fmt.Errorf("%w: %s (removed)", ErrDuplicateID, s.id)
	}

	h := newHandle(s)
	sh.handles[s.id] = h
	return h, nil
}

// Get looks up the handle for id.
func (r *Registry) Get(id string) (*Handle, bool) {
	sh := r.shard(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	h, ok := sh.handles[id]
	return h, ok
}

// Remove detaches id from future lookups. Handles already obtained stay valid.
// The id is kept as a tombstone for the life of the registry, so memory grows
// by one map entry per removed session; RetiredCount reports how many.
func (r *Registry) Remove(id string) (*Handle, bool) {
	sh := r.shard(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	h, ok := sh.handles[id]
	if !ok {
		return nil, false
	}
	delete(sh.handles, id)
	sh.retired[id] = struct{}{}
	return h, true
}

// ListIDs returns the registered ids in no particular order. The result may
// be stale by the time the caller uses it.
func (r *Registry) ListIDs() []string {
	ids := make([]string, 0, r.Count())
	for _, sh := range r.shards {
		sh.mu.RLock()
		for id := range sh.handles {
			ids = append(ids, id)
		}
		sh.mu.RUnlock()
	}
	return ids
}

// RetiredCount returns the number of removed ids the registry still holds.
func (r *Registry) RetiredCount() int {
	n := 0
	for _, sh := range r.shards {
		sh.mu.RLock()
		n += len(sh.retired)
		sh.mu.RUnlock()
	}
	return n
}

// Count returns the number of registered sessions.
func (r *Registry) Count() int {
	n := 0
	for _, sh := range r.shards {
		sh.mu.RLock()
		n += len(sh.handles)
		sh.mu.RUnlock()
	}
	return n
}

// Contains reports whether id is registered.
func (r *Registry) Contains(id string) bool {
	_, ok := r.Get(id)
	return ok
}

// fnv32 hashes a string to uint32.
func fnv32(key string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(key))
	return h.Sum32()
}

// nextPowerOfTwo returns the next power-of-two >= v.
func nextPowerOfTwo(v uint32) uint32 {
	if v == 0 {
		return 1
	}
	v--
	v |= v >> 1
	v |= v >> 2
	v |= v >> 4
	v |= v >> 8
	v |= v >> 16
	v++
	return v
}
