package sync

import (
	"hash/fnv"
	"sync"
)

// ShardCount is the number of lock shards.
const ShardCount = 32

// ShardedRWMutex spreads per-key locking over a fixed set of RW locks so that
// readers and writers of unrelated keys rarely contend.
type ShardedRWMutex struct {
	shards [ShardCount]sync.RWMutex
}

func NewShardedRWMutex() *ShardedRWMutex {
	return &ShardedRWMutex{}
}

func (m *ShardedRWMutex) Lock(key string)    { m.shards[Shard(key)].Lock() }
func (m *ShardedRWMutex) Unlock(key string)  { m.shards[Shard(key)].Unlock() }
func (m *ShardedRWMutex) RLock(key string)   { m.shards[Shard(key)].RLock() }
func (m *ShardedRWMutex) RUnlock(key string) { m.shards[Shard(key)].RUnlock() }

// Shard returns the shard index for key. Callers that keep per-shard data
// (maps, counters) index it with the same function so data and lock line up.
// Empty keys map to shard 0.
func Shard(key string) int {
	if key == "" {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % ShardCount)
}
