package service

import (
	"hash/fnv"
	"sync"
)

const lockShards = 64

// keyedMutex serializes operations sharing a key. Keys are hashed onto a
// fixed shard set, so unrelated tickets rarely contend and memory stays
// bounded regardless of ticket count.
type keyedMutex struct {
	shards [lockShards]sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{}
}

// lock acquires the shard for key and returns its unlock function.
func (m *keyedMutex) lock(key string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	shard := &m.shards[h.Sum32()%lockShards]
	shard.Lock()
	return shard.Unlock
}
