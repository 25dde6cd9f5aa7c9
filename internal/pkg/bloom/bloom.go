package bloom

import (
	"context"
	_ "embed"
	"errors"

	"forumguard/internal/pkg/hash"
	"forumguard/internal/pkg/redis"
)

var (
	// ErrTooLargeOffset indicates the offset is too large in bitset.
	ErrTooLargeOffset = errors.New("too large offset")

	//go:embed set_script.lua
	setLuaScript string
	setScript    = redis.NewScript(setLuaScript)

	//go:embed get_script.lua
	getLuaScript string
	getScript    = redis.NewScript(getLuaScript)
)

// Filter is a Redis-backed Bloom filter. It fronts the bad-image registry
// so that the common case (image never seen) costs one round trip.
type Filter struct {
	bitSet         bitSetProvider
	bits           uint
	kHashFunctions uint
}

// NewBloomFilter creates a Bloom filter over the given Redis key.
func NewBloomFilter(store redis.Cache, key string, bits uint, kHashFunctions uint) *Filter {
	return &Filter{
		bits:           bits,
		bitSet:         newRedisBitSet(store, key, bits),
		kHashFunctions: kHashFunctions,
	}
}

// getLocations computes the bit locations for the given data with double
// hashing: location_i = h1 + i*h2 mod bits.
func (f *Filter) getLocations(data []byte) []uint {
	h1 := hash.Hash(data)
	h2 := hash.FastHash(data)
	locations := make([]uint, f.kHashFunctions)
	for i := uint(0); i < f.kHashFunctions; i++ {
		locations[i] = uint((h1 + uint64(i)*h2) % uint64(f.bits))
	}
	return locations
}

// Add adds the given data to the Bloom filter.
func (f *Filter) Add(ctx context.Context, data []byte) error {
	return f.bitSet.set(ctx, f.getLocations(data))
}

// Exists checks whether the given data may exist in the Bloom filter.
// False positives are possible, false negatives are not.
func (f *Filter) Exists(ctx context.Context, data []byte) (bool, error) {
	return f.bitSet.check(ctx, f.getLocations(data))
}

// Reset drops the whole bit set. Used before a registry rebuild.
func (f *Filter) Reset(ctx context.Context) error {
	return f.bitSet.del(ctx)
}
