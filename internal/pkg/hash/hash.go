package hash

import (
	"github.com/cespare/xxhash/v2"
	"github.com/spaolacci/murmur3"
)

// Hash returns the murmur3 hash of data, used for bloom filter bit locations.
func Hash(data []byte) uint64 {
	return murmur3.Sum64(data)
}

// FastHash returns the xxhash digest of data. Paired with Hash for
// double-hashing bit location schemes.
func FastHash(data []byte) uint64 {
	return xxhash.Sum64(data)
}
