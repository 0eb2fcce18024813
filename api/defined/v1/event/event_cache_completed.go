package event

// CacheCompletedKey marks the topic emitted after a product has been
// committed to the cache.
const CacheCompletedKey Kind = "cache.completed"

var CacheCompletedTopic = NewTopicKey[CacheCompleted](CacheCompletedKey)

// CacheCompleted describes a product that became retrievable from the cache.
type CacheCompleted interface {
	// Kind returns the topic identifier.
	Kind() Kind
	// StoreKey is the cache key of the product.
	StoreKey() string
	// StorePath reports where the data is persisted, empty for memory buckets.
	StorePath() string
	FileName() string
	// ContentLength is the total payload size.
	ContentLength() int64
	// Checksum is the xxhash64 of the content.
	Checksum() uint64
}
