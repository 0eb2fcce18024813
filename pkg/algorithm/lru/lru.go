package lru

import (
	"container/list"
	"sync"
)

type Eviction[K comparable, V any] struct {
	Key   K
	Value V
}

// Cache is a least-frequently-used cache. Entries with the same frequency
// are evicted oldest first.
type Cache[K comparable, V any] struct {
	// If len > UpperBound, cache will automatically evict
	// down to LowerBound.  If either value is 0, this behavior
	// is disabled.
	UpperBound int
	LowerBound int
	// EvictionChannel receives every evicted entry. Sends happen after the
	// cache lock is released, so a consumer may call back into the cache.
	EvictionChannel chan<- Eviction[K, V]

	values map[K]*cacheEntry[K, V]
	freqs  *list.List
	len    int
	lock   sync.Mutex
}

type cacheEntry[K comparable, V any] struct {
	key      K
	value    V
	freqNode *list.Element
}

type listEntry[K comparable, V any] struct {
	entries *list.List // of *cacheEntry, oldest first
	index   map[*cacheEntry[K, V]]*list.Element
	freq    int
}

func New[K comparable, V any](cap int) *Cache[K, V] {
	c := &Cache[K, V]{
		values: make(map[K]*cacheEntry[K, V]),
		freqs:  list.New(),
	}
	if cap > 0 {
		c.UpperBound = cap
		c.LowerBound = cap
	}
	return c
}

// Has checks if the cache contains the given key, without incrementing the frequency.
func (c *Cache[K, V]) Has(key K) bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	_, has := c.values[key]
	return has
}

// Get retrieves the key's value if it exists, incrementing the frequency.
// It returns nil if there is no value for the given key.
func (c *Cache[K, V]) Get(key K) *V {
	c.lock.Lock()
	defer c.lock.Unlock()
	if e, ok := c.values[key]; ok {
		c.increment(e)
		v := e.value
		return &v
	}
	return nil
}

// Peek retrieves the key's value without touching its frequency.
func (c *Cache[K, V]) Peek(key K) *V {
	c.lock.Lock()
	defer c.lock.Unlock()
	if e, ok := c.values[key]; ok {
		v := e.value
		return &v
	}
	return nil
}

// Set sets given key-value in the cache.
// If the key-value already exists, it increases the frequency.
func (c *Cache[K, V]) Set(key K, value V) {
	c.lock.Lock()
	var evicted []Eviction[K, V]
	if e, ok := c.values[key]; ok {
		e.value = value
		c.increment(e)
	} else {
		e := &cacheEntry[K, V]{key: key, value: value}
		c.values[key] = e
		c.increment(e)
		c.len++
		if c.UpperBound > 0 && c.LowerBound > 0 && c.len > c.UpperBound {
			evicted = c.evict(c.len - c.LowerBound)
		}
	}
	c.lock.Unlock()

	c.notify(evicted)
}

// Remove deletes key without reporting it on the eviction channel.
func (c *Cache[K, V]) Remove(key K) bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	e, ok := c.values[key]
	if !ok {
		return false
	}
	delete(c.values, key)
	c.remEntry(e.freqNode, e)
	c.len--
	return true
}

// Purge drops every entry.
func (c *Cache[K, V]) Purge() {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.values = make(map[K]*cacheEntry[K, V])
	c.freqs.Init()
	c.len = 0
}

// Len returns the length of the cache
func (c *Cache[K, V]) Len() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.len
}

// GetFrequency returns the frequency count of the given key
func (c *Cache[K, V]) GetFrequency(key K) int {
	c.lock.Lock()
	defer c.lock.Unlock()
	if e, ok := c.values[key]; ok {
		return e.freqNode.Value.(*listEntry[K, V]).freq
	}
	return 0
}

// Keys returns all the keys in the cache
func (c *Cache[K, V]) Keys() []K {
	c.lock.Lock()
	defer c.lock.Unlock()
	keys := make([]K, 0, len(c.values))
	for k := range c.values {
		keys = append(keys, k)
	}
	return keys
}

// TopK returns up to k keys ordered by descending frequency.
func (c *Cache[K, V]) TopK(k int) []K {
	c.lock.Lock()
	defer c.lock.Unlock()

	if k <= 0 {
		return nil
	}

	keys := make([]K, 0, k)
	for place := c.freqs.Back(); place != nil && len(keys) < k; place = place.Prev() {
		le := place.Value.(*listEntry[K, V])
		// newest first inside the same frequency
		for el := le.entries.Back(); el != nil && len(keys) < k; el = el.Prev() {
			keys = append(keys, el.Value.(*cacheEntry[K, V]).key)
		}
	}
	return keys
}

// Evict removes up to count of the least frequently used entries.
func (c *Cache[K, V]) Evict(count int) int {
	c.lock.Lock()
	evicted := c.evict(count)
	c.lock.Unlock()

	c.notify(evicted)
	return len(evicted)
}

func (c *Cache[K, V]) notify(evicted []Eviction[K, V]) {
	if c.EvictionChannel == nil {
		return
	}
	for _, ev := range evicted {
		c.EvictionChannel <- ev
	}
}

func (c *Cache[K, V]) evict(count int) []Eviction[K, V] {
	// No lock here so it can be called
	// from within the lock (during Set)
	var evicted []Eviction[K, V]
	for place := c.freqs.Front(); place != nil && len(evicted) < count; place = c.freqs.Front() {
		le := place.Value.(*listEntry[K, V])
		for el := le.entries.Front(); el != nil && len(evicted) < count; el = le.entries.Front() {
			entry := el.Value.(*cacheEntry[K, V])
			evicted = append(evicted, Eviction[K, V]{Key: entry.key, Value: entry.value})
			delete(c.values, entry.key)
			c.remEntry(place, entry)
			c.len--
		}
	}
	return evicted
}

func (c *Cache[K, V]) increment(e *cacheEntry[K, V]) {
	currentPlace := e.freqNode
	var nextFreq int
	var nextPlace *list.Element
	if currentPlace == nil {
		// new entry
		nextFreq = 1
		nextPlace = c.freqs.Front()
	} else {
		// move up
		nextFreq = currentPlace.Value.(*listEntry[K, V]).freq + 1
		nextPlace = currentPlace.Next()
	}

	if nextPlace == nil || nextPlace.Value.(*listEntry[K, V]).freq != nextFreq {
		li := &listEntry[K, V]{
			entries: list.New(),
			index:   make(map[*cacheEntry[K, V]]*list.Element),
			freq:    nextFreq,
		}
		if currentPlace != nil {
			nextPlace = c.freqs.InsertAfter(li, currentPlace)
		} else {
			nextPlace = c.freqs.PushFront(li)
		}
	}
	e.freqNode = nextPlace
	le := nextPlace.Value.(*listEntry[K, V])
	le.index[e] = le.entries.PushBack(e)
	if currentPlace != nil {
		c.remEntry(currentPlace, e)
	}
}

func (c *Cache[K, V]) remEntry(place *list.Element, entry *cacheEntry[K, V]) {
	le := place.Value.(*listEntry[K, V])
	if el, ok := le.index[entry]; ok {
		le.entries.Remove(el)
		delete(le.index, entry)
	}
	if le.entries.Len() == 0 {
		c.freqs.Remove(place)
	}
}
