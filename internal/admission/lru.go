// Package admission provides LRU tracking for detector patterns.
package admission

import "container/list"

// lruKeys tracks identifiers in least-recently-used order so the detector's
// pattern map stays bounded.
type lruKeys struct {
	max   int
	items map[string]*list.Element
	order *list.List
}

func newLRUKeys(max int) *lruKeys {
	if max < 0 {
		max = 0
	}
	return &lruKeys{
		max:   max,
		items: make(map[string]*list.Element),
		order: list.New(),
	}
}

// touch marks a key as most recently used, inserting it when new.
func (lru *lruKeys) touch(key string) {
	if lru == nil {
		return
	}
	if element, ok := lru.items[key]; ok {
		lru.order.MoveToFront(element)
		return
	}
	lru.items[key] = lru.order.PushFront(key)
}

// remove deletes a key.
func (lru *lruKeys) remove(key string) {
	if lru == nil {
		return
	}
	element, ok := lru.items[key]
	if !ok {
		return
	}
	lru.order.Remove(element)
	delete(lru.items, key)
}

// evictOverflow evicts least recently used keys until size <= max and
// returns the evicted keys.
func (lru *lruKeys) evictOverflow() []string {
	if lru == nil || len(lru.items) <= lru.max {
		return nil
	}
	count := len(lru.items) - lru.max
	evicted := make([]string, 0, count)
	for i := 0; i < count; i++ {
		element := lru.order.Back()
		if element == nil {
			break
		}
		key := element.Value.(string)
		evicted = append(evicted, key)
		lru.order.Remove(element)
		delete(lru.items, key)
	}
	return evicted
}
