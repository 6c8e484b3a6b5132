// Package lru provides the least-recently-used eviction strategy: cold
// cache entries go first, originals and variants alike.
package lru

import (
	"container/list"
	"sync"

	"github.com/resizr/resizr/internal/eviction"
)

type entry struct {
	key  string
	size int64
}

// LRU implements eviction.Strategy. Recently read or written entries sit
// at the front of the list; victims are taken from the back.
type LRU struct {
	mu    sync.Mutex
	list  *list.List
	items map[string]*list.Element
}

func init() {
	eviction.Register("lru", func() eviction.Strategy {
		return New()
	})
}

func New() *LRU {
	return &LRU{
		list:  list.New(),
		items: make(map[string]*list.Element),
	}
}

func (l *LRU) OnAdd(key string, size int64) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	if elem, ok := l.items[key]; ok {
		l.list.MoveToFront(elem)
		ent := elem.Value.(*entry)
		diff := size - ent.size
		ent.size = size
		return diff
	}

	l.items[key] = l.list.PushFront(&entry{key: key, size: size})
	return size
}

func (l *LRU) OnAccess(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if elem, ok := l.items[key]; ok {
		l.list.MoveToFront(elem)
	}
}

func (l *LRU) Remove(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if elem, ok := l.items[key]; ok {
		l.list.Remove(elem)
		delete(l.items, key)
	}
}

func (l *LRU) GetVictims(currentSize int64, targetSize int64) []eviction.Victim {
	l.mu.Lock()
	defer l.mu.Unlock()

	var victims []eviction.Victim
	size := currentSize

	for elem := l.list.Back(); size > targetSize && elem != nil; elem = elem.Prev() {
		ent := elem.Value.(*entry)
		victims = append(victims, eviction.Victim{Key: ent.key, Size: ent.size})
		size -= ent.size
	}
	return victims
}
