package utils

import "sync"

// SyncMap 是 sync.Map 的泛型包装
type SyncMap[K comparable, V any] struct {
	m sync.Map
}

func (sm *SyncMap[K, V]) Load(key K) (value V, ok bool) {
	v, ok := sm.m.Load(key)
	if !ok {
		return value, false
	}
	return v.(V), true
}

func (sm *SyncMap[K, V]) Store(key K, value V) {
	sm.m.Store(key, value)
}

func (sm *SyncMap[K, V]) LoadOrStore(key K, value V) (actual V, loaded bool) {
	v, loaded := sm.m.LoadOrStore(key, value)
	return v.(V), loaded
}

func (sm *SyncMap[K, V]) LoadAndDelete(key K) (value V, loaded bool) {
	v, loaded := sm.m.LoadAndDelete(key)
	if !loaded {
		return value, false
	}
	return v.(V), true
}

func (sm *SyncMap[K, V]) Delete(key K) {
	sm.m.Delete(key)
}

// Range 遍历，f 返回 false 时停止
func (sm *SyncMap[K, V]) Range(f func(key K, value V) bool) {
	sm.m.Range(func(key, value any) bool {
		return f(key.(K), value.(V))
	})
}

// Len 遍历计数，仅用于调试和测试
func (sm *SyncMap[K, V]) Len() int {
	n := 0
	sm.m.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
