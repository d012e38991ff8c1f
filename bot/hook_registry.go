package bot

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/sealdice/qqoperator/bot/types"
)

// hookRegistry 按优先级从高到低保存钩子，同优先级先注册者先执行
type hookRegistry[T any] struct {
	mu    sync.RWMutex
	seq   atomic.Uint64
	items []hookEntry[T]
}

type hookEntry[T any] struct {
	id       types.HookHandle
	name     string
	priority int
	handler  T
}

var errNilHook = errors.New("hook handler must not be nil")

func (r *hookRegistry[T]) register(name string, priority types.HookPriority, handler T) (types.HookHandle, error) {
	entry := hookEntry[T]{
		id:       types.HookHandle(fmt.Sprintf("hook-%d", r.seq.Add(1))),
		name:     name,
		priority: int(priority),
		handler:  handler,
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	at := sort.Search(len(r.items), func(i int) bool {
		return r.items[i].priority < entry.priority
	})
	r.items = append(r.items, hookEntry[T]{})
	copy(r.items[at+1:], r.items[at:])
	r.items[at] = entry

	return entry.id, nil
}

func (r *hookRegistry[T]) unregister(handle types.HookHandle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, item := range r.items {
		if item.id == handle {
			r.items = append(r.items[:i], r.items[i+1:]...)
			return true
		}
	}
	return false
}

func (r *hookRegistry[T]) snapshot() []hookEntry[T] {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.items) == 0 {
		return nil
	}
	out := make([]hookEntry[T], len(r.items))
	copy(out, r.items)
	return out
}
