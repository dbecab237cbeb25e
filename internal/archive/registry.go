package archive

import "sync"

// Registry hands out one Lock per archive slug and remembers it, so that
// concurrent operations against the same project archive always contend on
// the same in-process mutex rather than each constructing their own (which
// would make the in-process fairness half of Lock a no-op). Spec §5 design
// note: "the per-archive lock is conceptually a named cross-coroutine
// mutex."
type Registry struct {
	mu    sync.Mutex
	locks map[string]*Lock
}

func NewRegistry() *Registry {
	return &Registry{locks: make(map[string]*Lock)}
}

// Get returns the shared Lock for layout's slug, creating one on first use.
func (r *Registry) Get(l Layout) *Lock {
	r.mu.Lock()
	defer r.mu.Unlock()
	if lock, ok := r.locks[l.Slug]; ok {
		return lock
	}
	lock := NewLock(l)
	r.locks[l.Slug] = lock
	return lock
}
