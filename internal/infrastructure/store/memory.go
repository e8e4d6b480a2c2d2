package store

import (
	"cmp"
	"maps"
	"slices"
	"sync"
)

// table is an in-memory collection keyed by id. Values are cloned on the
// way in and out so callers never share slices with the store.
type table[T any] struct {
	mu    sync.RWMutex
	rows  map[string]T
	clone func(T) T
}

func newTable[T any](clone func(T) T) *table[T] {
	if clone == nil {
		clone = func(v T) T { return v }
	}
	return &table[T]{rows: make(map[string]T), clone: clone}
}

func (t *table[T]) get(id string) (T, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.rows[id]
	if !ok {
		return v, false
	}
	return t.clone(v), true
}

// find returns clones of the rows matching keep, ordered by id.
func (t *table[T]) find(keep func(T) bool) []T {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]T, 0)
	for _, id := range slices.Sorted(maps.Keys(t.rows)) {
		if v := t.rows[id]; keep == nil || keep(v) {
			out = append(out, t.clone(v))
		}
	}
	return out
}

func (t *table[T]) count(keep func(T) bool) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, v := range t.rows {
		if keep == nil || keep(v) {
			n++
		}
	}
	return n
}

// insert stores v unless id exists or conflict reports a clash with an
// existing row; the error from conflict is returned as-is.
func (t *table[T]) insert(id string, v T, conflict func(existing T) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, existing := range t.rows {
		if conflict != nil {
			if err := conflict(existing); err != nil {
				return err
			}
		}
	}
	t.rows[id] = t.clone(v)
	return nil
}

// replace overwrites id, returning false when it does not exist.
func (t *table[T]) replace(id string, v T, conflict func(existing T) error) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.rows[id]; !ok {
		return false, nil
	}
	for otherID, existing := range t.rows {
		if otherID == id || conflict == nil {
			continue
		}
		if err := conflict(existing); err != nil {
			return true, err
		}
	}
	t.rows[id] = t.clone(v)
	return true, nil
}

// mutate applies fn to the stored row under the write lock.
func (t *table[T]) mutate(id string, fn func(*T) error) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.rows[id]
	if !ok {
		return false, nil
	}
	v = t.clone(v)
	if err := fn(&v); err != nil {
		return true, err
	}
	t.rows[id] = v
	return true, nil
}

func (t *table[T]) remove(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.rows[id]; !ok {
		return false
	}
	delete(t.rows, id)
	return true
}

// removeWhere deletes every row matching drop and returns how many went.
func (t *table[T]) removeWhere(drop func(T) bool) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for id, v := range t.rows {
		if drop(v) {
			delete(t.rows, id)
			n++
		}
	}
	return n
}

// sortByCreated orders rows newest first, keeping id order for ties.
func sortByCreated[T any](rows []T, created func(T) int64) {
	slices.SortStableFunc(rows, func(a, b T) int {
		return cmp.Compare(created(b), created(a))
	})
}
