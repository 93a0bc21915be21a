package canvas

// Collection is an ordered in-memory table. It is owned by a single goroutine
// (the hub loop) and does no locking of its own.
type Collection[T any] struct {
	items []T
}

func NewCollection[T any](items []T) *Collection[T] {
	c := &Collection[T]{}
	c.Reset(items)
	return c
}

func (c *Collection[T]) Insert(item T) {
	c.items = append(c.items, item)
}

// Remove deletes every item matching pred and returns the removed items in
// their original order.
func (c *Collection[T]) Remove(pred func(T) bool) []T {
	var removed []T
	kept := c.items[:0]
	for _, item := range c.items {
		if pred(item) {
			removed = append(removed, item)
			continue
		}
		kept = append(kept, item)
	}
	var zero T
	for i := len(kept); i < len(c.items); i++ {
		c.items[i] = zero
	}
	c.items = kept
	return removed
}

func (c *Collection[T]) Find(pred func(T) bool) []T {
	found := []T{}
	for _, item := range c.items {
		if pred(item) {
			found = append(found, item)
		}
	}
	return found
}

func (c *Collection[T]) First(pred func(T) bool) (T, bool) {
	for _, item := range c.items {
		if pred(item) {
			return item, true
		}
	}
	var zero T
	return zero, false
}

// All returns a copy of the items; callers may retain it across mutations.
func (c *Collection[T]) All() []T {
	out := make([]T, len(c.items))
	copy(out, c.items)
	return out
}

func (c *Collection[T]) Len() int {
	return len(c.items)
}

func (c *Collection[T]) Reset(items []T) {
	c.items = make([]T, len(items))
	copy(c.items, items)
}

// MemoStore adds in-place updates to the memo collection.
type MemoStore struct {
	Collection[Memo]
}

// Update applies mutate to the memo with the given id. It reports false when no
// such memo exists.
func (s *MemoStore) Update(id string, mutate func(*Memo)) (Memo, bool) {
	for i := range s.items {
		if s.items[i].ID == id {
			mutate(&s.items[i])
			return s.items[i], true
		}
	}
	return Memo{}, false
}

func (s *MemoStore) Get(id string) (Memo, bool) {
	return s.First(func(m Memo) bool { return m.ID == id })
}
