package container

// Queue is a FIFO with an optional bound. Pushing onto a full bounded queue
// evicts the oldest element.
type Queue[T any] struct {
	d     *Deque[T]
	limit int
}

// NewQueue returns a queue holding at most limit elements; limit <= 0 means
// unbounded.
func NewQueue[T any](limit int) *Queue[T] {
	c := limit
	if c <= 0 {
		c = 16
	}
	return &Queue[T]{d: NewDeque[T](c), limit: limit}
}

// Push appends v. When the bound is reached the oldest element is removed
// and returned with evicted=true.
func (q *Queue[T]) Push(v T) (old T, evicted bool) {
	if q.limit > 0 && q.d.Len() == q.limit {
		old, _ = q.d.PopFront()
		evicted = true
	}
	q.d.PushBack(v)
	return old, evicted
}

func (q *Queue[T]) Pop() (T, error)  { return q.d.PopFront() }
func (q *Queue[T]) Peek() (T, error) { return q.d.Front() }
func (q *Queue[T]) Len() int         { return q.d.Len() }
func (q *Queue[T]) Limit() int       { return q.limit }

// Items returns the elements oldest first.
func (q *Queue[T]) Items() []T { return q.d.Slice() }
