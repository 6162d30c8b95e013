package sink

import "sync"

// buffer is a thread-safe queue that doubles its capacity when it reaches
// 70% full, so a slow consumer never blocks the publisher.
type buffer[T any] struct {
	mu       sync.Mutex
	cond     *sync.Cond
	buf      []T
	head     int
	tail     int
	count    int
	capacity int
	closed   bool
}

func newBuffer[T any](initialCapacity int) *buffer[T] {
	if initialCapacity < 1 {
		initialCapacity = 1
	}
	b := &buffer[T]{
		buf:      make([]T, initialCapacity),
		capacity: initialCapacity,
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// send adds an item, growing the buffer if needed. Returns false if closed.
func (b *buffer[T]) send(item T) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false
	}

	threshold := (b.capacity * 70) / 100
	if threshold < 1 {
		threshold = 1
	}
	if b.count+1 >= threshold {
		b.grow()
	}

	b.buf[b.tail] = item
	b.tail = (b.tail + 1) % b.capacity
	b.count++

	b.cond.Signal()
	return true
}

// receive blocks until an item is available or the buffer is closed; the
// second return is false once closed and drained.
func (b *buffer[T]) receive() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for b.count == 0 && !b.closed {
		b.cond.Wait()
	}

	if b.count == 0 && b.closed {
		var zero T
		return zero, false
	}

	item := b.buf[b.head]
	var zero T
	b.buf[b.head] = zero
	b.head = (b.head + 1) % b.capacity
	b.count--

	return item, true
}

// close stops the buffer; receivers drain remaining items first.
func (b *buffer[T]) close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	b.cond.Broadcast()
}

// grow doubles capacity, unrolling the ring into the new slice.
func (b *buffer[T]) grow() {
	newCap := b.capacity * 2
	newBuf := make([]T, newCap)

	for i := 0; i < b.count; i++ {
		newBuf[i] = b.buf[(b.head+i)%b.capacity]
	}

	b.buf = newBuf
	b.head = 0
	b.tail = b.count
	b.capacity = newCap
}
