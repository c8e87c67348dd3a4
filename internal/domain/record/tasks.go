package record

import "sync"

// Tasks tracks detached remote writes so shutdown and tests can wait for them.
// Tasks sharing a key run one after another in the order they were started.
type Tasks struct {
	wg   sync.WaitGroup
	mu   sync.Mutex
	tail map[string]chan struct{}
}

// Go runs fn on its own goroutine once every earlier task with the same key
// has returned.
func (t *Tasks) Go(key string, fn func()) {
	done := make(chan struct{})
	t.mu.Lock()
	if t.tail == nil {
		t.tail = make(map[string]chan struct{})
	}
	prev := t.tail[key]
	t.tail[key] = done
	t.mu.Unlock()

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer func() {
			t.mu.Lock()
			if t.tail[key] == done {
				delete(t.tail, key)
			}
			t.mu.Unlock()
			close(done)
		}()
		if prev != nil {
			<-prev
		}
		fn()
	}()
}

// Wait blocks until every started task has returned.
func (t *Tasks) Wait() {
	t.wg.Wait()
}
