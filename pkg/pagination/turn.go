package pagination

import "sync"

// turn orders callback delivery between fetches. Each fetch waits for the
// previous fetch's turn to be released before running its callback.
type turn struct {
	mu   sync.Mutex
	prev *turn
	done chan struct{}
	once sync.Once
}

func newTurn(prev *turn) *turn {
	return &turn{prev: prev, done: make(chan struct{})}
}

func (t *turn) predecessor() *turn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.prev
}

// wait blocks until every earlier fetch has delivered or been discarded.
func (t *turn) wait() {
	if p := t.predecessor(); p != nil {
		<-p.done
	}
}

// release lets the next fetch deliver. A discarded fetch still waits for its
// predecessor so the chain stays ordered.
func (t *turn) release() {
	t.once.Do(func() {
		t.wait()
		t.mu.Lock()
		t.prev = nil
		t.mu.Unlock()
		close(t.done)
	})
}
