package matchmaking

import (
	"sync"
	"sync/atomic"
	"time"

	"roshamble/internal/models"
)

// EventHandler receives every state change after the locks guarding it are
// released. Handlers run on the goroutine that made the change and must not
// block; hand slow work off to a channel or goroutine.
type EventHandler func(models.Event)

type dispatcher struct {
	seq      atomic.Uint64
	mu       sync.RWMutex
	handlers []EventHandler
}

func (d *dispatcher) subscribe(h EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers = append(d.handlers, h)
}

// stamp assigns the next sequence number. Call it inside the critical
// section that produced the change.
func (d *dispatcher) stamp(ev models.Event, at time.Time) models.Event {
	ev.Seq = d.seq.Add(1)
	ev.At = at
	return ev
}

// resume makes the next stamped event follow seq.
func (d *dispatcher) resume(seq uint64) {
	for {
		cur := d.seq.Load()
		if cur >= seq || d.seq.CompareAndSwap(cur, seq) {
			return
		}
	}
}

func (d *dispatcher) emit(events ...models.Event) {
	if len(events) == 0 {
		return
	}
	d.mu.RLock()
	handlers := d.handlers
	d.mu.RUnlock()

	for _, ev := range events {
		for _, h := range handlers {
			h(ev)
		}
	}
}
