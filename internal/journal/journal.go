// Package journal persists matchmaking events so queue and match state can
// be rebuilt after a restart. Writes happen off the hot path through a
// bounded buffer; replay happens once at startup.
package journal

import (
	"context"
	"sync"
	"time"

	"roshamble/internal/logger"
	"roshamble/internal/models"
)

const (
	maxBatch      = 128
	appendTimeout = 5 * time.Second
)

// Sink is a durable store of events.
type Sink interface {
	Append(ctx context.Context, events []models.Event) error
	// Load returns every stored event ordered by Seq.
	Load(ctx context.Context) ([]models.Event, error)
	Close(ctx context.Context) error
}

// Writer buffers events and appends them to a Sink from one goroutine.
type Writer struct {
	sink Sink
	ch   chan models.Event

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
	dropped int
}

func NewWriter(sink Sink, bufferSize int) *Writer {
	if bufferSize <= 0 {
		bufferSize = 1024
	}
	return &Writer{
		sink: sink,
		ch:   make(chan models.Event, bufferSize),
	}
}

// Record queues an event without blocking. Events that do not fit in the
// buffer are dropped and logged.
func (w *Writer) Record(ev models.Event) {
	select {
	case w.ch <- ev:
	default:
		w.mu.Lock()
		w.dropped++
		dropped := w.dropped
		w.mu.Unlock()
		logger.Error("journal buffer full, event dropped", "seq", ev.Seq, "type", string(ev.Type), "dropped_total", dropped)
	}
}

// Dropped returns how many events were lost to a full buffer.
func (w *Writer) Dropped() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dropped
}

// Start begins draining the buffer in a background goroutine.
func (w *Writer) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.wg.Add(1)
	go w.run()
}

// Stop flushes buffered events and waits for the writer goroutine to exit.
func (w *Writer) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stopCh)
	w.mu.Unlock()

	w.wg.Wait()
}

func (w *Writer) run() {
	defer w.wg.Done()

	for {
		select {
		case ev := <-w.ch:
			w.write(w.collect(ev))
		case <-w.stopCh:
			w.drain()
			return
		}
	}
}

// collect gathers whatever else is already buffered into one batch.
func (w *Writer) collect(first models.Event) []models.Event {
	batch := []models.Event{first}
	for len(batch) < maxBatch {
		select {
		case ev := <-w.ch:
			batch = append(batch, ev)
		default:
			return batch
		}
	}
	return batch
}

func (w *Writer) drain() {
	for {
		select {
		case ev := <-w.ch:
			w.write(w.collect(ev))
		default:
			return
		}
	}
}

func (w *Writer) write(batch []models.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), appendTimeout)
	defer cancel()

	if err := w.sink.Append(ctx, batch); err != nil {
		logger.Error("journal append failed",
			"events", len(batch),
			"first_seq", batch[0].Seq,
			"error", err,
		)
	}
}
