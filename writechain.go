package mediagrid

import (
	"context"
	"log/slog"
	"sync"
)

// writeChain writes chunks to a sink one at a time, in the order they were
// pushed. A write starts only after the previous one has returned. After the
// first failed write the remaining chunks are dropped.
type writeChain struct {
	sink    Sink
	logger  *slog.Logger
	onWrite func(Chunk, error)

	mu      sync.Mutex
	idle    *sync.Cond
	queue   []Chunk
	busy    bool
	closed  bool
	err     error
	dropped int
}

func newWriteChain(sink Sink, logger *slog.Logger, onWrite func(Chunk, error)) *writeChain {
	w := &writeChain{sink: sink, logger: logger, onWrite: onWrite}
	w.idle = sync.NewCond(&w.mu)
	return w
}

// push queues c behind every chunk pushed before it. Chunks pushed after
// drain has been called are discarded.
func (w *writeChain) push(c Chunk) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		w.dropped++
		return
	}
	w.queue = append(w.queue, c)
	if !w.busy {
		w.busy = true
		go w.run()
	}
}

func (w *writeChain) run() {
	for {
		w.mu.Lock()
		if len(w.queue) == 0 {
			w.busy = false
			w.idle.Broadcast()
			w.mu.Unlock()
			return
		}
		c := w.queue[0]
		w.queue[0] = Chunk{}
		w.queue = w.queue[1:]
		failed := w.err != nil
		if failed {
			w.dropped++
		}
		w.mu.Unlock()

		if failed {
			continue
		}
		err := w.sink.Write(context.Background(), c)
		if w.onWrite != nil {
			w.onWrite(c, err)
		}
		if err != nil {
			w.logger.Error("sink write failed", "kind", c.Kind.String(), "bytes", len(c.Data), "error", err)
			w.mu.Lock()
			w.err = err
			w.mu.Unlock()
		}
	}
}

// drain stops accepting chunks, waits for queued writes to finish and
// returns the first write error.
func (w *writeChain) drain() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	for w.busy {
		w.idle.Wait()
	}
	if w.dropped > 0 {
		w.logger.Warn("chunks dropped", "count", w.dropped)
	}
	return w.err
}
