// Package jobs runs periodic background work against the knowledge graph.
package jobs

import (
	"context"
	"log"
	"time"
)

// Processor defines the interface for one unit of periodic work
type Processor interface {
	Process(ctx context.Context) error
}

// Worker drives a Processor on a fixed interval until stopped.
type Worker struct {
	name     string
	proc     Processor
	interval time.Duration
	stopChan chan struct{}
	doneChan chan struct{}
}

// NewWorker creates a new Worker instance
func NewWorker(name string, proc Processor, interval time.Duration) *Worker {
	return &Worker{
		name:     name,
		proc:     proc,
		interval: interval,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Start begins the worker's polling loop
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	defer close(w.doneChan)

	log.Printf("%s worker started with interval %v", w.name, w.interval)

	for {
		select {
		case <-ctx.Done():
			log.Printf("%s worker stopped: context cancelled", w.name)
			return
		case <-w.stopChan:
			log.Printf("%s worker stopped: stop signal received", w.name)
			return
		case <-ticker.C:
			if err := w.proc.Process(ctx); err != nil {
				log.Printf("%s worker run failed: %v", w.name, err)
			}
		}
	}
}

// Stop gracefully stops the worker
func (w *Worker) Stop() {
	close(w.stopChan)
	<-w.doneChan
	log.Printf("%s worker shutdown complete", w.name)
}
