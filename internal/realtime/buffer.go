// Package realtime ingests raw journey events for live dashboards: a bounded
// event buffer feeding a TTL analytics cache, rolling threshold alerts, and a
// metrics snapshot endpoint.
package realtime

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/clientflow/journey-insights/internal/domain"
)

const (
	defaultMaxBufferSize = 50
	defaultFlushInterval = 5 * time.Second
	flushMaxRetries      = 3
)

// FlushFunc receives one category batch per call. Returning an error requeues
// the whole batch.
type FlushFunc func(category string, events []domain.JourneyEvent) error

// EventBuffer is an append-only queue of journey events, flushed when it
// reaches its size limit or on a fixed interval, whichever comes first.
type EventBuffer struct {
	mu       sync.Mutex
	events   []domain.JourneyEvent
	flushing bool

	maxSize       int
	flushInterval time.Duration
	process       FlushFunc

	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewEventBuffer creates a buffer that hands flushed batches to process.
// Zero limits fall back to the defaults (50 events, 5s).
func NewEventBuffer(process FlushFunc, maxSize int, flushInterval time.Duration) *EventBuffer {
	if maxSize <= 0 {
		maxSize = defaultMaxBufferSize
	}
	if flushInterval <= 0 {
		flushInterval = defaultFlushInterval
	}
	return &EventBuffer{
		maxSize:       maxSize,
		flushInterval: flushInterval,
		process:       process,
	}
}

// Start begins the interval flush loop.
func (b *EventBuffer) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return
	}
	b.running = true
	b.ctx, b.cancel = context.WithCancel(context.Background())

	log.Printf("[EventBuffer] Starting with max size %d, flush interval %v", b.maxSize, b.flushInterval)

	b.wg.Add(1)
	go b.runLoop()
}

// Stop flushes whatever is buffered and stops the loop.
func (b *EventBuffer) Stop() {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	b.running = false
	b.mu.Unlock()

	b.cancel()
	b.wg.Wait()
	b.Flush()
	log.Println("[EventBuffer] Stopped")
}

func (b *EventBuffer) runLoop() {
	defer b.wg.Done()

	ticker := time.NewTicker(b.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.ctx.Done():
			return
		case <-ticker.C:
			b.Flush()
		}
	}
}

// Append queues an event, flushing first if the buffer is full.
func (b *EventBuffer) Append(e domain.JourneyEvent) {
	b.mu.Lock()
	b.events = append(b.events, e)
	full := len(b.events) >= b.maxSize
	b.mu.Unlock()

	if full {
		b.Flush()
	}
}

// Len reports how many events are currently buffered.
func (b *EventBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

// Flush drains the buffer and hands the events to the processor in category
// batches. Concurrent triggers (size vs. timer) are guarded so only one flush
// runs at a time. Batches whose processing fails after retries are requeued
// at the head of the buffer, in their original order, rather than dropped.
func (b *EventBuffer) Flush() {
	b.mu.Lock()
	if b.flushing || len(b.events) == 0 {
		b.mu.Unlock()
		return
	}
	b.flushing = true
	batch := b.events
	b.events = nil
	b.mu.Unlock()

	failed := b.processBatches(batch)

	b.mu.Lock()
	b.flushing = false
	if len(failed) > 0 {
		b.events = append(failed, b.events...)
	}
	b.mu.Unlock()
}

func (b *EventBuffer) processBatches(events []domain.JourneyEvent) []domain.JourneyEvent {
	byCategory := make(map[string][]domain.JourneyEvent)
	var order []string
	for _, e := range events {
		cat := e.Type.Category()
		if _, seen := byCategory[cat]; !seen {
			order = append(order, cat)
		}
		byCategory[cat] = append(byCategory[cat], e)
	}
	sort.Strings(order)

	var failed []domain.JourneyEvent
	for _, cat := range order {
		batch := byCategory[cat]
		op := func() error { return b.process(cat, batch) }
		bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(
			backoff.WithInitialInterval(50*time.Millisecond),
			backoff.WithMaxInterval(500*time.Millisecond),
		), flushMaxRetries)
		if err := backoff.Retry(op, bo); err != nil {
			log.Printf("[EventBuffer] Flush failed for category %s (%d events), requeueing: %v", cat, len(batch), err)
			failed = append(failed, batch...)
		}
	}
	return failed
}
