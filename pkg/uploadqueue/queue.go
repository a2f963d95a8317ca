package uploadqueue

import (
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/inkleaf/notesync/pkg/log"
	"github.com/inkleaf/notesync/pkg/metrics"
	"github.com/inkleaf/notesync/pkg/types"
)

const (
	tickInterval = 2 * time.Second
	maxAttempts  = 5
	backoffBase  = time.Second
)

// Emitter decouples the queue from pkg/events the way pkg/tokens does.
type Emitter interface {
	Emit(name string, payload any)
}

// Queue is the per-path coalesced upload queue described in the upload
// pipeline design: at most one item per path, exponential backoff, and a
// permanent-failure signal after maxAttempts consecutive failures.
type Queue struct {
	mu      sync.Mutex
	items   map[string]*types.UploadQueueItem
	emitter Emitter

	due    chan types.FileChangeEvent
	paused bool

	ticker *time.Ticker
	stopCh chan struct{}
	wg     sync.WaitGroup
	logger zerolog.Logger
}

// New returns an empty Queue. emitter may be nil.
func New(emitter Emitter) *Queue {
	return &Queue{
		items:   make(map[string]*types.UploadQueueItem),
		emitter: emitter,
		due:     make(chan types.FileChangeEvent, 128),
		stopCh:  make(chan struct{}),
		logger:  log.WithComponent("uploadqueue"),
	}
}

// Due returns the channel of events ready for upload, populated by the
// background tick.
func (q *Queue) Due() <-chan types.FileChangeEvent {
	return q.due
}

// Start begins the background tick that releases due items onto Due().
func (q *Queue) Start() {
	q.ticker = time.NewTicker(tickInterval)
	q.wg.Add(1)
	go q.run()
}

// Stop ends the background tick.
func (q *Queue) Stop() {
	close(q.stopCh)
	if q.ticker != nil {
		q.ticker.Stop()
	}
	q.wg.Wait()
}

// Pause stops the background tick without losing queued state, so the
// reconciliation engine can process a bulk initial upload synchronously.
func (q *Queue) Pause() {
	q.mu.Lock()
	q.paused = true
	q.mu.Unlock()
}

// Resume restarts tick-driven delivery.
func (q *Queue) Resume() {
	q.mu.Lock()
	q.paused = false
	q.mu.Unlock()
}

// Enqueue adds or replaces the pending item for event.Path, resetting its
// retry clock. Re-enqueuing the same path while an attempt is outstanding
// is the documented coalescing behavior, not an error.
func (q *Queue) Enqueue(event types.FileChangeEvent) {
	q.mu.Lock()
	q.items[event.Path] = &types.UploadQueueItem{Event: event, Attempts: 0, NextRetryAt: time.Now()}
	depth := len(q.items)
	q.mu.Unlock()

	metrics.UploadQueueDepth.Set(float64(depth))
	q.emit(eventQueueChange, depth)
}

// Remove drops path's pending item, if any, without signaling success or
// failure.
func (q *Queue) Remove(path string) {
	q.mu.Lock()
	delete(q.items, path)
	depth := len(q.items)
	q.mu.Unlock()

	metrics.UploadQueueDepth.Set(float64(depth))
	q.emit(eventQueueChange, depth)
}

// MarkSuccess removes path's item after a successful upload.
func (q *Queue) MarkSuccess(path string) {
	q.mu.Lock()
	delete(q.items, path)
	depth := len(q.items)
	q.mu.Unlock()

	metrics.UploadQueueDepth.Set(float64(depth))
	q.emit(eventUploadSuccess, path)
	q.emit(eventQueueChange, depth)
}

// MarkFailure records a failed attempt for path, scheduling the next
// retry with exponential backoff. After maxAttempts consecutive
// failures, the item is dropped and a permanent-failure signal is
// emitted instead.
func (q *Queue) MarkFailure(path string, cause error) {
	q.mu.Lock()
	item, ok := q.items[path]
	if !ok {
		q.mu.Unlock()
		return
	}
	item.Attempts++
	if cause != nil {
		item.LastError = cause.Error()
	}

	if item.Attempts >= maxAttempts {
		delete(q.items, path)
		depth := len(q.items)
		q.mu.Unlock()

		metrics.UploadQueueDepth.Set(float64(depth))
		metrics.UploadRetriesTotal.Add(float64(item.Attempts))
		q.emit(eventUploadPermanentFailure, path)
		q.emit(eventQueueChange, depth)
		return
	}

	item.NextRetryAt = time.Now().Add(nextBackoff(item.Attempts))
	q.mu.Unlock()

	metrics.UploadRetriesTotal.Inc()
	q.emit(eventUploadRetry, path)
}

// Pending returns a snapshot of every currently-queued item.
func (q *Queue) Pending() []types.UploadQueueItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]types.UploadQueueItem, 0, len(q.items))
	for _, item := range q.items {
		out = append(out, *item)
	}
	return out
}

func (q *Queue) run() {
	defer q.wg.Done()
	for {
		select {
		case <-q.stopCh:
			return
		case <-q.ticker.C:
			q.releaseDue()
		}
	}
}

func (q *Queue) releaseDue() {
	q.mu.Lock()
	if q.paused {
		q.mu.Unlock()
		return
	}
	now := time.Now()
	var due []types.FileChangeEvent
	for _, item := range q.items {
		if !item.NextRetryAt.After(now) {
			due = append(due, item.Event)
		}
	}
	q.mu.Unlock()

	for _, event := range due {
		q.emit(eventUpload, event.Path)
		select {
		case q.due <- event:
		case <-q.stopCh:
			return
		}
	}
}

func (q *Queue) emit(name string, payload any) {
	if q.emitter != nil {
		q.emitter.Emit(name, payload)
	}
}

// nextBackoff computes 2^attempts x 1s by driving a fresh
// backoff.ExponentialBackOff attempts+1 times, rather than hand-rolled
// bit shifting, so the growth curve stays expressed in terms of the
// same library the rest of the engine uses for retry scheduling.
func nextBackoff(attempts int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = backoffBase
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.Reset()

	d := b.NextBackOff()
	for i := 0; i < attempts; i++ {
		d = b.NextBackOff()
	}
	return d
}

// Event name constants mirror pkg/events.Name's values without importing
// that package, the same decoupling pkg/tokens.Emitter uses: the queue
// only needs to pass a name through to whatever Emitter it was given.
const (
	eventUpload                 = "upload"
	eventUploadSuccess          = "upload-success"
	eventUploadRetry            = "upload-retry"
	eventUploadPermanentFailure = "upload-permanent-failure"
	eventQueueChange            = "queue-change"
)
