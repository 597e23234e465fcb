package persist

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const defaultFlushInterval = 5 * time.Minute

// Source produces the current snapshot of persistable records. The host wires
// one that walks its live objects and concatenates their Snapshot outputs.
type Source func(ctx context.Context) []Record

// Flusher periodically writes the snapshot to a store. With a Locker set,
// servers sharing one store take turns: a tick that cannot get the lock is
// skipped.
type Flusher struct {
	store    Store
	source   Source
	interval time.Duration
	locker   *Locker

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// FlusherOption configures a Flusher.
type FlusherOption func(*Flusher)

// WithFlushInterval sets the time between snapshot writes.
func WithFlushInterval(d time.Duration) FlusherOption {
	return func(f *Flusher) {
		if d > 0 {
			f.interval = d
		}
	}
}

// WithFlushLocker guards flushes with a shared lock.
func WithFlushLocker(l *Locker) FlusherOption {
	return func(f *Flusher) { f.locker = l }
}

// NewFlusher creates a flusher writing source snapshots to store.
func NewFlusher(store Store, source Source, opts ...FlusherOption) *Flusher {
	f := &Flusher{
		store:    store,
		source:   source,
		interval: defaultFlushInterval,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Start launches the background flush loop. Starting a running flusher is a
// no-op.
func (f *Flusher) Start() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running {
		return
	}
	f.running = true
	f.stopChan = make(chan struct{})
	f.wg.Add(1)
	go f.run(f.stopChan)
	log.Info().Dur("interval", f.interval).Msg("metadata flusher started")
}

func (f *Flusher) run(stop <-chan struct{}) {
	defer f.wg.Done()
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := f.Flush(context.Background()); err != nil && !errors.Is(err, ErrLockNotAcquired) {
				log.Error().Err(err).Msg("periodic metadata flush failed")
			}
		}
	}
}

// Stop halts the loop and writes one final snapshot, so a clean shutdown
// never loses the tail of the interval.
func (f *Flusher) Stop(ctx context.Context) error {
	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return nil
	}
	f.running = false
	close(f.stopChan)
	f.mu.Unlock()

	f.wg.Wait()

	err := f.Flush(ctx)
	if errors.Is(err, ErrLockNotAcquired) {
		err = nil
	}
	log.Info().Msg("metadata flusher stopped")
	return err
}

// Flush writes one snapshot now. With a locker configured it returns
// ErrLockNotAcquired when another server is flushing.
func (f *Flusher) Flush(ctx context.Context) error {
	if f.locker != nil {
		if err := f.locker.TryLock(ctx); err != nil {
			return err
		}
		defer func() {
			if err := f.locker.Unlock(ctx); err != nil {
				log.Warn().Err(err).Msg("failed to release flush lock")
			}
		}()
	}

	recs := f.source(ctx)
	if err := f.store.Save(ctx, recs); err != nil {
		return err
	}
	log.Debug().Int("records", len(recs)).Msg("metadata snapshot flushed")
	return nil
}
