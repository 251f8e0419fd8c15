// ABOUTME: Keyed single-flight coordinator with an optional TTL result cache.
// ABOUTME: Concurrent callers with the same key share one in-flight call.

package dedupe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrCancelled indicates Execute was called with an already-cancelled context.
var ErrCancelled = errors.New("request cancelled")

// Func is an async producer executed at most once per key while a request
// for that key is outstanding.
type Func func(ctx context.Context) (any, error)

// KeyFunc derives a deduplication key from caller arguments.
type KeyFunc func(args ...any) string

const (
	defaultTTL             = 60 * time.Second
	defaultCleanupInterval = time.Minute
	defaultStaleAfter      = 5 * time.Minute
)

// Options configures a Deduplicator. The zero value gets sensible defaults.
type Options struct {
	// TTL is how long a successful result stays servable from cache.
	TTL time.Duration
	// DisableCache turns off result caching; in-flight sharing still applies.
	DisableCache bool
	// CleanupInterval is the period of the background sweep.
	CleanupInterval time.Duration
	// StaleAfter is the age at which an in-flight entry is presumed leaked
	// and cleared by the sweep.
	StaleAfter time.Duration
	// KeyFunc overrides the default key generator used by Key.
	KeyFunc KeyFunc
	Logger  *slog.Logger
}

func (o *Options) applyDefaults() {
	if o.TTL <= 0 {
		o.TTL = defaultTTL
	}
	if o.CleanupInterval <= 0 {
		o.CleanupInterval = defaultCleanupInterval
	}
	if o.StaleAfter <= 0 {
		o.StaleAfter = defaultStaleAfter
	}
	if o.KeyFunc == nil {
		o.KeyFunc = DefaultKey
	}
	if o.Logger == nil {
		o.Logger = slog.Default().With("component", "dedupe")
	}
}

// pending is one in-flight request. All subscribers block on done and then
// read value/err, which are written exactly once before done is closed.
type pending struct {
	done        chan struct{}
	value       any
	err         error
	created     time.Time
	subscribers int
}

// cached is a memoized successful result.
type cached struct {
	value     any
	created   time.Time
	expiresAt time.Time
}

// Deduplicator guarantees at most one concurrent execution per key and
// optionally serves cached results within a TTL window. A background sweep
// evicts expired cache entries and presumed-leaked in-flight entries.
type Deduplicator struct {
	mu       sync.Mutex
	inflight map[string]*pending
	cache    map[string]*cached
	hits     uint64
	misses   uint64
	opts     Options
	logger   *slog.Logger
	done     chan struct{}
	closed   bool
}

// New creates a Deduplicator and starts its background sweep goroutine.
// Call Close when done to stop the sweep.
func New(opts Options) *Deduplicator {
	opts.applyDefaults()
	d := &Deduplicator{
		inflight: make(map[string]*pending),
		cache:    make(map[string]*cached),
		opts:     opts,
		logger:   opts.Logger,
		done:     make(chan struct{}),
	}
	go d.sweep()
	return d
}

// Execute runs fn under the given key, sharing the call with any concurrent
// Execute for the same key. A fresh cached result is returned without calling
// fn. The producer's fn runs detached from caller cancellation: a caller
// whose ctx ends while waiting gets ctx.Err(), but the underlying call keeps
// running for the remaining subscribers and still settles the cache.
//
// Errors from fn are returned unchanged, never wrapped.
func (d *Deduplicator) Execute(ctx context.Context, key string, fn Func) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCancelled, err)
	}

	d.mu.Lock()
	now := time.Now()

	if c, ok := d.cache[key]; ok {
		if now.Before(c.expiresAt) {
			d.hits++
			d.mu.Unlock()
			d.logger.Debug("cache hit", "key", key)
			return c.value, nil
		}
		delete(d.cache, key)
	}
	d.misses++

	if p, ok := d.inflight[key]; ok {
		p.subscribers++
		count := p.subscribers
		d.mu.Unlock()
		d.logger.Debug("joining in-flight request", "key", key, "subscribers", count)
		return d.wait(ctx, key, p)
	}

	p := &pending{
		done:        make(chan struct{}),
		created:     now,
		subscribers: 1,
	}
	d.inflight[key] = p
	d.mu.Unlock()
	d.logger.Debug("starting request", "key", key)

	// Detach fn from the producer's cancellation so one caller leaving never
	// aborts the call for other subscribers. Context values still flow.
	go func() {
		value, err := fn(context.WithoutCancel(ctx))
		d.settle(key, p, value, err)
	}()

	return d.wait(ctx, key, p)
}

// wait blocks until the shared request settles or the caller's ctx ends.
// Cancellation is advisory: it lowers the subscriber count and prunes the
// map entry if nobody is left waiting, but never stops the producer.
func (d *Deduplicator) wait(ctx context.Context, key string, p *pending) (any, error) {
	select {
	case <-p.done:
		return p.value, p.err
	case <-ctx.Done():
		d.release(key, p)
		return nil, ctx.Err()
	}
}

// release drops one subscriber from a pending entry. The entry is removed
// from the in-flight map once no subscribers remain, so a later call with
// the same key starts fresh rather than joining an abandoned request.
func (d *Deduplicator) release(key string, p *pending) {
	d.mu.Lock()
	defer d.mu.Unlock()

	p.subscribers--
	if p.subscribers <= 0 {
		if cur, ok := d.inflight[key]; ok && cur == p {
			delete(d.inflight, key)
		}
	}
	d.logger.Debug("subscriber cancelled", "key", key, "subscribers", p.subscribers)
}

// settle records the outcome of a request exactly once: the in-flight entry
// is removed, the cache is updated (stored on success, invalidated on
// failure), and all waiters are released.
func (d *Deduplicator) settle(key string, p *pending, value any, err error) {
	d.mu.Lock()

	p.value = value
	p.err = err

	// Guard against double-removal if the sweep already cleared this entry
	// and a newer request reused the key.
	if cur, ok := d.inflight[key]; ok && cur == p {
		delete(d.inflight, key)
	}

	if err != nil {
		// A fresh failure makes any previously cached success suspect.
		delete(d.cache, key)
	} else if !d.opts.DisableCache {
		now := time.Now()
		d.cache[key] = &cached{
			value:     value,
			created:   now,
			expiresAt: now.Add(d.opts.TTL),
		}
	}
	d.mu.Unlock()

	close(p.done)

	if err != nil {
		d.logger.Debug("request failed", "key", key, "error", err)
	} else {
		d.logger.Debug("request completed", "key", key)
	}
}

// ClearCache removes the cached result for one key. In-flight requests are
// not affected.
func (d *Deduplicator) ClearCache(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.cache, key)
}

// ClearAllCache removes every cached result.
func (d *Deduplicator) ClearAllCache() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cache = make(map[string]*cached)
}

// Key derives a deduplication key using the configured KeyFunc.
func (d *Deduplicator) Key(args ...any) string {
	return d.opts.KeyFunc(args...)
}

// Stats is a point-in-time snapshot of a Deduplicator.
type Stats struct {
	Pending int
	Cached  int
	Hits    uint64
	Misses  uint64
}

// HitRate returns the historical cache hit percentage.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100
}

// Stats returns a snapshot of current map sizes and hit/miss counters.
func (d *Deduplicator) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Stats{
		Pending: len(d.inflight),
		Cached:  len(d.cache),
		Hits:    d.hits,
		Misses:  d.misses,
	}
}

// sweep runs in a background goroutine, periodically evicting expired cache
// entries and stale in-flight entries.
func (d *Deduplicator) sweep() {
	ticker := time.NewTicker(d.opts.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.runSweep()
		case <-d.done:
			return
		}
	}
}

// runSweep removes expired cache entries and in-flight entries older than
// StaleAfter. Clearing a stale in-flight entry does not disturb its waiters;
// it only unblocks the key for future calls.
func (d *Deduplicator) runSweep() {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	for key, c := range d.cache {
		if !now.Before(c.expiresAt) {
			delete(d.cache, key)
		}
	}
	for key, p := range d.inflight {
		if now.Sub(p.created) > d.opts.StaleAfter {
			delete(d.inflight, key)
			d.logger.Warn("cleared stale in-flight request", "key", key, "age", now.Sub(p.created))
		}
	}
}

// Close stops the background sweep and clears both maps. It is safe to call
// multiple times. Waiters on already-started requests still settle normally.
func (d *Deduplicator) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}
	close(d.done)
	d.closed = true
	d.inflight = make(map[string]*pending)
	d.cache = make(map[string]*cached)
}
