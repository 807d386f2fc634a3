package pagination

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
)

// DefaultMaxRetries is the number of retries after the first failed attempt.
const DefaultMaxRetries = 3

// Callback receives the outcome of a fetch started by FetchNext.
// On success err is nil and items holds the new page only. On failure items
// is an empty, non-nil slice and err is a *FetchError.
//
// A callback may start the next fetch but must not block waiting for its
// result: that callback is only delivered after this one returns.
type Callback func(items []DisplayModel, err error)

// Config holds controller configuration.
type Config struct {
	// MaxRetries is how many times a failed fetch is re-issued before the
	// error is surfaced. A fetch makes at most MaxRetries+1 attempts.
	MaxRetries int

	// InitialBackoff is the delay before the first retry. Zero retries immediately.
	InitialBackoff time.Duration

	// MaxBackoff caps the exponential backoff.
	MaxBackoff time.Duration

	// BackoffMultiplier grows the backoff between consecutive retries.
	BackoffMultiplier float64

	// AttemptTimeout bounds a single PageFetcher call.
	AttemptTimeout time.Duration
}

// DefaultConfig returns the default controller configuration.
func DefaultConfig() Config {
	return Config{
		MaxRetries:        DefaultMaxRetries,
		InitialBackoff:    0,
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2.0,
		AttemptTimeout:    15 * time.Second,
	}
}

// Controller sequences page fetches against a PageFetcher.
//
// At most one fetch is in flight at a time and results are delivered in the
// order fetches were started, even when a fetch is started while the previous
// callback is still pending. Controller is safe for concurrent use; callbacks
// run on a goroutine owned by the controller.
type Controller struct {
	fetcher PageFetcher
	config  Config
	logger  zerolog.Logger

	mu             sync.Mutex
	cursor         Cursor
	retryCount     int
	inFlight       bool
	exhausted      bool
	closed         bool
	generation     uint64
	cancelInFlight context.CancelFunc
	lastTurn       *turn

	watchers      map[int]func(bool)
	nextWatcherID int
}

// NewController creates a controller that starts at the first page.
func NewController(fetcher PageFetcher, config Config, logger zerolog.Logger) *Controller {
	if fetcher == nil {
		panic("page fetcher cannot be nil")
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.InitialBackoff < 0 {
		config.InitialBackoff = 0
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = 5 * time.Second
	}
	if config.BackoffMultiplier < 1 {
		config.BackoffMultiplier = 2.0
	}
	if config.AttemptTimeout <= 0 {
		config.AttemptTimeout = 15 * time.Second
	}

	return &Controller{
		fetcher:  fetcher,
		config:   config,
		logger:   logger.With().Str("component", "pagination").Logger(),
		watchers: make(map[int]func(bool)),
	}
}

// FetchNext starts fetching the page after the current cursor and reports the
// outcome to cb. It returns false without touching any state, and without
// calling cb, when a fetch is already in flight or the controller is closed.
func (c *Controller) FetchNext(ctx context.Context, cb Callback) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	if c.inFlight {
		c.mu.Unlock()
		suppressedRequestsTotal.Inc()
		c.logger.Debug().Msg("Fetch already in flight, ignoring request")
		return false
	}

	fetchCtx, cancel := context.WithCancel(ctx)
	c.inFlight = true
	c.retryCount = 0
	c.cancelInFlight = cancel
	gen := c.generation
	cursor := c.cursor
	t := newTurn(c.lastTurn)
	c.lastTurn = t
	c.mu.Unlock()

	inFlightGauge.Inc()
	c.notify(true)

	go c.run(fetchCtx, cancel, gen, cursor, t, cb)
	return true
}

// FetchNextWait is FetchNext for callers that want to block on the result.
// A fetch discarded by Reset or Close leaves it waiting until ctx is done.
func (c *Controller) FetchNextWait(ctx context.Context) ([]DisplayModel, error) {
	type result struct {
		items []DisplayModel
		err   error
	}
	done := make(chan result, 1)

	started := c.FetchNext(ctx, func(items []DisplayModel, err error) {
		done <- result{items: items, err: err}
	})
	if !started {
		if c.Closed() {
			return nil, ErrClosed
		}
		return nil, ErrFetchInFlight
	}

	select {
	case r := <-done:
		return r.items, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// run performs one logical fetch: the first attempt plus any retries.
func (c *Controller) run(ctx context.Context, cancel context.CancelFunc, gen uint64, cursor Cursor, t *turn, cb Callback) {
	defer cancel()
	defer t.release()

	logger := c.logger.With().
		Str("fetch_id", ulid.Make().String()).
		Str("cursor", string(cursor)).
		Logger()

	start := time.Now()
	backoff := c.config.InitialBackoff
	attempts := 0

	for {
		attempts++
		attemptCtx, attemptCancel := context.WithTimeout(ctx, c.config.AttemptTimeout)
		page, err := c.fetcher.FetchPage(attemptCtx, cursor)
		attemptCancel()

		if err == nil {
			fetchAttemptsTotal.WithLabelValues("success").Inc()
			c.succeed(gen, page, attempts, start, logger, t, cb)
			return
		}

		fetchAttemptsTotal.WithLabelValues("failure").Inc()

		retry, stale := c.recordFailure(ctx, gen)
		if stale {
			c.dropStale(logger, attempts)
			return
		}
		if !retry {
			c.fail(ctx, gen, cursor, attempts, err, start, logger, t, cb)
			return
		}

		retriesTotal.Inc()
		wait := time.Duration(0)
		if backoff > 0 {
			wait = withJitter(backoff)
			retryBackoffSeconds.Observe(wait.Seconds())
			backoff = nextBackoff(backoff, c.config)
		}

		logger.Warn().
			Err(err).
			Int("attempt", attempts).
			Int("max_retries", c.config.MaxRetries).
			Dur("backoff", wait).
			Msg("Page fetch failed, retrying")

		if waitErr := sleepCtx(ctx, wait); waitErr != nil {
			if c.isStale(gen) {
				c.dropStale(logger, attempts)
				return
			}
			c.fail(ctx, gen, cursor, attempts, waitErr, start, logger, t, cb)
			return
		}
	}
}

// recordFailure counts a failed attempt and decides whether to retry it.
func (c *Controller) recordFailure(ctx context.Context, gen uint64) (retry bool, stale bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation {
		return false, true
	}

	c.retryCount++
	return c.retryCount <= c.config.MaxRetries && ctx.Err() == nil, false
}

func (c *Controller) succeed(gen uint64, page Page, attempts int, start time.Time, logger zerolog.Logger, t *turn, cb Callback) {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		c.dropStale(logger, attempts)
		return
	}
	c.retryCount = 0
	c.cursor = page.NextCursor
	c.exhausted = page.Last()
	c.inFlight = false
	c.cancelInFlight = nil
	c.mu.Unlock()

	inFlightGauge.Dec()
	fetchDuration.WithLabelValues("success").Observe(time.Since(start).Seconds())

	event := logger.Info()
	if attempts > 1 {
		event = event.Int("attempts", attempts)
	}
	event.
		Int("records", len(page.Records)).
		Str("next_cursor", string(page.NextCursor)).
		Dur("duration", time.Since(start)).
		Msg("Page fetched")

	t.wait()
	if cb != nil {
		cb(ToDisplayModels(page.Records), nil)
	}
	t.release()
	c.notifyIdle()
}

func (c *Controller) fail(ctx context.Context, gen uint64, cursor Cursor, attempts int, err error, start time.Time, logger zerolog.Logger, t *turn, cb Callback) {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		c.dropStale(logger, attempts)
		return
	}
	c.inFlight = false
	c.cancelInFlight = nil
	exhausted := c.retryCount > c.config.MaxRetries
	c.mu.Unlock()

	inFlightGauge.Dec()
	fetchDuration.WithLabelValues("failure").Observe(time.Since(start).Seconds())

	fetchErr := &FetchError{
		Cursor:    cursor,
		Attempts:  attempts,
		Err:       err,
		exhausted: exhausted && ctx.Err() == nil,
	}
	if fetchErr.exhausted {
		retryExhaustedTotal.Inc()
	}

	logger.Error().
		Err(err).
		Int("attempts", attempts).
		Bool("retries_exhausted", fetchErr.exhausted).
		Msg("Page fetch failed")

	t.wait()
	if cb != nil {
		cb([]DisplayModel{}, fetchErr)
	}
	t.release()
	c.notifyIdle()
}

func (c *Controller) dropStale(logger zerolog.Logger, attempts int) {
	staleResponsesTotal.Inc()
	logger.Debug().
		Int("attempts", attempts).
		Msg("Discarding response from a fetch superseded by reset")
}

func (c *Controller) isStale(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return gen != c.generation
}

// Reset rewinds the controller to the first page and clears the retry count.
//
// A fetch still in flight is cancelled and its result discarded; its callback
// never fires. Callers owning an accumulated list clear it themselves.
func (c *Controller) Reset() {
	c.mu.Lock()
	c.cursor = NoCursor
	c.retryCount = 0
	c.exhausted = false
	abandoned := c.abandonInFlightLocked()
	c.mu.Unlock()

	if abandoned {
		inFlightGauge.Dec()
		c.logger.Warn().Msg("Reset while a fetch was in flight, its response will be discarded")
		c.notify(false)
	} else {
		c.logger.Debug().Msg("Pagination reset")
	}
}

// Close disposes of the controller. An in-flight fetch is cancelled and
// FetchNext becomes a no-op. Close always returns nil.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	abandoned := c.abandonInFlightLocked()
	c.mu.Unlock()

	if abandoned {
		inFlightGauge.Dec()
		c.notify(false)
	}

	c.mu.Lock()
	c.watchers = make(map[int]func(bool))
	c.mu.Unlock()
	return nil
}

// abandonInFlightLocked bumps the generation so that the outstanding fetch, if
// any, is treated as stale. c.mu must be held.
func (c *Controller) abandonInFlightLocked() bool {
	c.generation++
	if !c.inFlight {
		return false
	}
	if c.cancelInFlight != nil {
		c.cancelInFlight()
		c.cancelInFlight = nil
	}
	// The abandoned fetch never delivers, so later fetches queue behind its
	// predecessor instead.
	if c.lastTurn != nil {
		c.lastTurn = c.lastTurn.predecessor()
	}
	c.inFlight = false
	return true
}

// InFlight reports whether a fetch is outstanding.
func (c *Controller) InFlight() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight
}

// Watch registers fn to be called whenever the in-flight flag changes.
// The idle notification follows the fetch's callback and is skipped when
// another fetch started in the meantime. The returned function unregisters it.
func (c *Controller) Watch(fn func(inFlight bool)) (cancel func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextWatcherID
	c.nextWatcherID++
	c.watchers[id] = fn

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.watchers, id)
	}
}

// notifyIdle reports the end of a fetch unless a newer one is already running.
func (c *Controller) notifyIdle() {
	c.mu.Lock()
	busy := c.inFlight
	c.mu.Unlock()
	if !busy {
		c.notify(false)
	}
}

func (c *Controller) notify(inFlight bool) {
	c.mu.Lock()
	fns := make([]func(bool), 0, len(c.watchers))
	for _, fn := range c.watchers {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(inFlight)
	}
}

// Cursor returns the cursor the next fetch will be issued with.
func (c *Controller) Cursor() Cursor {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cursor
}

// RetryCount returns the number of consecutive failures of the current or most recent fetch.
func (c *Controller) RetryCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.retryCount
}

// Exhausted reports whether the last fetched page was the final one.
func (c *Controller) Exhausted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exhausted
}

// Closed reports whether Close has been called.
func (c *Controller) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
