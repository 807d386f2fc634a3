package listview

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/people-pager/pkg/pagination"
)

// Config holds feed configuration.
type Config struct {
	// LoadThreshold is how close to the end of the loaded items the viewport
	// may get before the next page is requested.
	LoadThreshold int

	// ViewportRows is the number of rows visible at once, or 0 when unknown.
	// It lets a freshly loaded short page trigger a prefetch on a tall screen.
	ViewportRows int
}

// DefaultConfig returns the default feed configuration.
func DefaultConfig() Config {
	return Config{
		LoadThreshold: pagination.DefaultLoadThreshold,
	}
}

// Update describes a change to the feed's items.
type Update struct {
	// Added holds the models appended by this update, duplicates excluded.
	Added []pagination.DisplayModel

	// Total is the number of items after the update.
	Total int

	// Cleared is set when the update is a refresh that emptied the list.
	Cleared bool
}

// Feed accumulates pages from a controller and decides when to load more.
type Feed struct {
	ctrl   *pagination.Controller
	config Config
	logger zerolog.Logger

	stopWatcher func()

	mu        sync.Mutex
	items     *ItemSet
	epoch     uint64
	bottom    int
	complete  bool
	lastErr   error
	onUpdate  func(Update)
	onError   func(error)
	onLoading func(bool)
}

// NewFeed creates a feed driven by ctrl.
func NewFeed(ctrl *pagination.Controller, config Config, logger zerolog.Logger) *Feed {
	if config.LoadThreshold < 0 {
		config.LoadThreshold = pagination.DefaultLoadThreshold
	}
	if config.ViewportRows < 0 {
		config.ViewportRows = 0
	}

	f := &Feed{
		ctrl:   ctrl,
		config: config,
		logger: logger.With().Str("component", "listview").Logger(),
		items:  NewItemSet(),
		bottom: -1,
	}
	f.stopWatcher = ctrl.Watch(func(inFlight bool) {
		f.mu.Lock()
		fn := f.onLoading
		f.mu.Unlock()
		if fn != nil {
			fn(inFlight)
		}
	})
	return f
}

// OnUpdate registers the function called after items change.
func (f *Feed) OnUpdate(fn func(Update)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onUpdate = fn
}

// OnError registers the function called when a fetch fails for good.
// The usual response is to offer the user Retry.
func (f *Feed) OnError(fn func(error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onError = fn
}

// OnLoading registers the function called when the loading indicator
// should be shown or hidden.
func (f *Feed) OnLoading(fn func(loading bool)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onLoading = fn
}

// Start loads the first page.
func (f *Feed) Start(ctx context.Context) bool {
	return f.fetchNext(ctx)
}

// Retry requests the page that last failed.
func (f *Feed) Retry(ctx context.Context) bool {
	f.mu.Lock()
	f.lastErr = nil
	f.mu.Unlock()
	return f.fetchNext(ctx)
}

// WillDisplay is called when the item at index is about to become visible.
func (f *Feed) WillDisplay(ctx context.Context, index int) bool {
	f.mu.Lock()
	if index > f.bottom {
		f.bottom = index
	}
	total := f.items.Len()
	f.mu.Unlock()

	if !pagination.ShouldFetchMore(index, total, f.config.LoadThreshold) {
		return false
	}
	return f.fetchNext(ctx)
}

// ScrolledTo records the index of the bottom-most visible item.
func (f *Feed) ScrolledTo(bottom int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bottom = bottom
}

// Refresh empties the list and reloads it from the first page. It is ignored
// while a fetch is in flight.
func (f *Feed) Refresh(ctx context.Context) bool {
	if f.ctrl.InFlight() {
		f.logger.Debug().Msg("Refresh ignored, fetch in flight")
		return false
	}

	f.mu.Lock()
	f.items.Clear()
	f.epoch++
	f.bottom = -1
	f.complete = false
	f.lastErr = nil
	onUpdate := f.onUpdate
	f.mu.Unlock()

	f.ctrl.Reset()
	if onUpdate != nil {
		onUpdate(Update{Added: []pagination.DisplayModel{}, Cleared: true})
	}

	return f.fetchNext(ctx)
}

func (f *Feed) fetchNext(ctx context.Context) bool {
	if f.ctrl.Exhausted() {
		return false
	}
	f.mu.Lock()
	epoch := f.epoch
	f.mu.Unlock()
	return f.ctrl.FetchNext(ctx, func(items []pagination.DisplayModel, err error) {
		f.apply(ctx, epoch, items, err)
	})
}

// apply merges a fetch result and re-checks the trigger against the viewport.
// Results of fetches started before the last Refresh are dropped.
func (f *Feed) apply(ctx context.Context, epoch uint64, items []pagination.DisplayModel, err error) {
	if err != nil {
		f.mu.Lock()
		if epoch != f.epoch {
			f.mu.Unlock()
			f.logger.Debug().Err(err).Msg("Dropping error from before refresh")
			return
		}
		f.lastErr = err
		onError := f.onError
		f.mu.Unlock()

		f.logger.Warn().Err(err).Msg("Loading more items failed")
		if onError != nil {
			onError(err)
		}
		return
	}

	f.mu.Lock()
	if epoch != f.epoch {
		f.mu.Unlock()
		f.logger.Debug().Int("records", len(items)).Msg("Dropping page from before refresh")
		return
	}
	before := f.items.Len()
	f.items.Append(items...)
	total := f.items.Len()
	added := f.items.order[before:total]
	update := Update{Added: append([]pagination.DisplayModel(nil), added...), Total: total}
	f.complete = f.ctrl.Exhausted()
	bottom := f.bottomVisibleLocked()
	onUpdate := f.onUpdate
	f.mu.Unlock()

	if dup := len(items) - len(update.Added); dup > 0 {
		f.logger.Debug().Int("duplicates", dup).Msg("Skipped items already in the list")
	}
	if onUpdate != nil {
		onUpdate(update)
	}

	if bottom >= 0 && pagination.ShouldFetchMore(bottom, total, f.config.LoadThreshold) {
		f.fetchNext(ctx)
	}
}

// bottomVisibleLocked returns the bottom-most visible index, or -1 when nothing is shown.
func (f *Feed) bottomVisibleLocked() int {
	n := f.items.Len()
	if n == 0 {
		return -1
	}
	bottom := f.bottom
	if rows := f.config.ViewportRows; rows > 0 && rows-1 > bottom {
		bottom = rows - 1
	}
	if bottom > n-1 {
		bottom = n - 1
	}
	return bottom
}

// Loading reports whether a fetch is in flight.
func (f *Feed) Loading() bool {
	return f.ctrl.InFlight()
}

// Err returns the last surfaced fetch error, cleared by Retry and Refresh.
func (f *Feed) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastErr
}

// Items returns a copy of the loaded items in display order.
func (f *Feed) Items() []pagination.DisplayModel {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.items.Items()
}

// Len returns the number of loaded items.
func (f *Feed) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.items.Len()
}

// Empty reports whether there is nothing to show.
func (f *Feed) Empty() bool {
	return f.Len() == 0
}

// Done reports whether the last page has been loaded and its items merged.
func (f *Feed) Done() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.complete
}

// Close stops observing the controller. It does not close the controller.
func (f *Feed) Close() {
	if f.stopWatcher != nil {
		f.stopWatcher()
	}
}
