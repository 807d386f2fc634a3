package pagination

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// scriptedFetcher answers fetches from a queue of canned responses and
// records every cursor it was called with.
type scriptedFetcher struct {
	mu        sync.Mutex
	responses []scriptedResponse
	calls     []Cursor
	block     chan struct{}
}

type scriptedResponse struct {
	page Page
	err  error
}

func (f *scriptedFetcher) FetchPage(ctx context.Context, cursor Cursor) (Page, error) {
	f.mu.Lock()
	f.calls = append(f.calls, cursor)
	var resp scriptedResponse
	if len(f.responses) > 0 {
		resp = f.responses[0]
		f.responses = f.responses[1:]
	} else {
		resp = scriptedResponse{err: errors.New("no scripted response")}
	}
	block := f.block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return Page{}, ctx.Err()
		}
	}
	return resp.page, resp.err
}

func (f *scriptedFetcher) Calls() []Cursor {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Cursor, len(f.calls))
	copy(out, f.calls)
	return out
}

type callbackResult struct {
	items []DisplayModel
	err   error
}

func recordingCallback() (Callback, <-chan callbackResult) {
	ch := make(chan callbackResult, 16)
	return func(items []DisplayModel, err error) {
		ch <- callbackResult{items: items, err: err}
	}, ch
}

func waitResult(t *testing.T, ch <-chan callbackResult) callbackResult {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("callback was not invoked")
		return callbackResult{}
	}
}

func assertNoResult(t *testing.T, ch <-chan callbackResult) {
	t.Helper()
	select {
	case r := <-ch:
		t.Fatalf("unexpected callback: items=%v err=%v", r.items, r.err)
	case <-time.After(50 * time.Millisecond):
	}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.AttemptTimeout = time.Second
	return cfg
}

func newTestController(f PageFetcher) *Controller {
	return NewController(f, testConfig(), zerolog.Nop())
}

func page(next Cursor, ids ...string) Page {
	records := make([]Record, 0, len(ids))
	for _, id := range ids {
		records = append(records, Record{ID: id, Name: "Person " + id})
	}
	return Page{Records: records, NextCursor: next}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", cfg.MaxRetries)
	}
	if cfg.InitialBackoff != 0 {
		t.Errorf("InitialBackoff = %v, want 0", cfg.InitialBackoff)
	}
	if cfg.BackoffMultiplier != 2.0 {
		t.Errorf("BackoffMultiplier = %v, want 2.0", cfg.BackoffMultiplier)
	}
}

func TestFetchNext_Success(t *testing.T) {
	f := &scriptedFetcher{responses: []scriptedResponse{{page: page("A", "1", "2")}}}
	ctrl := newTestController(f)
	cb, results := recordingCallback()

	if !ctrl.FetchNext(context.Background(), cb) {
		t.Fatal("FetchNext() = false, want true")
	}

	r := waitResult(t, results)
	if r.err != nil {
		t.Fatalf("err = %v, want nil", r.err)
	}
	if len(r.items) != 2 {
		t.Fatalf("len(items) = %d, want 2", len(r.items))
	}
	if r.items[0].Label != "Person 1 (1)" {
		t.Errorf("items[0].Label = %q, want %q", r.items[0].Label, "Person 1 (1)")
	}
	if ctrl.InFlight() {
		t.Error("InFlight() = true after completion")
	}
	if ctrl.Cursor() != "A" {
		t.Errorf("Cursor() = %q, want %q", ctrl.Cursor(), "A")
	}
}

func TestFetchNext_DedupWhileInFlight(t *testing.T) {
	f := &scriptedFetcher{
		responses: []scriptedResponse{{page: page("A", "1")}},
		block:     make(chan struct{}),
	}
	ctrl := newTestController(f)
	cb, results := recordingCallback()

	if !ctrl.FetchNext(context.Background(), cb) {
		t.Fatal("first FetchNext() = false, want true")
	}
	if ctrl.FetchNext(context.Background(), cb) {
		t.Error("second FetchNext() = true while in flight, want false")
	}
	if !ctrl.InFlight() {
		t.Error("InFlight() = false while fetch outstanding")
	}

	close(f.block)
	waitResult(t, results)
	assertNoResult(t, results)

	if got := len(f.Calls()); got != 1 {
		t.Errorf("fetcher calls = %d, want 1", got)
	}
}

func TestFetchNext_RetryBound(t *testing.T) {
	f := &scriptedFetcher{} // every call fails
	ctrl := newTestController(f)
	cb, results := recordingCallback()

	ctrl.FetchNext(context.Background(), cb)
	r := waitResult(t, results)

	if got, want := len(f.Calls()), DefaultMaxRetries+1; got != want {
		t.Errorf("fetcher calls = %d, want %d", got, want)
	}
	if ctrl.InFlight() {
		t.Error("InFlight() = true after terminal failure")
	}
	if r.items == nil || len(r.items) != 0 {
		t.Errorf("items = %v, want empty non-nil slice", r.items)
	}

	var fetchErr *FetchError
	if !errors.As(r.err, &fetchErr) {
		t.Fatalf("err = %T, want *FetchError", r.err)
	}
	if fetchErr.Attempts != DefaultMaxRetries+1 {
		t.Errorf("Attempts = %d, want %d", fetchErr.Attempts, DefaultMaxRetries+1)
	}
	if !errors.Is(r.err, ErrRetryExhausted) {
		t.Error("errors.Is(err, ErrRetryExhausted) = false")
	}
	if fetchErr.Description() != "no scripted response" {
		t.Errorf("Description() = %q", fetchErr.Description())
	}
	assertNoResult(t, results)
}

func TestFetchNext_RetryRecovery(t *testing.T) {
	transient := errors.New("temporarily unavailable")
	f := &scriptedFetcher{responses: []scriptedResponse{
		{err: transient},
		{err: transient},
		{page: page("B", "7", "8", "9")},
	}}
	ctrl := newTestController(f)
	cb, results := recordingCallback()

	ctrl.FetchNext(context.Background(), cb)
	r := waitResult(t, results)
	assertNoResult(t, results)

	if r.err != nil {
		t.Fatalf("err = %v, want nil", r.err)
	}
	if len(r.items) != 3 {
		t.Errorf("len(items) = %d, want 3", len(r.items))
	}
	if ctrl.RetryCount() != 0 {
		t.Errorf("RetryCount() = %d, want 0", ctrl.RetryCount())
	}
	for i, c := range f.Calls() {
		if c != NoCursor {
			t.Errorf("call %d cursor = %q, want NoCursor", i, c)
		}
	}
}

func TestFetchNext_CursorThreading(t *testing.T) {
	f := &scriptedFetcher{responses: []scriptedResponse{
		{page: page("A", "1", "2")},
		{page: page(NoCursor, "3")},
	}}
	ctrl := newTestController(f)
	ctx := context.Background()

	if _, err := ctrl.FetchNextWait(ctx); err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	if ctrl.Exhausted() {
		t.Error("Exhausted() = true after first page")
	}
	if _, err := ctrl.FetchNextWait(ctx); err != nil {
		t.Fatalf("second fetch: %v", err)
	}

	calls := f.Calls()
	if len(calls) != 2 || calls[0] != NoCursor || calls[1] != "A" {
		t.Errorf("calls = %v, want [\"\" \"A\"]", calls)
	}
	if ctrl.Cursor() != NoCursor {
		t.Errorf("Cursor() = %q, want NoCursor", ctrl.Cursor())
	}
	if !ctrl.Exhausted() {
		t.Error("Exhausted() = false after last page")
	}
}

func TestReset_RewindsCursor(t *testing.T) {
	f := &scriptedFetcher{responses: []scriptedResponse{
		{page: page("A", "1")},
		{page: page("B", "2")},
		{page: page("A", "1")},
	}}
	ctrl := newTestController(f)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := ctrl.FetchNextWait(ctx); err != nil {
			t.Fatalf("fetch %d: %v", i, err)
		}
	}

	ctrl.Reset()
	if ctrl.Cursor() != NoCursor {
		t.Errorf("Cursor() after Reset = %q, want NoCursor", ctrl.Cursor())
	}

	if _, err := ctrl.FetchNextWait(ctx); err != nil {
		t.Fatalf("fetch after reset: %v", err)
	}
	calls := f.Calls()
	if last := calls[len(calls)-1]; last != NoCursor {
		t.Errorf("cursor after Reset = %q, want NoCursor", last)
	}
}

func TestReset_DiscardsInFlightResponse(t *testing.T) {
	f := &scriptedFetcher{
		responses: []scriptedResponse{{page: page("STALE", "old")}},
		block:     make(chan struct{}),
	}
	ctrl := newTestController(f)
	cb, results := recordingCallback()

	ctrl.FetchNext(context.Background(), cb)
	ctrl.Reset()

	if ctrl.InFlight() {
		t.Error("InFlight() = true after Reset")
	}
	assertNoResult(t, results)

	if ctrl.Cursor() != NoCursor {
		t.Errorf("Cursor() = %q, want NoCursor; stale response was applied", ctrl.Cursor())
	}

	f.mu.Lock()
	f.block = nil
	f.responses = []scriptedResponse{{page: page("A", "1")}}
	f.mu.Unlock()

	items, err := ctrl.FetchNextWait(context.Background())
	if err != nil {
		t.Fatalf("fetch after reset: %v", err)
	}
	if len(items) != 1 || items[0].ID != "1" {
		t.Errorf("items = %v, want the fresh page", items)
	}
}

func TestReset_AbandonedFetchDoesNotHoldLaterCallbacks(t *testing.T) {
	stuck := make(chan struct{})
	defer close(stuck)

	var calls sync.WaitGroup
	calls.Add(1)
	var n int
	var mu sync.Mutex
	fetcher := PageFetcherFunc(func(ctx context.Context, cursor Cursor) (Page, error) {
		mu.Lock()
		n++
		first := n == 1
		mu.Unlock()
		if first {
			calls.Done()
			<-stuck // ignores cancellation
			return page("STALE", "old"), nil
		}
		return page("A", "1"), nil
	})
	ctrl := newTestController(fetcher)

	ctrl.FetchNext(context.Background(), func([]DisplayModel, error) {})
	calls.Wait()
	ctrl.Reset()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	items, err := ctrl.FetchNextWait(ctx)
	if err != nil {
		t.Fatalf("fetch after reset: %v", err)
	}
	if len(items) != 1 || items[0].ID != "1" {
		t.Errorf("items = %v, want the fresh page", items)
	}
}

func TestFetchNext_RetryBudgetRestoredAfterFailure(t *testing.T) {
	boom := errors.New("boom")
	responses := make([]scriptedResponse, 0, 6)
	for i := 0; i < DefaultMaxRetries+1; i++ {
		responses = append(responses, scriptedResponse{err: boom})
	}
	responses = append(responses, scriptedResponse{err: boom}, scriptedResponse{page: page("A", "1")})
	f := &scriptedFetcher{responses: responses}
	ctrl := newTestController(f)
	ctx := context.Background()

	if _, err := ctrl.FetchNextWait(ctx); err == nil {
		t.Fatal("first fetch succeeded, want terminal error")
	}

	items, err := ctrl.FetchNextWait(ctx)
	if err != nil {
		t.Fatalf("second fetch: %v, want success after one retry", err)
	}
	if len(items) != 1 {
		t.Errorf("len(items) = %d, want 1", len(items))
	}
}

func TestFetchNext_CallerCancellation(t *testing.T) {
	f := &scriptedFetcher{block: make(chan struct{})}
	ctrl := newTestController(f)
	cb, results := recordingCallback()

	ctx, cancel := context.WithCancel(context.Background())
	ctrl.FetchNext(ctx, cb)
	cancel()

	r := waitResult(t, results)
	if !errors.Is(r.err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", r.err)
	}
	if errors.Is(r.err, ErrRetryExhausted) {
		t.Error("cancelled fetch reported as retry exhaustion")
	}
	if got := len(f.Calls()); got != 1 {
		t.Errorf("fetcher calls = %d, want 1", got)
	}
}

func TestFetchNext_Backoff(t *testing.T) {
	f := &scriptedFetcher{responses: []scriptedResponse{
		{err: errors.New("flaky")},
		{page: page(NoCursor, "1")},
	}}
	cfg := testConfig()
	cfg.InitialBackoff = 20 * time.Millisecond
	ctrl := NewController(f, cfg, zerolog.Nop())

	start := time.Now()
	if _, err := ctrl.FetchNextWait(context.Background()); err != nil {
		t.Fatalf("FetchNextWait() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed < 15*time.Millisecond {
		t.Errorf("elapsed = %v, want at least the jittered backoff", elapsed)
	}
}

func TestClose(t *testing.T) {
	f := &scriptedFetcher{block: make(chan struct{})}
	ctrl := newTestController(f)
	cb, results := recordingCallback()

	ctrl.FetchNext(context.Background(), cb)
	if err := ctrl.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	assertNoResult(t, results)
	if ctrl.InFlight() {
		t.Error("InFlight() = true after Close")
	}
	if ctrl.FetchNext(context.Background(), cb) {
		t.Error("FetchNext() = true after Close")
	}
	if _, err := ctrl.FetchNextWait(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("FetchNextWait() error = %v, want ErrClosed", err)
	}
}

func TestWatch(t *testing.T) {
	f := &scriptedFetcher{responses: []scriptedResponse{{page: page("A", "1")}}}
	ctrl := newTestController(f)

	var mu sync.Mutex
	var seen []bool
	stop := ctrl.Watch(func(inFlight bool) {
		mu.Lock()
		seen = append(seen, inFlight)
		mu.Unlock()
	})

	if _, err := ctrl.FetchNextWait(context.Background()); err != nil {
		t.Fatalf("FetchNextWait() error = %v", err)
	}

	// The idle notification follows the callback.
	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := len(seen)
		mu.Unlock()
		if n >= 2 || time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	stop()

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 || !seen[0] || seen[1] {
		t.Errorf("observed = %v, want [true false]", seen)
	}
}

func TestFetchNext_CallbacksInStartOrder(t *testing.T) {
	f := &scriptedFetcher{responses: []scriptedResponse{
		{page: page("A", "1")},
		{page: page("B", "2")},
	}}
	ctrl := newTestController(f)

	var mu sync.Mutex
	var order []string
	entered := make(chan struct{})
	release := make(chan struct{})

	ctrl.FetchNext(context.Background(), func(items []DisplayModel, err error) {
		close(entered)
		<-release
		mu.Lock()
		order = append(order, "first")
		mu.Unlock()
	})

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first callback was not invoked")
	}
	if ctrl.InFlight() {
		t.Fatal("InFlight() = true while the first callback runs")
	}

	cb, results := recordingCallback()
	if !ctrl.FetchNext(context.Background(), func(items []DisplayModel, err error) {
		mu.Lock()
		order = append(order, "second")
		mu.Unlock()
		cb(items, err)
	}) {
		t.Fatal("FetchNext() = false once the first fetch left flight")
	}

	// The second page is fetched but held until the first callback returns.
	assertNoResult(t, results)
	close(release)
	r := waitResult(t, results)
	if r.err != nil || len(r.items) != 1 || r.items[0].ID != "2" {
		t.Fatalf("second result = %+v", r)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("callback order = %v, want [first second]", order)
	}
}

func TestWatch_ListenerMayFetchAndWait(t *testing.T) {
	f := &scriptedFetcher{responses: []scriptedResponse{
		{page: page("A", "1")},
		{page: page("B", "2")},
	}}
	ctrl := newTestController(f)

	var mu sync.Mutex
	var order []string
	record := func(name string) {
		mu.Lock()
		order = append(order, name)
		mu.Unlock()
	}

	followUp := make(chan error, 1)
	var once sync.Once
	stop := ctrl.Watch(func(inFlight bool) {
		if inFlight {
			return
		}
		once.Do(func() {
			items, err := ctrl.FetchNextWait(context.Background())
			if err == nil && len(items) == 1 {
				record("fetch2")
			}
			followUp <- err
		})
	})
	defer stop()

	cb, results := recordingCallback()
	ctrl.FetchNext(context.Background(), func(items []DisplayModel, err error) {
		record("fetch1")
		cb(items, err)
	})
	waitResult(t, results)

	select {
	case err := <-followUp:
		if err != nil {
			t.Fatalf("follow-up fetch error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("follow-up fetch did not complete")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 || order[0] != "fetch1" || order[1] != "fetch2" {
		t.Errorf("callback order = %v, want [fetch1 fetch2]", order)
	}
	if got := ctrl.Cursor(); got != "B" {
		t.Errorf("Cursor() = %q, want B", got)
	}
}

func TestNewController_NilFetcherPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("NewController(nil) did not panic")
		}
	}()
	NewController(nil, DefaultConfig(), zerolog.Nop())
}
