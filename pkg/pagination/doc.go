// Package pagination implements the cursor-driven paging controller that feeds
// an incrementally loaded list.
//
// A Controller wraps a PageFetcher (the remote "give me the page after this
// cursor" capability) and owns the paging state: the current cursor, the
// consecutive failure count, and whether a fetch is in flight. Only one fetch
// is ever outstanding; overlapping FetchNext calls are rejected, not queued.
//
// Example usage:
//
//	ctrl := pagination.NewController(fetcher, pagination.DefaultConfig(), logger)
//	ctrl.FetchNext(ctx, func(items []pagination.DisplayModel, err error) {
//		if err != nil {
//			// retries exhausted, offer the user a retry
//			return
//		}
//		// append items to the visible list
//	})
//
// Failed fetches are retried with the same cursor up to Config.MaxRetries
// times before the callback sees a *FetchError. Transient failures never
// reach the caller.
//
// Reset rewinds to the first page. A Reset (or Close) issued while a fetch is
// in flight cancels that fetch and its late response is discarded; each fetch
// is tagged with the generation it was started in.
//
// ShouldFetchMore holds the near-end-of-list rule used by list collaborators
// to decide when to call FetchNext.
package pagination
