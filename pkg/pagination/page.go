package pagination

import (
	"context"
)

// Cursor is an opaque continuation token returned by a PageFetcher.
// NoCursor requests the first page, and as a Page.NextCursor it marks the end of data.
type Cursor string

// NoCursor is the zero cursor.
const NoCursor Cursor = ""

// Record is a single entity returned by the remote source.
// Two records are the same entity when their IDs match.
type Record struct {
	ID   string `json:"id"`
	Name string `json:"fullName"`
}

// Page is the result of one fetch.
type Page struct {
	Records    []Record
	NextCursor Cursor
}

// Last reports whether no further pages follow this one.
func (p Page) Last() bool {
	return p.NextCursor == NoCursor
}

// PageFetcher retrieves the page that starts at cursor.
//
// Implementations must tolerate being called repeatedly with the same cursor;
// the controller re-issues a failed fetch unchanged when it retries.
type PageFetcher interface {
	FetchPage(ctx context.Context, cursor Cursor) (Page, error)
}

// PageFetcherFunc adapts a function to the PageFetcher interface.
type PageFetcherFunc func(ctx context.Context, cursor Cursor) (Page, error)

// FetchPage calls f(ctx, cursor).
func (f PageFetcherFunc) FetchPage(ctx context.Context, cursor Cursor) (Page, error) {
	return f(ctx, cursor)
}
