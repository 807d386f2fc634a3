// Package listview is a headless list collaborator for pagination.Controller.
//
// A Feed plays the part a scrolling list view plays in an app: it accumulates
// fetched pages into an ItemSet, tracks the bottom of the viewport, and calls
// FetchNext whenever an item within Config.LoadThreshold rows of the end is
// about to be shown or a page lands while the viewport is already past that
// point. Pull-to-refresh maps to Refresh, the error alert's retry button to
// Retry.
package listview
