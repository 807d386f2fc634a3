package pagination

// DefaultLoadThreshold is how many rows before the end of the loaded list the
// next page is requested.
const DefaultLoadThreshold = 10

// ShouldFetchMore reports whether a list showing currentIndex out of
// totalLoaded items is close enough to the end to request the next page.
//
// The rule is currentIndex + threshold > totalLoaded - 1, so with a threshold
// of 10 and 20 loaded items index 9 triggers and index 8 does not.
func ShouldFetchMore(currentIndex, totalLoaded, threshold int) bool {
	return currentIndex+threshold > totalLoaded-1
}
