package source

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/Sternrassler/people-pager/pkg/pagination"
)

// ErrInvalidCursor is returned for a cursor the source did not issue.
var ErrInvalidCursor = errors.New("invalid cursor")

// DefaultPageSize is used when a source is configured without a page size.
const DefaultPageSize = 20

func decodeOffset(cursor pagination.Cursor) (int, error) {
	if cursor == pagination.NoCursor {
		return 0, nil
	}
	offset, err := strconv.Atoi(string(cursor))
	if err != nil || offset < 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidCursor, cursor)
	}
	return offset, nil
}

// encodeOffset returns the cursor for offset, or NoCursor once offset reaches total.
func encodeOffset(offset, total int) pagination.Cursor {
	if offset >= total {
		return pagination.NoCursor
	}
	return pagination.Cursor(strconv.Itoa(offset))
}
