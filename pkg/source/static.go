package source

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Sternrassler/people-pager/pkg/pagination"
)

// ErrInjected is the error returned by deliberately failed Static fetches.
var ErrInjected = errors.New("injected fetch failure")

// StaticConfig holds Static configuration.
type StaticConfig struct {
	// PageSize is the number of records per page.
	PageSize int

	// FailFirst fails that many calls before serving anything.
	FailFirst int

	// FailEvery fails every n-th call after the first FailFirst calls. 0 disables it.
	FailEvery int

	// Delay is added to every call.
	Delay time.Duration
}

// Static serves a fixed record list.
type Static struct {
	records []pagination.Record
	config  StaticConfig

	mu    sync.Mutex
	calls int
}

// NewStatic creates a Static over records.
func NewStatic(records []pagination.Record, config StaticConfig) *Static {
	if config.PageSize <= 0 {
		config.PageSize = DefaultPageSize
	}
	return &Static{
		records: records,
		config:  config,
	}
}

// FetchPage implements pagination.PageFetcher.
func (s *Static) FetchPage(ctx context.Context, cursor pagination.Cursor) (pagination.Page, error) {
	s.mu.Lock()
	s.calls++
	call := s.calls
	s.mu.Unlock()

	if s.config.Delay > 0 {
		timer := time.NewTimer(s.config.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return pagination.Page{}, ctx.Err()
		case <-timer.C:
		}
	}

	if s.shouldFail(call) {
		return pagination.Page{}, ErrInjected
	}

	offset, err := decodeOffset(cursor)
	if err != nil {
		return pagination.Page{}, err
	}
	if offset > len(s.records) {
		return pagination.Page{}, ErrInvalidCursor
	}

	end := offset + s.config.PageSize
	if end > len(s.records) {
		end = len(s.records)
	}

	records := make([]pagination.Record, end-offset)
	copy(records, s.records[offset:end])

	return pagination.Page{
		Records:    records,
		NextCursor: encodeOffset(end, len(s.records)),
	}, nil
}

func (s *Static) shouldFail(call int) bool {
	if call <= s.config.FailFirst {
		return true
	}
	if s.config.FailEvery > 0 && (call-s.config.FailFirst)%s.config.FailEvery == 0 {
		return true
	}
	return false
}

// Calls returns how many times FetchPage was called.
func (s *Static) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Len returns the number of records served.
func (s *Static) Len() int {
	return len(s.records)
}
