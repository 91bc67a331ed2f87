// Package campaign implements the campaign list pipeline: paginated
// contact retrieval, chunked list uploads, batch property updates, and the
// allocator/runner that drive them for a configured set of campaigns.
package campaign

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/homemade/crank/crm"
	"github.com/homemade/crank/pace"
)

// ListAPI is the slice of the CRM client the list pipeline uses.
type ListAPI interface {
	FetchListPage(ctx context.Context, listID, offset string, count int) (crm.ListPage, error)
	AddToList(ctx context.Context, listID string, ids []string) error
	CreateList(ctx context.Context, name string) (string, error)
	BatchUpdateProperties(ctx context.Context, updates []crm.ContactUpdate) error
}

const (
	DefaultPageSize       = 1000
	DefaultFetchRetries   = 3
	DefaultPageInterval   = 200 * time.Millisecond
	defaultFetchBackoffTo = 10 * time.Second
)

// FetchExhaustedError reports that the retry limit was reached before any
// identifiers were collected.
type FetchExhaustedError struct {
	ListID string
	Err    error
}

func (e *FetchExhaustedError) Error() string {
	return fmt.Sprintf("fetching list %s exhausted retries: %v", e.ListID, e.Err)
}

func (e *FetchExhaustedError) Unwrap() error { return e.Err }

// Fetcher retrieves the member identifiers of a contact list with
// cursor pagination, bounded retry and rate-limit pacing.
type Fetcher struct {
	Lists      ListAPI
	PageSize   int
	RetryLimit int
	Backoff    pace.Backoff
	Pager      pace.Pacer
	Clock      pace.Clock
	Log        zerolog.Logger
}

// NewFetcher returns a Fetcher with production defaults.
func NewFetcher(lists ListAPI, log zerolog.Logger) *Fetcher {
	return &Fetcher{
		Lists:      lists,
		PageSize:   DefaultPageSize,
		RetryLimit: DefaultFetchRetries,
		Backoff:    pace.Backoff{Base: time.Second, Cap: defaultFetchBackoffTo},
		Pager:      pace.NewIntervalPacer(DefaultPageInterval),
		Clock:      pace.SystemClock{},
		Log:        log,
	}
}

// Fetch returns up to maxCount deduplicated member identifiers of the list.
// Page errors are retried with exponential backoff; once the consecutive
// error count reaches the retry limit the partial result is returned as a
// success if anything was collected, otherwise a FetchExhaustedError.
func (f *Fetcher) Fetch(ctx context.Context, listID string, maxCount int) ([]string, error) {
	if maxCount <= 0 {
		return nil, nil
	}

	var ids []string
	seen := make(map[string]struct{})
	offset := ""
	failures := 0
	for {
		if err := f.Pager.Wait(ctx); err != nil {
			return ids, err
		}
		page, err := f.Lists.FetchListPage(ctx, listID, offset, f.PageSize)
		if err != nil {
			if ctx.Err() != nil {
				return ids, ctx.Err()
			}
			failures++
			f.Log.Warn().Err(err).Str("list", listID).Int("consecutiveFailures", failures).Msg("page fetch failed")
			if failures >= f.RetryLimit {
				if len(ids) > 0 {
					f.Log.Warn().Str("list", listID).Int("collected", len(ids)).Msg("retries exhausted, returning partial result")
					return ids, nil
				}
				return nil, &FetchExhaustedError{ListID: listID, Err: err}
			}
			if err := f.Clock.Sleep(ctx, f.Backoff.Delay(failures)); err != nil {
				return ids, err
			}
			continue
		}
		failures = 0

		for _, id := range page.IDs {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
			if len(ids) >= maxCount {
				return ids, nil
			}
		}
		if !page.HasMore {
			return ids, nil
		}
		offset = page.Offset
	}
}
