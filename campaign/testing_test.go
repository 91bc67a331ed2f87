package campaign

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/homemade/crank/crm"
)

// fakeClock advances instantly instead of sleeping and records every sleep.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 5, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if d > 0 {
		c.sleeps = append(c.sleeps, d)
		c.now = c.now.Add(d)
	}
	return nil
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// noPace is a Pacer that never waits.
type noPace struct{}

func (noPace) Wait(ctx context.Context) error { return ctx.Err() }

// fakeListAPI dispatches to optional closures and records calls.
type fakeListAPI struct {
	fetchPage   func(listID, offset string, count int) (crm.ListPage, error)
	addToList   func(listID string, ids []string) error
	createList  func(name string) (string, error)
	batchUpdate func(updates []crm.ContactUpdate) error

	addCalls     []addCall
	createdNames []string
	batchCalls   [][]crm.ContactUpdate
}

type addCall struct {
	listID string
	ids    []string
}

func (f *fakeListAPI) FetchListPage(ctx context.Context, listID, offset string, count int) (crm.ListPage, error) {
	if f.fetchPage == nil {
		return crm.ListPage{}, nil
	}
	return f.fetchPage(listID, offset, count)
}

func (f *fakeListAPI) AddToList(ctx context.Context, listID string, ids []string) error {
	f.addCalls = append(f.addCalls, addCall{listID: listID, ids: append([]string(nil), ids...)})
	if f.addToList == nil {
		return nil
	}
	return f.addToList(listID, ids)
}

func (f *fakeListAPI) CreateList(ctx context.Context, name string) (string, error) {
	f.createdNames = append(f.createdNames, name)
	if f.createList == nil {
		return "new-list", nil
	}
	return f.createList(name)
}

func (f *fakeListAPI) BatchUpdateProperties(ctx context.Context, updates []crm.ContactUpdate) error {
	copied := append([]crm.ContactUpdate(nil), updates...)
	f.batchCalls = append(f.batchCalls, copied)
	if f.batchUpdate == nil {
		return nil
	}
	return f.batchUpdate(updates)
}

// makeIDs generates n identifiers "p1".."pn" with the given prefix.
func makeIDs(prefix string, n int) []string {
	result := make([]string, n)
	for i := range result {
		result[i] = prefix + strconv.Itoa(i+1)
	}
	return result
}

// pagesFor serves the given ids in fixed-size pages with has-more flags.
func pagesFor(ids []string, pageSize int) func(listID, offset string, count int) (crm.ListPage, error) {
	return func(listID, offset string, count int) (crm.ListPage, error) {
		start := 0
		if offset != "" {
			start, _ = strconv.Atoi(offset)
		}
		end := start + pageSize
		if end > len(ids) {
			end = len(ids)
		}
		return crm.ListPage{
			IDs:     ids[start:end],
			HasMore: end < len(ids),
			Offset:  strconv.Itoa(end),
		}, nil
	}
}
