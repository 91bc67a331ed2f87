package campaign

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homemade/crank/crm"
	"github.com/homemade/crank/store"
)

// recordingStore captures audit records without a real database.
type recordingStore struct {
	records []*store.CreatedList
	err     error
}

func (s *recordingStore) CreateListRecord(ctx context.Context, rec *store.CreatedList) error {
	if s.err != nil {
		return s.err
	}
	rec.ID = "rec-1"
	s.records = append(s.records, rec)
	return nil
}

func testAllocator(api ListAPI, audit AuditStore) *Allocator {
	a := NewAllocator(api, audit, zerolog.Nop())
	clock := newFakeClock()
	a.Clock = clock
	a.Fetcher.Pager = noPace{}
	a.Fetcher.Clock = clock
	a.Upload.Pacer = noPace{}
	a.Upload.Clock = clock
	a.Updater.Pacer = noPace{}
	return a
}

func testConfig() Config {
	return Config{
		SortKey:       1,
		Brand:         "Acme",
		Name:          "Spring",
		Domain:        "acme.com",
		PrimaryListID: "primary",
		TargetCount:   100,
		EffectiveDate: time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC),
		BrandProperty: "ACME",
	}
}

// sourcesAPI serves fixed membership per list id.
func sourcesAPI(sources map[string][]string) *fakeListAPI {
	return &fakeListAPI{fetchPage: func(listID, offset string, count int) (crm.ListPage, error) {
		return crm.ListPage{IDs: sources[listID]}, nil
	}}
}

func TestAllocateFillsFromSecondaryAfterPrimary(t *testing.T) {
	api := sourcesAPI(map[string][]string{
		"primary":   makeIDs("p", 60),
		"secondary": makeIDs("s", 50),
	})
	audit := &recordingStore{}
	cfg := testConfig()
	cfg.SecondaryListID = "secondary"

	alloc, err := testAllocator(api, audit).Allocate(context.Background(), cfg, NewUsedSet())

	require.NoError(t, err)
	require.Len(t, alloc.Selected, 100)
	assert.Equal(t, 100, alloc.FulfillmentPct)
	// primary has priority and is exhausted before secondary is drawn from
	assert.Equal(t, makeIDs("p", 60), alloc.Selected[:60])
	assert.Equal(t, makeIDs("s", 40), alloc.Selected[60:])
	assert.Equal(t, 60, alloc.PrimaryAvailable)
	assert.Equal(t, 50, alloc.SecondaryAvailable)
}

func TestAllocateShortfallWithoutSecondary(t *testing.T) {
	api := sourcesAPI(map[string][]string{"primary": makeIDs("p", 40)})
	audit := &recordingStore{}

	alloc, err := testAllocator(api, audit).Allocate(context.Background(), testConfig(), NewUsedSet())

	require.NoError(t, err)
	assert.Len(t, alloc.Selected, 40)
	assert.Equal(t, 40, alloc.FulfillmentPct)
}

func TestAllocateNeverDoubleBooksAcrossCalls(t *testing.T) {
	api := sourcesAPI(map[string][]string{"primary": makeIDs("p", 100)})
	audit := &recordingStore{}
	cfg := testConfig()
	cfg.TargetCount = 50
	used := NewUsedSet()
	allocator := testAllocator(api, audit)

	first, err := allocator.Allocate(context.Background(), cfg, used)
	require.NoError(t, err)
	second, err := allocator.Allocate(context.Background(), cfg, used)
	require.NoError(t, err)

	require.Len(t, first.Selected, 50)
	require.Len(t, second.Selected, 50)
	taken := make(map[string]bool)
	for _, id := range first.Selected {
		taken[id] = true
	}
	for _, id := range second.Selected {
		assert.False(t, taken[id], "identifier %s selected twice", id)
	}
}

func TestAllocateDestinationNameFormat(t *testing.T) {
	api := sourcesAPI(map[string][]string{"primary": makeIDs("p", 10)})
	audit := &recordingStore{}

	alloc, err := testAllocator(api, audit).Allocate(context.Background(), testConfig(), NewUsedSet())

	require.NoError(t, err)
	assert.Equal(t, "Acme - Spring - acme.com - 5 Mar 2025", alloc.ListName)
	assert.Equal(t, []string{"Acme - Spring - acme.com - 5 Mar 2025"}, api.createdNames)
}

func TestAllocateEmptySelectionStillCreatesListAndRecord(t *testing.T) {
	api := sourcesAPI(map[string][]string{"primary": nil})
	audit := &recordingStore{}

	alloc, err := testAllocator(api, audit).Allocate(context.Background(), testConfig(), NewUsedSet())

	require.NoError(t, err)
	assert.Empty(t, alloc.Selected)
	assert.Zero(t, alloc.FulfillmentPct)
	assert.Len(t, api.createdNames, 1)
	assert.Empty(t, api.addCalls)
	require.Len(t, audit.records, 1)
	assert.Zero(t, audit.records[0].ContactCount)
	assert.Equal(t, 100, audit.records[0].RequestedCount)
}

func TestAllocateRecordCounts(t *testing.T) {
	api := sourcesAPI(map[string][]string{"primary": makeIDs("p", 80)})
	audit := &recordingStore{}
	used := NewUsedSet()
	for _, id := range makeIDs("p", 30) {
		used.Add(id)
	}

	alloc, err := testAllocator(api, audit).Allocate(context.Background(), testConfig(), used)

	require.NoError(t, err)
	require.Len(t, audit.records, 1)
	rec := audit.records[0]
	assert.Equal(t, 80, alloc.PrimaryFetched)
	assert.Equal(t, 50, rec.AvailableCount)
	assert.Equal(t, 30, rec.FilteredCount)
	assert.Equal(t, 50, rec.ContactCount)
	assert.Equal(t, 50, rec.FulfillmentPct)
	assert.LessOrEqual(t, rec.ContactCount, rec.RequestedCount)
}

func TestAllocateSideEffectsAreIndependent(t *testing.T) {
	api := sourcesAPI(map[string][]string{"primary": makeIDs("p", 10)})
	// the send list rejects every upload; the destination list accepts
	api.addToList = func(listID string, ids []string) error {
		if listID == "send-list" {
			return errors.New("send list full")
		}
		return nil
	}
	audit := &recordingStore{}
	cfg := testConfig()
	cfg.SendListID = "send-list"
	cfg.TargetCount = 10

	alloc, err := testAllocator(api, audit).Allocate(context.Background(), cfg, NewUsedSet())

	require.NoError(t, err)
	assert.Positive(t, alloc.FailedUploadChunks)
	// destination upload and property update still happened
	var destUploads int
	for _, call := range api.addCalls {
		if call.listID == "new-list" {
			destUploads++
		}
	}
	assert.Positive(t, destUploads)
	assert.NotEmpty(t, api.batchCalls)
	assert.Len(t, audit.records, 1)
}

func TestAllocateDegradesOnFetchExhaustion(t *testing.T) {
	api := &fakeListAPI{fetchPage: func(listID, offset string, count int) (crm.ListPage, error) {
		return crm.ListPage{}, errors.New("api down")
	}}
	audit := &recordingStore{}

	alloc, err := testAllocator(api, audit).Allocate(context.Background(), testConfig(), NewUsedSet())

	require.NoError(t, err)
	assert.Empty(t, alloc.Selected)
	assert.Len(t, audit.records, 1)
}

func TestAllocateAuditFailureDoesNotFailCampaign(t *testing.T) {
	api := sourcesAPI(map[string][]string{"primary": makeIDs("p", 10)})
	audit := &recordingStore{err: errors.New("store down")}

	_, err := testAllocator(api, audit).Allocate(context.Background(), testConfig(), NewUsedSet())

	require.NoError(t, err)
}

func TestFetchCap(t *testing.T) {
	assert.Equal(t, 500, fetchCap(100))
	assert.Equal(t, 600, fetchCap(200))
	assert.Equal(t, 1500, fetchCap(500))
}

func TestFulfillmentPct(t *testing.T) {
	assert.Equal(t, 100, fulfillmentPct(100, 100))
	assert.Equal(t, 40, fulfillmentPct(40, 100))
	assert.Equal(t, 33, fulfillmentPct(1, 3))
	assert.Equal(t, 67, fulfillmentPct(2, 3))
	assert.Equal(t, 0, fulfillmentPct(10, 0))
}
