package campaign

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/homemade/crank/pace"
	"github.com/homemade/crank/store"
)

// ListNameDateLayout formats the date suffix of a destination list name,
// e.g. "5 Mar 2025".
const ListNameDateLayout = "2 Jan 2006"

// minFetchCount is the floor on how many identifiers a source list is asked
// for, regardless of how small the remaining need is.
const minFetchCount = 500

// AuditStore is the slice of the audit store the allocator writes to.
type AuditStore interface {
	CreateListRecord(ctx context.Context, rec *store.CreatedList) error
}

// Allocation is the full detail of one campaign allocation. It is returned
// even when no contacts could be selected so empty runs stay auditable.
type Allocation struct {
	Config       Config
	ListName     string
	RemoteListID string
	Selected     []string

	PrimaryFetched     int
	PrimaryAvailable   int
	SecondaryFetched   int
	SecondaryAvailable int
	FulfillmentPct     int

	FailedUploadChunks int
	RecordID           string
}

// Allocator selects not-yet-used contacts for one campaign, creates and
// populates its destination list, stamps send properties, and writes the
// audit record.
type Allocator struct {
	Fetcher *Fetcher
	Upload  *Uploader
	Updater *PropertyUpdater
	Lists   ListAPI
	Store   AuditStore
	Clock   pace.Clock
	Log     zerolog.Logger
}

// NewAllocator wires an Allocator from one CRM client slice and audit store.
func NewAllocator(lists ListAPI, audit AuditStore, log zerolog.Logger) *Allocator {
	return &Allocator{
		Fetcher: NewFetcher(lists, log),
		Upload:  NewUploader(lists, log),
		Updater: NewPropertyUpdater(lists, log),
		Lists:   lists,
		Store:   audit,
		Clock:   pace.SystemClock{},
		Log:     log,
	}
}

// fetchCap is how many identifiers to request for a remaining need.
// Over-fetching by 3x leaves room for identifiers already used this run.
func fetchCap(need int) int {
	if c := 3 * need; c > minFetchCount {
		return c
	}
	return minFetchCount
}

// fulfillmentPct is selected over requested as a rounded percentage.
func fulfillmentPct(selected, requested int) int {
	if requested <= 0 {
		return 0
	}
	return int(math.Round(100 * float64(selected) / float64(requested)))
}

// Allocate runs one campaign allocation against the shared used set.
// Fetch exhaustion on a source degrades that source to zero availability
// rather than failing the campaign; the three population side effects
// (send-list upload, destination upload, property update) are independent
// of each other and of the audit write. The returned error is non-nil only
// when the context ends the allocation early.
func (a *Allocator) Allocate(ctx context.Context, cfg Config, used *UsedSet) (*Allocation, error) {
	alloc := &Allocation{Config: cfg}

	primary, err := a.fetchSource(ctx, cfg.PrimaryListID, fetchCap(cfg.TargetCount))
	if err != nil {
		return alloc, err
	}
	alloc.PrimaryFetched = len(primary)
	available := used.FilterNew(primary)
	alloc.PrimaryAvailable = len(available)

	if len(available) < cfg.TargetCount && cfg.SecondaryListID != "" {
		secondary, err := a.fetchSource(ctx, cfg.SecondaryListID, fetchCap(cfg.TargetCount-len(available)))
		if err != nil {
			return alloc, err
		}
		alloc.SecondaryFetched = len(secondary)
		secondaryAvailable := used.FilterNew(secondary)
		alloc.SecondaryAvailable = len(secondaryAvailable)
		// primary keeps priority: secondary only tops up
		available = append(available, secondaryAvailable...)
	}

	if len(available) > cfg.TargetCount {
		available = available[:cfg.TargetCount]
	}
	alloc.Selected = available
	for _, id := range alloc.Selected {
		used.Add(id)
	}
	alloc.FulfillmentPct = fulfillmentPct(len(alloc.Selected), cfg.TargetCount)

	alloc.ListName = fmt.Sprintf("%s - %s - %s - %s",
		cfg.Brand, cfg.Name, cfg.Domain, a.effectiveDate(cfg).Format(ListNameDateLayout))

	// the destination list is created even for empty selections so every
	// allocation leaves a visible trace in the CRM and the audit store
	listID, err := a.Lists.CreateList(ctx, alloc.ListName)
	if err != nil {
		if ctx.Err() != nil {
			return alloc, ctx.Err()
		}
		a.Log.Error().Err(err).Str("name", alloc.ListName).Msg("destination list creation failed")
	}
	alloc.RemoteListID = listID

	if len(alloc.Selected) > 0 {
		if cfg.SendListID != "" {
			res, err := a.Upload.Upload(ctx, cfg.SendListID, alloc.Selected)
			if err != nil {
				return alloc, err
			}
			alloc.FailedUploadChunks += len(res.FailedChunks)
		}
		if alloc.RemoteListID != "" {
			res, err := a.Upload.Upload(ctx, alloc.RemoteListID, alloc.Selected)
			if err != nil {
				return alloc, err
			}
			alloc.FailedUploadChunks += len(res.FailedChunks)
		}
		if err := a.Updater.UpdateSentProperties(ctx, alloc.Selected, a.effectiveDate(cfg), cfg.BrandProperty); err != nil {
			return alloc, err
		}
	}

	rec := &store.CreatedList{
		Name:            alloc.ListName,
		RemoteListID:    alloc.RemoteListID,
		CreatedAt:       a.Clock.Now().UTC(),
		FilterCriteria:  fmt.Sprintf("primary=%s secondary=%s excludeUsed=true", cfg.PrimaryListID, cfg.SecondaryListID),
		CampaignDetails: fmt.Sprintf("brand=%s campaign=%s domain=%s effective=%s", cfg.Brand, cfg.Name, cfg.Domain, a.effectiveDate(cfg).Format(ListNameDateLayout)),
		ContactCount:    len(alloc.Selected),
		RequestedCount:  cfg.TargetCount,
		AvailableCount:  alloc.PrimaryAvailable + alloc.SecondaryAvailable,
		FilteredCount:   (alloc.PrimaryFetched - alloc.PrimaryAvailable) + (alloc.SecondaryFetched - alloc.SecondaryAvailable),
		FulfillmentPct:  alloc.FulfillmentPct,
	}
	if err := a.Store.CreateListRecord(ctx, rec); err != nil {
		// the remote side effects already happened and are authoritative
		a.Log.Error().Err(err).Str("name", alloc.ListName).Msg("audit record write failed")
	}
	alloc.RecordID = rec.ID

	a.Log.Info().
		Str("campaign", cfg.Name).
		Str("list", alloc.RemoteListID).
		Int("selected", len(alloc.Selected)).
		Int("requested", cfg.TargetCount).
		Int("fulfillmentPct", alloc.FulfillmentPct).
		Msg("campaign allocated")
	return alloc, nil
}

// fetchSource fetches from one list, degrading fetch exhaustion to an empty
// result. Only context errors propagate.
func (a *Allocator) fetchSource(ctx context.Context, listID string, maxCount int) ([]string, error) {
	ids, err := a.Fetcher.Fetch(ctx, listID, maxCount)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var exhausted *FetchExhaustedError
		if errors.As(err, &exhausted) {
			a.Log.Warn().Err(err).Str("list", listID).Msg("source fetch exhausted, continuing with no contacts from it")
			return nil, nil
		}
		return nil, err
	}
	return ids, nil
}

func (a *Allocator) effectiveDate(cfg Config) time.Time {
	if cfg.EffectiveDate.IsZero() {
		return a.Clock.Now().UTC()
	}
	return cfg.EffectiveDate
}
