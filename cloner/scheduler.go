// Package cloner clones marketing emails across a range of future dates,
// rescheduling each clone into a strategy-assigned time slot. Names are
// derived from the source email's name by shifting its embedded date, and
// deduplicated against an in-run cache, the local audit store and the
// remote search endpoint before any clone is attempted.
package cloner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/homemade/crank/crm"
	"github.com/homemade/crank/pace"
	"github.com/homemade/crank/store"
)

// EmailAPI is the remote email surface the scheduler needs.
type EmailAPI interface {
	GetEmail(ctx context.Context, id string, propertyNames []string) (crm.Email, error)
	CloneEmail(ctx context.Context, id, name string) (crm.Email, error)
	UpdateEmail(ctx context.Context, id string, fields map[string]interface{}) error
	CountEmailsByName(ctx context.Context, name string) (int, error)
	PublishEmail(ctx context.Context, id string) error
	DeleteEmail(ctx context.Context, id string) error
}

// CloneStore is the audit store surface the scheduler needs.
type CloneStore interface {
	CreateCloneRecord(ctx context.Context, rec *store.ClonedEmail) error
	CloneRecord(ctx context.Context, id string) (*store.ClonedEmail, error)
	SaveCloneRecord(ctx context.Context, rec *store.ClonedEmail) error
	DeleteCloneRecord(ctx context.Context, id string) error
	ExistingCloneNames(ctx context.Context, names []string) (map[string]bool, error)
}

const (
	// DefaultCloneConcurrency is how many clones run in one group.
	DefaultCloneConcurrency = 3
	// DefaultSearchConcurrency is how many name searches run in one
	// sub-batch.
	DefaultSearchConcurrency = 5
	// DefaultGroupPause separates consecutive concurrent groups.
	DefaultGroupPause = 300 * time.Millisecond
)

// Options configures one CloneAndSchedule run.
type Options struct {
	Strategy Strategy
	Custom   CustomSlots
	// Properties are the custom property names carried from each source
	// email onto its clones.
	Properties []string
	// IncludeListID and ExcludeListID, when set, pin each clone's
	// recipient and suppression lists.
	IncludeListID string
	ExcludeListID string
}

// Stats aggregates one run.
type Stats struct {
	Attempted  int
	Cloned     int
	Duplicates int
	Errors     int
}

// Scheduler drives the clone pipeline.
type Scheduler struct {
	Emails            EmailAPI
	Store             CloneStore
	CloneConcurrency  int
	SearchConcurrency int
	GroupPause        time.Duration
	Clock             pace.Clock
	Log               zerolog.Logger
}

// NewScheduler returns a Scheduler with production defaults.
func NewScheduler(emails EmailAPI, st CloneStore, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		Emails:            emails,
		Store:             st,
		CloneConcurrency:  DefaultCloneConcurrency,
		SearchConcurrency: DefaultSearchConcurrency,
		GroupPause:        DefaultGroupPause,
		Clock:             pace.SystemClock{},
		Log:               log,
	}
}

// candidate is one (day, source) pair that passed name derivation.
type candidate struct {
	source      crm.Email
	name        string
	scheduledAt time.Time
}

// nameCache is the in-run dedup layer. claim is an atomic
// check-then-insert so a name can only ever be claimed once per run.
type nameCache struct {
	mu    sync.Mutex
	names map[string]bool
}

func newNameCache() *nameCache {
	return &nameCache{names: make(map[string]bool)}
}

func (c *nameCache) claim(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.names[name] {
		return false
	}
	c.names[name] = true
	return true
}

// CloneAndSchedule clones every source email once per day in 1..dayCount,
// each clone renamed to the shifted date and scheduled into its strategy
// slot. Names already seen in this run, in the audit store, or on the
// remote side are skipped as duplicates. Failures are counted, not raised;
// only context cancellation aborts the run.
func (s *Scheduler) CloneAndSchedule(ctx context.Context, sourceIDs []string, dayCount int, opts Options) (Stats, error) {
	var stats Stats
	if len(sourceIDs) == 0 || dayCount <= 0 {
		return stats, nil
	}
	if _, _, err := opts.Strategy.Slot(0, opts.Custom); err != nil {
		return stats, err
	}
	stats.Attempted = len(sourceIDs) * dayCount

	sources := make([]crm.Email, 0, len(sourceIDs))
	for _, id := range sourceIDs {
		email, err := s.Emails.GetEmail(ctx, id, opts.Properties)
		if err != nil {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			s.Log.Error().Err(err).Str("email", id).Msg("fetch source email failed")
			stats.Errors += dayCount
			continue
		}
		sources = append(sources, email)
	}

	cache := newNameCache()
	var candidates []candidate
	for day := 1; day <= dayCount; day++ {
		for i, src := range sources {
			name, date, ok := shiftNameDate(src.Name, day)
			if !ok {
				s.Log.Warn().Str("email", src.ID).Str("name", src.Name).Msg("no date pattern in source name")
				stats.Errors++
				continue
			}
			hour, minute, err := opts.Strategy.Slot(i, opts.Custom)
			if err != nil {
				return stats, err
			}
			if !cache.claim(name) {
				stats.Duplicates++
				continue
			}
			candidates = append(candidates, candidate{
				source:      src,
				name:        name,
				scheduledAt: time.Date(date.Year(), date.Month(), date.Day(), hour, minute, 0, 0, time.UTC),
			})
		}
	}

	candidates, err := s.dropStoredNames(ctx, candidates, &stats)
	if err != nil {
		return stats, err
	}
	candidates, err = s.dropRemoteNames(ctx, candidates, &stats)
	if err != nil {
		return stats, err
	}

	var mu sync.Mutex
	for start := 0; start < len(candidates); start += s.CloneConcurrency {
		end := start + s.CloneConcurrency
		if end > len(candidates) {
			end = len(candidates)
		}
		g, gctx := errgroup.WithContext(ctx)
		for _, cand := range candidates[start:end] {
			cand := cand
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				cloned := s.cloneOne(gctx, cand, opts)
				mu.Lock()
				if cloned {
					stats.Cloned++
				} else {
					stats.Errors++
				}
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return stats, err
		}
		if end < len(candidates) {
			if err := s.Clock.Sleep(ctx, s.GroupPause); err != nil {
				return stats, err
			}
		}
	}

	s.Log.Info().
		Int("attempted", stats.Attempted).
		Int("cloned", stats.Cloned).
		Int("duplicates", stats.Duplicates).
		Int("errors", stats.Errors).
		Msg("clone run complete")
	return stats, nil
}

// dropStoredNames removes candidates whose name already has an audit record.
func (s *Scheduler) dropStoredNames(ctx context.Context, candidates []candidate, stats *Stats) ([]candidate, error) {
	if len(candidates) == 0 {
		return candidates, nil
	}
	names := make([]string, len(candidates))
	for i, c := range candidates {
		names[i] = c.name
	}
	existing, err := s.Store.ExistingCloneNames(ctx, names)
	if err != nil {
		return nil, fmt.Errorf("check stored clone names: %w", err)
	}
	kept := candidates[:0]
	for _, c := range candidates {
		if existing[c.name] {
			stats.Duplicates++
			continue
		}
		kept = append(kept, c)
	}
	return kept, nil
}

// dropRemoteNames removes candidates the remote search already knows, in
// sub-batches of SearchConcurrency with a pause between sub-batches.
func (s *Scheduler) dropRemoteNames(ctx context.Context, candidates []candidate, stats *Stats) ([]candidate, error) {
	kept := candidates[:0]
	for start := 0; start < len(candidates); start += s.SearchConcurrency {
		end := start + s.SearchConcurrency
		if end > len(candidates) {
			end = len(candidates)
		}
		batch := candidates[start:end]
		counts := make([]int, len(batch))
		errs := make([]error, len(batch))
		g, gctx := errgroup.WithContext(ctx)
		for i, cand := range batch {
			i, cand := i, cand
			g.Go(func() error {
				counts[i], errs[i] = s.Emails.CountEmailsByName(gctx, cand.name)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for i, cand := range batch {
			switch {
			case errs[i] != nil:
				s.Log.Error().Err(errs[i]).Str("name", cand.name).Msg("remote name search failed")
				stats.Errors++
			case counts[i] > 0:
				stats.Duplicates++
			default:
				kept = append(kept, cand)
			}
		}
		if end < len(candidates) {
			if err := s.Clock.Sleep(ctx, s.GroupPause); err != nil {
				return nil, err
			}
		}
	}
	return kept, nil
}

// cloneOne clones, reschedules and records a single candidate. A store
// write failure after the remote clone succeeded is logged only: the
// remote side effect already happened and is authoritative.
func (s *Scheduler) cloneOne(ctx context.Context, cand candidate, opts Options) bool {
	clone, err := s.Emails.CloneEmail(ctx, cand.source.ID, cand.name)
	if err != nil {
		s.Log.Error().Err(err).Str("source", cand.source.ID).Str("name", cand.name).Msg("clone failed")
		return false
	}

	fields := map[string]interface{}{
		"publishDate":        cand.scheduledAt.UnixMilli(),
		"publishImmediately": false,
	}
	if opts.IncludeListID != "" {
		fields["recipientListIds.0"] = opts.IncludeListID
	}
	if opts.ExcludeListID != "" {
		fields["suppressionListIds.0"] = opts.ExcludeListID
	}
	for name, value := range cand.source.Properties {
		fields["properties."+name] = value
	}
	if err := s.Emails.UpdateEmail(ctx, clone.ID, fields); err != nil {
		s.Log.Error().Err(err).Str("clone", clone.ID).Str("name", cand.name).Msg("reschedule clone failed")
		return false
	}

	rec := &store.ClonedEmail{
		SourceEmailID: cand.source.ID,
		ClonedEmailID: clone.ID,
		ClonedName:    cand.name,
		ScheduledAt:   cand.scheduledAt,
		Strategy:      string(opts.Strategy),
		Status:        store.CloneStatusScheduled,
	}
	if err := s.Store.CreateCloneRecord(ctx, rec); err != nil {
		s.Log.Error().Err(err).Str("clone", clone.ID).Str("name", cand.name).Msg("persist clone record failed")
	}
	return true
}

// Publish publishes the remote clone behind an audit record and marks the
// record published.
func (s *Scheduler) Publish(ctx context.Context, recordID string) error {
	rec, err := s.Store.CloneRecord(ctx, recordID)
	if err != nil {
		return err
	}
	if err := s.Emails.PublishEmail(ctx, rec.ClonedEmailID); err != nil {
		return err
	}
	now := s.Clock.Now().UTC()
	rec.Status = store.CloneStatusPublished
	rec.PublishedAt = &now
	if err := s.Store.SaveCloneRecord(ctx, rec); err != nil {
		s.Log.Error().Err(err).Str("record", recordID).Msg("persist publish status failed")
	}
	return nil
}

// Delete removes an audit record and best-effort deletes its remote clone.
func (s *Scheduler) Delete(ctx context.Context, recordID string) error {
	rec, err := s.Store.CloneRecord(ctx, recordID)
	if err != nil {
		return err
	}
	if err := s.Emails.DeleteEmail(ctx, rec.ClonedEmailID); err != nil {
		s.Log.Error().Err(err).Str("record", recordID).Str("clone", rec.ClonedEmailID).Msg("delete remote clone failed")
	}
	return s.Store.DeleteCloneRecord(ctx, recordID)
}
