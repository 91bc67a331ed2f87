package campaign

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/homemade/crank/pace"
)

// DefaultInterCampaignDelay is the minimum spacing between campaign starts.
const DefaultInterCampaignDelay = 3 * time.Minute

// Allocating is implemented by Allocator; split out so Runner tests can
// control allocation outcomes and timing.
type Allocating interface {
	Allocate(ctx context.Context, cfg Config, used *UsedSet) (*Allocation, error)
}

// Outcome is the per-campaign result of a run: an allocation or a failure.
type Outcome struct {
	Config     Config
	Allocation *Allocation
	Err        error
}

// Summary aggregates a whole run.
type Summary struct {
	Succeeded          int
	Failed             int
	RequestedContacts  int
	FulfilledContacts  int
	MeanFulfillmentPct int
}

// Runner processes campaign configs strictly in order, sharing one used
// set across all of them and spacing campaign starts by at least Delay.
type Runner struct {
	Allocator Allocating
	Delay     time.Duration
	Clock     pace.Clock
	Log       zerolog.Logger
}

// NewRunner returns a Runner with production defaults.
func NewRunner(allocator Allocating, log zerolog.Logger) *Runner {
	return &Runner{
		Allocator: allocator,
		Delay:     DefaultInterCampaignDelay,
		Clock:     pace.SystemClock{},
		Log:       log,
	}
}

// Run allocates every config in sort-key order. A failing campaign is
// captured as an outcome and the run continues; the wait before the next
// campaign is reduced by however long the allocation itself took, so the
// spacing between campaign starts is Delay, not Delay plus processing time.
func (r *Runner) Run(ctx context.Context, configs []Config) ([]Outcome, Summary) {
	ordered := make([]Config, len(configs))
	copy(ordered, configs)
	SortConfigs(ordered)

	used := NewUsedSet()
	outcomes := make([]Outcome, 0, len(ordered))
	for i, cfg := range ordered {
		start := r.Clock.Now()
		alloc, err := r.Allocator.Allocate(ctx, cfg, used)
		if err != nil {
			r.Log.Error().Err(err).Str("campaign", cfg.Name).Msg("campaign failed")
		}
		outcomes = append(outcomes, Outcome{Config: cfg, Allocation: alloc, Err: err})
		if ctx.Err() != nil {
			break
		}

		if i < len(ordered)-1 {
			elapsed := r.Clock.Now().Sub(start)
			if wait := r.Delay - elapsed; wait > 0 {
				if err := r.Clock.Sleep(ctx, wait); err != nil {
					break
				}
			}
		}
	}

	summary := summarize(outcomes)
	r.Log.Info().
		Int("succeeded", summary.Succeeded).
		Int("failed", summary.Failed).
		Int("requested", summary.RequestedContacts).
		Int("fulfilled", summary.FulfilledContacts).
		Int("meanFulfillmentPct", summary.MeanFulfillmentPct).
		Msg("campaign run complete")
	return outcomes, summary
}

func summarize(outcomes []Outcome) Summary {
	var s Summary
	pctTotal := 0
	for _, o := range outcomes {
		s.RequestedContacts += o.Config.TargetCount
		if o.Err != nil {
			s.Failed++
			continue
		}
		s.Succeeded++
		if o.Allocation != nil {
			s.FulfilledContacts += len(o.Allocation.Selected)
			pctTotal += o.Allocation.FulfillmentPct
		}
	}
	if s.Succeeded > 0 {
		s.MeanFulfillmentPct = int(math.Round(float64(pctTotal) / float64(s.Succeeded)))
	}
	return s
}
