package campaign

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/homemade/crank/crm"
	"github.com/homemade/crank/pace"
)

// Property names stamped on every contact selected for a campaign.
const (
	PropLastSentDate  = "last-sent-date"
	PropLastSentBrand = "last-sent-brand"
)

const (
	DefaultUpdateChunkSize = 100
	DefaultUpdateInterval  = 300 * time.Millisecond
)

// PropertyUpdater stamps send metadata onto contacts in fixed-size chunks.
// Best effort: a failed chunk is logged and the remaining chunks still go out.
type PropertyUpdater struct {
	Lists     ListAPI
	ChunkSize int
	Pacer     pace.Pacer
	Log       zerolog.Logger
}

// NewPropertyUpdater returns a PropertyUpdater with production defaults.
func NewPropertyUpdater(lists ListAPI, log zerolog.Logger) *PropertyUpdater {
	return &PropertyUpdater{
		Lists:     lists,
		ChunkSize: DefaultUpdateChunkSize,
		Pacer:     pace.NewIntervalPacer(DefaultUpdateInterval),
		Log:       log,
	}
}

// UpdateSentProperties sets last-sent-date and last-sent-brand on every
// contact. The date is the effective date truncated to UTC midnight so all
// contacts in a campaign carry one canonical timestamp. The returned error
// is non-nil only when the context ends the update early.
func (p *PropertyUpdater) UpdateSentProperties(ctx context.Context, ids []string, effectiveDate time.Time, brand string) error {
	if len(ids) == 0 {
		return nil
	}
	d := effectiveDate.UTC()
	sentAt := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC).Format(time.RFC3339)

	size := p.ChunkSize
	if size <= 0 {
		size = DefaultUpdateChunkSize
	}
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[start:end]

		if err := p.Pacer.Wait(ctx); err != nil {
			return err
		}
		updates := make([]crm.ContactUpdate, len(chunk))
		for i, id := range chunk {
			updates[i] = crm.ContactUpdate{
				ID: id,
				Properties: map[string]string{
					PropLastSentDate:  sentAt,
					PropLastSentBrand: brand,
				},
			}
		}
		if err := p.Lists.BatchUpdateProperties(ctx, updates); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.Log.Error().Err(err).Strs("contacts", chunk).Msg("property batch update failed")
		}
	}
	return nil
}
