package campaign

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/homemade/crank/pace"
)

const (
	DefaultChunkInterval   = 500 * time.Millisecond
	DefaultUploadRetries   = 3
	defaultUploadBackoffTo = 5 * time.Second
)

// DefaultChunkSchedule is the decreasing tier schedule for upload chunks.
// Each tier consumes as many whole chunks of its size as fit before the
// remainder falls through to the next, smaller tier.
var DefaultChunkSchedule = []int{300, 100, 50, 1}

// UploadResult reports the outcome of a chunked upload. Failed chunks are
// reported here rather than raised so one bad chunk never aborts a batch.
type UploadResult struct {
	SuccessCount int
	FailedChunks [][]string
}

// Uploader pushes contact identifiers into a list in scheduled chunks,
// tolerating partial chunk failure.
type Uploader struct {
	Lists      ListAPI
	Schedule   []int
	RetryLimit int
	Backoff    pace.Backoff
	Pacer      pace.Pacer
	Clock      pace.Clock
	Log        zerolog.Logger
}

// NewUploader returns an Uploader with production defaults.
func NewUploader(lists ListAPI, log zerolog.Logger) *Uploader {
	return &Uploader{
		Lists:      lists,
		Schedule:   DefaultChunkSchedule,
		RetryLimit: DefaultUploadRetries,
		Backoff:    pace.Backoff{Base: time.Second, Cap: defaultUploadBackoffTo},
		Pacer:      pace.NewIntervalPacer(DefaultChunkInterval),
		Clock:      pace.SystemClock{},
		Log:        log,
	}
}

// chunkBySchedule splits ids using the decreasing tier sizes in schedule.
func chunkBySchedule(ids []string, schedule []int) [][]string {
	var chunks [][]string
	rest := ids
	for _, size := range schedule {
		if size <= 0 {
			continue
		}
		for len(rest) >= size {
			chunks = append(chunks, rest[:size])
			rest = rest[size:]
		}
	}
	// a schedule ending in 1 always drains; guard in case it doesn't
	if len(rest) > 0 {
		chunks = append(chunks, rest)
	}
	return chunks
}

// Upload adds the identifiers to the list chunk by chunk. Chunks that still
// fail after retries are recorded in the result and the upload moves on.
// The returned error is non-nil only when the context ends the upload early.
func (u *Uploader) Upload(ctx context.Context, listID string, ids []string) (UploadResult, error) {
	var result UploadResult
	if len(ids) == 0 {
		return result, nil
	}

	for _, chunk := range chunkBySchedule(ids, u.Schedule) {
		attempts := 0
		for {
			if err := u.Pacer.Wait(ctx); err != nil {
				return result, err
			}
			err := u.Lists.AddToList(ctx, listID, chunk)
			if err == nil {
				result.SuccessCount += len(chunk)
				break
			}
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			attempts++
			u.Log.Warn().Err(err).Str("list", listID).Int("chunkSize", len(chunk)).Int("attempt", attempts).Msg("chunk upload failed")
			if attempts >= u.RetryLimit {
				result.FailedChunks = append(result.FailedChunks, chunk)
				break
			}
			if err := u.Clock.Sleep(ctx, u.Backoff.Delay(attempts)); err != nil {
				return result, err
			}
		}
	}
	if len(result.FailedChunks) > 0 {
		u.Log.Warn().Str("list", listID).Int("failedChunks", len(result.FailedChunks)).Int("uploaded", result.SuccessCount).Msg("upload finished with failed chunks")
	}
	return result, nil
}
