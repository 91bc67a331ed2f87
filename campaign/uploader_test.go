package campaign

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testUploader(api ListAPI, clock *fakeClock) *Uploader {
	u := NewUploader(api, zerolog.Nop())
	u.Pacer = noPace{}
	u.Clock = clock
	return u
}

func chunkSizes(chunks [][]string) []int {
	sizes := make([]int, len(chunks))
	for i, c := range chunks {
		sizes[i] = len(c)
	}
	return sizes
}

func TestChunkByScheduleTierBoundaries(t *testing.T) {
	chunks := chunkBySchedule(makeIDs("c", 1000), DefaultChunkSchedule)
	assert.Equal(t, []int{300, 300, 300, 100}, chunkSizes(chunks))
}

func TestChunkByScheduleRemainderLandsInUnitTier(t *testing.T) {
	chunks := chunkBySchedule(makeIDs("c", 75), DefaultChunkSchedule)

	want := []int{50}
	for i := 0; i < 25; i++ {
		want = append(want, 1)
	}
	assert.Equal(t, want, chunkSizes(chunks))
}

func TestChunkByScheduleCoversAllInput(t *testing.T) {
	ids := makeIDs("c", 737)
	var flattened []string
	for _, chunk := range chunkBySchedule(ids, DefaultChunkSchedule) {
		flattened = append(flattened, chunk...)
	}
	assert.Equal(t, ids, flattened)
}

func TestUploadEmptyInputIsNoOp(t *testing.T) {
	api := &fakeListAPI{}
	result, err := testUploader(api, newFakeClock()).Upload(context.Background(), "42", nil)

	require.NoError(t, err)
	assert.Zero(t, result.SuccessCount)
	assert.Empty(t, result.FailedChunks)
	assert.Empty(t, api.addCalls)
}

func TestUploadPartialFailureNeverRaises(t *testing.T) {
	// every attempt on the third chunk (c5, c6) fails
	api := &fakeListAPI{addToList: func(listID string, ids []string) error {
		if ids[0] == "c5" {
			return errors.New("poison chunk")
		}
		return nil
	}}

	clock := newFakeClock()
	u := testUploader(api, clock)
	u.Schedule = []int{2}

	result, err := u.Upload(context.Background(), "42", makeIDs("c", 10))

	require.NoError(t, err)
	assert.Equal(t, 8, result.SuccessCount)
	require.Len(t, result.FailedChunks, 1)
	assert.Equal(t, []string{"c5", "c6"}, result.FailedChunks[0])
	// two backoff pauses before the third attempt gives up on the chunk
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, clock.sleeps)
}

func TestUploadBackoffCappedAtFiveSeconds(t *testing.T) {
	u := NewUploader(&fakeListAPI{}, zerolog.Nop())
	assert.Equal(t, 4*time.Second, u.Backoff.Delay(3))
	assert.Equal(t, 5*time.Second, u.Backoff.Delay(4))
	assert.Equal(t, 5*time.Second, u.Backoff.Delay(9))
}

func TestUploadSuccessCountsAllChunks(t *testing.T) {
	api := &fakeListAPI{}
	result, err := testUploader(api, newFakeClock()).Upload(context.Background(), "42", makeIDs("c", 1000))

	require.NoError(t, err)
	assert.Equal(t, 1000, result.SuccessCount)
	assert.Empty(t, result.FailedChunks)
	require.Len(t, api.addCalls, 4)
	assert.Equal(t, "42", api.addCalls[0].listID)
}
