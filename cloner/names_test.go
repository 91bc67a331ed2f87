package cloner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShiftNameDate(t *testing.T) {
	name, date, ok := shiftNameDate("Acme - 05 Mar 2025", 3)

	require.True(t, ok)
	assert.Equal(t, "Acme - 08 Mar 2025", name)
	assert.Equal(t, time.Date(2025, 3, 8, 0, 0, 0, 0, time.UTC), date)
}

func TestShiftNameDateCrossesMonthBoundary(t *testing.T) {
	name, _, ok := shiftNameDate("Weekly Digest 30 Mar 2025 (AU)", 3)

	require.True(t, ok)
	assert.Equal(t, "Weekly Digest 02 Apr 2025 (AU)", name)
}

func TestShiftNameDateReplacesFirstOccurrenceOnly(t *testing.T) {
	name, _, ok := shiftNameDate("05 Mar 2025 resend of 05 Mar 2025", 1)

	require.True(t, ok)
	assert.Equal(t, "06 Mar 2025 resend of 05 Mar 2025", name)
}

func TestShiftNameDateNoPattern(t *testing.T) {
	for _, name := range []string{
		"Acme Newsletter",
		"Acme - 5 Mar 2025",   // day must be two digits
		"Acme - 05 March 2025", // month must be abbreviated
	} {
		_, _, ok := shiftNameDate(name, 1)
		assert.False(t, ok, "name %q", name)
	}
}
