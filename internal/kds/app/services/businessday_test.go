package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBusinessDayStart(t *testing.T) {
	loc := time.FixedZone("IDT", 3*60*60)

	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{
			name: "before five belongs to previous day",
			now:  time.Date(2024, 3, 2, 4, 59, 0, 0, loc),
			want: time.Date(2024, 3, 1, 5, 0, 0, 0, loc),
		},
		{
			name: "after five starts new day",
			now:  time.Date(2024, 3, 2, 5, 1, 0, 0, loc),
			want: time.Date(2024, 3, 2, 5, 0, 0, 0, loc),
		},
		{
			name: "exactly five",
			now:  time.Date(2024, 3, 2, 5, 0, 0, 0, loc),
			want: time.Date(2024, 3, 2, 5, 0, 0, 0, loc),
		},
		{
			name: "utc input uses business timezone",
			now:  time.Date(2024, 3, 2, 1, 30, 0, 0, time.UTC),
			want: time.Date(2024, 3, 1, 5, 0, 0, 0, loc),
		},
		{
			name: "month boundary",
			now:  time.Date(2024, 3, 1, 2, 0, 0, 0, loc),
			want: time.Date(2024, 2, 29, 5, 0, 0, 0, loc),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BusinessDayStart(tt.now, 5, loc)
			assert.True(t, tt.want.Equal(got), "got %s", got)
		})
	}
}

func TestCalendarDay(t *testing.T) {
	start, end := calendarDay(time.Date(2024, 3, 2, 23, 59, 0, 0, time.UTC), time.UTC)
	assert.Equal(t, time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC), end)
}
