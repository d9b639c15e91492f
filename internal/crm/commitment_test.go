package crm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestExtractCommitment(t *testing.T) {
	now := time.Date(2026, time.March, 10, 14, 30, 0, 0, time.UTC)

	tests := []struct {
		name  string
		notes string
		want  *time.Time
	}{
		{
			name:  "iso date after by",
			notes: "Agreed to send the deck by 2026-04-01 at the latest.",
			want:  timePtr(time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC)),
		},
		{
			name:  "iso date after due",
			notes: "Financials due 2026-03-31.",
			want:  timePtr(time.Date(2026, time.March, 31, 0, 0, 0, 0, time.UTC)),
		},
		{
			name:  "month day with year",
			notes: "Will close the round by September 15, 2026.",
			want:  timePtr(time.Date(2026, time.September, 15, 0, 0, 0, 0, time.UTC)),
		},
		{
			name:  "month day without year in the future",
			notes: "Intro to the fund by Apr 20.",
			want:  timePtr(time.Date(2026, time.April, 20, 0, 0, 0, 0, time.UTC)),
		},
		{
			name:  "month day without year already passed rolls forward",
			notes: "Pilot report due Jan 5.",
			want:  timePtr(time.Date(2027, time.January, 5, 0, 0, 0, 0, time.UTC)),
		},
		{
			name:  "relative days",
			notes: "Founder will follow up in 3 days with metrics.",
			want:  timePtr(now.AddDate(0, 0, 3)),
		},
		{
			name:  "relative weeks",
			notes: "Check in again in 2 weeks.",
			want:  timePtr(now.AddDate(0, 0, 14)),
		},
		{
			name:  "tomorrow",
			notes: "They'll send the cap table tomorrow.",
			want:  timePtr(now.AddDate(0, 0, 1)),
		},
		{
			name:  "next week",
			notes: "Board meeting next week, revisit after.",
			want:  timePtr(now.AddDate(0, 0, 7)),
		},
		{
			name:  "explicit date wins over relative phrase",
			notes: "Demo next week but contract must be signed by 2026-03-20.",
			want:  timePtr(time.Date(2026, time.March, 20, 0, 0, 0, 0, time.UTC)),
		},
		{
			name:  "no commitment",
			notes: "General catch-up, nothing actionable.",
			want:  nil,
		},
		{
			name:  "bare date without commitment keyword",
			notes: "Met on 2026-03-09 for coffee.",
			want:  timePtr(time.Date(2026, time.March, 9, 0, 0, 0, 0, time.UTC)),
		},
		{
			name:  "invalid calendar values ignored",
			notes: "Something due 2026-13-45 maybe.",
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractCommitment(tt.notes, now)
			if tt.want == nil {
				require.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			require.True(t, tt.want.Equal(*got), "want %s, got %s", tt.want, got)
		})
	}
}

func timePtr(t time.Time) *time.Time {
	return &t
}
