package timeparse

import (
	"testing"
	"time"
)

// ref is Wednesday, March 4 2026, 10:00 local.
var ref = time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)

func TestParse(t *testing.T) {
	tests := []struct {
		name        string
		text        string
		wantText    string
		wantTime    time.Time
		wantClock   bool
		wantNoMatch bool
	}{
		{
			name:      "in minutes",
			text:      "remind me in 10 minutes to stretch",
			wantText:  "in 10 minutes",
			wantTime:  ref.Add(10 * time.Minute),
			wantClock: true,
		},
		{
			name:      "in hours",
			text:      "send it in 2 hours",
			wantText:  "in 2 hours",
			wantTime:  ref.Add(2 * time.Hour),
			wantClock: true,
		},
		{
			name:      "tomorrow with clock",
			text:      "remind me to call mom tomorrow at 3pm",
			wantText:  "tomorrow at 3pm",
			wantTime:  time.Date(2026, 3, 5, 15, 0, 0, 0, time.UTC),
			wantClock: true,
		},
		{
			name:      "clock before day",
			text:      "remind me at 3pm tomorrow to call mom",
			wantText:  "at 3pm tomorrow",
			wantTime:  time.Date(2026, 3, 5, 15, 0, 0, 0, time.UTC),
			wantClock: true,
		},
		{
			name:     "tomorrow without clock",
			text:     "remind me tomorrow",
			wantText: "tomorrow",
			wantTime: time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC),
		},
		{
			name:      "today with clock",
			text:      "remind me today at 5:30pm",
			wantText:  "today at 5:30pm",
			wantTime:  time.Date(2026, 3, 4, 17, 30, 0, 0, time.UTC),
			wantClock: true,
		},
		{
			name:      "weekday with clock",
			text:      "remind me on friday at 5pm",
			wantText:  "on friday at 5pm",
			wantTime:  time.Date(2026, 3, 6, 17, 0, 0, 0, time.UTC),
			wantClock: true,
		},
		{
			name:     "weekday without clock resolves to midnight",
			text:     "remind me on friday",
			wantText: "on friday",
			wantTime: time.Date(2026, 3, 6, 0, 0, 0, 0, time.UTC),
		},
		{
			name:      "same weekday already passed rolls a week",
			text:      "remind me on wednesday at 9am",
			wantText:  "on wednesday at 9am",
			wantTime:  time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC),
			wantClock: true,
		},
		{
			name:      "bare at-time still ahead stays today",
			text:      "remind me at 11:30am",
			wantText:  "at 11:30am",
			wantTime:  time.Date(2026, 3, 4, 11, 30, 0, 0, time.UTC),
			wantClock: true,
		},
		{
			name:      "bare at-time already passed moves to tomorrow",
			text:      "remind me at 8am",
			wantText:  "at 8am",
			wantTime:  time.Date(2026, 3, 5, 8, 0, 0, 0, time.UTC),
			wantClock: true,
		},
		{
			name:        "no expression",
			text:        "how are you doing",
			wantNoMatch: true,
		},
		{
			name:        "empty text",
			text:        "   ",
			wantNoMatch: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			matches := Parse(tt.text, ref)
			if tt.wantNoMatch {
				if len(matches) != 0 {
					t.Fatalf("expected no match, got %+v", matches)
				}
				return
			}
			if len(matches) != 1 {
				t.Fatalf("expected 1 match, got %d", len(matches))
			}
			m := matches[0]
			if m.Text != tt.wantText {
				t.Errorf("matched text = %q, want %q", m.Text, tt.wantText)
			}
			if !m.Time.Equal(tt.wantTime) {
				t.Errorf("resolved time = %v, want %v", m.Time, tt.wantTime)
			}
			if m.HasClockTime != tt.wantClock {
				t.Errorf("HasClockTime = %v, want %v", m.HasClockTime, tt.wantClock)
			}
		})
	}
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		in         string
		wantHour   int
		wantMinute int
	}{
		{"9", 9, 0},
		{"9am", 9, 0},
		{"9pm", 21, 0},
		{"12am", 0, 0},
		{"12pm", 12, 0},
		{"9:30", 9, 30},
		{"3:05pm", 15, 5},
		{"14:30", 14, 30},
		{"14:30pm", 14, 30},
		{"25", -1, 0},
		{"9:75", -1, 0},
		{"abc", -1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			hour, minute := parseClock(tt.in)
			if hour != tt.wantHour || minute != tt.wantMinute {
				t.Errorf("parseClock(%q) = (%d, %d), want (%d, %d)",
					tt.in, hour, minute, tt.wantHour, tt.wantMinute)
			}
		})
	}
}

func TestNextWeekday(t *testing.T) {
	// ref is a Wednesday.
	t.Run("future day this week", func(t *testing.T) {
		got := nextWeekday(ref, time.Friday, 9, 0)
		want := time.Date(2026, 3, 6, 9, 0, 0, 0, time.UTC)
		if !got.Equal(want) {
			t.Errorf("got %v, want %v", got, want)
		}
	})

	t.Run("earlier weekday wraps to next week", func(t *testing.T) {
		got := nextWeekday(ref, time.Monday, 9, 0)
		want := time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC)
		if !got.Equal(want) {
			t.Errorf("got %v, want %v", got, want)
		}
	})

	t.Run("today later hour stays today", func(t *testing.T) {
		got := nextWeekday(ref, time.Wednesday, 18, 0)
		want := time.Date(2026, 3, 4, 18, 0, 0, 0, time.UTC)
		if !got.Equal(want) {
			t.Errorf("got %v, want %v", got, want)
		}
	})
}
