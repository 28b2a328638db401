package protocol

import (
	"testing"
	"time"
)

func TestFormatTime_UTCMillis(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	ts := time.Date(2024, 5, 1, 12, 30, 15, 123456789, loc)

	got := FormatTime(ts)
	if got != "2024-05-01T11:30:15.123Z" {
		t.Errorf("unexpected format: %s", got)
	}
}

func TestParseTime_AcceptsISOVariants(t *testing.T) {
	for _, s := range []string{
		"2024-05-01T11:30:15.123Z",
		"2024-05-01T11:30:15Z",
		"2024-05-01T13:30:15+02:00",
	} {
		ts, err := ParseTime(s)
		if err != nil {
			t.Errorf("ParseTime(%q): %v", s, err)
			continue
		}
		if ts.UTC().Hour() != 11 || ts.UTC().Minute() != 30 {
			t.Errorf("ParseTime(%q) = %v", s, ts)
		}
	}
}

func TestParseTime_Rejects(t *testing.T) {
	for _, s := range []string{"", "yesterday", "2024-13-01T00:00:00Z"} {
		if _, err := ParseTime(s); err == nil {
			t.Errorf("expected error for %q", s)
		}
	}
}
