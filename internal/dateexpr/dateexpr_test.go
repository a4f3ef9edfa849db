package dateexpr

import (
	"testing"
	"time"
)

// Wednesday.
var now = time.Date(2024, 3, 13, 14, 35, 20, 500_000_000, time.UTC)

func TestParse(t *testing.T) {
	tests := []struct {
		expr string
		want time.Time
	}{
		{"2024-01-02T03:04:05.000Z", time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)},
		{"2024-01-02T03:04:05Z", time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)},
		{"2024-01-02T03:04:05+02:00", time.Date(2024, 1, 2, 1, 4, 5, 0, time.UTC)},
		{"2024-01-02", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)},
		{"1704164645000", time.UnixMilli(1704164645000)},
		{"now()", now},
		{"second()", time.Date(2024, 3, 13, 14, 35, 20, 0, time.UTC)},
		{"minute()", time.Date(2024, 3, 13, 14, 35, 0, 0, time.UTC)},
		{"hour()", time.Date(2024, 3, 13, 14, 0, 0, 0, time.UTC)},
		{"day()", time.Date(2024, 3, 13, 0, 0, 0, 0, time.UTC)},
		{"week()", time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)},
		{"month()", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
		{"year()", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"day()-1d", time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC)},
		{"day() + 1d - 30m", time.Date(2024, 3, 13, 23, 30, 0, 0, time.UTC)},
		{"month()-1M", time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)},
		{"year()+1y", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"week()-2w", time.Date(2024, 2, 26, 0, 0, 0, 0, time.UTC)},
		{"hour()+90s", time.Date(2024, 3, 13, 14, 1, 30, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := Parse(tt.expr, time.UTC, now)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("Parse(%q) = %v, want %v", tt.expr, got, tt.want)
			}
		})
	}
}

func TestParse_Errors(t *testing.T) {
	for _, expr := range []string{"", "yesterday", "fortnight()", "day()*2", "day()-d", "day()-1x", "2024-13-45"} {
		if _, err := Parse(expr, time.UTC, now); err == nil {
			t.Errorf("Parse(%q) expected error", expr)
		}
	}
}

func TestParse_TimeZone(t *testing.T) {
	loc := time.FixedZone("UTC+10", 10*3600)
	got, err := Parse("day()", loc, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 14:35 UTC is 00:35 next day at +10.
	want := time.Date(2024, 3, 14, 0, 0, 0, 0, loc)
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}

	local, err := Parse("2024-01-02T00:00:00", loc, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if local.UTC().Hour() != 14 {
		t.Errorf("expected zone-local parse, got %v", local.UTC())
	}
}

func TestParseMillis(t *testing.T) {
	ms, err := ParseMillis("2024-01-02T03:04:05.000Z", nil, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ms != time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC).UnixMilli() {
		t.Errorf("unexpected millis %d", ms)
	}
}
