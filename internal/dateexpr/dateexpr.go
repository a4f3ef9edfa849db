// Package dateexpr parses absolute and relative date expressions used in DATE terms.
//
// Accepted forms:
//
//	2024-01-02T03:04:05.000Z   ISO-8601 / RFC 3339, with or without fraction or zone
//	2024-01-02                 date only, midnight in the given zone
//	1704164645000              epoch milliseconds
//	now()-2h                   function with signed offsets
//	day()+1d-30m
//
// Functions truncate "now" in the given zone: now, second, minute, hour, day, week
// (Monday), month, year. Offset units: y, M, w, d, h, m, s.
package dateexpr

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

var layouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000Z0700",
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// Parse evaluates expr in loc relative to now.
func Parse(expr string, loc *time.Location, now time.Time) (time.Time, error) {
	s := strings.TrimSpace(expr)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date expression")
	}
	if loc == nil {
		loc = time.UTC
	}

	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).In(loc), nil
	}

	if open := strings.Index(s, "("); open > 0 && strings.HasPrefix(s[open:], "()") {
		base, err := truncate(s[:open], now.In(loc))
		if err != nil {
			return time.Time{}, err
		}
		return applyOffsets(base, s[open+2:])
	}

	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date expression %q", expr)
}

// ParseMillis is Parse returning epoch milliseconds.
func ParseMillis(expr string, loc *time.Location, now time.Time) (int64, error) {
	t, err := Parse(expr, loc, now)
	if err != nil {
		return 0, err
	}
	return t.UnixMilli(), nil
}

func truncate(fn string, now time.Time) (time.Time, error) {
	y, mo, d := now.Date()
	loc := now.Location()
	switch strings.ToLower(strings.TrimSpace(fn)) {
	case "now":
		return now, nil
	case "second":
		return now.Truncate(time.Second), nil
	case "minute":
		return time.Date(y, mo, d, now.Hour(), now.Minute(), 0, 0, loc), nil
	case "hour":
		return time.Date(y, mo, d, now.Hour(), 0, 0, 0, loc), nil
	case "day":
		return time.Date(y, mo, d, 0, 0, 0, 0, loc), nil
	case "week":
		back := (int(now.Weekday()) + 6) % 7
		return time.Date(y, mo, d-back, 0, 0, 0, 0, loc), nil
	case "month":
		return time.Date(y, mo, 1, 0, 0, 0, 0, loc), nil
	case "year":
		return time.Date(y, time.January, 1, 0, 0, 0, 0, loc), nil
	}
	return time.Time{}, fmt.Errorf("unknown date function %q", fn)
}

func applyOffsets(t time.Time, rest string) (time.Time, error) {
	rest = strings.ReplaceAll(rest, " ", "")
	for rest != "" {
		sign := 1
		switch rest[0] {
		case '+':
		case '-':
			sign = -1
		default:
			return time.Time{}, fmt.Errorf("expected + or - in date offset %q", rest)
		}
		rest = rest[1:]

		i := 0
		for i < len(rest) && rest[i] >= '0' && rest[i] <= '9' {
			i++
		}
		if i == 0 || i == len(rest) {
			return time.Time{}, fmt.Errorf("malformed date offset near %q", rest)
		}
		n, err := strconv.Atoi(rest[:i])
		if err != nil {
			return time.Time{}, fmt.Errorf("malformed date offset %q: %w", rest[:i], err)
		}
		n *= sign

		switch rest[i] {
		case 'y':
			t = t.AddDate(n, 0, 0)
		case 'M':
			t = t.AddDate(0, n, 0)
		case 'w':
			t = t.AddDate(0, 0, 7*n)
		case 'd':
			t = t.AddDate(0, 0, n)
		case 'h':
			t = t.Add(time.Duration(n) * time.Hour)
		case 'm':
			t = t.Add(time.Duration(n) * time.Minute)
		case 's':
			t = t.Add(time.Duration(n) * time.Second)
		default:
			return time.Time{}, fmt.Errorf("unknown date offset unit %q", rest[i])
		}
		rest = rest[i+1:]
	}
	return t, nil
}
