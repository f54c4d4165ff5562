package gate

import (
	"fmt"
	"time"
)

// TimeWindow is a daily interval of wall-clock time. Both bounds are
// inclusive. When End is before Start the window runs past midnight.
type TimeWindow struct {
	Start    time.Duration
	End      time.Duration
	Location *time.Location
}

func DefaultWindow() *TimeWindow {
	return &TimeWindow{Start: 18 * time.Hour, End: 21 * time.Hour, Location: time.UTC}
}

// ParseWindow builds a window from "HH:MM" bounds and an IANA zone name.
func ParseWindow(start, end, zone string) (*TimeWindow, error) {
	s, err := parseClock(start)
	if err != nil {
		return nil, fmt.Errorf("window start: %w", err)
	}
	e, err := parseClock(end)
	if err != nil {
		return nil, fmt.Errorf("window end: %w", err)
	}
	loc := time.UTC
	if zone != "" {
		loc, err = time.LoadLocation(zone)
		if err != nil {
			return nil, fmt.Errorf("window zone: %w", err)
		}
	}
	return &TimeWindow{Start: s, End: e, Location: loc}, nil
}

func parseClock(value string) (time.Duration, error) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		return 0, fmt.Errorf("parse %q: want HH:MM", value)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

func (w *TimeWindow) Contains(t time.Time) bool {
	loc := w.Location
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	offset := time.Duration(local.Hour())*time.Hour +
		time.Duration(local.Minute())*time.Minute +
		time.Duration(local.Second())*time.Second +
		time.Duration(local.Nanosecond())
	if w.Start <= w.End {
		return offset >= w.Start && offset <= w.End
	}
	return offset >= w.Start || offset <= w.End
}

func (w *TimeWindow) String() string {
	return fmt.Sprintf("%s and %s", clock(w.Start), clock(w.End))
}

// Bounds renders the window edges as HH:MM.
func (w *TimeWindow) Bounds() (string, string) {
	return clock(w.Start), clock(w.End)
}

func clock(d time.Duration) string {
	return fmt.Sprintf("%02d:%02d", int(d.Hours()), int(d.Minutes())%60)
}
