// Package calendar stores per-vessel date/time schedules. A setpoint calendar is queried
// for the latest entry already reached today; a dosing calendar is queried for entries
// due in the current minute.
package calendar

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Layouts used for calendar keys.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// ErrInvalidInput is returned when an edit is rejected. The calendar is left unchanged.
var ErrInvalidInput = errors.New("calendar: invalid input")

// Kind distinguishes the two calendars each vessel carries.
type Kind string

const (
	Setpoint Kind = "setpoint"
	Dosing   Kind = "dosing"
)

// ParseKind accepts "setpoint"/"sp" and "dosing"/"nutrition"/"dose".
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "setpoint", "sp":
		return Setpoint, nil
	case "dosing", "dose", "nutrition":
		return Dosing, nil
	}
	return "", fmt.Errorf("%w: unknown calendar kind %q", ErrInvalidInput, s)
}

// Event is one scheduled entry within a day. Time is always normalised to HH:MM.
type Event struct {
	Time  string  `json:"time"`
	Value float64 `json:"value"`
}

// Calendar maps dates to their events. Events within a day are unordered.
// The zero value is not usable; use New.
type Calendar struct {
	days map[string][]Event
}

// New returns an empty calendar.
func New() *Calendar {
	return &Calendar{days: make(map[string][]Event)}
}

// Latest returns the value of the event with the greatest time not after now on now's
// date. ok is false when nothing applies yet today; previous days are never consulted.
func (c *Calendar) Latest(now time.Time) (value float64, ok bool) {
	hhmm := now.Format(TimeLayout)
	best := ""
	for _, ev := range c.days[now.Format(DateLayout)] {
		if ev.Time <= hhmm && ev.Time >= best {
			best = ev.Time
			value = ev.Value
			ok = true
		}
	}
	return value, ok
}

// FiredAt returns the values of every event scheduled exactly at now's minute.
func (c *Calendar) FiredAt(now time.Time) []float64 {
	hhmm := now.Format(TimeLayout)
	var out []float64
	for _, ev := range c.days[now.Format(DateLayout)] {
		if ev.Time == hhmm {
			out = append(out, ev.Value)
		}
	}
	return out
}

// Add appends an event. date is YYYY-MM-DD (or any accepted import format) and hhmm is
// H:MM or HH:MM.
func (c *Calendar) Add(date, hhmm string, value float64) error {
	d, t, err := normalise(date, hhmm)
	if err != nil {
		return err
	}
	c.days[d] = append(c.days[d], Event{Time: t, Value: value})
	return nil
}

// Update replaces the event at index within a day's listing as returned by Day.
func (c *Calendar) Update(date string, index int, hhmm string, value float64) error {
	d, t, err := normalise(date, hhmm)
	if err != nil {
		return err
	}
	pos, err := c.position(d, index)
	if err != nil {
		return err
	}
	c.days[d][pos] = Event{Time: t, Value: value}
	return nil
}

// Remove deletes the event at index within a day's listing as returned by Day.
func (c *Calendar) Remove(date string, index int) error {
	d, err := ParseDate(date)
	if err != nil {
		return err
	}
	pos, err := c.position(d, index)
	if err != nil {
		return err
	}
	evs := c.days[d]
	evs = append(evs[:pos], evs[pos+1:]...)
	if len(evs) == 0 {
		delete(c.days, d)
	} else {
		c.days[d] = evs
	}
	return nil
}

// ClearDay removes every event on a date.
func (c *Calendar) ClearDay(date string) error {
	d, err := ParseDate(date)
	if err != nil {
		return err
	}
	delete(c.days, d)
	return nil
}

// Day returns a copy of a date's events sorted by time. Indexes into this slice are the
// ones Update and Remove accept.
func (c *Calendar) Day(date string) []Event {
	d, err := ParseDate(date)
	if err != nil {
		return nil
	}
	return sortedCopy(c.days[d])
}

// Dates returns every date with at least one event, ascending.
func (c *Calendar) Dates() []string {
	out := make([]string, 0, len(c.days))
	for d := range c.days {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// Len returns the total number of events.
func (c *Calendar) Len() int {
	n := 0
	for _, evs := range c.days {
		n += len(evs)
	}
	return n
}

// Merge appends every event of other into c.
func (c *Calendar) Merge(other *Calendar) {
	for d, evs := range other.days {
		c.days[d] = append(c.days[d], evs...)
	}
}

// Clone returns a deep copy.
func (c *Calendar) Clone() *Calendar {
	out := New()
	out.Merge(c)
	return out
}

// position maps a sorted-listing index to the storage index.
func (c *Calendar) position(date string, index int) (int, error) {
	evs := c.days[date]
	if index < 0 || index >= len(evs) {
		return 0, fmt.Errorf("%w: no event %d on %s", ErrInvalidInput, index, date)
	}
	order := make([]int, len(evs))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return evs[order[a]].Time < evs[order[b]].Time })
	return order[index], nil
}

func sortedCopy(evs []Event) []Event {
	if len(evs) == 0 {
		return nil
	}
	out := make([]Event, len(evs))
	copy(out, evs)
	sort.SliceStable(out, func(a, b int) bool { return out[a].Time < out[b].Time })
	return out
}

func normalise(date, hhmm string) (string, string, error) {
	d, err := ParseDate(date)
	if err != nil {
		return "", "", err
	}
	t, err := ParseClock(hhmm)
	if err != nil {
		return "", "", err
	}
	return d, t, nil
}

var dateLayouts = []string{
	DateLayout,
	"02/01/2006",
	"02-01-2006",
	"2006/01/02",
	"01-02-06",
}

// ParseDate accepts the supported date layouts and returns the YYYY-MM-DD key.
func ParseDate(s string) (string, error) {
	s = strings.TrimSpace(s)
	// Spreadsheet cells sometimes carry a midnight time component.
	if i := strings.IndexByte(s, ' '); i > 0 {
		s = s[:i]
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(DateLayout), nil
		}
	}
	return "", fmt.Errorf("%w: date %q", ErrInvalidInput, s)
}

// ParseClock accepts H:MM or HH:MM and returns HH:MM. Seconds are rejected.
func ParseClock(s string) (string, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return "", fmt.Errorf("%w: time %q", ErrInvalidInput, s)
	}
	h, errH := strconv.Atoi(parts[0])
	m, errM := strconv.Atoi(parts[1])
	if errH != nil || errM != nil || h < 0 || h > 23 || m < 0 || m > 59 || len(parts[1]) != 2 {
		return "", fmt.Errorf("%w: time %q", ErrInvalidInput, s)
	}
	return fmt.Sprintf("%02d:%02d", h, m), nil
}
