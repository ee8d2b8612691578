package agenda

import (
	"sort"
	"time"

	"breakcal/internal/model"
)

// Working day bounds, in wall-clock hours of the reference instant's zone.
const (
	WindowStartHour = 8
	WindowEndHour   = 23
)

// MinBreak is the smallest idle span that yields a suggested break.
const MinBreak = 15 * time.Minute

// Window is the working day gaps are measured against: [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// WorkingWindow returns 08:00–23:00 on the calendar day of now, in now's
// location.
func WorkingWindow(now time.Time) Window {
	y, m, d := now.Date()
	loc := now.Location()
	return Window{
		Start: time.Date(y, m, d, WindowStartHour, 0, 0, 0, loc),
		End:   time.Date(y, m, d, WindowEndHour, 0, 0, 0, loc),
	}
}

// contains reports whether a bounded event lies entirely inside w.
func (w Window) contains(ev model.CalendarEvent) bool {
	return !ev.Start.Before(w.Start) && !ev.End.After(w.End)
}

// BucketFor picks the break length for an idle span. ok is false for
// spans shorter than MinBreak.
func BucketFor(gap time.Duration) (bucket model.BreakBucket, ok bool) {
	switch {
	case gap >= time.Hour:
		return model.Bucket60, true
	case gap >= 30*time.Minute:
		return model.Bucket30, true
	case gap >= MinBreak:
		return model.Bucket15, true
	default:
		return 0, false
	}
}

// Build returns the agenda for now: every bounded event that has not
// ended yet, interleaved with suggested breaks, ordered by start time.
//
// Events with an unknown start or end are left out; see Unscheduled.
func Build(events []model.CalendarEvent, now time.Time) []model.AgendaItem {
	future := upcoming(events, now)
	breaks := computeBreaks(future, WorkingWindow(now))

	items := make([]model.AgendaItem, 0, len(future)+len(breaks))
	for _, ev := range future {
		items = append(items, model.EventItem(ev))
	}
	for _, b := range breaks {
		items = append(items, model.BreakItem(b))
	}

	// Events were appended first, so on equal starts they stay ahead of breaks.
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Start.Before(items[j].Start)
	})
	return items
}

// Unscheduled returns events lacking a start or end, in input order. They
// never take part in gap math; the caller decides how to show them.
func Unscheduled(events []model.CalendarEvent) []model.CalendarEvent {
	out := make([]model.CalendarEvent, 0)
	for _, ev := range events {
		if !ev.Bounded() {
			out = append(out, ev)
		}
	}
	return out
}

// upcoming keeps bounded events whose end is after now, in input order.
func upcoming(events []model.CalendarEvent, now time.Time) []model.CalendarEvent {
	out := make([]model.CalendarEvent, 0, len(events))
	for _, ev := range events {
		if ev.Bounded() && ev.End.After(now) {
			out = append(out, ev)
		}
	}
	return out
}

// computeBreaks walks the in-window events by start time with a cursor
// that begins at the window start. Each gap of at least MinBreak yields
// one bucket-sized break at the beginning of the gap.
//
// The cursor only moves forward, so an event nested inside a longer one
// cannot reopen time the longer event still covers.
func computeBreaks(future []model.CalendarEvent, w Window) []model.Break {
	inWindow := make([]model.CalendarEvent, 0, len(future))
	for _, ev := range future {
		if w.contains(ev) {
			inWindow = append(inWindow, ev)
		}
	}
	sort.SliceStable(inWindow, func(i, j int) bool {
		return inWindow[i].Start.Before(*inWindow[j].Start)
	})

	breaks := make([]model.Break, 0, len(inWindow)+1)
	cursor := w.Start
	for _, ev := range inWindow {
		if b, ok := breakAt(cursor, ev.Start.Sub(cursor)); ok {
			breaks = append(breaks, b)
		}
		if ev.End.After(cursor) {
			cursor = *ev.End
		}
	}
	if b, ok := breakAt(cursor, w.End.Sub(cursor)); ok {
		breaks = append(breaks, b)
	}
	return breaks
}

func breakAt(start time.Time, gap time.Duration) (model.Break, bool) {
	bucket, ok := BucketFor(gap)
	if !ok {
		return model.Break{}, false
	}
	return model.Break{
		Start:  start,
		End:    start.Add(bucket.Duration()),
		Bucket: bucket,
	}, true
}
