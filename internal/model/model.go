package model

import (
	"strconv"
	"time"
)

// Display placeholders for fields missing from the source calendar.
const (
	NoTitle     = "No Title"
	NoStartTime = "No Start Time"
	NoEndTime   = "No End Time"
)

// CalendarEvent is a single VEVENT as extracted by the ingestion parser.
//
// Start and End are nil when the source did not carry a usable value.
// Such events can still be listed but never take part in gap computation.
type CalendarEvent struct {
	// ID and SourceID are only set for events loaded from the store.
	ID       string
	SourceID string

	UID         string
	Title       string
	Location    string
	Description string

	Start  *time.Time
	End    *time.Time
	AllDay bool
}

// Bounded reports whether both Start and End are known.
func (e CalendarEvent) Bounded() bool {
	return e.Start != nil && e.End != nil
}

// StartLabel formats Start with layout, or returns NoStartTime.
func (e CalendarEvent) StartLabel(layout string) string {
	if e.Start == nil {
		return NoStartTime
	}
	return e.Start.Format(layout)
}

// EndLabel formats End with layout, or returns NoEndTime.
func (e CalendarEvent) EndLabel(layout string) string {
	if e.End == nil {
		return NoEndTime
	}
	return e.End.Format(layout)
}

// BreakBucket is the discretized length of a suggested break, in minutes.
type BreakBucket int

const (
	Bucket15 BreakBucket = 15
	Bucket30 BreakBucket = 30
	Bucket60 BreakBucket = 60
)

// Duration returns the bucket as a time.Duration.
func (b BreakBucket) Duration() time.Duration {
	return time.Duration(b) * time.Minute
}

// Break is a suggested free slot carved from the beginning of an idle gap.
type Break struct {
	Start  time.Time
	End    time.Time
	Bucket BreakBucket
}

// ItemKind tags an AgendaItem.
type ItemKind string

const (
	KindEvent ItemKind = "event"
	KindBreak ItemKind = "break"
)

// AgendaItem is either an event or a break. Exactly one of Event and
// Break is non-nil, matching Kind.
type AgendaItem struct {
	Kind  ItemKind
	Start time.Time
	End   time.Time

	Event *CalendarEvent
	Break *Break
}

// EventItem wraps a bounded event as an agenda item.
func EventItem(ev CalendarEvent) AgendaItem {
	return AgendaItem{
		Kind:  KindEvent,
		Start: *ev.Start,
		End:   *ev.End,
		Event: &ev,
	}
}

// BreakItem wraps a break as an agenda item.
func BreakItem(b Break) AgendaItem {
	return AgendaItem{
		Kind:  KindBreak,
		Start: b.Start,
		End:   b.End,
		Break: &b,
	}
}

// Title returns the event title for event items and a short label
// ("Break (30m)") for breaks.
func (it AgendaItem) Title() string {
	switch it.Kind {
	case KindEvent:
		if it.Event != nil {
			return it.Event.Title
		}
	case KindBreak:
		if it.Break != nil {
			return "Break (" + strconv.Itoa(int(it.Break.Bucket)) + "m)"
		}
	}
	return ""
}
