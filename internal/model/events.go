package model

// EventList is the caller-owned accumulation of imported events.
// Imports append; nothing is replaced or deduplicated.
type EventList struct {
	events []CalendarEvent
}

// Append adds a freshly parsed batch to the end of the list.
func (l *EventList) Append(batch ...CalendarEvent) {
	l.events = append(l.events, batch...)
}

// Len returns the number of accumulated events.
func (l *EventList) Len() int {
	return len(l.events)
}

// Events returns a copy of the accumulated events in import order.
func (l *EventList) Events() []CalendarEvent {
	out := make([]CalendarEvent, len(l.events))
	copy(out, l.events)
	return out
}
