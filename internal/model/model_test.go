package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalendarEventLabels(t *testing.T) {
	start := time.Date(2025, 3, 4, 9, 0, 0, 0, time.UTC)

	ev := CalendarEvent{Title: "Standup", Start: &start}
	assert.False(t, ev.Bounded())
	assert.Equal(t, "09:00", ev.StartLabel("15:04"))
	assert.Equal(t, NoEndTime, ev.EndLabel("15:04"))

	empty := CalendarEvent{}
	assert.Equal(t, NoStartTime, empty.StartLabel(time.RFC3339))
}

func TestAgendaItemTitle(t *testing.T) {
	start := time.Date(2025, 3, 4, 9, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	ev := EventItem(CalendarEvent{Title: "Review", Start: &start, End: &end})
	assert.Equal(t, KindEvent, ev.Kind)
	assert.Equal(t, "Review", ev.Title())

	br := BreakItem(Break{Start: end, End: end.Add(30 * time.Minute), Bucket: Bucket30})
	assert.Equal(t, KindBreak, br.Kind)
	assert.Equal(t, "Break (30m)", br.Title())
	assert.Equal(t, 30*time.Minute, br.Break.Bucket.Duration())
}

func TestEventListAppends(t *testing.T) {
	var l EventList
	l.Append(CalendarEvent{Title: "a"}, CalendarEvent{Title: "b"})
	l.Append(CalendarEvent{Title: "a"})

	require.Equal(t, 3, l.Len())
	got := l.Events()
	assert.Equal(t, "a", got[2].Title)

	// Mutating the copy does not touch the list.
	got[0].Title = "changed"
	assert.Equal(t, "a", l.Events()[0].Title)
}
