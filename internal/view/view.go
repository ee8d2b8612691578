// Package view holds the JSON shapes shared by the API and the CLI.
package view

import (
	"time"

	"breakcal/internal/model"
)

// LabelLayout formats known bounds in labels.
const LabelLayout = "2006-01-02 15:04"

// Event is a JSON-friendly view of an event. Unknown bounds are null;
// the labels carry the placeholder text instead.
type Event struct {
	ID          string     `json:"id,omitempty"`
	SourceID    string     `json:"source_id,omitempty"`
	UID         string     `json:"uid,omitempty"`
	Title       string     `json:"title"`
	Location    string     `json:"location,omitempty"`
	Description string     `json:"description,omitempty"`
	AllDay      bool       `json:"all_day"`
	Start       *time.Time `json:"start"`
	End         *time.Time `json:"end"`
	StartLabel  string     `json:"start_label"`
	EndLabel    string     `json:"end_label"`
}

// AgendaItem is one agenda row. Breaks carry BucketMinutes; events
// carry Event.
type AgendaItem struct {
	Kind          model.ItemKind `json:"kind"`
	Start         time.Time      `json:"start"`
	End           time.Time      `json:"end"`
	Title         string         `json:"title"`
	BucketMinutes int            `json:"bucket_minutes,omitempty"`
	Event         *Event         `json:"event,omitempty"`
}

// NewEvent converts an event for JSON output.
func NewEvent(ev model.CalendarEvent) Event {
	return Event{
		ID:          ev.ID,
		SourceID:    ev.SourceID,
		UID:         ev.UID,
		Title:       ev.Title,
		Location:    ev.Location,
		Description: ev.Description,
		AllDay:      ev.AllDay,
		Start:       ev.Start,
		End:         ev.End,
		StartLabel:  ev.StartLabel(LabelLayout),
		EndLabel:    ev.EndLabel(LabelLayout),
	}
}

// NewAgendaItem converts an agenda item for JSON output.
func NewAgendaItem(it model.AgendaItem) AgendaItem {
	dto := AgendaItem{
		Kind:  it.Kind,
		Start: it.Start,
		End:   it.End,
		Title: it.Title(),
	}
	if it.Break != nil {
		dto.BucketMinutes = int(it.Break.Bucket)
	}
	if it.Event != nil {
		ev := NewEvent(*it.Event)
		dto.Event = &ev
	}
	return dto
}
