package ics

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "breakcal/internal/log"
	"breakcal/internal/model"
)

const beginCalendar = "BEGIN:VCALENDAR"

// Parse turns a raw calendar payload into events, in source order.
//
//   - The first non-blank line (after an optional UTF-8 BOM) must be
//     BEGIN:VCALENDAR, otherwise ErrInvalidFormat is returned.
//   - BEGIN/END nesting is validated before any property is read; any
//     imbalance is a *ParseError and nothing is returned.
//   - Missing SUMMARY becomes model.NoTitle. A missing or unreadable
//     DTSTART/DTEND leaves the bound nil.
//   - Timestamps are converted into loc (time.Local when nil). TZID
//     parameters are honored; floating and date-only values are read in loc.
//
// Parse keeps no state, so parsing the same payload twice yields the
// same events.
func Parse(body []byte, loc *time.Location) ([]model.CalendarEvent, error) {
	if loc == nil {
		loc = time.Local
	}

	lines, offset, ok := contentLines(body)
	if !ok {
		appLog.Warn("ics payload rejected", "reason", "missing "+beginCalendar)
		return nil, ErrInvalidFormat
	}

	eventLines, err := checkStructure(lines, offset)
	if err != nil {
		appLog.Error("ics structure check failed", err)
		return nil, err
	}

	cal, err := ical.ParseCalendar(strings.NewReader(canonicalText(lines)))
	if err != nil {
		perr := &ParseError{Component: "VCALENDAR", Reason: "unreadable calendar", Err: err}
		appLog.Error("ics parse failed", perr)
		return nil, perr
	}

	vevents := cal.Events()
	if len(vevents) != len(eventLines) {
		perr := &ParseError{
			Component: "VCALENDAR",
			Reason:    fmt.Sprintf("found %d VEVENT blocks but extracted %d", len(eventLines), len(vevents)),
		}
		appLog.Error("ics parse failed", perr)
		return nil, perr
	}
	events := make([]model.CalendarEvent, 0, len(vevents))
	for i, ve := range vevents {
		line := 0
		if i < len(eventLines) {
			line = eventLines[i]
		}
		ev, perr := parseVEvent(ve, loc, line)
		if perr != nil {
			appLog.Error("ics vevent rejected", perr)
			return nil, perr
		}
		events = append(events, ev)
	}

	appLog.Info("ics parse completed", "event_count", len(events))
	return events, nil
}

// contentLines strips the BOM and leading blank lines, checks the header
// and returns the remaining non-blank lines with CR removed. offset is the
// number of physical lines dropped before the header.
func contentLines(body []byte) ([]string, int, bool) {
	body = bytes.TrimPrefix(body, []byte("\xef\xbb\xbf"))
	raw := strings.Split(string(body), "\n")

	start := -1
	for i, l := range raw {
		if strings.TrimSpace(l) != "" {
			start = i
			break
		}
	}
	if start < 0 || !strings.EqualFold(strings.TrimSpace(raw[start]), beginCalendar) {
		return nil, 0, false
	}

	lines := make([]string, 0, len(raw)-start)
	for _, l := range raw[start:] {
		lines = append(lines, strings.TrimRight(l, "\r"))
	}
	lines[0] = beginCalendar
	return lines, start, true
}

// checkStructure walks BEGIN/END lines and reports the first imbalance.
// It returns the line number of every VEVENT that sits directly under
// VCALENDAR, in order.
func checkStructure(lines []string, offset int) ([]int, error) {
	var (
		stack      []string
		stackLines []int
		eventLines []int
		closed     bool
	)

	for i, l := range lines {
		lineNo := offset + i + 1
		if strings.TrimSpace(l) == "" {
			continue
		}
		// Folded continuation of the previous content line.
		if l[0] == ' ' || l[0] == '\t' {
			continue
		}
		if closed {
			return nil, &ParseError{Line: lineNo, Reason: "content after END:VCALENDAR"}
		}

		name, value, ok := strings.Cut(l, ":")
		if !ok {
			return nil, &ParseError{Line: lineNo, Component: top(stack), Reason: "content line without ':'"}
		}
		value = strings.ToUpper(strings.TrimSpace(value))

		switch strings.ToUpper(strings.TrimSpace(name)) {
		case "BEGIN":
			if value == "" {
				return nil, &ParseError{Line: lineNo, Component: top(stack), Reason: "BEGIN without component name"}
			}
			if value == "VEVENT" && len(stack) == 1 {
				eventLines = append(eventLines, lineNo)
			}
			stack = append(stack, value)
			stackLines = append(stackLines, lineNo)
		case "END":
			if len(stack) == 0 || top(stack) != value {
				return nil, &ParseError{Line: lineNo, Component: top(stack), Reason: "unexpected END:" + value}
			}
			stack = stack[:len(stack)-1]
			stackLines = stackLines[:len(stackLines)-1]
			if len(stack) == 0 {
				closed = true
			}
		}
	}

	if len(stack) > 0 {
		return nil, &ParseError{
			Line:      stackLines[len(stackLines)-1],
			Component: top(stack),
			Reason:    "component is never closed",
		}
	}

	return eventLines, nil
}

// canonicalText rebuilds the payload with CRLF endings and without blank
// lines. Property and parameter names are case-insensitive, as are the
// component names after BEGIN/END; they are upper-cased so the library
// recognizes them. Values and folded continuations are left as they are.
func canonicalText(lines []string) string {
	var b strings.Builder
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			continue
		}
		if l[0] != ' ' && l[0] != '\t' {
			l = canonicalContentLine(l)
		}
		b.WriteString(l)
		b.WriteString("\r\n")
	}
	return b.String()
}

// canonicalContentLine upper-cases the name and parameter names of one
// unfolded content line. Quoted parameter values may contain ':' and ';'.
func canonicalContentLine(l string) string {
	b := []byte(l)
	inName, inQuote := true, false
	for i, c := range b {
		switch {
		case inQuote:
			if c == '"' {
				inQuote = false
			}
		case c == '"':
			inQuote = true
		case c == ':':
			name := string(b[:i])
			if name == "BEGIN" || name == "END" {
				return name + ":" + strings.ToUpper(strings.TrimSpace(l[i+1:]))
			}
			return name + l[i:]
		case c == ';':
			inName = true
		case c == '=':
			inName = false
		case inName && 'a' <= c && c <= 'z':
			b[i] = c - ('a' - 'A')
		}
	}
	return string(b)
}

func top(stack []string) string {
	if len(stack) == 0 {
		return ""
	}
	return stack[len(stack)-1]
}

func parseVEvent(ve *ical.VEvent, loc *time.Location, line int) (model.CalendarEvent, *ParseError) {
	var out model.CalendarEvent

	out.Title = model.NoTitle
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil && strings.TrimSpace(p.Value) != "" {
		out.Title = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyUniqueId); p != nil {
		out.UID = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		out.Location = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.Description = p.Value
	}

	if p := ve.GetProperty(ical.ComponentPropertyDtStart); p != nil {
		if t, allDay, ok := parseTimestamp(p, loc); ok {
			out.Start = &t
			out.AllDay = allDay
		} else {
			appLog.Warn("ics DTSTART unreadable; start unknown", "uid", out.UID, "value", p.Value)
		}
	}
	if p := ve.GetProperty(ical.ComponentPropertyDtEnd); p != nil {
		if t, _, ok := parseTimestamp(p, loc); ok {
			out.End = &t
		} else {
			appLog.Warn("ics DTEND unreadable; end unknown", "uid", out.UID, "value", p.Value)
		}
	}

	// DURATION stands in for DTEND; the two are mutually exclusive.
	if p := ve.GetProperty(ical.ComponentPropertyDuration); p != nil && out.End == nil && out.Start != nil {
		if d, ok := parseDuration(p.Value); ok {
			end := out.Start.Add(d)
			out.End = &end
		} else {
			appLog.Warn("ics DURATION unreadable; end unknown", "uid", out.UID, "value", p.Value)
		}
	}

	if out.Bounded() && out.End.Before(*out.Start) {
		return out, &ParseError{Line: line, Component: "VEVENT", Reason: "DTEND is before DTSTART"}
	}

	return out, nil
}

// parseTimestamp reads a DATE or DATE-TIME property value. UTC values
// ("...Z") ignore TZID; everything else is read in the TZID zone when one
// is given and loadable, otherwise in loc. The result is expressed in loc.
func parseTimestamp(p *ical.IANAProperty, loc *time.Location) (time.Time, bool, bool) {
	v := strings.TrimSpace(p.Value)
	if v == "" {
		return time.Time{}, false, false
	}

	zone := loc
	if tzs, ok := p.ICalParameters["TZID"]; ok && len(tzs) > 0 {
		name := strings.Trim(tzs[0], `"`)
		if tz, err := time.LoadLocation(name); err == nil {
			zone = tz
		} else {
			appLog.Warn("unknown TZID; using display timezone", "tzid", name)
		}
	}

	var (
		t      time.Time
		err    error
		allDay bool
	)
	switch {
	case strings.HasSuffix(v, "Z"):
		t, err = time.Parse("20060102T150405Z", v)
	case strings.Contains(v, "T"):
		t, err = time.ParseInLocation("20060102T150405", v, zone)
	default:
		t, err = time.ParseInLocation("20060102", v, zone)
		allDay = true
	}
	if err != nil {
		return time.Time{}, false, false
	}
	return t.In(loc), allDay, true
}

// parseDuration reads a dur-value such as "PT1H30M", "P1D" or "-PT15M".
// Days and weeks are taken as 24h and 7*24h.
func parseDuration(v string) (time.Duration, bool) {
	v = strings.ToUpper(strings.TrimSpace(v))
	sign := time.Duration(1)
	switch {
	case strings.HasPrefix(v, "-"):
		sign, v = -1, v[1:]
	case strings.HasPrefix(v, "+"):
		v = v[1:]
	}
	if !strings.HasPrefix(v, "P") || len(v) < 3 {
		return 0, false
	}
	v = v[1:]

	var (
		total   time.Duration
		n       int64
		digits  bool
		inTime  bool
		matched bool
	)
	for i := 0; i < len(v); i++ {
		c := v[i]
		if '0' <= c && c <= '9' {
			n = n*10 + int64(c-'0')
			digits = true
			continue
		}
		if c == 'T' {
			if inTime || digits {
				return 0, false
			}
			inTime = true
			continue
		}
		if !digits {
			return 0, false
		}
		var unit time.Duration
		switch {
		case c == 'W' && !inTime:
			unit = 7 * 24 * time.Hour
		case c == 'D' && !inTime:
			unit = 24 * time.Hour
		case c == 'H' && inTime:
			unit = time.Hour
		case c == 'M' && inTime:
			unit = time.Minute
		case c == 'S' && inTime:
			unit = time.Second
		default:
			return 0, false
		}
		total += time.Duration(n) * unit
		n, digits, matched = 0, false, true
	}
	if digits || !matched {
		return 0, false
	}
	return sign * total, true
}
