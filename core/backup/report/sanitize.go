package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// EventsKey is the report field holding the ordered resource events.
const EventsKey = "resource-events"

// Report is a decoded report document keyed by wire field names.
type Report map[string]any

// eventFields is the allow-list of resource event fields.
var eventFields = []string{
	"containment-path",
	"file",
	"line",
	"message",
	"new-value",
	"old-value",
	"property",
	"resource-title",
	"resource-type",
	"status",
	"timestamp",
}

var eventFieldSet = func() map[string]struct{} {
	out := make(map[string]struct{}, len(eventFields))
	for _, f := range eventFields {
		out[f] = struct{}{}
	}
	return out
}()

// EventFields returns the recognised resource event fields, sorted.
func EventFields() []string {
	out := make([]string, len(eventFields))
	copy(out, eventFields)
	return out
}

// SanitizeEvent returns a copy of event holding only recognised fields.
func SanitizeEvent(event map[string]any) map[string]any {
	if event == nil {
		return nil
	}
	out := make(map[string]any, len(eventFields))
	for key, val := range event {
		if _, ok := eventFieldSet[key]; ok {
			out[key] = val
		}
	}
	return out
}

// SanitizeEvents applies SanitizeEvent to every event.
func SanitizeEvents(events []map[string]any) []map[string]any {
	if events == nil {
		return nil
	}
	out := make([]map[string]any, len(events))
	for i, event := range events {
		out[i] = SanitizeEvent(event)
	}
	return out
}

// SanitizeReport returns a shallow copy of r with every resource event
// restricted to the recognised fields. Other fields are left untouched.
func SanitizeReport(r Report) Report {
	if r == nil {
		return nil
	}
	out := make(Report, len(r))
	for key, val := range r {
		out[key] = val
	}
	switch events := r[EventsKey].(type) {
	case []map[string]any:
		out[EventsKey] = SanitizeEvents(events)
	case []any:
		clean := make([]any, len(events))
		for i, item := range events {
			if event, ok := item.(map[string]any); ok {
				clean[i] = SanitizeEvent(event)
				continue
			}
			clean[i] = item
		}
		out[EventsKey] = clean
	}
	return out
}

// Decode parses a report document, keeping numbers as json.Number.
func Decode(data []byte) (Report, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var r Report
	if err := dec.Decode(&r); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	if r == nil {
		return nil, errors.New("decode report: document is null")
	}
	if dec.More() {
		return nil, errors.New("decode report: trailing data after document")
	}
	return r, nil
}

// SanitizeJSON decodes a report, sanitizes it and encodes it again.
func SanitizeJSON(data []byte) ([]byte, error) {
	r, err := Decode(data)
	if err != nil {
		return nil, err
	}
	out, err := json.Marshal(SanitizeReport(r))
	if err != nil {
		return nil, fmt.Errorf("encode report: %w", err)
	}
	return out, nil
}
