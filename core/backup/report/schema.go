package report

import (
	"sort"
	"strings"
)

// LatestVersion is the newest report schema this package validates.
const LatestVersion = 5

// FieldType pairs a readable type name with the JSON Schema fragment that
// enforces it.
type FieldType struct {
	Name   string
	Schema map[string]any
}

var (
	String     = FieldType{Name: "String", Schema: map[string]any{"type": "string"}}
	OptString  = FieldType{Name: "String or nil", Schema: map[string]any{"type": []any{"string", "null"}}}
	Datetime   = FieldType{Name: "Datetime", Schema: map[string]any{"type": "string", "format": "date-time"}}
	Integer    = FieldType{Name: "Integer", Schema: map[string]any{"type": "integer"}}
	OptInteger = FieldType{Name: "Integer or nil", Schema: map[string]any{"type": []any{"integer", "null"}}}
	OptStrings = FieldType{Name: "[String] or nil", Schema: map[string]any{
		"type":  []any{"array", "null"},
		"items": map[string]any{"type": []any{"string", "null"}},
	}}
	Any    = FieldType{Name: "Any", Schema: map[string]any{}}
	Events = FieldType{Name: "[ResourceEvent]", Schema: map[string]any{"type": "array"}}
)

// Enum accepts exactly one of values.
func Enum(values ...string) FieldType {
	sorted := append([]string(nil), values...)
	sort.Strings(sorted)
	enum := make([]any, len(sorted))
	for i, v := range sorted {
		enum[i] = v
	}
	return FieldType{
		Name:   "one of " + strings.Join(sorted, ", "),
		Schema: map[string]any{"type": "string", "enum": enum},
	}
}

// Version is the rule set active for one report schema version.
type Version struct {
	Required      []string
	Fields        map[string]FieldType
	EventRequired []string
	EventFields   map[string]FieldType
}

var eventStatus = Enum("success", "failure", "noop", "skipped")

func baseEventFields() map[string]FieldType {
	return map[string]FieldType{
		"containment-path": OptStrings,
		"file":             OptString,
		"line":             OptInteger,
		"message":          OptString,
		"new-value":        Any,
		"old-value":        Any,
		"property":         OptString,
		"resource-title":   String,
		"resource-type":    String,
		"status":           eventStatus,
		"timestamp":        Datetime,
	}
}

func v3() Version {
	return Version{
		Required: []string{
			"certname", "configuration-version", "end-time", "puppet-version",
			"report-format", "resource-events", "start-time",
		},
		Fields: map[string]FieldType{
			"certname":              String,
			"configuration-version": String,
			"end-time":              Datetime,
			"puppet-version":        String,
			"report-format":         Integer,
			"resource-events":       Events,
			"start-time":            Datetime,
		},
		EventRequired: EventFields(),
		EventFields:   baseEventFields(),
	}
}

func v4() Version {
	v := v3()
	v.Required = append(v.Required, "transaction-uuid")
	v.Fields["transaction-uuid"] = OptString
	return v
}

func v5() Version {
	v := v4()
	v.Required = append(v.Required, "environment", "status")
	v.Fields["environment"] = String
	v.Fields["status"] = Enum("changed", "unchanged", "failed")
	return v
}

var versions = map[int]Version{
	3: v3(),
	4: v4(),
	5: v5(),
}

// Versions lists the supported schema versions in ascending order.
func Versions() []int {
	out := make([]int, 0, len(versions))
	for v := range versions {
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}

// Rules returns the rule set of a schema version.
func Rules(version int) (Version, bool) {
	v, ok := versions[version]
	return v, ok
}

func (v Version) jsonSchema() map[string]any {
	eventProps := make(map[string]any, len(v.EventFields))
	for name, ft := range v.EventFields {
		eventProps[name] = ft.Schema
	}
	props := make(map[string]any, len(v.Fields))
	for name, ft := range v.Fields {
		props[name] = ft.Schema
	}
	props[EventsKey] = map[string]any{
		"type": "array",
		"items": map[string]any{
			"type":       "object",
			"properties": eventProps,
		},
	}
	return map[string]any{
		"$schema":    "http://json-schema.org/draft-07/schema#",
		"type":       "object",
		"properties": props,
	}
}
