package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
)

// SchemaError lists every rule a report broke.
type SchemaError struct {
	Version    int
	Violations []string
}

func (e *SchemaError) Error() string {
	return strings.Join(e.Violations, "; ")
}

var compiled = struct {
	sync.Mutex
	byVersion map[int]*jsonschema.Schema
}{byVersion: map[int]*jsonschema.Schema{}}

// Validate checks r against the rules of a schema version and returns r
// unchanged when it conforms. Missing top-level keys are reported on their
// own; otherwise every event key and field type violation is collected.
func Validate(version int, r Report) (Report, error) {
	rules, ok := Rules(version)
	if !ok {
		return nil, &SchemaError{Version: version, Violations: []string{
			fmt.Sprintf("unsupported report schema version %d", version),
		}}
	}
	if r == nil {
		return nil, &SchemaError{Version: version, Violations: []string{"report is nil"}}
	}
	if missing := missingKeys(r, rules.Required); len(missing) > 0 {
		return nil, &SchemaError{Version: version, Violations: []string{
			"report is missing keys: " + strings.Join(missing, ", "),
		}}
	}

	payload, err := normalize(r)
	if err != nil {
		return nil, err
	}
	var violations []string
	if events, ok := payload[EventsKey].([]any); ok {
		for i, item := range events {
			event, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if missing := missingKeys(event, rules.EventRequired); len(missing) > 0 {
				violations = append(violations, fmt.Sprintf("%s[%d] is missing keys: %s", EventsKey, i, strings.Join(missing, ", ")))
			}
		}
	}

	schema, err := compileVersion(version, rules)
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(payload); err != nil {
		var verr *jsonschema.ValidationError
		if !errors.As(err, &verr) {
			return nil, fmt.Errorf("validate report: %w", err)
		}
		violations = append(violations, describe(rules, verr)...)
	}
	if len(violations) > 0 {
		return nil, &SchemaError{Version: version, Violations: violations}
	}
	return r, nil
}

// ValidateJSON decodes and validates a report document.
func ValidateJSON(version int, data []byte) (Report, error) {
	r, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return Validate(version, r)
}

func missingKeys(m map[string]any, required []string) []string {
	var missing []string
	for _, key := range required {
		if _, ok := m[key]; !ok {
			missing = append(missing, key)
		}
	}
	sort.Strings(missing)
	return missing
}

// normalize turns arbitrary Go values into the generic JSON shapes the
// schema evaluator understands.
func normalize(r Report) (map[string]any, error) {
	data, err := json.Marshal(map[string]any(r))
	if err != nil {
		return nil, fmt.Errorf("normalize report: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("normalize report: %w", err)
	}
	return out, nil
}

func compileVersion(version int, rules Version) (*jsonschema.Schema, error) {
	compiled.Lock()
	defer compiled.Unlock()
	if s, ok := compiled.byVersion[version]; ok {
		return s, nil
	}
	data, err := json.Marshal(rules.jsonSchema())
	if err != nil {
		return nil, fmt.Errorf("marshal report schema v%d: %w", version, err)
	}
	id := "inmemory://report/v" + strconv.Itoa(version)
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft7
	compiler.AssertFormat = true
	if err := compiler.AddResource(id, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("add report schema v%d: %w", version, err)
	}
	s, err := compiler.Compile(id)
	if err != nil {
		return nil, fmt.Errorf("compile report schema v%d: %w", version, err)
	}
	compiled.byVersion[version] = s
	return s, nil
}

// describe maps the leaf validation errors back onto field names and the
// rule table's type names.
func describe(rules Version, root *jsonschema.ValidationError) []string {
	seen := map[string]struct{}{}
	var out []string
	var walk func(*jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) > 0 {
			for _, c := range e.Causes {
				walk(c)
			}
			return
		}
		msg := violation(rules, pointer(e.InstanceLocation))
		if _, dup := seen[msg]; dup {
			return
		}
		seen[msg] = struct{}{}
		out = append(out, msg)
	}
	walk(root)
	sort.Strings(out)
	return out
}

func violation(rules Version, segs []string) string {
	switch {
	case len(segs) == 0:
		return "report should be a map"
	case segs[0] == EventsKey && len(segs) == 1:
		return fmt.Sprintf("`%s` should be %s", EventsKey, Events.Name)
	case segs[0] == EventsKey && len(segs) == 2:
		return fmt.Sprintf("%s[%s] should be a ResourceEvent map", EventsKey, segs[1])
	case segs[0] == EventsKey:
		field := segs[2]
		return fmt.Sprintf("%s[%s]: `%s` should be %s", EventsKey, segs[1], field, typeName(rules.EventFields, field))
	default:
		return fmt.Sprintf("`%s` should be %s", segs[0], typeName(rules.Fields, segs[0]))
	}
}

func typeName(fields map[string]FieldType, field string) string {
	if ft, ok := fields[field]; ok {
		return ft.Name
	}
	return "valid"
}

// pointer splits a JSON pointer into unescaped segments.
func pointer(loc string) []string {
	loc = strings.TrimPrefix(loc, "#")
	loc = strings.TrimPrefix(loc, "/")
	if loc == "" {
		return nil
	}
	parts := strings.Split(loc, "/")
	for i, p := range parts {
		p = strings.ReplaceAll(p, "~1", "/")
		parts[i] = strings.ReplaceAll(p, "~0", "~")
	}
	return parts
}
