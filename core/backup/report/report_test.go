package report

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
)

func validEvent() map[string]any {
	return map[string]any{
		"containment-path": []any{"Stage[main]", "Foo", "File[/etc/motd]"},
		"file":             "/etc/puppet/manifests/site.pp",
		"line":             json.Number("12"),
		"message":          "content changed",
		"new-value":        "{md5}abc",
		"old-value":        "{md5}def",
		"property":         "content",
		"resource-title":   "/etc/motd",
		"resource-type":    "File",
		"status":           "success",
		"timestamp":        "2026-10-01T10:00:01Z",
	}
}

func validReport() Report {
	return Report{
		"certname":              "node1.example.com",
		"configuration-version": "1696154400",
		"end-time":              "2026-10-01T10:00:05Z",
		"environment":           "production",
		"puppet-version":        "8.3.0",
		"report-format":         json.Number("12"),
		"resource-events":       []any{validEvent()},
		"start-time":            "2026-10-01T10:00:00Z",
		"status":                "changed",
		"transaction-uuid":      "c6b3c9a4-8a0d-4c39-9f57-2ad43e9b1f0b",
	}
}

func schemaError(t *testing.T, err error) *SchemaError {
	t.Helper()
	var serr *SchemaError
	if !errors.As(err, &serr) {
		t.Fatalf("expected *SchemaError, got %v", err)
	}
	return serr
}

func TestValidateIdentityOnSuccess(t *testing.T) {
	for _, version := range Versions() {
		r := validReport()
		got, err := Validate(version, r)
		if err != nil {
			t.Fatalf("v%d: unexpected error: %v", version, err)
		}
		if reflect.ValueOf(got).Pointer() != reflect.ValueOf(r).Pointer() || !reflect.DeepEqual(got, r) {
			t.Fatalf("v%d: expected the input report back", version)
		}
	}
}

func TestValidateAcceptsGoValues(t *testing.T) {
	r := validReport()
	event := validEvent()
	event["containment-path"] = []string{"Stage[main]"}
	event["line"] = 7
	event["file"] = nil
	r["resource-events"] = []map[string]any{event}
	if _, err := Validate(LatestVersion, r); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateMissingKeys(t *testing.T) {
	r := validReport()
	delete(r, "certname")
	delete(r, "end-time")
	_, err := Validate(LatestVersion, r)
	serr := schemaError(t, err)
	if serr.Error() != "report is missing keys: certname, end-time" {
		t.Fatalf("unexpected message: %s", serr.Error())
	}
}

func TestValidateMissingKeyPerVersion(t *testing.T) {
	r := validReport()
	delete(r, "environment")
	if _, err := Validate(4, r); err != nil {
		t.Fatalf("v4 does not require environment: %v", err)
	}
	_, err := Validate(5, r)
	if !strings.Contains(schemaError(t, err).Error(), "environment") {
		t.Fatalf("expected environment in error: %v", err)
	}
}

func TestValidateBadTimestamp(t *testing.T) {
	for _, bad := range []any{"yesterday", json.Number("1696154400"), nil} {
		r := validReport()
		event := validEvent()
		event["timestamp"] = bad
		r["resource-events"] = []any{validEvent(), event}
		_, err := Validate(LatestVersion, r)
		msg := schemaError(t, err).Error()
		if msg != "resource-events[1]: `timestamp` should be Datetime" {
			t.Fatalf("timestamp %v: unexpected message %q", bad, msg)
		}
	}
}

func TestValidateCollectsEveryViolation(t *testing.T) {
	r := validReport()
	r["start-time"] = "noon"
	r["status"] = "exploded"
	event := validEvent()
	event["line"] = "twelve"
	event["containment-path"] = []any{"Stage[main]", 3}
	delete(event, "message")
	r["resource-events"] = []any{event}

	_, err := Validate(LatestVersion, r)
	serr := schemaError(t, err)
	want := []string{
		"resource-events[0] is missing keys: message",
		"`start-time` should be Datetime",
		"`status` should be one of changed, failed, unchanged",
		"resource-events[0]: `containment-path` should be [String] or nil",
		"resource-events[0]: `line` should be Integer or nil",
	}
	for _, w := range want {
		found := false
		for _, v := range serr.Violations {
			if v == w {
				found = true
			}
		}
		if !found {
			t.Fatalf("missing violation %q in %v", w, serr.Violations)
		}
	}
	if len(serr.Violations) != len(want) {
		t.Fatalf("unexpected violations: %v", serr.Violations)
	}
}

func TestValidateEventStatusEnum(t *testing.T) {
	r := validReport()
	event := validEvent()
	event["status"] = "changed"
	r["resource-events"] = []any{event}
	_, err := Validate(3, r)
	msg := schemaError(t, err).Error()
	if msg != "resource-events[0]: `status` should be one of failure, noop, skipped, success" {
		t.Fatalf("unexpected message %q", msg)
	}
}

func TestValidateUnknownKeysAllowed(t *testing.T) {
	r := validReport()
	r["producer"] = "puppetserver"
	event := validEvent()
	event["corrective_change"] = false
	r["resource-events"] = []any{event}
	if _, err := Validate(LatestVersion, r); err != nil {
		t.Fatalf("unknown keys should validate: %v", err)
	}
}

func TestValidateUnsupportedVersion(t *testing.T) {
	_, err := Validate(99, validReport())
	if !strings.Contains(schemaError(t, err).Error(), "unsupported report schema version 99") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateJSON(t *testing.T) {
	data, err := json.Marshal(validReport())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if _, err := ValidateJSON(LatestVersion, data); err != nil {
		t.Fatalf("validate json: %v", err)
	}
	if _, err := ValidateJSON(LatestVersion, []byte("[1]")); err == nil {
		t.Fatalf("expected error for non-object report")
	}
}

func TestSanitizeEventsRestricts(t *testing.T) {
	event := validEvent()
	event["corrective_change"] = true
	event["extra"] = map[string]any{"nested": 1}
	got := SanitizeEvents([]map[string]any{event})
	want := []map[string]any{validEvent()}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected sanitized events: %#v", got)
	}
	if _, ok := event["extra"]; !ok {
		t.Fatalf("input event must not be modified")
	}
	again := SanitizeEvents(got)
	if !reflect.DeepEqual(again, got) {
		t.Fatalf("sanitize is not idempotent")
	}
}

func TestSanitizeKeepsPartialSubset(t *testing.T) {
	in := map[string]any{"status": "noop", "message": nil, "bogus": 1}
	got := SanitizeEvent(in)
	want := map[string]any{"status": "noop", "message": nil}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected event: %#v", got)
	}
}

func TestSanitizeReport(t *testing.T) {
	r := validReport()
	r["producer"] = "puppetserver"
	event := validEvent()
	event["corrective_change"] = false
	r["resource-events"] = []any{event}

	got := SanitizeReport(r)
	if got["producer"] != "puppetserver" || got["certname"] != r["certname"] {
		t.Fatalf("top-level fields must be untouched: %#v", got)
	}
	events := got["resource-events"].([]any)
	if _, ok := events[0].(map[string]any)["corrective_change"]; ok {
		t.Fatalf("unknown event field survived sanitization")
	}

	clean := validReport()
	if !reflect.DeepEqual(SanitizeReport(clean), clean) {
		t.Fatalf("sanitize must be a no-op on clean reports")
	}
	if got := SanitizeReport(Report{"certname": "x"}); !reflect.DeepEqual(got, Report{"certname": "x"}) {
		t.Fatalf("report without events should be returned as is")
	}
}

func TestSanitizeReportGoEvents(t *testing.T) {
	r := validReport()
	event := validEvent()
	event["corrective_change"] = true
	r["resource-events"] = []map[string]any{event}

	got := SanitizeReport(r)
	events, ok := got["resource-events"].([]map[string]any)
	if !ok {
		t.Fatalf("unexpected events type %T", got["resource-events"])
	}
	if !reflect.DeepEqual(events, []map[string]any{validEvent()}) {
		t.Fatalf("unknown event field survived sanitization: %#v", events)
	}
	if _, ok := event["corrective_change"]; !ok {
		t.Fatalf("input event must not be modified")
	}
	if _, err := Validate(LatestVersion, got); err != nil {
		t.Fatalf("sanitized report should validate: %v", err)
	}
}

func TestSanitizeJSON(t *testing.T) {
	in := []byte(`{"certname":"n1","report-format":12,"resource-events":[{"status":"success","line":9007199254740993,"x":1}],"keep":{"a":1}}`)
	out, err := SanitizeJSON(in)
	if err != nil {
		t.Fatalf("sanitize json: %v", err)
	}
	want := `{"certname":"n1","keep":{"a":1},"report-format":12,"resource-events":[{"line":9007199254740993,"status":"success"}]}`
	if string(out) != want {
		t.Fatalf("unexpected output:\n got %s\nwant %s", out, want)
	}
	if _, err := SanitizeJSON([]byte(`{"a":`)); err == nil {
		t.Fatalf("expected error for malformed json")
	}
	if _, err := SanitizeJSON([]byte(`null`)); err == nil {
		t.Fatalf("expected error for null report")
	}
}

func TestEnumNameSorted(t *testing.T) {
	if got := Enum("b", "a").Name; got != "one of a, b" {
		t.Fatalf("unexpected enum name %q", got)
	}
}
