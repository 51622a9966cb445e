// Package logging writes component-prefixed key/value log lines. Set
// CORDUM_LOG_FORMAT=json to emit one JSON object per line instead.
package logging

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
)

const envLogFormat = "CORDUM_LOG_FORMAT"

var (
	logFormatOnce sync.Once
	logAsJSON     bool
)

// Info logs a message with key/value fields using a consistent prefix.
func Info(component, msg string, kv ...interface{}) {
	write("INFO", component, msg, kv...)
}

// Warn logs a condition that does not stop the current operation.
func Warn(component, msg string, kv ...interface{}) {
	write("WARN", component, msg, kv...)
}

// Error logs an error message with key/value fields using a consistent prefix.
func Error(component, msg string, kv ...interface{}) {
	write("ERROR", component, msg, kv...)
}

func write(level, component, msg string, kv ...interface{}) {
	if jsonEnabled() {
		log.Print(formatJSON(level, component, msg, kv...))
		return
	}
	prefix := ""
	if level != "INFO" {
		prefix = level + " "
	}
	log.Printf("[%s] %s%s%s", strings.ToUpper(component), prefix, msg, formatFields(kv...))
}

func jsonEnabled() bool {
	logFormatOnce.Do(func() {
		logAsJSON = strings.EqualFold(strings.TrimSpace(os.Getenv(envLogFormat)), "json")
	})
	return logAsJSON
}

func formatJSON(level, component, msg string, kv ...interface{}) string {
	payload := map[string]any{
		"level":     level,
		"component": component,
		"msg":       msg,
	}
	if len(kv)%2 != 0 {
		kv = append(kv, "(missing)")
	}
	for i := 0; i < len(kv); i += 2 {
		key := strings.TrimSpace(toString(kv[i]))
		switch key {
		case "level", "component", "msg":
			key = "field." + key
		}
		payload[key] = jsonValue(kv[i+1])
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf(`{"level":%q,"component":%q,"msg":%q}`, level, component, msg)
	}
	return string(data)
}

func jsonValue(v interface{}) interface{} {
	switch t := v.(type) {
	case error:
		return t.Error()
	case []byte:
		return string(t)
	case fmt.Stringer:
		return t.String()
	default:
		return v
	}
}

func formatFields(kv ...interface{}) string {
	if len(kv) == 0 {
		return ""
	}
	if len(kv)%2 != 0 {
		kv = append(kv, "(missing)")
	}
	var b strings.Builder
	b.WriteString(" ")
	for i := 0; i < len(kv); i += 2 {
		if i > 0 {
			b.WriteString(" ")
		}
		key := kv[i]
		val := kv[i+1]
		b.WriteString(strings.TrimSpace(toString(key)))
		b.WriteString("=")
		b.WriteString(toString(val))
	}
	return b.String()
}

func toString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return flatten(string(t))
	default:
		return flatten(fmt.Sprintf("%v", t))
	}
}

func flatten(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(strings.ReplaceAll(strings.TrimSpace(s), "\n", " "), "\t", " "))
}
