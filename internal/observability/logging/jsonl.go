package logging

import (
	"context"
	"encoding/json"
	"io"
	"runtime"
	"sync"
	"time"

	"github.com/leppikallio/pai-opencode/internal/observability"
	"github.com/leppikallio/pai-opencode/internal/version"
)

const SchemaVersion = "1.0"

// EventPrefix namespaces every event name.
const EventPrefix = "skillvet."

type jsonlLogger struct {
	writer   io.Writer
	closer   io.Closer
	minLevel int
	mu       sync.Mutex
}

type logEntry struct {
	Timestamp     string         `json:"ts"`
	Level         string         `json:"level"`
	Event         string         `json:"event,omitempty"`
	Component     string         `json:"component"`
	OpID          string         `json:"op_id"`
	SchemaVersion string         `json:"schema_version"`
	ToolVersion   string         `json:"skillvet_version,omitempty"`
	GoVersion     string         `json:"go_version,omitempty"`
	Message       string         `json:"msg,omitempty"`
	Fields        map[string]any `json:"fields,omitempty"`
}

func newEntry(level, component string) logEntry {
	return logEntry{
		Timestamp:     time.Now().UTC().Format(time.RFC3339Nano),
		Level:         level,
		Component:     component,
		SchemaVersion: SchemaVersion,
		ToolVersion:   version.BuildVersion(),
		GoVersion:     runtime.Version(),
	}
}

func (j *jsonlLogger) log(level, component, msg string, fields ...any) {
	if levelPriority(level) < j.minLevel {
		return
	}

	entry := newEntry(level, component)
	entry.Message = msg
	if len(fields) > 1 {
		entry.Fields = make(map[string]any, len(fields)/2)
		for i := 0; i+1 < len(fields); i += 2 {
			if key, ok := fields[i].(string); ok {
				entry.Fields[key] = fields[i+1]
			}
		}
	}
	j.writeEntry(entry)
}

// Event writes a lifecycle event. A "level" key in fields overrides the
// default info level and is removed from the payload.
func (j *jsonlLogger) Event(ctx context.Context, event string, fields map[string]any) {
	level := LevelInfo
	if lv, ok := fields["level"].(string); ok {
		level = lv
		trimmed := make(map[string]any, len(fields))
		for k, v := range fields {
			if k != "level" {
				trimmed[k] = v
			}
		}
		fields = trimmed
	}
	if levelPriority(level) < j.minLevel {
		return
	}

	entry := newEntry(level, "cli")
	entry.Event = EventPrefix + event
	entry.OpID = observability.OpID(ctx)
	if len(fields) > 0 {
		entry.Fields = fields
	}
	j.writeEntry(entry)
}

func (j *jsonlLogger) writeEntry(entry logEntry) {
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	data = append(data, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()
	_, _ = j.writer.Write(data)
}

func (j *jsonlLogger) Debug(component, msg string, fields ...any) {
	j.log(LevelDebug, component, msg, fields...)
}

func (j *jsonlLogger) Info(component, msg string, fields ...any) {
	j.log(LevelInfo, component, msg, fields...)
}

func (j *jsonlLogger) Warn(component, msg string, fields ...any) {
	j.log(LevelWarn, component, msg, fields...)
}

func (j *jsonlLogger) Error(component, msg string, fields ...any) {
	j.log(LevelError, component, msg, fields...)
}

func (j *jsonlLogger) Close() error {
	if j.closer != nil {
		return j.closer.Close()
	}
	return nil
}
