// Package genlog implements the generation log: a list of timestamped,
// tagged entries grouped under section headers, intended for human review
// and surfacing in host UIs (spec.md §6 "Log format"). A failed generation
// still preserves and exports its log in full (spec.md §7).
package genlog

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Tag is one of the entry kinds the log format requires.
type Tag string

const (
	TagInfo   Tag = "info"
	TagWarn   Tag = "warn"
	TagError  Tag = "error"
	TagOK     Tag = "ok"
	TagDetail Tag = "detail"
)

// Record is one captured log line.
type Record struct {
	Time    time.Time
	Section string
	Tag     Tag
	Message string
	Fields  map[string]any
}

// captureHook appends every fired logrus entry onto the owning Log's
// record list, translating the entry's "tag" field (or level, if none was
// set explicitly) and the log's current section into a Record.
type captureHook struct{ log *Log }

func (h captureHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h captureHook) Fire(e *logrus.Entry) error {
	tag, _ := e.Data["tag"].(Tag)
	if tag == "" {
		tag = tagFromLevel(e.Level)
	}
	h.log.mu.Lock()
	h.log.records = append(h.log.records, Record{
		Time:    e.Time,
		Section: h.log.section,
		Tag:     tag,
		Message: e.Message,
		Fields:  stripTag(e.Data),
	})
	h.log.mu.Unlock()
	return nil
}

func tagFromLevel(l logrus.Level) Tag {
	switch l {
	case logrus.ErrorLevel, logrus.FatalLevel, logrus.PanicLevel:
		return TagError
	case logrus.WarnLevel:
		return TagWarn
	default:
		return TagInfo
	}
}

func stripTag(data logrus.Fields) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		if k == "tag" {
			continue
		}
		out[k] = v
	}
	return out
}

// Log is the generation log. The zero value is not usable; build one with
// New.
type Log struct {
	mu      sync.Mutex
	section string
	records []Record
	logger  *logrus.Logger
}

// New returns an empty generation log. The underlying logrus.Logger writes
// nowhere directly — entry capture happens entirely through the hook, and
// Export renders the captured records on demand.
func New() *Log {
	l := &Log{}
	base := logrus.New()
	base.SetOutput(io.Discard)
	base.SetLevel(logrus.TraceLevel)
	base.AddHook(captureHook{log: l})
	l.logger = base
	return l
}

// Section starts a new named section header; subsequent entries are
// grouped under it until the next Section call.
func (l *Log) Section(name string) {
	l.mu.Lock()
	l.section = name
	l.mu.Unlock()
}

func (l *Log) Info(msg string, kv ...any)   { l.emit(TagInfo, msg, kv) }
func (l *Log) Warn(msg string, kv ...any)   { l.emit(TagWarn, msg, kv) }
func (l *Log) Error(msg string, kv ...any)  { l.emit(TagError, msg, kv) }
func (l *Log) OK(msg string, kv ...any)     { l.emit(TagOK, msg, kv) }
func (l *Log) Detail(msg string, kv ...any) { l.emit(TagDetail, msg, kv) }

func (l *Log) emit(tag Tag, msg string, kv []any) {
	fields := logrus.Fields{"tag": tag}
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok || key == "" {
			continue
		}
		fields[key] = kv[i+1]
	}
	entry := l.logger.WithFields(fields)
	switch tag {
	case TagError:
		entry.Error(msg)
	case TagWarn:
		entry.Warn(msg)
	default:
		entry.Info(msg)
	}
}

// Records returns a snapshot of the captured entries in emission order.
func (l *Log) Records() []Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Record, len(l.records))
	copy(out, l.records)
	return out
}

// HasError reports whether any error-tagged entry was recorded.
func (l *Log) HasError() bool {
	for _, r := range l.Records() {
		if r.Tag == TagError {
			return true
		}
	}
	return false
}

// Export renders the log as timestamped lines grouped under section
// headers with key-value tables, per spec.md §6's human-review log
// format.
func (l *Log) Export() string {
	records := l.Records()
	var b strings.Builder
	section := ""
	first := true
	for _, r := range records {
		if r.Section != section || first {
			section = r.Section
			first = false
			if section != "" {
				fmt.Fprintf(&b, "== %s ==\n", section)
			}
		}
		fmt.Fprintf(&b, "[%s] %-6s %s", r.Time.Format(time.RFC3339), strings.ToUpper(string(r.Tag)), r.Message)
		if len(r.Fields) > 0 {
			keys := make([]string, 0, len(r.Fields))
			for k := range r.Fields {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(&b, " %s=%v", k, r.Fields[k])
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}
