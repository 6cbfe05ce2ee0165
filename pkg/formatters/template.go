package formatters

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/relaylog/relay/pkg/types"
)

// Formatter renders a Record into the bytes a sink writes, by substituting
// placeholders in a template string. Recognized placeholders are
// {timestamp}, {level}, {target}, {file}, {line}, {module}, {message} and
// {fields}. Unrecognized placeholders are left untouched.
type Formatter struct {
	cfg   FormatConfig
	parts []part
}

type part struct {
	literal     string
	placeholder string
}

// New compiles cfg.Template into a Formatter. Compiling once and reusing the
// Formatter avoids re-scanning the template on every record.
func New(cfg FormatConfig) *Formatter {
	if cfg.Template == "" {
		cfg.Template = DefaultTemplate
	}
	if cfg.TimestampFormat == "" {
		cfg.TimestampFormat = DefaultTimestampFormat
	}
	if cfg.TimeZone == nil {
		cfg.TimeZone = time.UTC
	}
	return &Formatter{cfg: cfg, parts: compile(cfg.Template)}
}

func compile(template string) []part {
	var parts []part
	rest := template
	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			parts = append(parts, part{literal: rest})
			break
		}
		close := strings.IndexByte(rest[open:], '}')
		if close < 0 {
			parts = append(parts, part{literal: rest})
			break
		}
		close += open
		if open > 0 {
			parts = append(parts, part{literal: rest[:open]})
		}
		parts = append(parts, part{placeholder: rest[open+1 : close]})
		rest = rest[close+1:]
	}
	return parts
}

// Format renders r as a single line, terminated with a newline, according
// to the Formatter's compiled template.
func (f *Formatter) Format(r *types.Record) []byte {
	var b strings.Builder
	for _, p := range f.parts {
		if p.placeholder == "" {
			b.WriteString(p.literal)
			continue
		}
		b.WriteString(f.substitute(r, p.placeholder))
	}
	b.WriteByte('\n')
	return []byte(b.String())
}

func (f *Formatter) substitute(r *types.Record, name string) string {
	switch name {
	case "timestamp":
		return r.Time.In(f.cfg.TimeZone).Format(f.cfg.TimestampFormat)
	case "level":
		return f.cfg.Colors.wrap(r.Level, f.levelLabel(r.Level))
	case "target":
		return r.Target
	case "module":
		return r.Module
	case "message":
		return r.Message
	case "file":
		if !r.HasFile() {
			return ""
		}
		return r.File
	case "line":
		if !r.HasFile() {
			return ""
		}
		return strconv.Itoa(r.Line)
	case "fields":
		return formatFields(r.Fields)
	default:
		return "{" + name + "}"
	}
}

func (f *Formatter) levelLabel(l types.Level) string {
	switch l {
	case types.LevelTrace:
		return f.cfg.Levels.Trace
	case types.LevelDebug:
		return f.cfg.Levels.Debug
	case types.LevelInfo:
		return f.cfg.Levels.Info
	case types.LevelWarn:
		return f.cfg.Levels.Warn
	case types.LevelError:
		return f.cfg.Levels.Error
	default:
		return l.String()
	}
}

func formatFields(fields map[string]any) string {
	if len(fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sortStrings(keys)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(formatValue(fields[k]))
	}
	return b.String()
}

func formatValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case error:
		return t.Error()
	default:
		return fmt.Sprint(t)
	}
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
