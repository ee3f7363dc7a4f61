package logging

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/valyala/bytebufferpool"
)

// TimeFormat is the timestamp layout of console log lines.
const TimeFormat = "2006-01-02 15:04:05"

// lineHandler writes one human-readable line per record:
//
//	[2006-01-02 15:04:05] INFO component: message key=value ...
//
// Attributes bound with WithAttrs are rendered once and reused.
type lineHandler struct {
	out        *lockedWriter
	level      slog.Leveler
	withSource bool

	component string
	bound     []byte // pre-rendered " key=value" pairs
	prefix    string // open group path, dot terminated
}

type lockedWriter struct {
	sync.Mutex
	w io.Writer
}

func newPrettyHandler(w io.Writer, level slog.Leveler, withSource bool) slog.Handler {
	return &lineHandler{out: &lockedWriter{w: w}, level: level, withSource: withSource}
}

func (h *lineHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *lineHandler) Handle(_ context.Context, r slog.Record) error {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	component := h.component
	var fields []byte
	r.Attrs(func(a slog.Attr) bool {
		if h.prefix == "" && a.Key == FieldComponent {
			if component == "" {
				component = a.Value.String()
			}
			return true
		}
		fields = appendAttr(fields, h.prefix, a)
		return true
	})

	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	buf.B = append(buf.B, '[')
	buf.B = ts.AppendFormat(buf.B, TimeFormat)
	buf.B = append(buf.B, "] "...)
	buf.B = append(buf.B, levelLabel(r.Level)...)
	buf.B = append(buf.B, ' ')
	if component != "" {
		buf.B = append(buf.B, component...)
		buf.B = append(buf.B, ": "...)
	}
	msg := strings.TrimSpace(r.Message)
	if msg == "" {
		msg = "(no message)"
	}
	buf.B = append(buf.B, msg...)
	if h.withSource && r.PC != 0 {
		if src := r.Source(); src != nil {
			buf.B = append(buf.B, " ["...)
			buf.B = append(buf.B, filepath.Base(src.File)...)
			buf.B = append(buf.B, ':')
			buf.B = strconv.AppendInt(buf.B, int64(src.Line), 10)
			buf.B = append(buf.B, ']')
		}
	}
	buf.B = append(buf.B, h.bound...)
	buf.B = append(buf.B, fields...)
	buf.B = append(buf.B, '\n')

	h.out.Lock()
	defer h.out.Unlock()
	_, err := h.out.w.Write(buf.B)
	return err
}

func (h *lineHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.bound = append([]byte(nil), h.bound...)
	for _, a := range attrs {
		if h.prefix == "" && a.Key == FieldComponent {
			if next.component == "" {
				next.component = a.Value.String()
			}
			continue
		}
		next.bound = appendAttr(next.bound, h.prefix, a)
	}
	return &next
}

func (h *lineHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = h.prefix + name + "."
	return &next
}

// appendAttr renders a as " key=value", flattening groups into dotted keys.
func appendAttr(dst []byte, prefix string, a slog.Attr) []byte {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return dst
	}
	a = redact(a)
	if a.Value.Kind() == slog.KindGroup {
		if a.Key != "" {
			prefix += a.Key + "."
		}
		for _, child := range a.Value.Group() {
			dst = appendAttr(dst, prefix, child)
		}
		return dst
	}
	dst = append(dst, ' ')
	dst = append(dst, prefix...)
	dst = append(dst, a.Key...)
	dst = append(dst, '=')
	return appendValue(dst, a.Value)
}

func appendValue(dst []byte, v slog.Value) []byte {
	var s string
	switch v.Kind() {
	case slog.KindTime:
		return v.Time().AppendFormat(dst, time.RFC3339)
	case slog.KindString:
		s = v.String()
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			s = err.Error()
		} else {
			s = v.String()
		}
	default:
		return append(dst, v.String()...)
	}
	if s == "" || strings.IndexFunc(s, needsQuote) >= 0 {
		return strconv.AppendQuote(dst, s)
	}
	return append(dst, s...)
}

func needsQuote(r rune) bool {
	return unicode.IsSpace(r) || r == '=' || r == '"' || !unicode.IsPrint(r)
}

func levelLabel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN"
	case level >= slog.LevelInfo:
		return "INFO"
	}
	return "DEBUG"
}
