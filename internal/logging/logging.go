// ABOUTME: slog logger construction from the logging config section
// ABOUTME: JSON output, or a colorized terminal handler that tags lines by component

package logging

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/fatih/color"
)

// ParseLevel maps a config level name to a slog.Level. Unknown names map to Info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New returns a logger writing to w. Format "json" selects slog's JSON handler,
// anything else the colorized text handler.
func New(level, format string, w io.Writer) *slog.Logger {
	lvl := ParseLevel(level)

	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
	}

	return slog.New(&colorHandler{
		mu:    &sync.Mutex{},
		out:   w,
		level: lvl,
	})
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// colorHandler writes one line per record: time, level, an optional
// [component] tag, the message, then key=value pairs. Attrs bound with
// WithAttrs are rendered once, when they are bound.
type colorHandler struct {
	mu        *sync.Mutex
	out       io.Writer
	level     slog.Level
	component string
	bound     string // pre-rendered " key=value" pairs
	prefix    string // open groups joined with "."
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	var buf strings.Builder

	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))
	buf.WriteString(levelTag(r.Level))

	component := h.component
	var rest strings.Builder
	r.Attrs(func(a slog.Attr) bool {
		if h.prefix == "" && a.Key == "component" {
			component = a.Value.String()
			return true
		}
		writeAttr(&rest, h.prefix, a)
		return true
	})

	if component != "" {
		buf.WriteString(color.BlueString("[" + component + "] "))
	}
	buf.WriteString(r.Message)
	buf.WriteString(h.bound)
	buf.WriteString(rest.String())
	buf.WriteString("\n")

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.out, buf.String())
	return err
}

func levelTag(l slog.Level) string {
	switch {
	case l >= slog.LevelError:
		return color.New(color.FgRed, color.Bold).Sprint("ERR ")
	case l >= slog.LevelWarn:
		return color.YellowString("WRN ")
	case l >= slog.LevelInfo:
		return color.CyanString("INF ")
	default:
		return color.MagentaString("DBG ")
	}
}

// writeAttr renders a as " key=value". Groups flatten into dotted keys and
// values containing spaces are quoted.
func writeAttr(buf *strings.Builder, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		p := prefix
		if a.Key != "" {
			p = prefix + a.Key + "."
		}
		for _, ga := range a.Value.Group() {
			writeAttr(buf, p, ga)
		}
		return
	}

	v := a.Value.String()
	if strings.ContainsAny(v, " \t\n\"") {
		v = strconv.Quote(v)
	}
	buf.WriteString(color.HiBlackString(" " + prefix + a.Key + "="))
	buf.WriteString(v)
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	var buf strings.Builder
	for _, a := range attrs {
		if h.prefix == "" && a.Key == "component" {
			next.component = a.Value.String()
			continue
		}
		writeAttr(&buf, h.prefix, a)
	}
	next.bound = h.bound + buf.String()
	return &next
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = h.prefix + name + "."
	return &next
}
