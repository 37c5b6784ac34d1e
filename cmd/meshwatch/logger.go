// ABOUTME: Logger setup for the meshwatch CLI
// ABOUTME: Colorized text output for terminals, JSON for everything else

package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/2389/meshwatch/internal/config"
)

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	return newLogger(cfg, os.Stderr)
}

func newLogger(cfg config.LoggingConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = &colorHandler{
			mu:    &sync.Mutex{},
			out:   w,
			level: level,
		}
	}

	return slog.New(handler)
}

// levelTags are the colored level prefixes, padded to the same width.
var levelTags = map[slog.Level]string{
	slog.LevelDebug: color.MagentaString("DBG "),
	slog.LevelInfo:  color.CyanString("INF "),
	slog.LevelWarn:  color.YellowString("WRN "),
	slog.LevelError: color.New(color.FgRed, color.Bold).Sprint("ERR "),
}

// colorHandler writes one colorized line per record. Handlers derived with
// WithAttrs or WithGroup share the parent's lock and writer.
type colorHandler struct {
	mu     *sync.Mutex
	out    io.Writer
	level  slog.Level
	attrs  string // preformatted, already group-qualified
	prefix string // group path for record attrs, "a.b." or ""
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	var buf strings.Builder
	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))
	if tag, ok := levelTags[r.Level]; ok {
		buf.WriteString(tag)
	} else {
		buf.WriteString("??? ")
	}
	buf.WriteString(r.Message)
	buf.WriteString(h.attrs)
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&buf, h.prefix, a)
		return true
	})
	buf.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.out, buf.String())
	return err
}

func writeAttr(buf *strings.Builder, prefix string, a slog.Attr) {
	buf.WriteString(color.HiBlackString(" " + prefix + a.Key + "="))
	buf.WriteString(a.Value.String())
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	var buf strings.Builder
	buf.WriteString(h.attrs)
	for _, a := range attrs {
		writeAttr(&buf, h.prefix, a)
	}
	c := *h
	c.attrs = buf.String()
	return &c
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := *h
	c.prefix = h.prefix + name + "."
	return &c
}
