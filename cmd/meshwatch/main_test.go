// ABOUTME: Tests for pipeline assembly, source format selection and logger output
// ABOUTME: Writes recordings to t.TempDir and replays them end to end

package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/meshwatch/internal/capture"
	"github.com/2389/meshwatch/internal/config"
	"github.com/2389/meshwatch/internal/dispatch"
	"github.com/2389/meshwatch/internal/rawevent"
	"github.com/2389/meshwatch/internal/replay"
	"github.com/2389/meshwatch/internal/store"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func textFrame(t *testing.T, text string, from, id int64) replay.Frame {
	t.Helper()
	f, err := replay.NewFrame(dispatch.FirehoseEvent, rawevent.MustFromAny(map[string]any{
		"packet": map[string]any{
			"from":    from,
			"id":      id,
			"decoded": map[string]any{"portnum": "TEXT_MESSAGE_APP", "text": text},
		},
	}))
	require.NoError(t, err)
	return f
}

func writeRecording(t *testing.T, frames ...replay.Frame) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "session.jsonl")
	var buf bytes.Buffer
	require.NoError(t, replay.WriteJSONL(&buf, frames...))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func TestOpenReader_NoPath(t *testing.T) {
	_, _, err := openReader("", config.FormatJSONL)
	assert.Error(t, err)
}

func TestPipeline_ReplaysJSONL(t *testing.T) {
	path := writeRecording(t,
		textFrame(t, "first", 0x10, 1),
		textFrame(t, "second", 0x20, 2),
	)

	cfg := config.Default()
	p := newPipeline(cfg, quietLogger())
	defer p.close()
	p.attach(context.Background(), nil)

	reader, closer, err := openReader(path, cfg.Source.Format)
	require.NoError(t, err)
	defer closer.Close()

	stats, err := p.run(context.Background(), reader)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Delivered)

	texts := p.store.Texts()
	require.Len(t, texts, 2)
	assert.Equal(t, "second", texts[0].Text)
	assert.Len(t, p.store.Nodes(), 2)
	assert.False(t, p.store.Connected(), "disconnected once the recording ends")
}

func TestPipeline_DedupeFromConfig(t *testing.T) {
	path := writeRecording(t,
		textFrame(t, "once", 0x10, 9),
		textFrame(t, "once", 0x10, 9),
	)

	cfg := config.Default()
	cfg.Dedupe.Enabled = true
	cfg.Dedupe.TTL = time.Minute
	p := newPipeline(cfg, quietLogger())
	defer p.close()
	p.attach(context.Background(), nil)

	reader, closer, err := openReader(path, config.FormatJSONL)
	require.NoError(t, err)
	defer closer.Close()

	_, err = p.run(context.Background(), reader)
	require.NoError(t, err)
	assert.Len(t, p.store.Texts(), 1)
}

func TestPipeline_RecordsAndReplaysCapture(t *testing.T) {
	ctx := context.Background()
	path := writeRecording(t, textFrame(t, "captured", 0x10, 1))
	dbPath := filepath.Join(t.TempDir(), "frames.db")

	rec, err := capture.Open(dbPath)
	require.NoError(t, err)

	p := newPipeline(config.Default(), quietLogger())
	p.attach(ctx, rec)
	reader, closer, err := openReader(path, config.FormatJSONL)
	require.NoError(t, err)
	_, err = p.run(ctx, reader)
	require.NoError(t, err)
	closer.Close()
	p.close()

	n, err := rec.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.NoError(t, rec.Close())

	// The .db extension selects the capture format.
	p2 := newPipeline(config.Default(), quietLogger())
	defer p2.close()
	p2.attach(ctx, nil)
	reader, closer, err = openReader(dbPath, config.FormatJSONL)
	require.NoError(t, err)
	defer closer.Close()

	_, err = p2.run(ctx, reader)
	require.NoError(t, err)
	texts := p2.store.Texts()
	require.Len(t, texts, 1)
	assert.Equal(t, "captured", texts[0].Text)
}

func TestNewLogger_Text(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(config.LoggingConfig{Level: "warn"}, &buf)

	logger.Info("hidden")
	logger.With("component", "store").Warn("kept", "count", 3)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "kept")
	assert.Contains(t, out, "component=")
	assert.Contains(t, out, "count=")
}

func TestNewLogger_Groups(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(config.LoggingConfig{Level: "info"}, &buf)

	logger.WithGroup("replay").With("file", "a.jsonl").Info("done", "frames", 2)

	out := buf.String()
	assert.Contains(t, out, "replay.file=")
	assert.Contains(t, out, "replay.frames=")
	assert.Equal(t, 1, strings.Count(out, "\n"))
}

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(config.LoggingConfig{Level: "debug", Format: "json"}, &buf)

	logger.Debug("decoded", "category", "text")

	assert.Contains(t, buf.String(), `"msg":"decoded"`)
	assert.Contains(t, buf.String(), `"category":"text"`)
}

func TestNodeDetail(t *testing.T) {
	name, short, hw := "Base", "BS", "HELTEC_V3"
	p := newPipeline(config.Default(), quietLogger())
	defer p.close()
	p.store.SeeNode(0x10, store.NodePatch{Name: &name, ShortName: &short, HwModel: &hw})

	n, ok := p.store.Node(0x10)
	require.True(t, ok)
	assert.Equal(t, "Base (BS) HELTEC_V3", nodeDetail(n))
}
