// ABOUTME: Assembles the store, dispatcher and replay source from configuration
// ABOUTME: Opens the configured frame reader for JSONL files or capture databases

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/2389/meshwatch/internal/broadcast"
	"github.com/2389/meshwatch/internal/capture"
	"github.com/2389/meshwatch/internal/config"
	"github.com/2389/meshwatch/internal/dedupe"
	"github.com/2389/meshwatch/internal/dispatch"
	"github.com/2389/meshwatch/internal/replay"
	"github.com/2389/meshwatch/internal/store"
)

// pipeline is one source attached to one store.
type pipeline struct {
	store       *store.Store
	broadcaster *broadcast.Broadcaster
	dispatcher  *dispatch.Dispatcher
	source      *replay.Source
	dedupe      *dedupe.Cache
}

func newPipeline(cfg *config.Config, logger *slog.Logger) *pipeline {
	p := &pipeline{broadcaster: broadcast.New(logger)}
	p.store = store.New(store.Options{
		Limits: store.Limits{
			Events: cfg.Limits.Events,
			Logs:   cfg.Limits.Logs,
			Nodes:  cfg.Limits.Nodes,
		},
		Logger:    logger,
		Publisher: p.broadcaster,
	})
	if cfg.Dedupe.Enabled {
		p.dedupe = dedupe.New(dedupe.Options{TTL: cfg.Dedupe.TTL, MaxSize: cfg.Dedupe.MaxSize})
	}
	p.dispatcher = dispatch.New(dispatch.Options{
		Sink:   p.store,
		Dedupe: p.dedupe,
		Logger: logger,
	})
	p.source = replay.New(replay.Options{Events: cfg.Source.Events, Logger: logger})
	return p
}

// attach wires the dispatcher to the source. Capture recording, when
// configured, is subscribed first so frames are stored before decoding.
func (p *pipeline) attach(ctx context.Context, rec *capture.DB) {
	if rec != nil {
		rec.Record(ctx, p.source, "replay")
	}
	p.dispatcher.Attach(p.source)
}

// run plays r through the source with the store marked connected.
func (p *pipeline) run(ctx context.Context, r replay.FrameReader) (replay.Stats, error) {
	p.store.SetConnected(true)
	defer p.store.SetConnected(false)
	return p.source.Run(ctx, r)
}

func (p *pipeline) close() {
	if p.dedupe != nil {
		p.dedupe.Close()
	}
	p.broadcaster.Close()
}

// openReader opens path in the configured format. A .db, .sqlite or
// .sqlite3 extension selects the capture format regardless of config.
func openReader(path, format string) (replay.FrameReader, io.Closer, error) {
	if path == "" {
		return nil, nil, errors.New("no source path configured")
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		format = config.FormatCapture
	}

	switch format {
	case config.FormatCapture:
		db, err := capture.Open(path)
		if err != nil {
			return nil, nil, fmt.Errorf("opening capture: %w", err)
		}
		return db.Reader(), db, nil
	default:
		f, err := os.Open(path)
		if err != nil {
			return nil, nil, fmt.Errorf("opening source: %w", err)
		}
		return replay.NewJSONLReader(f), f, nil
	}
}
