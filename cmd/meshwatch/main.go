// ABOUTME: Entry point for meshwatch
// ABOUTME: Replays recorded radio frames, serves the decoded view and imports captures

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"

	"github.com/2389/meshwatch/internal/api"
	"github.com/2389/meshwatch/internal/capture"
	"github.com/2389/meshwatch/internal/config"
	"github.com/2389/meshwatch/internal/decode"
	"github.com/2389/meshwatch/internal/replay"
	"github.com/2389/meshwatch/internal/store"
)

// Version is set at build time.
var version = "dev"

const banner = `
                     _                     _       _
 _ __ ___   ___  ___| |____      ____ _| |_ ___| |__
| '_ ' _ \ / _ \/ __| '_ \ \ /\ / / _' | __/ __| '_ \
| | | | | |  __/\__ \ | | \ V  V / (_| | || (__| | | |
|_| |_| |_|\___||___/_| |_|\_/\_/ \__,_|\__\___|_| |_|
`

// summaryRows is how many recent records replay prints per collection.
const summaryRows = 10

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: meshwatch <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  replay [file]          Decode a recording and print a summary")
		fmt.Println("  serve [file]           Decode a recording and serve it over HTTP")
		fmt.Println("  capture <jsonl> <db>   Import a JSONL recording into a capture database")
		fmt.Println("  version                Print the version")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "replay":
		err = runReplay(ctx, os.Args[2:])
	case "serve":
		err = runServe(ctx, os.Args[2:])
	case "capture":
		err = runCapture(ctx, os.Args[2:])
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(args []string) (*config.Config, string, error) {
	configPath := config.Path()
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, "", fmt.Errorf("loading config from %s: %w", configPath, err)
	}
	if len(args) > 0 {
		cfg.Source.Path = args[0]
	}
	return cfg, configPath, nil
}

func printBanner() {
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)
}

func info(label, value string) {
	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("%-10s %s\n", label+":", value)
}

func runReplay(ctx context.Context, args []string) error {
	cfg, configPath, err := loadConfig(args)
	if err != nil {
		return err
	}
	printBanner()
	logger := setupLogger(cfg.Logging)

	info("Config", configPath)
	info("Source", cfg.Source.Path)
	fmt.Println()

	reader, closer, err := openReader(cfg.Source.Path, cfg.Source.Format)
	if err != nil {
		return err
	}
	defer closer.Close()

	p := newPipeline(cfg, logger)
	defer p.close()

	var rec *capture.DB
	if cfg.Capture.Path != "" && cfg.Capture.Path != cfg.Source.Path {
		if rec, err = capture.Open(cfg.Capture.Path); err != nil {
			return fmt.Errorf("opening capture database: %w", err)
		}
		defer rec.Close()
	}
	p.attach(ctx, rec)

	stats, err := p.run(ctx, reader)
	if err != nil {
		return fmt.Errorf("replaying %s: %w", cfg.Source.Path, err)
	}

	printSummary(p.store, stats)
	return nil
}

func printSummary(st *store.Store, stats replay.Stats) {
	cyan := color.New(color.FgCyan, color.Bold)
	yellow := color.New(color.FgYellow)

	cyan.Println("    Frames")
	fmt.Printf("      read %d, delivered %d, skipped %d", stats.Frames, stats.Delivered, stats.Skipped)
	if stats.Malformed > 0 {
		yellow.Printf(", malformed %d", stats.Malformed)
	}
	fmt.Println()
	fmt.Println()

	snap := st.Snapshot()
	cyan.Println("    Records")
	fmt.Printf("      texts %d, positions %d, telemetry %d, nodes %d, logs %d\n",
		len(snap.Texts), len(snap.Positions), len(snap.Telemetry), len(snap.Nodes), len(snap.Logs))
	if snap.MyNode != nil {
		fmt.Printf("      my node %s\n", store.FormatNodeNum(*snap.MyNode))
	}
	fmt.Println()

	if len(snap.Texts) > 0 {
		cyan.Println("    Recent messages")
		for _, t := range snap.Texts[:min(len(snap.Texts), summaryRows)] {
			fmt.Printf("      %s  %s\n", t.At.Format("15:04:05"), decode.Describe(t))
		}
		fmt.Println()
	}

	if len(snap.Nodes) > 0 {
		cyan.Println("    Nodes")
		for _, n := range snap.Nodes[:min(len(snap.Nodes), summaryRows)] {
			fmt.Printf("      %-40s %s\n", decode.Describe(n), nodeDetail(n))
		}
		fmt.Println()
	}

	var problems []store.LogRecord
	for _, l := range snap.Logs {
		if l.Level == store.LevelWarn || l.Level == store.LevelError {
			problems = append(problems, l)
		}
	}
	if len(problems) > 0 {
		yellow.Println("    Warnings")
		for _, l := range problems[:min(len(problems), summaryRows)] {
			fmt.Printf("      [%s] %s\n", l.Level, l.Message)
		}
		fmt.Println()
	}
}

func nodeDetail(n store.NodeRecord) string {
	detail := ""
	if n.Name != nil {
		detail = *n.Name
	}
	if n.ShortName != nil {
		detail += " (" + *n.ShortName + ")"
	}
	if n.HwModel != nil {
		detail += " " + *n.HwModel
	}
	return detail
}

func runServe(ctx context.Context, args []string) error {
	cfg, configPath, err := loadConfig(args)
	if err != nil {
		return err
	}
	printBanner()
	logger := setupLogger(cfg.Logging)

	info("Config", configPath)
	info("Source", cfg.Source.Path)
	info("HTTP", "http://"+cfg.HTTP.Addr)
	if cfg.Capture.Path != "" {
		info("Capture", cfg.Capture.Path)
	}
	fmt.Println()

	reader, closer, err := openReader(cfg.Source.Path, cfg.Source.Format)
	if err != nil {
		return err
	}
	defer closer.Close()

	p := newPipeline(cfg, logger)
	defer p.close()

	var rec *capture.DB
	if cfg.Capture.Path != "" && cfg.Capture.Path != cfg.Source.Path {
		if rec, err = capture.Open(cfg.Capture.Path); err != nil {
			return fmt.Errorf("opening capture database: %w", err)
		}
		defer rec.Close()
	}
	p.attach(ctx, rec)

	go func() {
		stats, err := p.run(ctx, reader)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("replay failed", "error", err)
			return
		}
		logger.Info("replay complete",
			"frames", stats.Frames,
			"delivered", stats.Delivered,
			"malformed", stats.Malformed)
	}()

	srv := api.New(p.store, p.broadcaster, logger)
	return srv.Run(ctx, cfg.HTTP.Addr)
}

func runCapture(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: meshwatch capture <jsonl> <db>")
	}
	src, dst := args[0], args[1]

	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening %s: %w", src, err)
	}
	defer f.Close()

	db, err := capture.Open(dst)
	if err != nil {
		return fmt.Errorf("opening capture database: %w", err)
	}
	defer db.Close()

	stats, err := db.Import(ctx, replay.NewJSONLReader(f), src)
	if err != nil {
		return fmt.Errorf("importing %s: %w", src, err)
	}

	total, err := db.Count(ctx)
	if err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	green.Print("    ✓ ")
	fmt.Printf("Imported %d frames into %s (%d total)\n", stats.Imported, dst, total)
	if stats.Malformed > 0 {
		yellow := color.New(color.FgYellow)
		yellow.Print("    ! ")
		fmt.Printf("Skipped %d malformed lines\n", stats.Malformed)
	}
	return nil
}
