package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"chat-live-translate/clipboard"
	"chat-live-translate/config"
	"chat-live-translate/dedup"
	"chat-live-translate/eventloop"
	"chat-live-translate/hotkey"
	"chat-live-translate/logutil"
	"chat-live-translate/ocr"
	"chat-live-translate/overlay"
	"chat-live-translate/screenshot"
	"chat-live-translate/translate"
	"chat-live-translate/tray"
	"chat-live-translate/worker"
)

func main() {
	runOnce := flag.Bool("runonce", false, "Capture and translate once, print the result, and exit (no tray icon)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logutil.New(cfg.EnableFileLogging, cfg.DebugMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatalw("Invalid configuration", "error", err)
	}

	logger.Infow("Chat Live Translate starting",
		"api_key", logutil.RedactKey(cfg.APIKey),
		"target_lang", cfg.TargetLang,
		"region", cfg.Region,
		"poll_interval", cfg.PollInterval,
		"hotkey", cfg.Hotkey,
	)

	// Persist the default region on first run so there is a file to edit.
	if _, err := os.Stat(cfg.RegionPath); os.IsNotExist(err) {
		if err := config.SaveRegion(cfg.RegionPath, cfg.Region); err != nil {
			logger.Warnw("Could not write region file", "path", cfg.RegionPath, "error", err)
		} else {
			logger.Infow("Wrote default capture region", "path", cfg.RegionPath)
		}
	}

	if bounds, err := screenshot.GetDisplayBounds(); err != nil {
		logger.Warnw("Could not read display bounds", "error", err)
	} else if !image.Rect(cfg.Region.Left, cfg.Region.Top, cfg.Region.Right, cfg.Region.Bottom).In(bounds) {
		logger.Warnw("Capture region extends beyond the primary display",
			"region", cfg.Region, "display", bounds)
	}

	if *runOnce {
		runPipelineOnce(cfg, logger)
		return
	}

	engine := ocr.NewTesseract(cfg.OCRLanguages, cfg.MinConfidence)
	defer engine.Close()

	translator := translate.New(translate.Config{
		APIKey:             cfg.APIKey,
		Endpoint:           cfg.Endpoint,
		TargetLang:         cfg.TargetLang,
		AllowedSourceLangs: cfg.AllowedLangs,
		Timeout:            cfg.TickTimeout,
	})

	// The overlay sits just below the capture rectangle, matching its width.
	renderer, err := overlay.NewRenderer(cfg.Region.Left, cfg.Region.Bottom+8, cfg.Region.Width(), 120)
	if err != nil {
		logger.Fatalw("Failed to create overlay window", "error", err)
	}
	ov := overlay.New(renderer, logger)
	defer ov.Close()

	writeClip := func(string) error { return nil }
	if cfg.CopyToClipboard {
		if err := clipboard.Init(); err != nil {
			logger.Warnw("Clipboard unavailable, copies disabled", "error", err)
		} else {
			writeClip = clipboard.Write
		}
	}

	pool := worker.New(1)
	defer pool.Close()
	loop := eventloop.New(
		eventloop.Options{
			Region:          screenshot.FromRect(cfg.Region),
			PollInterval:    cfg.PollInterval,
			TickTimeout:     cfg.TickTimeout,
			OverlayDuration: cfg.OverlayDuration,
			CopyToClipboard: cfg.CopyToClipboard,
		},
		eventloop.Deps{
			Capture:    screenshot.CaptureRegion,
			Engine:     engine,
			Translator: translator,
			Overlay:    ov,
			Frames:     dedup.NewFrameFilter(dedup.DefaultMaxHashDistance),
			Lines:      dedup.NewLineFilter(cfg.DedupWindow),
			Pool:       pool,
			Clipboard:  writeClip,
			Status: func(busy bool) {
				if busy {
					tray.UpdateTooltip("Chat Live Translate - translating...")
				} else {
					tray.UpdateTooltip(fmt.Sprintf("Chat Live Translate - press %s to capture", cfg.Hotkey))
				}
			},
			Logger: logger,
		},
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		loop.Run(ctx)
	}()

	if err := hotkey.Listen(cfg.Hotkey, logger, loop.TriggerCapture); err != nil {
		logger.Warnw("Hotkey unavailable", "error", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Infow("Shutting down due to signal")
		tray.Quit()
	}()

	// Blocks until Quit; the tray owns the main goroutine on platforms that
	// require it.
	tray.Run(tray.Config{
		Tooltip:   fmt.Sprintf("Chat Live Translate - press %s to capture", cfg.Hotkey),
		OnToggle:  loop.SetPaused,
		OnCapture: loop.TriggerCapture,
		Logger:    logger,
	})

	cancel()
	<-loopDone
	logger.Infow("Chat Live Translate stopped")
}

// runPipelineOnce performs a single capture/recognize/translate pass and
// prints the rendered lines to stdout.
func runPipelineOnce(cfg *config.Config, logger *zap.SugaredLogger) {
	engine := ocr.NewTesseract(cfg.OCRLanguages, cfg.MinConfidence)
	defer engine.Close()

	frame, err := screenshot.CaptureRegion(screenshot.FromRect(cfg.Region))
	if err != nil {
		logger.Fatalw("Capture failed", "error", err)
	}

	res, err := engine.Recognize(frame)
	if err != nil {
		logger.Fatalw("Recognition failed", "error", err)
	}
	if res.Empty() {
		fmt.Println("No text recognized in the capture region.")
		return
	}

	translator := translate.New(translate.Config{
		APIKey:             cfg.APIKey,
		Endpoint:           cfg.Endpoint,
		TargetLang:         cfg.TargetLang,
		AllowedSourceLangs: cfg.AllowedLangs,
		Timeout:            cfg.TickTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.TickTimeout)
	defer cancel()
	out, err := translator.TranslateLines(ctx, res.Texts())
	if err != nil {
		logger.Fatalw("Translation failed", "error", err)
	}

	fmt.Println(strings.Join(out, "\n"))
}
