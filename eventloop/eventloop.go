// Package eventloop drives the capture pipeline: a poll ticker and a hotkey
// channel feed a single goroutine that owns all mutable pipeline state, and a
// worker pool runs the blocking recognize+translate work off that goroutine.
package eventloop

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"chat-live-translate/dedup"
	"chat-live-translate/ocr"
	"chat-live-translate/overlay"
	"chat-live-translate/screenshot"
	"chat-live-translate/worker"
)

// Translator turns recognized source lines into display lines.
type Translator interface {
	TranslateLines(ctx context.Context, lines []string) ([]string, error)
}

// Options are the loop's timing and behavior knobs.
type Options struct {
	Region          screenshot.Region
	PollInterval    time.Duration
	TickTimeout     time.Duration
	OverlayDuration time.Duration
	CopyToClipboard bool
}

// Deps are the loop's collaborators. Capture and Clipboard are funcs so tests
// can substitute them without touching the display.
type Deps struct {
	Capture    func(screenshot.Region) (*screenshot.Frame, error)
	Engine     ocr.Engine
	Translator Translator
	Overlay    *overlay.Overlay
	Frames     *dedup.FrameFilter
	Lines      *dedup.LineFilter
	Pool       *worker.Pool
	Clipboard  func(text string) error
	Status     func(busy bool)
	Logger     *zap.SugaredLogger
}

type result struct {
	gen uint64
	out worker.Outcome
	err error
}

// Loop is the pipeline controller. All fields below the channels are owned
// by the Run goroutine and never touched from outside it.
type Loop struct {
	opts Options
	deps Deps

	hotkeyCh chan struct{}
	results  chan result
	paused   atomic.Bool

	busy            bool
	gen             uint64
	cancelJob       context.CancelFunc
	lastFingerprint string
}

func New(opts Options, deps Deps) *Loop {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 300 * time.Millisecond
	}
	if opts.TickTimeout <= 0 {
		opts.TickTimeout = 15 * time.Second
	}
	return &Loop{
		opts:     opts,
		deps:     deps,
		hotkeyCh: make(chan struct{}, 1),
		results:  make(chan result, 8),
	}
}

// TriggerCapture requests an immediate capture, preempting any in-flight
// cycle. Safe from any goroutine; a pending trigger coalesces with new ones.
func (l *Loop) TriggerCapture() {
	select {
	case l.hotkeyCh <- struct{}{}:
	default:
	}
}

// SetPaused stops the ticker from starting new cycles. Hotkey triggers still
// work while paused.
func (l *Loop) SetPaused(paused bool) {
	l.paused.Store(paused)
	if l.deps.Logger != nil {
		l.deps.Logger.Infow("Pipeline pause state changed", "paused", paused)
	}
}

func (l *Loop) Paused() bool {
	return l.paused.Load()
}

// Run blocks until ctx is cancelled, processing ticks, hotkey triggers, and
// worker results on a single goroutine.
func (l *Loop) Run(ctx context.Context) {
	ticker := time.NewTicker(l.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if l.cancelJob != nil {
				l.cancelJob()
			}
			return
		case <-ticker.C:
			l.runTick(ctx, false)
		case <-l.hotkeyCh:
			l.runTick(ctx, true)
		case res := <-l.results:
			l.handleResult(res)
		}
	}
}

// runTick starts one pipeline cycle. A ticker cycle is skipped while another
// is in flight; a hotkey cycle preempts it instead.
func (l *Loop) runTick(ctx context.Context, preempt bool) {
	if !preempt && l.paused.Load() {
		return
	}
	if l.busy {
		if !preempt {
			l.deps.Logger.Debugw("Tick skipped, cycle in flight")
			return
		}
		l.deps.Logger.Infow("Hotkey preempts in-flight cycle")
		if l.cancelJob != nil {
			l.cancelJob()
			l.cancelJob = nil
		}
		l.setBusy(false)
	}

	frame, err := l.deps.Capture(l.opts.Region)
	if err != nil {
		l.deps.Logger.Warnw("Capture failed", "error", err)
		return
	}
	if !l.deps.Frames.Changed(frame.Img) && !preempt {
		l.deps.Logger.Debugw("Frame unchanged, skipping recognition")
		return
	}

	l.gen++
	gen := l.gen
	prevFP := l.lastFingerprint

	jobCtx, cancel := context.WithTimeout(ctx, l.opts.TickTimeout)
	task := l.makeTask(frame, prevFP)
	cb := func(out worker.Outcome, err error) {
		l.results <- result{gen: gen, out: out, err: err}
	}

	if !l.deps.Pool.Submit(jobCtx, task, cb) {
		cancel()
		l.deps.Logger.Warnw("Worker queue full, cycle dropped")
		return
	}
	l.setBusy(true)
	l.cancelJob = cancel
}

func (l *Loop) setBusy(busy bool) {
	if l.busy == busy {
		return
	}
	l.busy = busy
	if l.deps.Status != nil {
		l.deps.Status(busy)
	}
}

// makeTask builds the recognize+translate closure for one frame. prevFP is a
// snapshot of the last non-empty fingerprint taken on the loop goroutine; the
// task never reads loop state directly.
func (l *Loop) makeTask(frame *screenshot.Frame, prevFP string) worker.Task {
	return func(ctx context.Context) (worker.Outcome, error) {
		res, err := l.deps.Engine.Recognize(frame)
		if err != nil {
			return worker.Outcome{}, err
		}
		if res.Empty() {
			l.deps.Logger.Debugw("Recognition empty, nothing to translate")
			return worker.Outcome{}, nil
		}
		fp := res.Fingerprint()
		if fp == prevFP {
			return worker.Outcome{Fingerprint: fp}, nil
		}

		fresh := l.deps.Lines.Filter(res.Texts())
		if len(fresh) == 0 {
			return worker.Outcome{Fingerprint: fp}, nil
		}

		out, err := l.deps.Translator.TranslateLines(ctx, fresh)
		if err != nil {
			return worker.Outcome{}, err
		}
		l.deps.Lines.Mark(fresh)
		return worker.Outcome{Text: strings.Join(out, "\n"), Fingerprint: fp}, nil
	}
}

func (l *Loop) handleResult(res result) {
	if res.gen != l.gen {
		// A preempted job finished late; its replacement owns busy now.
		l.deps.Logger.Debugw("Discarding stale cycle result", "gen", res.gen)
		return
	}
	l.setBusy(false)
	if l.cancelJob != nil {
		l.cancelJob()
		l.cancelJob = nil
	}

	if res.err != nil {
		// Existing overlay text stays up; unmarked lines retry next cycle.
		// The frame hash was committed before the cycle ran, so drop it:
		// otherwise a static screen would short-circuit at the frame filter
		// and the failed lines would never be re-processed.
		l.deps.Frames.Reset()
		l.deps.Logger.Warnw("Cycle failed", "error", res.err)
		return
	}
	if res.out.Fingerprint != "" {
		l.lastFingerprint = res.out.Fingerprint
	}
	if res.out.Text == "" {
		return
	}

	l.deps.Overlay.Show(res.out.Text, l.opts.OverlayDuration)
	if l.opts.CopyToClipboard && l.deps.Clipboard != nil {
		if err := l.deps.Clipboard(res.out.Text); err != nil {
			l.deps.Logger.Warnw("Clipboard write failed", "error", err)
		}
	}
}
