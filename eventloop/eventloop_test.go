package eventloop

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"chat-live-translate/dedup"
	"chat-live-translate/ocr"
	"chat-live-translate/overlay"
	"chat-live-translate/screenshot"
	"chat-live-translate/worker"
)

// frameSource hands out perceptually distinct frames so the frame filter
// never short-circuits a test tick. With static set it repeats the same
// frame, modelling a screen that does not change between polls.
type frameSource struct {
	n      int
	static bool
}

func (f *frameSource) capture(screenshot.Region) (*screenshot.Frame, error) {
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	// Rotate a white half-plane through four orientations.
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			var white bool
			switch f.n % 4 {
			case 0:
				white = x < 32
			case 1:
				white = y < 32
			case 2:
				white = x >= 32
			case 3:
				white = y >= 32
			}
			if white {
				img.Set(x, y, color.White)
			} else {
				img.Set(x, y, color.Black)
			}
		}
	}
	if !f.static {
		f.n++
	}
	return &screenshot.Frame{Img: img, CapturedAt: time.Now()}, nil
}

// scriptedEngine returns one queued result per Recognize call, repeating the
// last entry once the script runs out.
type scriptedEngine struct {
	mu     sync.Mutex
	script []ocr.Result
	errs   []error
	calls  int
}

func (e *scriptedEngine) Recognize(*screenshot.Frame) (ocr.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	i := e.calls
	e.calls++
	if i >= len(e.script) {
		i = len(e.script) - 1
	}
	var err error
	if i < len(e.errs) {
		err = e.errs[i]
	}
	return e.script[i], err
}

func (e *scriptedEngine) Close() error { return nil }

type fakeTranslator struct {
	mu      sync.Mutex
	calls   int
	batches [][]string
	err     error
}

func (t *fakeTranslator) TranslateLines(ctx context.Context, lines []string) ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls++
	t.batches = append(t.batches, append([]string(nil), lines...))
	if t.err != nil {
		return nil, t.err
	}
	out := make([]string, len(lines))
	for i, ln := range lines {
		out[i] = "[EN] " + ln
	}
	return out, nil
}

func (t *fakeTranslator) callCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}

type recordingRenderer struct {
	mu      sync.Mutex
	renders []string
}

func (r *recordingRenderer) Render(text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.renders = append(r.renders, text)
	return nil
}

func (r *recordingRenderer) Clear() error { return nil }
func (r *recordingRenderer) Close() error { return nil }

func lines(texts ...string) ocr.Result {
	res := ocr.Result{}
	for _, t := range texts {
		res.Lines = append(res.Lines, ocr.Line{Text: t, Confidence: 90})
	}
	return res
}

type harness struct {
	loop       *Loop
	engine     *scriptedEngine
	translator *fakeTranslator
	renderer   *recordingRenderer
	frames     *frameSource
	clips      *[]string
}

func newHarness(t *testing.T, engine *scriptedEngine, tr *fakeTranslator, opts Options) *harness {
	t.Helper()
	renderer := &recordingRenderer{}
	ov := overlay.New(renderer, zap.NewNop().Sugar())
	t.Cleanup(func() { ov.Close() })

	pool := worker.New(1)
	t.Cleanup(pool.Close)

	clips := []string{}
	src := &frameSource{}
	deps := Deps{
		Capture:    src.capture,
		Engine:     engine,
		Translator: tr,
		Overlay:    ov,
		Frames:     dedup.NewFrameFilter(dedup.DefaultMaxHashDistance),
		Lines:      dedup.NewLineFilter(0),
		Pool:       pool,
		Clipboard:  func(text string) error { clips = append(clips, text); return nil },
		Logger:     zap.NewNop().Sugar(),
	}
	return &harness{loop: New(opts, deps), engine: engine, translator: tr, renderer: renderer, frames: src, clips: &clips}
}

// step runs one tick synchronously: start the cycle, wait for the worker's
// result, and apply it on the test goroutine.
func (h *harness) step(t *testing.T, preempt bool) {
	t.Helper()
	h.loop.runTick(context.Background(), preempt)
	if !h.loop.busy {
		return
	}
	select {
	case res := <-h.loop.results:
		h.loop.handleResult(res)
	case <-time.After(5 * time.Second):
		t.Fatal("Cycle did not complete")
	}
}

func TestTickTranslatesAndShows(t *testing.T) {
	engine := &scriptedEngine{script: []ocr.Result{lines("Hello")}}
	tr := &fakeTranslator{}
	h := newHarness(t, engine, tr, Options{OverlayDuration: time.Minute})

	h.step(t, false)

	assert.Equal(t, "[EN] Hello", h.loop.deps.Overlay.Text())
	assert.Equal(t, 1, tr.callCount())
}

func TestUnchangedRecognitionSkipsTranslate(t *testing.T) {
	engine := &scriptedEngine{script: []ocr.Result{lines("Hello")}}
	tr := &fakeTranslator{}
	h := newHarness(t, engine, tr, Options{OverlayDuration: time.Minute})

	h.step(t, false)
	h.step(t, false)

	assert.Equal(t, 1, tr.callCount(), "identical recognition must not reach the API")
	assert.Equal(t, "[EN] Hello", h.loop.deps.Overlay.Text())
}

func TestSeenLinesFilteredFromBatch(t *testing.T) {
	engine := &scriptedEngine{script: []ocr.Result{
		lines("Hello"),
		lines("Hello", "World"),
	}}
	tr := &fakeTranslator{}
	h := newHarness(t, engine, tr, Options{OverlayDuration: time.Minute})

	h.step(t, false)
	h.step(t, false)

	require.Equal(t, 2, tr.callCount())
	assert.Equal(t, []string{"World"}, tr.batches[1], "already-translated line must be dropped")
	assert.Equal(t, "[EN] World", h.loop.deps.Overlay.Text())
}

func TestTranslateErrorRetainsOverlayAndRetries(t *testing.T) {
	engine := &scriptedEngine{script: []ocr.Result{
		lines("Hello"),
		lines("World"),
		lines("World"),
	}}
	tr := &fakeTranslator{}
	h := newHarness(t, engine, tr, Options{OverlayDuration: time.Minute})

	h.step(t, false)
	assert.Equal(t, "[EN] Hello", h.loop.deps.Overlay.Text())

	tr.mu.Lock()
	tr.err = errors.New("deepl unavailable")
	tr.mu.Unlock()
	h.step(t, false)
	assert.Equal(t, "[EN] Hello", h.loop.deps.Overlay.Text(), "failed cycle must not clear the overlay")

	// The failed lines were never marked, so the next cycle retries them.
	tr.mu.Lock()
	tr.err = nil
	tr.mu.Unlock()
	h.step(t, false)
	assert.Equal(t, "[EN] World", h.loop.deps.Overlay.Text())
}

func TestStaticScreenRetriedAfterFailedCycle(t *testing.T) {
	engine := &scriptedEngine{script: []ocr.Result{lines("Hello")}}
	tr := &fakeTranslator{err: errors.New("deepl unavailable")}
	h := newHarness(t, engine, tr, Options{OverlayDuration: time.Minute})
	h.frames.static = true

	h.step(t, false)
	require.Equal(t, 1, tr.callCount())
	assert.Equal(t, "", h.loop.deps.Overlay.Text())

	// The screen has not changed, but the failed cycle must not stay stuck
	// behind the frame filter: the next tick re-processes the same frame.
	tr.mu.Lock()
	tr.err = nil
	tr.mu.Unlock()
	h.step(t, false)

	assert.Equal(t, 2, tr.callCount())
	assert.Equal(t, "[EN] Hello", h.loop.deps.Overlay.Text())
}

func TestStaticScreenStillSkippedAfterSuccess(t *testing.T) {
	engine := &scriptedEngine{script: []ocr.Result{lines("Hello")}}
	tr := &fakeTranslator{}
	h := newHarness(t, engine, tr, Options{OverlayDuration: time.Minute})
	h.frames.static = true

	h.step(t, false)
	h.step(t, false)

	assert.Equal(t, 1, h.engine.calls, "unchanged frame after a good cycle must not reach OCR")
	assert.Equal(t, 1, tr.callCount())
}

func TestEmptyRecognitionLeavesStateAlone(t *testing.T) {
	engine := &scriptedEngine{script: []ocr.Result{lines("Hello"), {}}}
	tr := &fakeTranslator{}
	h := newHarness(t, engine, tr, Options{OverlayDuration: time.Minute})

	h.step(t, false)
	fpBefore := h.loop.lastFingerprint
	require.NotEmpty(t, fpBefore)

	h.step(t, false)
	assert.Equal(t, fpBefore, h.loop.lastFingerprint, "empty recognition must not update the fingerprint")
	assert.Equal(t, "[EN] Hello", h.loop.deps.Overlay.Text())
}

func TestEmptyRecognitionLogged(t *testing.T) {
	engine := &scriptedEngine{script: []ocr.Result{{}}}
	tr := &fakeTranslator{}
	h := newHarness(t, engine, tr, Options{OverlayDuration: time.Minute})

	core, logs := observer.New(zapcore.DebugLevel)
	h.loop.deps.Logger = zap.New(core).Sugar()

	h.step(t, false)

	assert.Equal(t, 1, logs.FilterMessage("Recognition empty, nothing to translate").Len())
	assert.Equal(t, 0, tr.callCount())
}

func TestStaleResultDiscarded(t *testing.T) {
	engine := &scriptedEngine{script: []ocr.Result{lines("Hello")}}
	tr := &fakeTranslator{}
	h := newHarness(t, engine, tr, Options{OverlayDuration: time.Minute})

	h.loop.gen = 7
	h.loop.busy = true
	h.loop.handleResult(result{gen: 6, out: worker.Outcome{Text: "stale", Fingerprint: "old"}})

	assert.True(t, h.loop.busy, "stale result must not release the current cycle")
	assert.Equal(t, "", h.loop.deps.Overlay.Text())
	assert.Equal(t, "", h.loop.lastFingerprint)
}

func TestPausedSkipsTickerButNotHotkey(t *testing.T) {
	engine := &scriptedEngine{script: []ocr.Result{lines("Hello")}}
	tr := &fakeTranslator{}
	h := newHarness(t, engine, tr, Options{OverlayDuration: time.Minute})

	h.loop.SetPaused(true)
	h.step(t, false)
	assert.Equal(t, 0, tr.callCount())

	h.step(t, true)
	assert.Equal(t, 1, tr.callCount(), "hotkey works while paused")
}

func TestClipboardCopyWhenEnabled(t *testing.T) {
	engine := &scriptedEngine{script: []ocr.Result{lines("Hello")}}
	tr := &fakeTranslator{}
	h := newHarness(t, engine, tr, Options{OverlayDuration: time.Minute, CopyToClipboard: true})

	h.step(t, false)

	assert.Equal(t, []string{"[EN] Hello"}, *h.clips)
}

func TestTriggerCaptureCoalesces(t *testing.T) {
	engine := &scriptedEngine{script: []ocr.Result{lines("Hello")}}
	tr := &fakeTranslator{}
	h := newHarness(t, engine, tr, Options{OverlayDuration: time.Minute})

	h.loop.TriggerCapture()
	h.loop.TriggerCapture()
	h.loop.TriggerCapture()

	assert.Len(t, h.loop.hotkeyCh, 1)
}
