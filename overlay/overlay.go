// Package overlay owns the last-known translated text and the surface it is
// drawn on. A single Overlay instance exists per process, created in main
// and handed to the event loop; only the loop calls Show/Clear.
package overlay

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Renderer is the narrow display surface behind the overlay state. The
// Windows implementation is a topmost no-activate popup window; other
// platforms get a logging stub.
type Renderer interface {
	Render(text string) error
	Clear() error
	Close() error
}

// Overlay replaces displayed text atomically and clears it after the show
// duration elapses with no further update.
type Overlay struct {
	logger *zap.SugaredLogger
	r      Renderer

	mu        sync.Mutex
	text      string
	shownAt   time.Time
	expiresAt time.Time
	timer     *time.Timer
	gen       uint64 // invalidates expiry timers armed for older Show calls
}

func New(r Renderer, logger *zap.SugaredLogger) *Overlay {
	return &Overlay{r: r, logger: logger}
}

// Show replaces the displayed text and re-arms the expiry timer. The state
// swap and the renderer call share one critical section, so a stale expiry
// can never clear the surface after a newer Show drew on it. Renderer calls
// are non-blocking (the Windows one only posts a message).
func (o *Overlay) Show(text string, duration time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.gen++
	gen := o.gen
	now := time.Now()
	o.text = text
	o.shownAt = now
	o.expiresAt = now.Add(duration)
	if o.timer != nil {
		o.timer.Stop()
	}
	o.timer = time.AfterFunc(duration, func() { o.expire(gen) })

	if err := o.r.Render(text); err != nil {
		o.logger.Warnw("Overlay render failed", "error", err)
	}
}

// expire clears the overlay only if no newer Show has happened since the
// timer was armed.
func (o *Overlay) expire(gen uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.gen != gen {
		return
	}
	o.text = ""
	if err := o.r.Clear(); err != nil {
		o.logger.Warnw("Overlay clear failed", "error", err)
	}
}

// Clear hides the overlay immediately.
func (o *Overlay) Clear() {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.gen++
	o.text = ""
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
	if err := o.r.Clear(); err != nil {
		o.logger.Warnw("Overlay clear failed", "error", err)
	}
}

// Text returns the currently displayed text ("" when cleared).
func (o *Overlay) Text() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.text
}

// ShownAt returns when the current text appeared and when it expires.
func (o *Overlay) ShownAt() (shown, expires time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.shownAt, o.expiresAt
}

// Close stops the expiry timer and tears down the render surface.
func (o *Overlay) Close() error {
	o.mu.Lock()
	o.gen++
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
	o.mu.Unlock()
	return o.r.Close()
}
