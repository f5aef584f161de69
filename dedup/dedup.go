// Package dedup suppresses redundant work across poll cycles: a perceptual
// frame filter keeps unchanged captures away from the OCR engine, and a line
// filter keeps already-seen text away from the translation API.
package dedup

import (
	"crypto/sha1"
	"encoding/hex"
	"image"
	"sync"
	"time"

	"github.com/corona10/goimagehash"
)

// DefaultMaxHashDistance is the Hamming-distance threshold under which two
// frames count as the same picture.
const DefaultMaxHashDistance = 3

// FrameFilter short-circuits OCR when consecutive frames are perceptually
// identical. Owned by the event loop; not safe for concurrent use.
type FrameFilter struct {
	maxDistance int
	last        *goimagehash.ImageHash
}

func NewFrameFilter(maxDistance int) *FrameFilter {
	if maxDistance < 0 {
		maxDistance = DefaultMaxHashDistance
	}
	return &FrameFilter{maxDistance: maxDistance}
}

// Changed reports whether the frame differs from the previous one. Hash
// failures count as changed so a decoding hiccup never freezes the pipeline.
func (f *FrameFilter) Changed(img image.Image) bool {
	hash, err := goimagehash.PerceptionHash(img)
	if err != nil {
		f.last = nil
		return true
	}
	if f.last == nil {
		f.last = hash
		return true
	}
	dist, err := f.last.Distance(hash)
	if err != nil || dist > f.maxDistance {
		f.last = hash
		return true
	}
	return false
}

// Reset forgets the stored hash so the next Changed call reports true. The
// loop calls it after a failed cycle: the frame hash was committed before
// the cycle ran, but its lines were never translated, so an identical
// screen must be re-processed.
func (f *FrameFilter) Reset() {
	f.last = nil
}

// LineFilter is the dedup window for recognized text lines: a line admitted
// once is suppressed until the window elapses (window 0 = whole session).
// Safe for concurrent use; workers call it off the loop thread.
type LineFilter struct {
	mu     sync.Mutex
	window time.Duration
	seen   map[string]time.Time
	now    func() time.Time
}

func NewLineFilter(window time.Duration) *LineFilter {
	return &LineFilter{
		window: window,
		seen:   make(map[string]time.Time),
		now:    time.Now,
	}
}

// Filter returns the lines not seen within the window, in order, without
// marking them. Callers Mark after the downstream work succeeds so a failed
// translation can be retried on the next cycle.
func (l *LineFilter) Filter(lines []string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.prune(now)

	var out []string
	batch := make(map[string]struct{})
	for _, ln := range lines {
		key := hashLine(ln)
		if _, ok := l.seen[key]; ok {
			continue
		}
		if _, ok := batch[key]; ok {
			continue
		}
		batch[key] = struct{}{}
		out = append(out, ln)
	}
	return out
}

// Mark records the lines as seen at the current time.
func (l *LineFilter) Mark(lines []string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for _, ln := range lines {
		l.seen[hashLine(ln)] = now
	}
}

// Admit filters and marks in one step, for callers with no failure path
// between the two.
func (l *LineFilter) Admit(lines []string) []string {
	out := l.Filter(lines)
	l.Mark(out)
	return out
}

func (l *LineFilter) prune(now time.Time) {
	if l.window <= 0 {
		return
	}
	for key, at := range l.seen {
		if now.Sub(at) >= l.window {
			delete(l.seen, key)
		}
	}
}

func hashLine(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
