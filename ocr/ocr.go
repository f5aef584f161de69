// Package ocr wraps the Tesseract engine behind a narrow interface so the
// event loop (and tests) never depend on the cgo binding directly.
package ocr

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"image/png"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"

	"chat-live-translate/screenshot"
)

// Line is one recognized text line with the engine's confidence (0-100).
type Line struct {
	Text       string
	Confidence float64
}

// Result is an ordered recognition of a single frame.
type Result struct {
	Lines []Line
}

func (r Result) Empty() bool { return len(r.Lines) == 0 }

// Texts returns the line texts in order.
func (r Result) Texts() []string {
	out := make([]string, len(r.Lines))
	for i, ln := range r.Lines {
		out[i] = ln.Text
	}
	return out
}

// Fingerprint identifies the recognized content for change detection
// between cycles. Confidence is excluded on purpose: the same text with
// jittering confidence is still the same recognition.
func (r Result) Fingerprint() string {
	h := sha1.New()
	for _, ln := range r.Lines {
		h.Write([]byte(ln.Text))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Engine recognizes text in captured frames.
type Engine interface {
	Recognize(frame *screenshot.Frame) (Result, error)
	Close() error
}

// Tesseract is the gosseract-backed Engine. A single client is reused and
// serialized with a mutex; gosseract clients are not goroutine-safe.
type Tesseract struct {
	mu            sync.Mutex
	client        *gosseract.Client
	languages     []string
	minConfidence float64
}

// NewTesseract creates the engine. languages is a '+'-joined hint like
// "jpn+eng+chi_sim"; language packs missing on the host surface as a
// recognition error, not a construction error.
func NewTesseract(languages string, minConfidence float64) *Tesseract {
	var langs []string
	for _, l := range strings.Split(languages, "+") {
		if trimmed := strings.TrimSpace(l); trimmed != "" {
			langs = append(langs, trimmed)
		}
	}
	return &Tesseract{
		client:        gosseract.NewClient(),
		languages:     langs,
		minConfidence: minConfidence,
	}
}

// Recognize runs the frame through Tesseract and returns trimmed, non-empty
// lines above the confidence floor.
func (t *Tesseract) Recognize(frame *screenshot.Frame) (Result, error) {
	if frame == nil || frame.Img == nil {
		return Result{}, fmt.Errorf("nil frame")
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, screenshot.Grayscale(frame.Img)); err != nil {
		return Result{}, fmt.Errorf("encode frame: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.languages) > 0 {
		if err := t.client.SetLanguage(t.languages...); err != nil {
			return Result{}, fmt.Errorf("set OCR languages: %w", err)
		}
	}
	if err := t.client.SetImageFromBytes(buf.Bytes()); err != nil {
		return Result{}, fmt.Errorf("load frame into OCR engine: %w", err)
	}

	boxes, err := t.client.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return Result{}, fmt.Errorf("recognize: %w", err)
	}

	var res Result
	for _, b := range boxes {
		text := strings.TrimSpace(b.Word)
		if text == "" || b.Confidence < t.minConfidence {
			continue
		}
		res.Lines = append(res.Lines, Line{Text: text, Confidence: b.Confidence})
	}
	return res, nil
}

func (t *Tesseract) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.client.Close()
}
