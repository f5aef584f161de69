package dedup

import (
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fillRect(img *image.RGBA, r image.Rectangle, c color.Color) {
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			img.Set(x, y, c)
		}
	}
}

// leftHalfWhite and topHalfWhite are structurally very different pictures,
// so their perception hashes are far apart.
func leftHalfWhite() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	fillRect(img, image.Rect(0, 0, 32, 64), color.White)
	fillRect(img, image.Rect(32, 0, 64, 64), color.Black)
	return img
}

func topHalfWhite() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	fillRect(img, image.Rect(0, 0, 64, 32), color.White)
	fillRect(img, image.Rect(0, 32, 64, 64), color.Black)
	return img
}

func TestFrameFilterFirstFrameAlwaysChanged(t *testing.T) {
	f := NewFrameFilter(DefaultMaxHashDistance)
	assert.True(t, f.Changed(leftHalfWhite()))
}

func TestFrameFilterSkipsIdenticalFrame(t *testing.T) {
	f := NewFrameFilter(DefaultMaxHashDistance)
	assert.True(t, f.Changed(leftHalfWhite()))
	assert.False(t, f.Changed(leftHalfWhite()))
	assert.False(t, f.Changed(leftHalfWhite()))
}

func TestFrameFilterDetectsChange(t *testing.T) {
	f := NewFrameFilter(DefaultMaxHashDistance)
	assert.True(t, f.Changed(leftHalfWhite()))
	assert.True(t, f.Changed(topHalfWhite()))
	assert.False(t, f.Changed(topHalfWhite()))
}

func TestFrameFilterResetForcesNextChanged(t *testing.T) {
	f := NewFrameFilter(DefaultMaxHashDistance)
	assert.True(t, f.Changed(leftHalfWhite()))
	assert.False(t, f.Changed(leftHalfWhite()))

	f.Reset()
	assert.True(t, f.Changed(leftHalfWhite()), "reset must re-admit an identical frame")
}

func TestLineFilterSessionWide(t *testing.T) {
	l := NewLineFilter(0)

	assert.Equal(t, []string{"Hello", "World"}, l.Admit([]string{"Hello", "World"}))
	assert.Nil(t, l.Admit([]string{"Hello", "World"}))
	assert.Equal(t, []string{"!"}, l.Admit([]string{"Hello", "!"}))
}

func TestLineFilterWindowExpiry(t *testing.T) {
	l := NewLineFilter(time.Minute)
	now := time.Unix(1700000000, 0)
	l.now = func() time.Time { return now }

	assert.Equal(t, []string{"Hello"}, l.Admit([]string{"Hello"}))

	now = now.Add(30 * time.Second)
	assert.Nil(t, l.Admit([]string{"Hello"}), "still inside the dedup window")

	now = now.Add(31 * time.Second)
	assert.Equal(t, []string{"Hello"}, l.Admit([]string{"Hello"}), "window elapsed, line admitted again")
}

func TestLineFilterPreservesOrder(t *testing.T) {
	l := NewLineFilter(0)
	assert.Equal(t, []string{"b", "a", "c"}, l.Admit([]string{"b", "a", "c"}))
}

func TestLineFilterFilterDoesNotMark(t *testing.T) {
	l := NewLineFilter(0)

	// Filter alone leaves the line eligible, so a cycle whose translation
	// failed retries it next time.
	assert.Equal(t, []string{"Hello"}, l.Filter([]string{"Hello"}))
	assert.Equal(t, []string{"Hello"}, l.Filter([]string{"Hello"}))

	l.Mark([]string{"Hello"})
	assert.Nil(t, l.Filter([]string{"Hello"}))
}

func TestLineFilterCollapsesBatchDuplicates(t *testing.T) {
	l := NewLineFilter(0)
	assert.Equal(t, []string{"Hello"}, l.Filter([]string{"Hello", "Hello"}))
}
