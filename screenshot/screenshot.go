package screenshot

import (
	"fmt"
	"image"
	"time"

	"github.com/kbinani/screenshot"

	"chat-live-translate/config"
)

// Region is a screen region to capture.
type Region struct {
	X      int
	Y      int
	Width  int
	Height int
}

// FromRect converts a configured (l,t,r,b) rectangle into a Region.
func FromRect(r config.Rect) Region {
	return Region{X: r.Left, Y: r.Top, Width: r.Width(), Height: r.Height()}
}

// Frame is one captured poll of the region. Ephemeral: created per tick and
// discarded once recognition has consumed it.
type Frame struct {
	Img        *image.RGBA
	Region     Region
	CapturedAt time.Time
}

// CaptureRegion grabs the region from the virtual screen.
func CaptureRegion(region Region) (*Frame, error) {
	if region.Width <= 0 || region.Height <= 0 {
		return nil, fmt.Errorf("invalid region dimensions: width=%d, height=%d", region.Width, region.Height)
	}

	bounds := image.Rect(region.X, region.Y, region.X+region.Width, region.Y+region.Height)
	img, err := screenshot.CaptureRect(bounds)
	if err != nil {
		return nil, fmt.Errorf("failed to capture region: %w", err)
	}

	return &Frame{Img: img, Region: region, CapturedAt: time.Now()}, nil
}

// GetDisplayBounds returns the bounds of the primary display.
func GetDisplayBounds() (image.Rectangle, error) {
	if screenshot.NumActiveDisplays() == 0 {
		return image.Rectangle{}, fmt.Errorf("no active displays found")
	}
	return screenshot.GetDisplayBounds(0), nil
}

// Grayscale converts a frame image for OCR preprocessing.
func Grayscale(src image.Image) *image.Gray {
	bounds := src.Bounds()
	gray := image.NewGray(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			gray.Set(x, y, src.At(x, y))
		}
	}
	return gray
}
