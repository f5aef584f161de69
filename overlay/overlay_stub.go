//go:build !windows

package overlay

import "go.uber.org/zap"

// logRenderer stands in for the overlay window on platforms without one:
// translated text goes to the log instead of the screen.
type logRenderer struct {
	logger *zap.SugaredLogger
}

// NewRenderer returns the logging stand-in; position and size are ignored.
func NewRenderer(x, y, width, height int) (Renderer, error) {
	logger, err := zap.NewDevelopment()
	if err != nil {
		return nil, err
	}
	return &logRenderer{logger: logger.Sugar()}, nil
}

func (r *logRenderer) Render(text string) error {
	r.logger.Infow("Overlay", "text", text)
	return nil
}

func (r *logRenderer) Clear() error {
	r.logger.Infow("Overlay cleared")
	return nil
}

func (r *logRenderer) Close() error {
	return r.logger.Sync()
}
