// Package tray runs the system tray menu: pause/resume the pipeline, force a
// capture, and quit.
package tray

import (
	"sync/atomic"

	"github.com/getlantern/systray"
	"go.uber.org/zap"
)

var ready atomic.Bool

// Config carries the menu callbacks. They run on the tray's click goroutine
// and must not block.
type Config struct {
	Icon      []byte
	Tooltip   string
	OnToggle  func(paused bool)
	OnCapture func()
	OnExit    func()
	Logger    *zap.SugaredLogger
}

// Run blocks on the tray main loop until Quit is clicked or Quit() is called.
// On platforms without a tray this returns after systray reports the failure.
func Run(cfg Config) {
	systray.Run(func() { onReady(cfg) }, func() {
		if cfg.OnExit != nil {
			cfg.OnExit()
		}
	})
}

// Quit tears down the tray from outside a menu click, e.g. on SIGINT.
func Quit() {
	systray.Quit()
}

// UpdateTooltip changes the hover text, e.g. to reflect a busy pipeline.
// No-op until the tray is ready.
func UpdateTooltip(tooltip string) {
	if ready.Load() {
		systray.SetTooltip(tooltip)
	}
}

func onReady(cfg Config) {
	if len(cfg.Icon) > 0 {
		systray.SetIcon(cfg.Icon)
	}
	systray.SetTitle("Chat Live Translate")
	tooltip := cfg.Tooltip
	if tooltip == "" {
		tooltip = "Chat Live Translate"
	}
	systray.SetTooltip(tooltip)

	mToggle := systray.AddMenuItem("Pause translation", "Stop polling the capture region")
	mCapture := systray.AddMenuItem("Capture now", "Translate the region immediately")
	systray.AddSeparator()
	mQuit := systray.AddMenuItem("Quit", "Exit the application")
	ready.Store(true)

	go func() {
		paused := false
		for {
			select {
			case <-mToggle.ClickedCh:
				paused = !paused
				if paused {
					mToggle.SetTitle("Resume translation")
				} else {
					mToggle.SetTitle("Pause translation")
				}
				if cfg.OnToggle != nil {
					cfg.OnToggle(paused)
				}
			case <-mCapture.ClickedCh:
				if cfg.OnCapture != nil {
					cfg.OnCapture()
				}
			case <-mQuit.ClickedCh:
				cfg.Logger.Infow("Quit requested from tray")
				systray.Quit()
				return
			}
		}
	}()
}
