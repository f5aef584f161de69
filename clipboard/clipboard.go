// Package clipboard wraps the system clipboard for translated-text copies.
package clipboard

import (
	"golang.design/x/clipboard"
)

// Init must succeed before Write is used; it fails when no display or
// clipboard service is available.
func Init() error {
	return clipboard.Init()
}

// Write replaces the clipboard text. The underlying call returns a change
// channel, not an error; the write itself cannot fail after Init.
func Write(text string) error {
	clipboard.Write(clipboard.FmtText, []byte(text))
	return nil
}
