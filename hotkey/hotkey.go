// Package hotkey fires a callback on a global key combination using a
// low-level keyboard hook.
package hotkey

import (
	"fmt"
	"strings"

	gohook "github.com/robotn/gohook"
	"go.uber.org/zap"
)

// modifier rawcodes cover both left and right variants.
var modifierCodes = map[string][]uint16{
	"ctrl":  {162, 163},
	"alt":   {164, 165},
	"shift": {160, 161},
}

// combo is a parsed combination: every listed rawcode group must have at
// least one member held down at once.
type combo struct {
	groups [][]uint16
}

// Parse converts a combination like "Ctrl+Alt+T" into rawcode groups.
func Parse(binding string) (combo, error) {
	var c combo
	for _, part := range strings.Split(strings.ToLower(binding), "+") {
		part = strings.TrimSpace(part)
		if codes, ok := modifierCodes[part]; ok {
			c.groups = append(c.groups, codes)
			continue
		}
		if len(part) == 1 && part[0] >= 'a' && part[0] <= 'z' {
			c.groups = append(c.groups, []uint16{uint16(part[0] - 'a' + 'A')})
			continue
		}
		return combo{}, fmt.Errorf("unsupported hotkey part %q in %q", part, binding)
	}
	if len(c.groups) == 0 {
		return combo{}, fmt.Errorf("empty hotkey %q", binding)
	}
	return c, nil
}

// satisfied reports whether every group has a pressed member.
func (c combo) satisfied(pressed map[uint16]bool) bool {
	for _, group := range c.groups {
		hit := false
		for _, code := range group {
			if pressed[code] {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	return true
}

// tracked reports whether the rawcode belongs to any group of the combo.
func (c combo) tracked(code uint16) bool {
	for _, group := range c.groups {
		for _, gc := range group {
			if gc == code {
				return true
			}
		}
	}
	return false
}

// Listen starts the global keyboard hook and invokes callback each time the
// combination is completed. The callback runs on the hook goroutine and must
// not block; posting into a buffered channel is the expected shape.
func Listen(binding string, logger *zap.SugaredLogger, callback func()) error {
	c, err := Parse(binding)
	if err != nil {
		return err
	}
	logger.Infow("Hotkey registered", "combo", binding)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorw("Hotkey listener panicked", "panic", r)
			}
		}()

		evChan := gohook.Start()
		if evChan == nil {
			logger.Errorw("Keyboard hook failed to start")
			return
		}

		pressed := make(map[uint16]bool)
		for ev := range evChan {
			switch ev.Kind {
			case gohook.KeyDown:
				if !c.tracked(ev.Rawcode) {
					continue
				}
				pressed[ev.Rawcode] = true
				if c.satisfied(pressed) {
					logger.Debugw("Hotkey fired", "combo", binding)
					callback()
					// Require a full release before firing again.
					pressed = make(map[uint16]bool)
				}
			case gohook.KeyUp:
				delete(pressed, ev.Rawcode)
			}
		}
		logger.Infow("Keyboard hook channel closed")
	}()
	return nil
}
