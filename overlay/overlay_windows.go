//go:build windows

package overlay

import (
	"fmt"
	"runtime"
	"sync"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	user32               = syscall.NewLazyDLL("user32.dll")
	procCreateWindowEx   = user32.NewProc("CreateWindowExW")
	procDefWindowProc    = user32.NewProc("DefWindowProcW")
	procDestroyWindow    = user32.NewProc("DestroyWindow")
	procShowWindow       = user32.NewProc("ShowWindow")
	procSetWindowPos     = user32.NewProc("SetWindowPos")
	procRegisterClassEx  = user32.NewProc("RegisterClassExW")
	procGetMessage       = user32.NewProc("GetMessageW")
	procDispatchMessage  = user32.NewProc("DispatchMessageW")
	procTranslateMessage = user32.NewProc("TranslateMessage")
	procPostQuitMessage  = user32.NewProc("PostQuitMessage")
	procPostMessage      = user32.NewProc("PostMessageW")
	procBeginPaint       = user32.NewProc("BeginPaint")
	procEndPaint         = user32.NewProc("EndPaint")
	procDrawText         = user32.NewProc("DrawTextW")
	procInvalidateRect   = user32.NewProc("InvalidateRect")
	procLoadCursor       = user32.NewProc("LoadCursorW")
)

const (
	wsPopup          = 0x80000000
	wsExNoActivate   = 0x08000000
	wsExToolWindow   = 0x00000080
	wsExTopmost      = 0x00000008
	wmDestroy        = 0x0002
	wmClose          = 0x0010
	wmPaint          = 0x000F
	wmUser           = 0x0400
	wmShowText       = wmUser + 1
	wmHideOverlay    = wmUser + 2
	swHide           = 0
	swShowNoActivate = 4
	swpNoActivate    = 0x0010
	swpNoMove        = 0x0002
	swpNoSize        = 0x0001
	hwndTopmost      = ^uintptr(0) // (HWND)-1
	dtWordbreak      = 0x00000010
	dtNoPrefix       = 0x00000800
	colorWindow      = 5
	idcArrow         = 32512
	overlayClassName = "ChatLiveTranslateOverlay"
)

type wndClassEx struct {
	CbSize        uint32
	Style         uint32
	LpfnWndProc   uintptr
	CbClsExtra    int32
	CbWndExtra    int32
	HInstance     syscall.Handle
	HIcon         syscall.Handle
	HCursor       syscall.Handle
	HbrBackground syscall.Handle
	LpszMenuName  *uint16
	LpszClassName *uint16
	HIconSm       syscall.Handle
}

type paintStruct struct {
	Hdc         syscall.Handle
	FErase      int32
	RcPaint     rect
	FRestore    int32
	FIncUpdate  int32
	RgbReserved [32]byte
}

type rect struct {
	Left, Top, Right, Bottom int32
}

type point struct {
	X, Y int32
}

type msg struct {
	Hwnd    syscall.Handle
	Message uint32
	WParam  uintptr
	LParam  uintptr
	Time    uint32
	Pt      point
}

// windowsRenderer is a persistent topmost, non-activating popup window. It
// lives on its own locked OS thread running a Win32 message loop; Render and
// Clear only post messages to it, so callers never block on the UI.
type windowsRenderer struct {
	hwnd   syscall.Handle
	width  int32
	height int32
	done   chan struct{}

	mu   sync.Mutex
	text string
}

// Only one overlay window per process; wndProc callbacks have no closure
// context, so the live renderer is reachable through this pointer.
var (
	activeMu       sync.Mutex
	activeRenderer *windowsRenderer
)

// NewRenderer creates the overlay window at the given virtual-screen
// position and starts its message loop.
func NewRenderer(x, y, width, height int) (Renderer, error) {
	r := &windowsRenderer{width: int32(width), height: int32(height), done: make(chan struct{})}

	activeMu.Lock()
	if activeRenderer != nil {
		activeMu.Unlock()
		return nil, fmt.Errorf("overlay window already exists")
	}
	activeRenderer = r
	activeMu.Unlock()

	ready := make(chan error, 1)
	go r.run(int32(x), int32(y), ready)
	if err := <-ready; err != nil {
		activeMu.Lock()
		activeRenderer = nil
		activeMu.Unlock()
		return nil, err
	}
	return r, nil
}

func (r *windowsRenderer) run(x, y int32, ready chan<- error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(r.done)

	if err := registerOverlayClass(); err != nil {
		ready <- err
		return
	}

	className, _ := windows.UTF16PtrFromString(overlayClassName)
	windowName, _ := windows.UTF16PtrFromString("Chat Live Translate")

	// Created hidden; WM_SHOWTEXT makes it visible without stealing focus.
	hwnd, _, _ := procCreateWindowEx.Call(
		wsExNoActivate|wsExToolWindow|wsExTopmost,
		uintptr(unsafe.Pointer(className)),
		uintptr(unsafe.Pointer(windowName)),
		wsPopup,
		uintptr(x), uintptr(y), uintptr(r.width), uintptr(r.height),
		0, 0, 0, 0,
	)
	if hwnd == 0 {
		ready <- fmt.Errorf("create overlay window: %w", syscall.GetLastError())
		return
	}
	r.hwnd = syscall.Handle(hwnd)
	procSetWindowPos.Call(hwnd, hwndTopmost, 0, 0, 0, 0, swpNoMove|swpNoSize|swpNoActivate)
	ready <- nil

	var m msg
	for {
		ret, _, _ := procGetMessage.Call(uintptr(unsafe.Pointer(&m)), 0, 0, 0)
		if int32(ret) <= 0 { // WM_QUIT or error
			return
		}
		procTranslateMessage.Call(uintptr(unsafe.Pointer(&m)))
		procDispatchMessage.Call(uintptr(unsafe.Pointer(&m)))
	}
}

func (r *windowsRenderer) Render(text string) error {
	r.mu.Lock()
	r.text = text
	r.mu.Unlock()
	procPostMessage.Call(uintptr(r.hwnd), wmShowText, 0, 0)
	return nil
}

func (r *windowsRenderer) Clear() error {
	r.mu.Lock()
	r.text = ""
	r.mu.Unlock()
	procPostMessage.Call(uintptr(r.hwnd), wmHideOverlay, 0, 0)
	return nil
}

func (r *windowsRenderer) Close() error {
	procPostMessage.Call(uintptr(r.hwnd), wmClose, 0, 0)
	<-r.done

	activeMu.Lock()
	if activeRenderer == r {
		activeRenderer = nil
	}
	activeMu.Unlock()
	return nil
}

func (r *windowsRenderer) currentText() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.text
}

func overlayWndProc(hwnd syscall.Handle, message uint32, wParam, lParam uintptr) uintptr {
	activeMu.Lock()
	r := activeRenderer
	activeMu.Unlock()

	switch message {
	case wmPaint:
		var ps paintStruct
		hdc, _, _ := procBeginPaint.Call(uintptr(hwnd), uintptr(unsafe.Pointer(&ps)))
		if r != nil {
			rc := rect{Left: 8, Top: 6, Right: r.width - 8, Bottom: r.height - 6}
			textPtr, _ := windows.UTF16PtrFromString(r.currentText())
			procDrawText.Call(
				hdc,
				uintptr(unsafe.Pointer(textPtr)),
				uintptr(^uint32(0)), // -1: null-terminated
				uintptr(unsafe.Pointer(&rc)),
				dtWordbreak|dtNoPrefix,
			)
		}
		procEndPaint.Call(uintptr(hwnd), uintptr(unsafe.Pointer(&ps)))
		return 0

	case wmShowText:
		procShowWindow.Call(uintptr(hwnd), swShowNoActivate)
		procInvalidateRect.Call(uintptr(hwnd), 0, 1)
		return 0

	case wmHideOverlay:
		procShowWindow.Call(uintptr(hwnd), swHide)
		return 0

	case wmClose:
		procDestroyWindow.Call(uintptr(hwnd))
		return 0

	case wmDestroy:
		procPostQuitMessage.Call(0)
		return 0
	}

	ret, _, _ := procDefWindowProc.Call(uintptr(hwnd), uintptr(message), wParam, lParam)
	return ret
}

var classOnce sync.Once

func registerOverlayClass() error {
	var err error
	classOnce.Do(func() {
		className, _ := windows.UTF16PtrFromString(overlayClassName)
		cursor, _, _ := procLoadCursor.Call(0, idcArrow)
		wc := wndClassEx{
			CbSize:        uint32(unsafe.Sizeof(wndClassEx{})),
			LpfnWndProc:   syscall.NewCallback(overlayWndProc),
			HCursor:       syscall.Handle(cursor),
			HbrBackground: syscall.Handle(colorWindow + 1),
			LpszClassName: className,
		}
		if atom, _, _ := procRegisterClassEx.Call(uintptr(unsafe.Pointer(&wc))); atom == 0 {
			err = fmt.Errorf("register overlay window class: %w", syscall.GetLastError())
		}
	})
	return err
}
