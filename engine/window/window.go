// Package window owns the native canvas the engine presents to: its pixel size, resize events,
// pointer input and the WebGPU surface descriptor.
package window

import (
	"fmt"
	"runtime"

	"github.com/cogentcore/webgpu/wgpu"
)

// Window provides the canvas and input events of a native window.
type Window interface {
	// SetUpdateCallback sets the function called each message loop iteration.
	//
	// Parameters:
	//   - callback: function to call (or nil to disable)
	SetUpdateCallback(callback func())

	// SetResizeCallback sets the function called when the framebuffer is resized.
	//
	// Parameters:
	//   - callback: function receiving new width and height in pixels
	SetResizeCallback(callback func(width, height int))

	// SetScrollCallback sets the callback for mouse scroll wheel events.
	//
	// Parameters:
	//   - callback: function receiving scroll delta (positive = up/zoom in, negative = down/zoom out)
	SetScrollCallback(callback func(delta float32))

	// SetKeyCallback sets the callback for key events. Escape always closes the window.
	//
	// Parameters:
	//   - callback: function receiving the key code and whether it was pressed
	SetKeyCallback(callback func(keyCode uint32, pressed bool))

	// SetDragCallback sets the callback for pointer drag events.
	//
	// Parameters:
	//   - callback: function receiving the drag phase and cursor position
	SetDragCallback(callback func(phase DragPhase, x, y int32))

	// SurfaceDescriptor returns a descriptor for creating a WebGPU surface on this window.
	//
	// Returns:
	//   - *wgpu.SurfaceDescriptor: the platform surface descriptor, or nil if the window is closed
	SurfaceDescriptor() *wgpu.SurfaceDescriptor

	// IsRunning returns true if the window is still open.
	IsRunning() bool

	// Close destroys the window.
	//
	// Returns:
	//   - error: error if the window was never created
	Close() error

	// ProcessMessages runs the message loop on the calling goroutine until the window closes,
	// invoking the update callback once per iteration.
	ProcessMessages()

	// Width returns the framebuffer width in pixels.
	Width() int

	// Height returns the framebuffer height in pixels.
	Height() int
}

// DragPhase identifies the stage of a pointer drag.
type DragPhase int

const (
	// DragStart is sent when the drag button is pressed.
	DragStart DragPhase = iota
	// DragMove is sent for every cursor move while the button is held.
	DragMove
	// DragEnd is sent when the drag button is released.
	DragEnd
)

// engineWindow holds window configuration, platform state and event callbacks.
type engineWindow struct {
	title string

	// size limits applied by the platform during interactive resizes
	maxWidth, maxHeight int
	minWidth, minHeight int

	// framebuffer size in pixels
	width, height int

	// dragButton selects the mouse button that drives drag events.
	dragButton MouseButton
	dragging   bool

	internalWindow any

	onUpdate func()
	onResize func(width, height int)
	onScroll func(delta float32)
	onKey    func(keyCode uint32, pressed bool)
	onDrag   func(phase DragPhase, x, y int32)
}

// MouseButton selects the button that drives drag events.
type MouseButton int

const (
	MouseButtonLeft MouseButton = iota
	MouseButtonRight
	MouseButtonMiddle
)

var _ Window = &engineWindow{}

// NewWindow creates and shows a native window.
// Applies default values first, then each option in order.
//
// Parameters:
//   - options: functional options to configure the window
//
// Returns:
//   - Window: the opened window
//   - error: error if the platform window could not be created
func NewWindow(options ...WindowBuilderOption) (Window, error) {
	w := &engineWindow{
		title:      "prism",
		maxWidth:   3840,
		maxHeight:  2160,
		minWidth:   320,
		minHeight:  200,
		width:      1280,
		height:     720,
		dragButton: MouseButtonMiddle,
	}
	for _, opt := range options {
		opt(w)
	}
	if err := newPlatformWindow(w); err != nil {
		return nil, fmt.Errorf("failed to create platform window: %w", err)
	}
	return w, nil
}

func (w *engineWindow) SetUpdateCallback(callback func()) {
	w.onUpdate = callback
}

func (w *engineWindow) SetResizeCallback(callback func(width, height int)) {
	w.onResize = callback
}

func (w *engineWindow) SetScrollCallback(callback func(delta float32)) {
	w.onScroll = callback
}

func (w *engineWindow) SetKeyCallback(callback func(keyCode uint32, pressed bool)) {
	w.onKey = callback
}

func (w *engineWindow) SetDragCallback(callback func(phase DragPhase, x, y int32)) {
	w.onDrag = callback
}

func (w *engineWindow) SurfaceDescriptor() *wgpu.SurfaceDescriptor {
	return platformGetSurfaceDescriptor(w)
}

func (w *engineWindow) IsRunning() bool {
	return platformIsRunningCheck(w)
}

func (w *engineWindow) Close() error {
	return platformCloseWindow(w)
}

func (w *engineWindow) ProcessMessages() {
	for w.IsRunning() {
		if succ := platformProcessMessages(w); !succ {
			break
		}

		if w.onUpdate != nil {
			w.onUpdate()
		}

		runtime.Gosched()
	}
}

func (w *engineWindow) Width() int {
	return w.width
}

func (w *engineWindow) Height() int {
	return w.height
}

// resized clamps a framebuffer size event and forwards it. Zero sizes (minimized) are dropped.
func (w *engineWindow) resized(width, height int) {
	if width <= 0 || height <= 0 {
		return
	}
	w.width, w.height = width, height
	if w.onResize != nil {
		w.onResize(width, height)
	}
}

// drag converts button and cursor events into drag phases.
func (w *engineWindow) drag(phase DragPhase, x, y int32) {
	switch phase {
	case DragStart:
		w.dragging = true
	case DragMove:
		if !w.dragging {
			return
		}
	case DragEnd:
		if !w.dragging {
			return
		}
		w.dragging = false
	}
	if w.onDrag != nil {
		w.onDrag(phase, x, y)
	}
}
