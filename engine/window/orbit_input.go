package window

import "github.com/Carmen-Shannon/prism/engine/camera"

// OrbitInput drives an orbit controller from window drag and scroll events.
type OrbitInput struct {
	controller    *camera.OrbitController
	pixelsPerStep float32
	lastX, lastY  int32
}

// NewOrbitInput creates an orbit input for controller.
//
// Parameters:
//   - controller: the controller to move
//   - pixelsPerStep: cursor travel in pixels that equals one orbit step; values <= 0 use 1
//
// Returns:
//   - *OrbitInput: the input adapter
func NewOrbitInput(controller *camera.OrbitController, pixelsPerStep float32) *OrbitInput {
	if controller == nil {
		panic("window: NewOrbitInput requires a non-nil controller")
	}
	if pixelsPerStep <= 0 {
		pixelsPerStep = 1
	}
	return &OrbitInput{controller: controller, pixelsPerStep: pixelsPerStep}
}

// Attach installs the drag and scroll callbacks on w, replacing previous ones.
func (o *OrbitInput) Attach(w Window) {
	w.SetDragCallback(o.Drag)
	w.SetScrollCallback(o.Scroll)
}

// Drag orbits by the cursor travel since the previous event. Moving the cursor up tilts the eye up.
func (o *OrbitInput) Drag(phase DragPhase, x, y int32) {
	if phase == DragMove {
		dx := float32(x-o.lastX) / o.pixelsPerStep
		dy := float32(o.lastY-y) / o.pixelsPerStep
		if dx != 0 || dy != 0 {
			o.controller.Orbit(dx, dy)
		}
	}
	o.lastX, o.lastY = x, y
}

// Scroll zooms toward the target for positive deltas.
func (o *OrbitInput) Scroll(delta float32) {
	o.controller.Zoom(delta)
}
