package window

import (
	"testing"

	"github.com/Carmen-Shannon/prism/engine/camera"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
)

func TestOrbitInputDrag(t *testing.T) {
	oc := camera.NewOrbitController(mgl32.Vec3{}, 10)
	in := NewOrbitInput(oc, 10)
	start := oc.Elevation()

	in.Drag(DragStart, 100, 100)
	in.Drag(DragMove, 100, 80)
	assert.InDelta(t, start+2*0.03, oc.Elevation(), 1e-6, "moving up two steps tilts up")

	before := oc.Position()
	in.Drag(DragMove, 130, 80)
	assert.NotEqual(t, before, oc.Position())
	assert.InDelta(t, start+2*0.03, oc.Elevation(), 1e-6, "horizontal travel keeps the elevation")
}

func TestOrbitInputScroll(t *testing.T) {
	oc := camera.NewOrbitController(mgl32.Vec3{}, 10)
	in := NewOrbitInput(oc, 0)
	in.Scroll(3)
	assert.Equal(t, float32(7), oc.Radius())
	in.Scroll(-100)
	assert.Equal(t, float32(107), oc.Radius())
}

func TestWindowDragPhases(t *testing.T) {
	w := &engineWindow{}
	var phases []DragPhase
	w.SetDragCallback(func(phase DragPhase, _, _ int32) { phases = append(phases, phase) })

	w.drag(DragMove, 1, 1)
	w.drag(DragEnd, 1, 1)
	w.drag(DragStart, 1, 1)
	w.drag(DragMove, 2, 2)
	w.drag(DragEnd, 2, 2)
	w.drag(DragMove, 3, 3)

	assert.Equal(t, []DragPhase{DragStart, DragMove, DragEnd}, phases)
}

func TestWindowResizeIgnoresMinimize(t *testing.T) {
	w := &engineWindow{width: 800, height: 600}
	var got [][2]int
	w.SetResizeCallback(func(width, height int) { got = append(got, [2]int{width, height}) })

	w.resized(0, 0)
	w.resized(1024, 768)
	assert.Equal(t, [][2]int{{1024, 768}}, got)
	assert.Equal(t, 1024, w.Width())
	assert.Equal(t, 768, w.Height())
}
