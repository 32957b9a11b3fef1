package editor

import (
	"math"

	"github.com/roach88/koppla/internal/model"
)

// Scale limits for the view transform.
const (
	MinScale = 0.1
	MaxScale = 6.0
)

// WheelIntensity is the exponent step applied per wheel notch.
const WheelIntensity = 0.1

type view struct {
	scale float64
	pan   model.Coords
}

func (e *Editor) worldEvent(kind EventKind) WorldEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	return WorldEvent{Kind: kind, Scale: e.view.scale, Pan: e.view.pan}
}

// Scale returns the current zoom factor.
func (e *Editor) Scale() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.view.scale
}

// PanOffset returns the current translation in screen units.
func (e *Editor) PanOffset() model.Coords {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.view.pan
}

// Pan translates the view by (dx, dy) screen units.
func (e *Editor) Pan(dx, dy float64) {
	e.mu.Lock()
	e.view.pan.X += dx
	e.view.pan.Y += dy
	e.mu.Unlock()

	e.emit(e.worldEvent(WorldPanned), e.worldEvent(WorldUpdated))
}

// Zoom multiplies the scale by factor, clamped to [MinScale, MaxScale].
func (e *Editor) Zoom(factor float64) {
	e.mu.Lock()
	e.view.scale = clampScale(e.view.scale * factor)
	e.mu.Unlock()

	e.emit(e.worldEvent(WorldZoomed), e.worldEvent(WorldUpdated))
}

// ZoomAt zooms by factor and pans so that the world point under screen stays
// under screen.
func (e *Editor) ZoomAt(screen model.Coords, factor float64) {
	before := e.ScreenToWorld(screen)
	e.Zoom(factor)
	after := e.ScreenToWorld(screen)

	scale := e.Scale()
	e.Pan((after.X-before.X)*scale, (after.Y-before.Y)*scale)
}

// ScreenToWorld maps a screen point into world coordinates.
func (e *Editor) ScreenToWorld(p model.Coords) model.Coords {
	e.mu.Lock()
	defer e.mu.Unlock()
	return model.Coords{
		X: (p.X - e.view.pan.X) / e.view.scale,
		Y: (p.Y - e.view.pan.Y) / e.view.scale,
	}
}

// WorldToScreen is the inverse of ScreenToWorld.
func (e *Editor) WorldToScreen(p model.Coords) model.Coords {
	e.mu.Lock()
	defer e.mu.Unlock()
	return model.Coords{
		X: p.X*e.view.scale + e.view.pan.X,
		Y: p.Y*e.view.scale + e.view.pan.Y,
	}
}

// SnapToGrid rounds v to the nearest grid line. With no grid v is returned
// unchanged.
func (e *Editor) SnapToGrid(v float64) float64 {
	if e.gridSize <= 0 {
		return v
	}
	return math.Round(v/e.gridSize) * e.gridSize
}

// WheelFactor converts a wheel delta into a zoom factor: scrolling up zooms
// in by e^0.1, anything else zooms out by e^-0.1.
func WheelFactor(deltaY float64) float64 {
	if deltaY < 0 {
		return math.Exp(WheelIntensity)
	}
	return math.Exp(-WheelIntensity)
}

func clampScale(s float64) float64 {
	return max(MinScale, min(s, MaxScale))
}
