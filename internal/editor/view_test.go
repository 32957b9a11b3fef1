package editor

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/koppla/internal/model"
)

func TestEditor_ScreenToWorld(t *testing.T) {
	f := newFixture(t)

	f.editor.Pan(50, -20)
	f.editor.Zoom(2)

	w := f.editor.ScreenToWorld(model.Coords{X: 150, Y: 80})
	assert.Equal(t, model.Coords{X: 50, Y: 50}, w)
	assert.Equal(t, model.Coords{X: 150, Y: 80}, f.editor.WorldToScreen(w))
}

func TestEditor_ZoomClamped(t *testing.T) {
	f := newFixture(t)

	f.editor.Zoom(100)
	assert.Equal(t, MaxScale, f.editor.Scale())

	f.editor.Zoom(0.00001)
	assert.Equal(t, MinScale, f.editor.Scale())
}

func TestEditor_ZoomAtKeepsPointUnderCursor(t *testing.T) {
	tests := []struct {
		name   string
		pan    model.Coords
		factor float64
	}{
		{"zoom in from identity", model.Coords{}, 1.1},
		{"zoom out with pan", model.Coords{X: -40, Y: 25}, 1 / 1.1},
		{"wheel up", model.Coords{X: 7, Y: 3}, WheelFactor(-1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.editor.Pan(tt.pan.X, tt.pan.Y)
			cursor := model.Coords{X: 100, Y: 100}

			before := f.editor.ScreenToWorld(cursor)
			f.editor.ZoomAt(cursor, tt.factor)
			after := f.editor.ScreenToWorld(cursor)

			assert.InDelta(t, before.X, after.X, 1e-9)
			assert.InDelta(t, before.Y, after.Y, 1e-9)
		})
	}
}

func TestEditor_ViewEvents(t *testing.T) {
	f := newFixture(t)

	f.editor.Pan(1, 1)
	f.editor.Zoom(1.5)

	assert.Equal(t, []EventKind{WorldPanned, WorldUpdated, WorldZoomed, WorldUpdated}, f.kinds())
	assert.Equal(t, WorldEvent{Kind: WorldZoomed, Scale: 1.5, Pan: model.Coords{X: 1, Y: 1}}, f.events[2])
}

func TestEditor_SnapToGrid(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, 40.0, f.editor.SnapToGrid(31))
	assert.Equal(t, 20.0, f.editor.SnapToGrid(29))
	assert.Equal(t, -20.0, f.editor.SnapToGrid(-21))

	raw := New(f.kernel, f.store, WithGridSize(0))
	assert.Equal(t, 31.5, raw.SnapToGrid(31.5))
}

func TestWheelFactor(t *testing.T) {
	assert.InDelta(t, math.Exp(0.1), WheelFactor(-3), 1e-12)
	assert.InDelta(t, math.Exp(-0.1), WheelFactor(3), 1e-12)
	assert.InDelta(t, math.Exp(-0.1), WheelFactor(0), 1e-12)
}
