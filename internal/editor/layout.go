package editor

import (
	"fmt"

	"github.com/roach88/koppla/internal/model"
)

// AlignHoriz puts the given nodes on one horizontal line.
func (e *Editor) AlignHoriz(handles []model.Handle) error {
	return e.layout("align horizontally", handles, e.kernel.AlignHoriz)
}

// AlignVert puts the given nodes on one vertical line.
func (e *Editor) AlignVert(handles []model.Handle) error {
	return e.layout("align vertically", handles, e.kernel.AlignVert)
}

// EvenHoriz spaces the given nodes evenly between the outermost two on the
// x axis.
func (e *Editor) EvenHoriz(handles []model.Handle) error {
	return e.layout("distribute horizontally", handles, e.kernel.EvenHoriz)
}

// EvenVert spaces the given nodes evenly on the y axis.
func (e *Editor) EvenVert(handles []model.Handle) error {
	return e.layout("distribute vertically", handles, e.kernel.EvenVert)
}

// SortNodes runs the kernel's force-directed layout over the whole graph and
// persists every node's new coordinates.
func (e *Editor) SortNodes() error {
	e.mu.Lock()
	e.kernel.ForceLayout(e.force)
	handles := make([]model.Handle, e.kernel.NodeCount())
	for i := range handles {
		handles[i] = e.kernel.NodeAt(i)
	}
	err := e.persistPositionsLocked(handles)
	e.mu.Unlock()
	if err != nil {
		return fmt.Errorf("sort nodes: %w", err)
	}

	e.emit(e.worldEvent(WorldUpdated))
	return nil
}

func (e *Editor) layout(op string, handles []model.Handle, apply func([]model.Handle)) error {
	if len(handles) == 0 {
		return nil
	}

	e.mu.Lock()
	apply(handles)
	err := e.persistPositionsLocked(handles)
	e.mu.Unlock()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	e.emit(e.worldEvent(WorldUpdated))
	return nil
}

// persistPositionsLocked writes kernel coordinates back to every record.
// It keeps going past failures and reports the first.
func (e *Editor) persistPositionsLocked(handles []model.Handle) error {
	var first error
	for _, h := range handles {
		if !e.kernel.HasNode(h) {
			continue
		}
		if err := e.persistPositionLocked(h); err != nil {
			e.logger.Error("persist position failed", "handle", h, "error", err)
			if first == nil {
				first = fmt.Errorf("node %d: %w", h, err)
			}
		}
	}
	return first
}
