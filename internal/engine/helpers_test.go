package engine

import (
	"io"
	"log/slog"
	"testing"

	"github.com/roach88/koppla/internal/model"
	"github.com/roach88/koppla/internal/testutil"
)

// fakeLoader hands out handles the way the kernel does: one shared counter.
type fakeLoader struct {
	next   model.Handle
	nodes  map[model.Handle][2]float64
	edges  map[model.Handle][2]model.Handle
	loaded int
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{
		nodes: make(map[model.Handle][2]float64),
		edges: make(map[model.Handle][2]model.Handle),
	}
}

func (l *fakeLoader) AllocNode(x, y float64) model.Handle {
	l.next++
	l.nodes[l.next] = [2]float64{x, y}
	return l.next
}

func (l *fakeLoader) AllocEdge(start, end model.Handle) (model.Handle, error) {
	l.next++
	l.edges[l.next] = [2]model.Handle{start, end}
	return l.next, nil
}

func (l *fakeLoader) Loaded() { l.loaded++ }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestStore builds a store on a manual clock with sequential temp ids
// t1, t2, ...
func newTestStore(t *testing.T, b Backend, opts ...Option) (*Store, *testutil.ManualClock) {
	t.Helper()
	clock := testutil.NewManualClock()
	base := []Option{
		WithLogger(quietLogger()),
		WithTimers(clock),
		WithTempIDs(NewSequenceGenerator("t")),
	}
	return New(b, append(base, opts...)...), clock
}
