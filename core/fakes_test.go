package core

import (
	"context"
	"errors"
	"testing"

	"github.com/benbjohnson/clock"

	"pkt.systems/tabkeeper/internal/eventloop"
	"pkt.systems/tabkeeper/schema"
)

type fakeView struct {
	url        string
	title      string
	icon       []byte
	zoom       int
	history    []byte
	historyErr error
	loadErr    error

	loads    []string
	replayed [][]byte
	zooms    []int
	closed   bool
}

func (v *fakeView) Load(_ context.Context, url string) error {
	if v.loadErr != nil {
		return v.loadErr
	}
	v.loads = append(v.loads, url)
	v.url = url
	if v.title == "" {
		v.title = url
	}
	return nil
}

func (v *fakeView) URL() string    { return v.url }
func (v *fakeView) Title() string  { return v.title }
func (v *fakeView) Icon() []byte   { return v.icon }
func (v *fakeView) ZoomLevel() int { return v.zoom }

func (v *fakeView) SetZoomLevel(_ context.Context, level int) error {
	v.zooms = append(v.zooms, level)
	v.zoom = level
	return nil
}

func (v *fakeView) History(context.Context) ([]byte, error) {
	if v.historyErr != nil {
		return nil, v.historyErr
	}
	return v.history, nil
}

func (v *fakeView) RestoreHistory(_ context.Context, data []byte) error {
	v.replayed = append(v.replayed, data)
	v.history = data
	return nil
}

func (v *fakeView) Close() error {
	v.closed = true
	return nil
}

type fakeFactory struct {
	views []*fakeView
	err   error
}

func (f *fakeFactory) NewView(context.Context) (View, error) {
	if f.err != nil {
		return nil, f.err
	}
	v := &fakeView{}
	f.views = append(f.views, v)
	return v, nil
}

type harness struct {
	h       *Hierarchy
	loop    *eventloop.Loop
	clock   *clock.Mock
	factory *fakeFactory
}

func newHarness(t *testing.T, cfg schema.RestoreConfig) *harness {
	t.Helper()
	clk := clock.NewMock()
	loop := eventloop.New(clk, nil)
	factory := &fakeFactory{}
	h, err := NewHierarchy(cfg, HierarchyDeps{Loop: loop, Views: factory})
	if err != nil {
		t.Fatalf("new hierarchy: %v", err)
	}
	return &harness{h: h, loop: loop, clock: clk, factory: factory}
}

func (hs *harness) openTabs(t *testing.T, win schema.WindowID, n int) []schema.NodeID {
	t.Helper()
	ids := make([]schema.NodeID, 0, n)
	for i := 0; i < n; i++ {
		id, err := hs.h.OpenTab(win, -1, &fakeView{url: "https://example.com/"})
		if err != nil {
			t.Fatalf("open tab %d: %v", i, err)
		}
		ids = append(ids, id)
	}
	return ids
}

func (hs *harness) children(t *testing.T, id schema.NodeID) []schema.NodeID {
	t.Helper()
	children, err := hs.h.Children(id)
	if err != nil {
		t.Fatalf("children of %s: %v", id, err)
	}
	return children
}

func (hs *harness) parent(t *testing.T, id schema.NodeID) schema.NodeID {
	t.Helper()
	parent, err := hs.h.Parent(id)
	if err != nil {
		t.Fatalf("parent of %s: %v", id, err)
	}
	return parent
}

type recordedEvent struct {
	kind   string
	a, b   schema.NodeID
	window schema.WindowID
	index  int
	flag   bool
}

type recordingObserver struct {
	events []recordedEvent
}

func (r *recordingObserver) OnChildAdded(parent, child schema.NodeID, index int) {
	r.events = append(r.events, recordedEvent{kind: "child_added", a: parent, b: child, index: index})
}

func (r *recordingObserver) OnChildRemoved(parent, child schema.NodeID) {
	r.events = append(r.events, recordedEvent{kind: "child_removed", a: parent, b: child})
}

func (r *recordingObserver) OnParentChanged(child, parent schema.NodeID) {
	r.events = append(r.events, recordedEvent{kind: "parent_changed", a: child, b: parent})
}

func (r *recordingObserver) OnTabInserted(win schema.WindowID, node schema.NodeID, index int) {
	r.events = append(r.events, recordedEvent{kind: "tab_inserted", window: win, a: node, index: index})
}

func (r *recordingObserver) OnTabRemoved(win schema.WindowID, node schema.NodeID, index int) {
	r.events = append(r.events, recordedEvent{kind: "tab_removed", window: win, a: node, index: index})
}

func (r *recordingObserver) OnRestoredChanged(node schema.NodeID, restored bool) {
	r.events = append(r.events, recordedEvent{kind: "restored_changed", a: node, flag: restored})
}

func (r *recordingObserver) OnCurrentChanged(win schema.WindowID, node schema.NodeID) {
	r.events = append(r.events, recordedEvent{kind: "current_changed", window: win, a: node})
}

func (r *recordingObserver) count(kind string) int {
	n := 0
	for _, ev := range r.events {
		if ev.kind == kind {
			n++
		}
	}
	return n
}

var errBoom = errors.New("boom")
