package tabkeeper

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"pkt.systems/tabkeeper/core"
	"pkt.systems/tabkeeper/internal/persist"
	"pkt.systems/tabkeeper/internal/recovery"
	"pkt.systems/tabkeeper/internal/sessioncodec"
	"pkt.systems/tabkeeper/schema"
)

type memView struct {
	url    string
	title  string
	zoom   int
	closed bool
}

func (v *memView) Load(_ context.Context, url string) error {
	v.url = url
	v.title = "title of " + url
	return nil
}

func (v *memView) URL() string                                  { return v.url }
func (v *memView) Title() string                                { return v.title }
func (v *memView) Icon() []byte                                 { return nil }
func (v *memView) ZoomLevel() int                               { return v.zoom }
func (v *memView) History(context.Context) ([]byte, error)      { return nil, nil }
func (v *memView) RestoreHistory(context.Context, []byte) error { return nil }

func (v *memView) SetZoomLevel(_ context.Context, level int) error {
	v.zoom = level
	return nil
}

func (v *memView) Close() error {
	v.closed = true
	return nil
}

type memFactory struct {
	views []*memView
}

func (f *memFactory) NewView(context.Context) (core.View, error) {
	v := &memView{}
	f.views = append(f.views, v)
	return v, nil
}

func savedSession() schema.Session {
	return schema.Session{Windows: []schema.WindowSnapshot{
		{
			VirtualDesktop: schema.NoVirtualDesktop,
			CurrentTab:     1,
			Tabs: []schema.TabRecord{
				{Title: "A", URL: "https://a.example/", ZoomLevel: 6},
				{Title: "B", URL: "https://b.example/", ZoomLevel: 6},
			},
		},
	}}
}

func writeSession(t *testing.T, path string, session schema.Session) {
	t.Helper()
	store, err := persist.NewStore(persist.Options{Path: path, DefaultZoomLevel: schema.DefaultZoomLevel})
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if err := store.Save(session); err != nil {
		t.Fatalf("save: %v", err)
	}
}

func readSession(t *testing.T, path string) schema.Session {
	t.Helper()
	store, err := persist.NewStore(persist.Options{Path: path, DefaultZoomLevel: schema.DefaultZoomLevel})
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	session, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	return session
}

func startBrowser(t *testing.T, cfg ServerConfig, deps ServerDeps) *Browser {
	t.Helper()
	if cfg.Restore == (schema.RestoreConfig{}) {
		cfg.Restore = schema.DefaultRestoreConfig()
	}
	if deps.Views == nil {
		deps.Views = &memFactory{}
	}
	if deps.Clock == nil {
		deps.Clock = clock.NewMock()
	}
	b, err := New(cfg, deps)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { _ = b.Stop(context.Background()) })
	return b
}

func windowURLs(t *testing.T, b *Browser) [][]string {
	t.Helper()
	var out [][]string
	err := b.Do(context.Background(), func(ctl *core.RestoreController) error {
		h := ctl.Hierarchy()
		for _, win := range h.Windows() {
			tabs, err := h.Tabs(win)
			if err != nil {
				return err
			}
			urls := make([]string, 0, len(tabs))
			for _, id := range tabs {
				url, err := h.URL(id)
				if err != nil {
					return err
				}
				urls = append(urls, url)
			}
			out = append(out, urls)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	return out
}

func TestBrowserRestoresSavedSession(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.dat")
	writeSession(t, path, savedSession())
	views := &memFactory{}
	b := startBrowser(t, ServerConfig{SessionPath: path}, ServerDeps{Views: views})

	urls := windowURLs(t, b)
	if len(urls) != 1 || len(urls[0]) != 2 || urls[0][1] != "https://b.example/" {
		t.Fatalf("unexpected restored windows %v", urls)
	}
	if err := b.Do(context.Background(), func(ctl *core.RestoreController) error {
		if ctl.IsValid() {
			return errors.New("recovery record should be cleared after restore")
		}
		return nil
	}); err != nil {
		t.Fatalf("%v", err)
	}
	if len(views.views) != 1 || views.views[0].url != "https://b.example/" {
		t.Fatalf("expected only the current tab loaded, got %d views", len(views.views))
	}

	if err := b.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	saved := readSession(t, path)
	if saved.Version != sessioncodec.CurrentVersion || len(saved.Windows) != 1 {
		t.Fatalf("unexpected saved session %+v", saved)
	}
	tabs := saved.Windows[0].Tabs
	if len(tabs) != 2 || tabs[0].URL != "https://a.example/" || tabs[1].Title != "title of https://b.example/" {
		t.Fatalf("unexpected saved tabs %+v", tabs)
	}
	if saved.Windows[0].CurrentTab != 1 {
		t.Fatalf("expected current tab 1, got %d", saved.Windows[0].CurrentTab)
	}
}

func TestBrowserRecoveryStartupKeepsFileUntilResolved(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.dat")
	writeSession(t, path, savedSession())
	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	b := startBrowser(t, ServerConfig{SessionPath: path, Startup: "recovery"}, ServerDeps{})

	urls := windowURLs(t, b)
	if len(urls) != 1 || len(urls[0]) != 1 || urls[0][0] != recovery.PageURL {
		t.Fatalf("expected a single recovery page, got %v", urls)
	}
	if err := b.SaveSession(context.Background()); err != nil {
		t.Fatalf("save: %v", err)
	}
	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(before, after) {
		t.Fatalf("expected session file untouched while recovery is pending")
	}

	err = b.Do(context.Background(), func(ctl *core.RestoreController) error {
		h := ctl.Hierarchy()
		tabs, err := h.Tabs(h.Windows()[0])
		if err != nil {
			return err
		}
		binding, err := ctl.RecoveryObject(tabs[0])
		if err != nil {
			return err
		}
		if title, _ := h.Title(tabs[0]); title != recovery.PageTitle {
			return errors.New("unexpected recovery page title " + title)
		}
		return binding.Restore(context.Background(), []recovery.TabRef{{Window: 0, Tab: 0}})
	})
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	urls = windowURLs(t, b)
	if len(urls) != 2 || len(urls[0]) != 0 {
		t.Fatalf("expected emptied page window plus restored window, got %v", urls)
	}
	if len(urls[1]) != 1 || urls[1][0] != "https://b.example/" {
		t.Fatalf("expected restored window with tab B only, got %v", urls[1])
	}
	if err := b.SaveSession(context.Background()); err != nil {
		t.Fatalf("save: %v", err)
	}
	if saved := readSession(t, path); saved.TabCount() != 1 {
		t.Fatalf("expected one saved tab, got %d", saved.TabCount())
	}
}

func TestBrowserFreshStartupDiscardsSession(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.dat")
	writeSession(t, path, savedSession())
	b := startBrowser(t, ServerConfig{SessionPath: path, Startup: "fresh"}, ServerDeps{})
	if urls := windowURLs(t, b); len(urls) != 0 {
		t.Fatalf("expected no windows, got %v", urls)
	}
	if err := b.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if saved := readSession(t, path); saved.IsValid() {
		t.Fatalf("expected empty session saved, got %+v", saved)
	}
}

func TestBrowserRejectsSecondInstance(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.dat")
	startBrowser(t, ServerConfig{SessionPath: path}, ServerDeps{})
	second, err := New(ServerConfig{SessionPath: path}, ServerDeps{Views: &memFactory{}})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := second.Start(context.Background()); !errors.Is(err, persist.ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
}

func TestBrowserAutosave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.dat")
	clk := clock.NewMock()
	b := startBrowser(t, ServerConfig{SessionPath: path, AutosaveInterval: 10 * time.Second}, ServerDeps{Clock: clk})
	err := b.Do(context.Background(), func(ctl *core.RestoreController) error {
		h := ctl.Hierarchy()
		win := h.NewWindow(schema.Placement{Width: 800, Height: 600})
		rec := schema.NewTabRecord(schema.DefaultZoomLevel)
		rec.URL = "https://saved.example/"
		_, err := h.OpenUnloadedTab(win, -1, rec)
		return err
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected no session file before autosave, got %v", err)
	}
	clk.Add(10 * time.Second)
	deadline := time.Now().Add(5 * time.Second)
	for {
		if saved := readSession(t, path); saved.TabCount() == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("autosave did not write the session")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	if _, err := New(ServerConfig{}, ServerDeps{}); err == nil {
		t.Fatalf("expected error without session path")
	}
	if _, err := New(ServerConfig{SessionPath: "x", Startup: "later"}, ServerDeps{}); !errors.Is(err, schema.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestBrowserStopBeforeStart(t *testing.T) {
	b, err := New(ServerConfig{SessionPath: filepath.Join(t.TempDir(), "s.dat")}, ServerDeps{})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := b.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := b.Wait(); err == nil {
		t.Fatalf("expected wait error before start")
	}
	if err := b.SaveSession(context.Background()); err == nil {
		t.Fatalf("expected save error before start")
	}
}
