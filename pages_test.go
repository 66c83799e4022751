package tabkeeper

import (
	"context"
	"errors"
	"testing"

	"pkt.systems/tabkeeper/internal/recovery"
	"pkt.systems/tabkeeper/schema"
)

func TestPageViewServesInternalPagesWithoutTarget(t *testing.T) {
	backend := &memFactory{}
	view, err := pageFactory{backend: backend}.NewView(context.Background())
	if err != nil {
		t.Fatalf("new view: %v", err)
	}
	ctx := context.Background()
	if err := view.Load(ctx, recovery.PageURL); err != nil {
		t.Fatalf("load page: %v", err)
	}
	if len(backend.views) != 0 {
		t.Fatalf("expected no backend target for internal page")
	}
	if view.URL() != recovery.PageURL || view.Title() != recovery.PageTitle {
		t.Fatalf("unexpected page %q %q", view.URL(), view.Title())
	}
	if view.ZoomLevel() != schema.DefaultZoomLevel {
		t.Fatalf("expected default zoom, got %d", view.ZoomLevel())
	}
	if err := view.RestoreHistory(ctx, []byte("ignored")); err != nil {
		t.Fatalf("restore history on page: %v", err)
	}

	if err := view.SetZoomLevel(ctx, 9); err != nil {
		t.Fatalf("zoom: %v", err)
	}
	if err := view.Load(ctx, "https://web.example/"); err != nil {
		t.Fatalf("load web: %v", err)
	}
	if len(backend.views) != 1 {
		t.Fatalf("expected one backend target, got %d", len(backend.views))
	}
	inner := backend.views[0]
	if inner.zoom != 9 || view.URL() != "https://web.example/" {
		t.Fatalf("expected zoom carried to target, got %d %q", inner.zoom, view.URL())
	}

	if err := view.Load(ctx, "TabKeeper:about"); err != nil {
		t.Fatalf("load second page: %v", err)
	}
	if !inner.closed {
		t.Fatalf("expected backend target closed when switching to an internal page")
	}
	if view.Title() != "TabKeeper:about" {
		t.Fatalf("unexpected title %q", view.Title())
	}
	if err := view.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestPageViewWithoutBackend(t *testing.T) {
	view := &pageView{zoom: -1}
	ctx := context.Background()
	if err := view.Load(ctx, recovery.PageURL); err != nil {
		t.Fatalf("internal page should load without backend: %v", err)
	}
	if err := view.Load(ctx, "https://web.example/"); !errors.Is(err, schema.ErrNoViewFactory) {
		t.Fatalf("expected ErrNoViewFactory, got %v", err)
	}
}

func TestIsInternalPage(t *testing.T) {
	cases := map[string]bool{
		recovery.PageURL:      true,
		"TABKEEPER:settings":  true,
		"https://example.com": false,
		"":                    false,
	}
	for url, want := range cases {
		if got := isInternalPage(url); got != want {
			t.Fatalf("isInternalPage(%q) = %v, want %v", url, got, want)
		}
	}
}
