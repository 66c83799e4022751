package tabkeeper

import (
	"context"
	"strings"

	"pkt.systems/tabkeeper/core"
	"pkt.systems/tabkeeper/internal/recovery"
	"pkt.systems/tabkeeper/schema"
)

// internalScheme prefixes pages rendered without a browser target.
const internalScheme = "tabkeeper:"

func isInternalPage(url string) bool {
	return strings.HasPrefix(strings.ToLower(url), internalScheme)
}

func internalPageTitle(url string) string {
	if url == recovery.PageURL {
		return recovery.PageTitle
	}
	return url
}

// pageFactory hands out views that show internal pages in place and open a
// backend target only for web content.
type pageFactory struct {
	backend core.ViewFactory
}

func (f pageFactory) NewView(context.Context) (core.View, error) {
	return &pageView{backend: f.backend, zoom: -1}, nil
}

type pageView struct {
	backend core.ViewFactory
	inner   core.View
	page    string
	zoom    int
}

func (v *pageView) target(ctx context.Context) (core.View, error) {
	if v.inner != nil {
		return v.inner, nil
	}
	if v.backend == nil {
		return nil, schema.ErrNoViewFactory
	}
	inner, err := v.backend.NewView(ctx)
	if err != nil {
		return nil, err
	}
	if v.zoom >= 0 {
		if err := inner.SetZoomLevel(ctx, v.zoom); err != nil {
			_ = inner.Close()
			return nil, err
		}
	}
	v.inner = inner
	return inner, nil
}

func (v *pageView) Load(ctx context.Context, url string) error {
	if isInternalPage(url) {
		if v.inner != nil {
			_ = v.inner.Close()
			v.inner = nil
		}
		v.page = url
		return nil
	}
	inner, err := v.target(ctx)
	if err != nil {
		return err
	}
	v.page = ""
	return inner.Load(ctx, url)
}

func (v *pageView) URL() string {
	if v.inner != nil {
		return v.inner.URL()
	}
	return v.page
}

func (v *pageView) Title() string {
	if v.inner != nil {
		return v.inner.Title()
	}
	if v.page == "" {
		return ""
	}
	return internalPageTitle(v.page)
}

func (v *pageView) Icon() []byte {
	if v.inner != nil {
		return v.inner.Icon()
	}
	return nil
}

func (v *pageView) ZoomLevel() int {
	if v.inner != nil {
		return v.inner.ZoomLevel()
	}
	if v.zoom < 0 {
		return schema.DefaultZoomLevel
	}
	return v.zoom
}

func (v *pageView) SetZoomLevel(ctx context.Context, level int) error {
	v.zoom = schema.ClampZoomLevel(level)
	if v.inner != nil {
		return v.inner.SetZoomLevel(ctx, v.zoom)
	}
	return nil
}

func (v *pageView) History(ctx context.Context) ([]byte, error) {
	if v.inner != nil {
		return v.inner.History(ctx)
	}
	return nil, nil
}

func (v *pageView) RestoreHistory(ctx context.Context, data []byte) error {
	if v.inner == nil && v.page != "" {
		return nil
	}
	inner, err := v.target(ctx)
	if err != nil {
		return err
	}
	return inner.RestoreHistory(ctx, data)
}

func (v *pageView) Close() error {
	if v.inner == nil {
		return nil
	}
	err := v.inner.Close()
	v.inner = nil
	return err
}
