package chromeview

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"pkt.systems/tabkeeper/schema"
)

const faviconScript = `(async () => {
  const link = document.querySelector('link[rel~="icon"]');
  const href = link ? link.href : new URL('/favicon.ico', location.href).href;
  try {
    const res = await fetch(href);
    if (!res.ok) return "";
    const bytes = new Uint8Array(await res.arrayBuffer());
    let bin = "";
    for (const b of bytes) bin += String.fromCharCode(b);
    return btoa(bin);
  } catch (e) {
    return "";
  }
})()`

// View is one Chrome target.
type View struct {
	ctx    context.Context
	cancel context.CancelFunc

	url   string
	title string
	icon  []byte
	zoom  int
}

// historyBlob is the encoded navigation history.
type historyBlob struct {
	Current int            `json:"current"`
	Entries []historyEntry `json:"entries"`
}

type historyEntry struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
}

// run executes actions on the target, canceled by either the target or ctx.
func (v *View) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(v.ctx)
	defer cancel()
	if ctx != nil {
		stop := context.AfterFunc(ctx, cancel)
		defer stop()
	}
	return chromedp.Run(runCtx, actions...)
}

// Load navigates to url and refreshes title and icon.
func (v *View) Load(ctx context.Context, url string) error {
	if err := v.run(ctx, chromedp.Navigate(url)); err != nil {
		return err
	}
	return v.refresh(ctx)
}

func (v *View) refresh(ctx context.Context) error {
	var location, title, icon string
	err := v.run(ctx,
		chromedp.Location(&location),
		chromedp.Title(&title),
		chromedp.Evaluate(faviconScript, &icon, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
			return p.WithAwaitPromise(true)
		}),
	)
	if err != nil {
		return err
	}
	v.url = location
	v.title = title
	v.icon = nil
	if icon != "" {
		if data, err := base64.StdEncoding.DecodeString(icon); err == nil {
			v.icon = data
		}
	}
	return nil
}

func (v *View) URL() string   { return v.url }
func (v *View) Title() string { return v.title }
func (v *View) Icon() []byte  { return v.icon }

// ZoomLevel returns the last level applied, or the default.
func (v *View) ZoomLevel() int {
	if v.zoom < 0 {
		return schema.DefaultZoomLevel
	}
	return v.zoom
}

// SetZoomLevel applies the zoom factor for level to the page.
func (v *View) SetZoomLevel(ctx context.Context, level int) error {
	level = schema.ClampZoomLevel(level)
	factor := schema.ZoomFactor(level)
	err := v.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return emulation.SetPageScaleFactor(factor).Do(ctx)
	}))
	if err != nil {
		return err
	}
	v.zoom = level
	return nil
}

// History encodes the navigation entries of the target.
func (v *View) History(ctx context.Context) ([]byte, error) {
	var (
		current int64
		entries []*page.NavigationEntry
	)
	err := v.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		current, entries, err = page.GetNavigationHistory().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, err
	}
	blob := historyBlob{Current: int(current)}
	for i, entry := range entries {
		if entry == nil || entry.URL == "" || entry.URL == "about:blank" {
			if i < int(current) {
				blob.Current--
			}
			continue
		}
		blob.Entries = append(blob.Entries, historyEntry{URL: entry.URL, Title: entry.Title})
	}
	if len(blob.Entries) == 0 {
		return nil, nil
	}
	if blob.Current < 0 || blob.Current >= len(blob.Entries) {
		blob.Current = len(blob.Entries) - 1
	}
	return json.Marshal(blob)
}

// RestoreHistory replays the encoded entries and returns to the current one.
func (v *View) RestoreHistory(ctx context.Context, data []byte) error {
	blob, err := decodeHistory(data)
	if err != nil {
		return err
	}
	if len(blob.Entries) == 0 {
		return nil
	}
	actions := make([]chromedp.Action, 0, len(blob.Entries)+1)
	for _, entry := range blob.Entries {
		actions = append(actions, chromedp.Navigate(entry.URL))
	}
	if blob.Current < len(blob.Entries)-1 {
		target := blob.Current
		actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
			_, entries, err := page.GetNavigationHistory().Do(ctx)
			if err != nil {
				return err
			}
			offset := len(entries) - len(blob.Entries)
			idx := offset + target
			if idx < 0 || idx >= len(entries) {
				return fmt.Errorf("history entry %d out of range", target)
			}
			return page.NavigateToHistoryEntry(entries[idx].ID).Do(ctx)
		}))
	}
	if err := v.run(ctx, actions...); err != nil {
		return err
	}
	return v.refresh(ctx)
}

func decodeHistory(data []byte) (historyBlob, error) {
	var blob historyBlob
	if len(data) == 0 {
		return blob, nil
	}
	if err := json.Unmarshal(data, &blob); err != nil {
		return historyBlob{}, fmt.Errorf("decode history: %w", err)
	}
	if blob.Current < 0 || blob.Current >= len(blob.Entries) {
		blob.Current = len(blob.Entries) - 1
	}
	return blob, nil
}

// Close closes the target.
func (v *View) Close() error {
	v.cancel()
	return nil
}
