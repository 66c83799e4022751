// Package recovery exposes the last saved session to the recovery page of a
// single tab.
package recovery

import (
	"context"
	"encoding/base64"
	"errors"

	"pkt.systems/tabkeeper/schema"
)

// PageURL is the address of the recovery page.
const PageURL = "tabkeeper:restore"

// PageTitle is the title shown for the recovery page.
const PageTitle = "Restore Session"

// ErrNoActions indicates the binding cannot forward requests.
var ErrNoActions = errors.New("recovery actions not configured")

// TabRef addresses one tab of the recovery record by position.
type TabRef struct {
	Window int `json:"window"`
	Tab    int `json:"tab"`
}

// TabSummary is the page-facing view of one saved tab.
type TabSummary struct {
	Window  int    `json:"window"`
	Tab     int    `json:"tab"`
	Title   string `json:"title"`
	URL     string `json:"url"`
	Icon    string `json:"icon,omitempty"`
	Pinned  bool   `json:"pinned"`
	Current bool   `json:"current"`
}

// WindowSummary lists the saved tabs of one window.
type WindowSummary struct {
	Index      int          `json:"index"`
	CurrentTab int          `json:"current_tab"`
	Tabs       []TabSummary `json:"tabs"`
}

// Source provides read access to the recovery record.
type Source interface {
	RecoveryData() schema.Session
}

// Actions carries out requests made from the recovery page. from is the tab
// hosting the page.
type Actions interface {
	RestoreSession(ctx context.Context, from schema.NodeID, exclude []TabRef) error
	StartNewSession(ctx context.Context, from schema.NodeID) error
}

// Binding ties the recovery record to the tab showing it.
type Binding struct {
	node    schema.NodeID
	source  Source
	actions Actions
}

// New constructs a binding for node.
func New(node schema.NodeID, source Source, actions Actions) *Binding {
	return &Binding{node: node, source: source, actions: actions}
}

// Node returns the tab hosting the recovery page.
func (b *Binding) Node() schema.NodeID {
	return b.node
}

// IsValid reports whether there is anything to recover.
func (b *Binding) IsValid() bool {
	if b.source == nil {
		return false
	}
	return b.source.RecoveryData().IsValid()
}

// Windows summarizes the recovery record.
func (b *Binding) Windows() []WindowSummary {
	if b.source == nil {
		return nil
	}
	return Summarize(b.source.RecoveryData())
}

// Restore asks for the saved session to be reopened without the excluded tabs.
func (b *Binding) Restore(ctx context.Context, exclude []TabRef) error {
	if b.actions == nil {
		return ErrNoActions
	}
	return b.actions.RestoreSession(ctx, b.node, exclude)
}

// NewSession discards the recovery record and starts fresh.
func (b *Binding) NewSession(ctx context.Context) error {
	if b.actions == nil {
		return ErrNoActions
	}
	return b.actions.StartNewSession(ctx, b.node)
}

// Summarize renders session for the recovery page.
func Summarize(session schema.Session) []WindowSummary {
	out := make([]WindowSummary, 0, len(session.Windows))
	for wi, win := range session.Windows {
		summary := WindowSummary{
			Index:      wi,
			CurrentTab: win.CurrentTab,
			Tabs:       make([]TabSummary, 0, len(win.Tabs)),
		}
		for ti, rec := range win.Tabs {
			tab := TabSummary{
				Window:  wi,
				Tab:     ti,
				Title:   rec.Title,
				URL:     rec.URL,
				Pinned:  rec.IsPinned,
				Current: ti == win.CurrentTab,
			}
			if tab.Title == "" {
				tab.Title = rec.URL
			}
			if len(rec.Icon) > 0 {
				tab.Icon = "data:image/png;base64," + base64.StdEncoding.EncodeToString(rec.Icon)
			}
			summary.Tabs = append(summary.Tabs, tab)
		}
		out = append(out, summary)
	}
	return out
}

// Exclude returns session without the referenced tabs. Windows left without
// tabs are dropped and current tab indexes follow the surviving tabs.
func Exclude(session schema.Session, exclude []TabRef) schema.Session {
	if len(exclude) == 0 {
		return session
	}
	skip := make(map[TabRef]struct{}, len(exclude))
	for _, ref := range exclude {
		skip[ref] = struct{}{}
	}
	out := schema.Session{Version: session.Version}
	for wi, win := range session.Windows {
		kept := make([]schema.TabRecord, 0, len(win.Tabs))
		current := -1
		before := 0
		for ti, rec := range win.Tabs {
			if _, ok := skip[TabRef{Window: wi, Tab: ti}]; ok {
				continue
			}
			if ti < win.CurrentTab {
				before++
			}
			if ti == win.CurrentTab {
				current = len(kept)
			}
			kept = append(kept, rec)
		}
		if len(kept) == 0 {
			continue
		}
		if current < 0 {
			current = before - 1
			if current < 0 {
				current = len(kept) - 1
			}
		}
		win.Tabs = kept
		win.CurrentTab = current
		out.Windows = append(out.Windows, win)
	}
	return out
}
