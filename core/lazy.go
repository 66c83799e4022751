package core

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"pkt.systems/tabkeeper/internal/logx"
	"pkt.systems/tabkeeper/internal/sessioncodec"
	"pkt.systems/tabkeeper/schema"
)

// ActivationDelay is how long an activated unloaded tab waits before its
// content is recreated. Zero still defers to the next loop turn.
const ActivationDelay = 0 * time.Millisecond

// DefaultHistoryDenylist lists URL schemes whose navigation history is not
// replayed when a tab is restored.
var DefaultHistoryDenylist = []string{"view-source", "chrome", "chrome-*"}

type activationKey schema.NodeID

type eagerRestoreKey schema.NodeID

// Mode returns whether id is restored or unloaded.
func (h *Hierarchy) Mode(id schema.NodeID) (schema.TabMode, error) {
	nd, err := h.lookup(id)
	if err != nil {
		return 0, err
	}
	return nd.mode, nil
}

// IsRestored reports whether id has live content. Unknown handles report false.
func (h *Hierarchy) IsRestored(id schema.NodeID) bool {
	nd := h.node(id)
	return nd != nil && nd.mode == schema.ModeRestored
}

// Title returns the page title from the view or the record.
func (h *Hierarchy) Title(id schema.NodeID) (string, error) {
	nd, err := h.lookup(id)
	if err != nil {
		return "", err
	}
	if nd.view != nil {
		return nd.view.Title(), nil
	}
	return nd.record.Title, nil
}

// URL returns the page address from the view or the record.
func (h *Hierarchy) URL(id schema.NodeID) (string, error) {
	nd, err := h.lookup(id)
	if err != nil {
		return "", err
	}
	if nd.view != nil {
		return nd.view.URL(), nil
	}
	return nd.record.URL, nil
}

// Icon returns the favicon from the view or the record.
func (h *Hierarchy) Icon(id schema.NodeID) ([]byte, error) {
	nd, err := h.lookup(id)
	if err != nil {
		return nil, err
	}
	if nd.view != nil {
		return nd.view.Icon(), nil
	}
	return nd.record.Icon, nil
}

// ZoomLevel returns the zoom index from the view or the record.
func (h *Hierarchy) ZoomLevel(id schema.NodeID) (int, error) {
	nd, err := h.lookup(id)
	if err != nil {
		return 0, err
	}
	if nd.view != nil {
		return nd.view.ZoomLevel(), nil
	}
	return nd.record.ZoomLevel, nil
}

// IsPinned reports whether id is pinned.
func (h *Hierarchy) IsPinned(id schema.NodeID) (bool, error) {
	nd, err := h.lookup(id)
	if err != nil {
		return false, err
	}
	return nd.pinned, nil
}

// SetPinned updates the pinned flag in either mode.
func (h *Hierarchy) SetPinned(id schema.NodeID, pinned bool) error {
	nd, err := h.lookup(id)
	if err != nil {
		return err
	}
	nd.pinned = pinned
	if nd.mode == schema.ModeUnloaded {
		nd.record.IsPinned = pinned
	}
	return nil
}

// View returns the live view of a restored tab, or nil when unloaded.
func (h *Hierarchy) View(id schema.NodeID) (View, error) {
	nd, err := h.lookup(id)
	if err != nil {
		return nil, err
	}
	return nd.view, nil
}

// Snapshot returns the record id would persist. History that cannot be
// read from a live view is logged and left out.
func (h *Hierarchy) Snapshot(ctx context.Context, id schema.NodeID) (schema.TabRecord, error) {
	nd, err := h.lookup(id)
	if err != nil {
		return schema.TabRecord{}, err
	}
	if nd.mode == schema.ModeUnloaded {
		return nd.record.Clone(), nil
	}
	rec, histErr := h.snapshotView(ctx, nd)
	if histErr != nil {
		logx.WithWindowTab(ctx, nd.window, id).Warn("tab history snapshot failed", "err", histErr)
	}
	return rec, nil
}

func (h *Hierarchy) snapshotView(ctx context.Context, nd *node) (schema.TabRecord, error) {
	view := nd.view
	rec := schema.TabRecord{
		Title:     view.Title(),
		URL:       view.URL(),
		IsPinned:  nd.pinned,
		ZoomLevel: view.ZoomLevel(),
	}
	if raw := view.Icon(); len(raw) > 0 {
		icon, err := sessioncodec.NormalizeIcon(raw)
		if err != nil {
			logx.WithWindowTab(ctx, nd.window, nd.id).Debug("tab icon dropped", "err", err)
		} else {
			rec.Icon = icon
		}
	}
	history, err := view.History(ctx)
	if err != nil {
		return rec, err
	}
	rec.History = history
	return rec, nil
}

// Unload discards the live content of id, keeping a record to recreate it.
func (h *Hierarchy) Unload(ctx context.Context, id schema.NodeID) error {
	nd, err := h.lookup(id)
	if err != nil {
		return err
	}
	if nd.mode == schema.ModeUnloaded {
		return schema.ErrAlreadyUnloaded
	}
	log := logx.WithWindowTab(ctx, nd.window, id)
	rec, err := h.snapshotView(ctx, nd)
	if err != nil {
		return fmt.Errorf("snapshot history: %w", err)
	}
	if !rec.IsValid() {
		return schema.ErrEmptySnapshot
	}
	view := nd.view
	nd.view = nil
	nd.record = rec
	nd.mode = schema.ModeUnloaded
	if err := view.Close(); err != nil {
		log.Warn("tab view close failed", "err", err)
	}
	logx.WithRecord(log, rec).Debug("tab unloaded")
	h.notify(func(o Observer) { o.OnRestoredChanged(id, false) })
	return nil
}

// Activate reacts to id becoming the current tab. Pinned tabs restore at
// once when tabs load on activation; everything else restores on a later
// loop turn, at most one pending request per tab.
func (h *Hierarchy) Activate(ctx context.Context, id schema.NodeID) error {
	nd, err := h.lookup(id)
	if err != nil {
		return err
	}
	if nd.mode == schema.ModeRestored {
		return schema.ErrAlreadyRestored
	}
	if nd.pinned && h.cfg.LoadTabsOnActivation {
		return h.restore(ctx, nd)
	}
	h.loop.Schedule(activationKey(id), ActivationDelay, func() {
		h.runDeferredRestore(id, "activation")
	})
	return nil
}

// ActivationPending reports whether id has a deferred activation queued.
func (h *Hierarchy) ActivationPending(id schema.NodeID) bool {
	return h.loop.Pending(activationKey(id))
}

// ScheduleRestore queues a restore of id after delay regardless of
// activation.
func (h *Hierarchy) ScheduleRestore(id schema.NodeID, delay time.Duration) error {
	nd, err := h.lookup(id)
	if err != nil {
		return err
	}
	if nd.mode == schema.ModeRestored {
		return schema.ErrAlreadyRestored
	}
	h.loop.Schedule(eagerRestoreKey(id), delay, func() {
		h.runDeferredRestore(id, "eager")
	})
	return nil
}

// RestoreNow recreates the content of id immediately.
func (h *Hierarchy) RestoreNow(ctx context.Context, id schema.NodeID) error {
	nd, err := h.lookup(id)
	if err != nil {
		return err
	}
	if nd.mode == schema.ModeRestored {
		return schema.ErrAlreadyRestored
	}
	return h.restore(ctx, nd)
}

func (h *Hierarchy) runDeferredRestore(id schema.NodeID, reason string) {
	nd := h.node(id)
	if nd == nil || nd.mode == schema.ModeRestored {
		logx.Ctx(h.ctx).Trace("deferred restore skipped", "tab", id.String(), "reason", reason)
		return
	}
	if err := h.restore(h.ctx, nd); err != nil {
		logx.WithWindowTab(h.ctx, nd.window, id).Warn("deferred restore failed", "reason", reason, "err", err)
	}
}

func (h *Hierarchy) restore(ctx context.Context, nd *node) error {
	if h.views == nil {
		return schema.ErrNoViewFactory
	}
	rec := nd.record
	log := logx.WithRecord(logx.WithWindowTab(ctx, nd.window, nd.id), rec)
	view, err := h.views.NewView(ctx)
	if err != nil {
		return fmt.Errorf("new view: %w", err)
	}
	if rec.URL != "" {
		if err := view.Load(ctx, rec.URL); err != nil {
			_ = view.Close()
			return fmt.Errorf("load %s: %w", rec.URL, err)
		}
	}
	if len(rec.History) > 0 && !h.historyDenied(rec.URL) {
		if err := view.RestoreHistory(ctx, rec.History); err != nil {
			log.Warn("tab history replay failed", "err", err)
		}
	}
	if err := view.SetZoomLevel(ctx, rec.ZoomLevel); err != nil {
		log.Warn("tab zoom restore failed", "err", err)
	}
	nd.view = view
	nd.record.Clear(h.cfg.DefaultZoomLevel)
	nd.mode = schema.ModeRestored
	id := nd.id
	// Requests queued before this restore must not revive a later unload.
	h.loop.Cancel(activationKey(id))
	h.loop.Cancel(eagerRestoreKey(id))
	log.Debug("tab restored")
	h.notify(func(o Observer) { o.OnRestoredChanged(id, true) })
	return nil
}

func (h *Hierarchy) historyDenied(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	for _, g := range h.denylist {
		if g.Match(scheme) {
			return true
		}
	}
	return false
}
