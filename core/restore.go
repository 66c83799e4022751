package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pkt.systems/tabkeeper/internal/logx"
	"pkt.systems/tabkeeper/internal/recovery"
	"pkt.systems/tabkeeper/internal/sessioncodec"
	"pkt.systems/tabkeeper/schema"
)

// EagerRestoreDelay is how long a tab that is not restored on activation
// waits before its content is recreated.
const EagerRestoreDelay = time.Second

// RestoreController turns session snapshots into hierarchy windows and back,
// and holds the recovery record offered to the recovery page.
type RestoreController struct {
	h    *Hierarchy
	data schema.Session
}

// NewRestoreController constructs a controller over h. recovery is the
// session read at startup, offered for restore until cleared.
func NewRestoreController(h *Hierarchy, recovery schema.Session) *RestoreController {
	return &RestoreController{h: h, data: recovery}
}

// Hierarchy returns the hierarchy the controller restores into.
func (c *RestoreController) Hierarchy() *Hierarchy {
	return c.h
}

// Restore recreates every window of session. Windows that fail are logged
// and reported together; the rest are kept.
func (c *RestoreController) Restore(ctx context.Context, session schema.Session) ([]schema.WindowID, error) {
	var (
		created []schema.WindowID
		errs    []error
	)
	for i, snap := range session.Windows {
		id, err := c.RestoreWindow(ctx, snap)
		if err != nil {
			errs = append(errs, fmt.Errorf("window %d: %w", i, err))
			continue
		}
		if id != "" {
			created = append(created, id)
		}
	}
	logx.Ctx(ctx).Info("session restored", "windows", len(created), "tabs", session.TabCount())
	return created, errors.Join(errs...)
}

// RestoreWindow recreates one window. Records with nothing to restore are
// skipped; a window left without tabs is not created.
func (c *RestoreController) RestoreWindow(ctx context.Context, snap schema.WindowSnapshot) (schema.WindowID, error) {
	cfg := c.h.Config()
	win := c.h.NewWindow(snap.Placement)
	if err := c.h.SetPlacement(win, snap.Placement, snap.VirtualDesktop); err != nil {
		return "", err
	}
	log := logx.WithWindow(ctx, win)
	var current schema.NodeID
	for i, rec := range snap.Tabs {
		if !rec.IsValid() {
			log.Debug("skipping empty tab record", "index", i)
			continue
		}
		id, err := c.h.OpenUnloadedTab(win, -1, rec)
		if err != nil {
			return "", err
		}
		if rec.IsPinned || !cfg.LoadTabsOnActivation {
			if err := c.h.ScheduleRestore(id, EagerRestoreDelay); err != nil {
				return "", err
			}
		}
		if i == snap.CurrentTab {
			current = id
		}
	}
	tabs, err := c.h.Tabs(win)
	if err != nil {
		return "", err
	}
	if len(tabs) == 0 {
		log.Debug("restored window has no tabs")
		return "", c.h.CloseWindow(win)
	}
	if current.IsZero() {
		current = tabs[0]
	}
	if err := c.h.SetCurrentTab(ctx, win, current); err != nil {
		log.Warn("current tab activation failed", "tab", current.String(), "err", err)
	}
	return win, nil
}

// Snapshot captures every window in creation order. Floating tabs are not
// part of any window and are left out.
func (c *RestoreController) Snapshot(ctx context.Context) (schema.Session, error) {
	session := schema.Session{Version: sessioncodec.CurrentVersion}
	for _, win := range c.h.Windows() {
		snap, err := c.SnapshotWindow(ctx, win)
		if err != nil {
			return schema.Session{}, err
		}
		session.Windows = append(session.Windows, snap)
	}
	return session, nil
}

// SnapshotWindow captures one window.
func (c *RestoreController) SnapshotWindow(ctx context.Context, win schema.WindowID) (schema.WindowSnapshot, error) {
	placement, desktop, err := c.h.Placement(win)
	if err != nil {
		return schema.WindowSnapshot{}, err
	}
	tabs, err := c.h.Tabs(win)
	if err != nil {
		return schema.WindowSnapshot{}, err
	}
	current, err := c.h.CurrentTab(win)
	if err != nil {
		return schema.WindowSnapshot{}, err
	}
	snap := schema.WindowSnapshot{
		Placement:      placement,
		VirtualDesktop: desktop,
		Tabs:           make([]schema.TabRecord, 0, len(tabs)),
	}
	for i, id := range tabs {
		rec, err := c.h.Snapshot(ctx, id)
		if err != nil {
			return schema.WindowSnapshot{}, err
		}
		if id == current {
			snap.CurrentTab = i
		}
		snap.Tabs = append(snap.Tabs, rec)
	}
	return snap, nil
}

// RecoveryData returns the recovery record.
func (c *RestoreController) RecoveryData() schema.Session {
	return c.data
}

// IsValid reports whether a recovery record is available.
func (c *RestoreController) IsValid() bool {
	return c.data.IsValid()
}

// ClearRecovery drops the recovery record.
func (c *RestoreController) ClearRecovery() {
	c.data = schema.Session{}
}

// RecoveryObject returns the recovery binding for the tab showing the
// recovery page.
func (c *RestoreController) RecoveryObject(id schema.NodeID) (*recovery.Binding, error) {
	if !c.h.Contains(id) {
		return nil, fmt.Errorf("%w: %s", schema.ErrTabNotFound, id)
	}
	return recovery.New(id, c, c), nil
}

// RestoreSession reopens the recovery record minus exclude, then closes the
// tab that asked for it.
func (c *RestoreController) RestoreSession(ctx context.Context, from schema.NodeID, exclude []recovery.TabRef) error {
	if !c.data.IsValid() {
		return fmt.Errorf("restore session: %w", schema.ErrEmptySnapshot)
	}
	session := recovery.Exclude(c.data, exclude)
	c.ClearRecovery()
	_, err := c.Restore(ctx, session)
	if c.h.Contains(from) {
		if closeErr := c.h.CloseTab(from); closeErr != nil {
			err = errors.Join(err, closeErr)
		}
	}
	return err
}

// StartNewSession discards the recovery record.
func (c *RestoreController) StartNewSession(ctx context.Context, from schema.NodeID) error {
	c.ClearRecovery()
	logx.WithWindowTab(ctx, "", from).Info("recovery record discarded")
	return nil
}
