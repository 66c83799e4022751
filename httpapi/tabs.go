package httpapi

import (
	"context"
	"fmt"
	"net/http"

	"pkt.systems/tabkeeper/core"
	"pkt.systems/tabkeeper/internal/logx"
	"pkt.systems/tabkeeper/schema"
)

// TabInfo describes one tab node.
type TabInfo struct {
	ID                schema.NodeID   `json:"id"`
	Window            schema.WindowID `json:"window,omitempty"`
	Index             int             `json:"index"`
	Parent            schema.NodeID   `json:"parent,omitzero"`
	Children          []schema.NodeID `json:"children,omitempty"`
	Title             string          `json:"title"`
	URL               string          `json:"url"`
	Mode              string          `json:"mode"`
	Pinned            bool            `json:"pinned"`
	ZoomLevel         int             `json:"zoom_level"`
	Current           bool            `json:"current"`
	ActivationPending bool            `json:"activation_pending,omitempty"`
}

// WindowInfo describes one window and its strip.
type WindowInfo struct {
	ID             schema.WindowID  `json:"id"`
	Placement      schema.Placement `json:"placement"`
	VirtualDesktop int              `json:"virtual_desktop"`
	CurrentTab     schema.NodeID    `json:"current_tab,omitzero"`
	Tabs           []TabInfo        `json:"tabs"`
}

func describeTab(h *core.Hierarchy, id schema.NodeID) (TabInfo, error) {
	mode, err := h.Mode(id)
	if err != nil {
		return TabInfo{}, err
	}
	info := TabInfo{ID: id, Index: -1, Mode: mode.String(), ActivationPending: h.ActivationPending(id)}
	if win, index, err := h.IndexOf(id); err == nil {
		info.Window = win
		info.Index = index
		current, _ := h.CurrentTab(win)
		info.Current = current == id
	}
	info.Parent, _ = h.Parent(id)
	info.Children, _ = h.Children(id)
	info.Title, _ = h.Title(id)
	info.URL, _ = h.URL(id)
	info.Pinned, _ = h.IsPinned(id)
	info.ZoomLevel, _ = h.ZoomLevel(id)
	return info, nil
}

func describeWindow(h *core.Hierarchy, win schema.WindowID) (WindowInfo, error) {
	placement, desktop, err := h.Placement(win)
	if err != nil {
		return WindowInfo{}, err
	}
	tabs, err := h.Tabs(win)
	if err != nil {
		return WindowInfo{}, err
	}
	current, _ := h.CurrentTab(win)
	info := WindowInfo{
		ID:             win,
		Placement:      placement,
		VirtualDesktop: desktop,
		CurrentTab:     current,
		Tabs:           make([]TabInfo, 0, len(tabs)),
	}
	for _, id := range tabs {
		tab, err := describeTab(h, id)
		if err != nil {
			return WindowInfo{}, err
		}
		info.Tabs = append(info.Tabs, tab)
	}
	return info, nil
}

func (s *Server) handleListWindows(w http.ResponseWriter, r *http.Request) {
	var windows []WindowInfo
	err := s.onLoop(r.Context(), func(h *core.Hierarchy) error {
		windows = make([]WindowInfo, 0)
		for _, win := range h.Windows() {
			info, err := describeWindow(h, win)
			if err != nil {
				return err
			}
			windows = append(windows, info)
		}
		return nil
	})
	if err != nil {
		s.fail(w, r, "http windows list failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"windows": windows})
	logx.Ctx(r.Context()).Debug("http windows list ok", "count", len(windows))
}

func (s *Server) handleCreateWindow(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Placement      schema.Placement `json:"placement"`
		VirtualDesktop int              `json:"virtual_desktop"`
	}
	if err := decodeOptionalJSON(r.Body, &payload); err != nil {
		s.fail(w, r, "http window decode failed", err)
		return
	}
	var info WindowInfo
	err := s.onLoop(r.Context(), func(h *core.Hierarchy) error {
		win := h.NewWindow(payload.Placement)
		if err := h.SetPlacement(win, payload.Placement, payload.VirtualDesktop); err != nil {
			return err
		}
		var err error
		info, err = describeWindow(h, win)
		return err
	})
	if err != nil {
		s.fail(w, r, "http window create failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, info)
	logx.WithWindow(r.Context(), info.ID).Info("http window created")
}

func (s *Server) handleCloseWindow(w http.ResponseWriter, r *http.Request) {
	win := schema.WindowID(trimmed(r.PathValue("window")))
	err := s.onLoop(r.Context(), func(h *core.Hierarchy) error {
		return h.CloseWindow(win)
	})
	if err != nil {
		s.fail(w, r, "http window close failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	logx.WithWindow(r.Context(), win).Info("http window closed")
}

func (s *Server) handleOpenTab(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Window     schema.WindowID `json:"window"`
		URL        string          `json:"url"`
		Title      string          `json:"title"`
		Parent     schema.NodeID   `json:"parent"`
		Index      *int            `json:"index"`
		Pinned     bool            `json:"pinned"`
		Background bool            `json:"background"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		s.fail(w, r, "http tab decode failed", fmt.Errorf("%w: %v", schema.ErrInvalidArgument, err))
		return
	}
	if trimmed(payload.URL) == "" {
		s.fail(w, r, "http tab open rejected", fmt.Errorf("%w: url is required", schema.ErrInvalidArgument))
		return
	}
	ctx := r.Context()
	var info TabInfo
	err := s.onLoop(ctx, func(h *core.Hierarchy) error {
		cfg := h.Config()
		var parentWin schema.WindowID
		if !payload.Parent.IsZero() {
			var err error
			if parentWin, err = h.Window(payload.Parent); err != nil {
				return err
			}
		}
		win := payload.Window
		if win == "" {
			win = parentWin
		}
		if win == "" {
			return fmt.Errorf("%w: window is required", schema.ErrInvalidArgument)
		}
		pos := -1
		switch {
		case payload.Index != nil:
			pos = *payload.Index
		case parentWin == win:
			childPos, err := h.ChildInsertPosition(payload.Parent)
			if err != nil {
				return err
			}
			pos = childPos
		}
		rec := schema.NewTabRecord(cfg.DefaultZoomLevel)
		rec.URL = trimmed(payload.URL)
		rec.Title = payload.Title
		rec.IsPinned = payload.Pinned
		id, err := h.OpenUnloadedTab(win, pos, rec)
		if err != nil {
			return err
		}
		if !payload.Parent.IsZero() {
			if err := h.AddChild(payload.Parent, id, -1); err != nil {
				_ = h.CloseTab(id)
				return err
			}
		}
		switch {
		case !payload.Background:
			if err := h.SetCurrentTab(ctx, win, id); err != nil {
				return err
			}
		case !cfg.LoadTabsOnActivation:
			if err := h.ScheduleRestore(id, core.EagerRestoreDelay); err != nil {
				return err
			}
		}
		info, err = describeTab(h, id)
		return err
	})
	if err != nil {
		s.fail(w, r, "http tab open failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, info)
	logx.WithWindowTab(ctx, info.Window, info.ID).Info("http tab opened", "background", payload.Background)
}

func (s *Server) handleGetTab(w http.ResponseWriter, r *http.Request) {
	s.tabAction(w, r, "get", http.StatusOK, func(context.Context, *core.Hierarchy, schema.NodeID) error {
		return nil
	})
}

func (s *Server) handleCloseTab(w http.ResponseWriter, r *http.Request) {
	id, err := tabParam(r)
	if err != nil {
		s.fail(w, r, "http tab close rejected", err)
		return
	}
	err = s.onLoop(r.Context(), func(h *core.Hierarchy) error {
		return h.CloseTab(id)
	})
	if err != nil {
		s.fail(w, r, "http tab close failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	logx.WithWindowTab(r.Context(), "", id).Info("http tab closed")
}

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	s.tabAction(w, r, "activate", http.StatusOK, func(ctx context.Context, h *core.Hierarchy, id schema.NodeID) error {
		win, err := h.Window(id)
		if err != nil {
			return err
		}
		if win == "" {
			return schema.ErrNotAttached
		}
		return h.SetCurrentTab(ctx, win, id)
	})
}

func (s *Server) handleUnload(w http.ResponseWriter, r *http.Request) {
	s.tabAction(w, r, "unload", http.StatusOK, func(ctx context.Context, h *core.Hierarchy, id schema.NodeID) error {
		return h.Unload(ctx, id)
	})
}

func (s *Server) handleRestoreTab(w http.ResponseWriter, r *http.Request) {
	s.tabAction(w, r, "restore", http.StatusOK, func(ctx context.Context, h *core.Hierarchy, id schema.NodeID) error {
		return h.RestoreNow(ctx, id)
	})
}

func (s *Server) handlePin(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Pinned bool `json:"pinned"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		s.fail(w, r, "http pin decode failed", fmt.Errorf("%w: %v", schema.ErrInvalidArgument, err))
		return
	}
	s.tabAction(w, r, "pin", http.StatusOK, func(_ context.Context, h *core.Hierarchy, id schema.NodeID) error {
		return h.SetPinned(id, payload.Pinned)
	})
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Window schema.WindowID `json:"window"`
		Index  int             `json:"index"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		s.fail(w, r, "http move decode failed", fmt.Errorf("%w: %v", schema.ErrInvalidArgument, err))
		return
	}
	s.tabAction(w, r, "move", http.StatusOK, func(_ context.Context, h *core.Hierarchy, id schema.NodeID) error {
		win, err := h.Window(id)
		if err != nil {
			return err
		}
		if payload.Window == "" || payload.Window == win {
			return h.MoveTab(id, payload.Index)
		}
		return h.MoveToWindow(id, payload.Window, payload.Index)
	})
}

func (s *Server) handleParent(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Parent schema.NodeID `json:"parent"`
		Index  *int          `json:"index"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		s.fail(w, r, "http parent decode failed", fmt.Errorf("%w: %v", schema.ErrInvalidArgument, err))
		return
	}
	s.tabAction(w, r, "parent", http.StatusOK, func(_ context.Context, h *core.Hierarchy, id schema.NodeID) error {
		switch {
		case payload.Parent.IsZero():
			return h.RemoveParent(id)
		case payload.Index != nil:
			return h.AddChild(payload.Parent, id, *payload.Index)
		default:
			return h.SetParent(id, payload.Parent)
		}
	})
}

func (s *Server) handleDetach(w http.ResponseWriter, r *http.Request) {
	s.tabAction(w, r, "detach", http.StatusOK, func(_ context.Context, h *core.Hierarchy, id schema.NodeID) error {
		return h.Detach(id)
	})
}

// tabAction runs fn for the tab named in the path and responds with the
// resulting tab description.
func (s *Server) tabAction(w http.ResponseWriter, r *http.Request, action string, status int, fn func(context.Context, *core.Hierarchy, schema.NodeID) error) {
	id, err := tabParam(r)
	if err != nil {
		s.fail(w, r, "http tab "+action+" rejected", err)
		return
	}
	ctx := r.Context()
	var info TabInfo
	err = s.onLoop(ctx, func(h *core.Hierarchy) error {
		if err := fn(ctx, h, id); err != nil {
			return err
		}
		var err error
		info, err = describeTab(h, id)
		return err
	})
	if err != nil {
		s.fail(w, r, "http tab "+action+" failed", err)
		return
	}
	writeJSON(w, status, info)
	logx.WithWindowTab(ctx, info.Window, id).Debug("http tab "+action+" ok", "mode", info.Mode)
}
