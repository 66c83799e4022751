package httpapi

import (
	"context"
	"fmt"
	"net/http"

	"pkt.systems/tabkeeper/core"
	"pkt.systems/tabkeeper/internal/logx"
	"pkt.systems/tabkeeper/internal/recovery"
	"pkt.systems/tabkeeper/schema"
)

// RecoveryResponse is the recovery page payload.
type RecoveryResponse struct {
	Tab     schema.NodeID            `json:"tab,omitzero"`
	Valid   bool                     `json:"valid"`
	Windows []recovery.WindowSummary `json:"windows"`
}

// binding resolves the recovery binding on the loop. A zero tab selects the
// first tab showing the recovery page, if any.
func (s *Server) binding(h *core.Hierarchy, tab schema.NodeID) (*recovery.Binding, error) {
	if tab.IsZero() {
		tab = findRecoveryTab(h)
	}
	if tab.IsZero() {
		return recovery.New(schema.NodeID{}, s.ctl, s.ctl), nil
	}
	return s.ctl.RecoveryObject(tab)
}

func findRecoveryTab(h *core.Hierarchy) schema.NodeID {
	for _, win := range h.Windows() {
		tabs, _ := h.Tabs(win)
		for _, id := range tabs {
			if url, _ := h.URL(id); url == recovery.PageURL {
				return id
			}
		}
	}
	return schema.NodeID{}
}

func (s *Server) handleRecovery(w http.ResponseWriter, r *http.Request) {
	tab, err := schema.ParseNodeID(r.URL.Query().Get("tab"))
	if err != nil {
		s.fail(w, r, "http recovery rejected", err)
		return
	}
	var resp RecoveryResponse
	err = s.onLoop(r.Context(), func(h *core.Hierarchy) error {
		b, err := s.binding(h, tab)
		if err != nil {
			return err
		}
		resp = RecoveryResponse{Tab: b.Node(), Valid: b.IsValid(), Windows: b.Windows()}
		if resp.Windows == nil {
			resp.Windows = []recovery.WindowSummary{}
		}
		return nil
	})
	if err != nil {
		s.fail(w, r, "http recovery failed", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
	logx.Ctx(r.Context()).Debug("http recovery ok", "valid", resp.Valid, "windows", len(resp.Windows))
}

func (s *Server) handleRecoveryRestore(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Tab     schema.NodeID     `json:"tab"`
		Exclude []recovery.TabRef `json:"exclude"`
	}
	if err := decodeOptionalJSON(r.Body, &payload); err != nil {
		s.fail(w, r, "http recovery restore decode failed", err)
		return
	}
	s.recoveryAction(w, r, "restore", payload.Tab, func(ctx context.Context, b *recovery.Binding) error {
		return b.Restore(ctx, payload.Exclude)
	})
}

func (s *Server) handleRecoveryNewSession(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Tab schema.NodeID `json:"tab"`
	}
	if err := decodeOptionalJSON(r.Body, &payload); err != nil {
		s.fail(w, r, "http recovery new session decode failed", err)
		return
	}
	s.recoveryAction(w, r, "new session", payload.Tab, func(ctx context.Context, b *recovery.Binding) error {
		return b.NewSession(ctx)
	})
}

func (s *Server) recoveryAction(w http.ResponseWriter, r *http.Request, action string, tab schema.NodeID, fn func(context.Context, *recovery.Binding) error) {
	ctx := r.Context()
	var windows []schema.WindowID
	err := s.onLoop(ctx, func(h *core.Hierarchy) error {
		b, err := s.binding(h, tab)
		if err != nil {
			return err
		}
		before := h.Windows()
		if err := fn(ctx, b); err != nil {
			return err
		}
		windows = newWindows(before, h.Windows())
		return nil
	})
	if err != nil {
		s.fail(w, r, fmt.Sprintf("http recovery %s failed", action), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "windows": windows})
	logx.Ctx(ctx).Info("http recovery "+action+" ok", "windows", len(windows))
}

func newWindows(before, after []schema.WindowID) []schema.WindowID {
	seen := make(map[schema.WindowID]struct{}, len(before))
	for _, win := range before {
		seen[win] = struct{}{}
	}
	out := make([]schema.WindowID, 0, len(after))
	for _, win := range after {
		if _, ok := seen[win]; !ok {
			out = append(out, win)
		}
	}
	return out
}
