package sessioncodec

import (
	"bytes"

	"pkt.systems/tabkeeper/schema"
)

// readVersion3 decodes the legacy layout: per window an opaque tabs blob
// and an opaque window-state blob, each length prefixed.
func readVersion3(rd *reader, opts Options) []schema.WindowSnapshot {
	count := rd.count("window", 8)
	windows := make([]schema.WindowSnapshot, 0, count)
	for i := 0; i < count && rd.err == nil; i++ {
		tabsState := rd.bytes()
		windowState := rd.bytes()
		if rd.err != nil {
			break
		}
		win := schema.NewWindowSnapshot()
		if opts.VirtualDesktops {
			ws := newReader(windowState)
			win.Placement.State = ws.bytes()
			win.VirtualDesktop = int(ws.int32())
			if ws.err != nil {
				// Keep the tabs; only the desktop hint is lost.
				opts.logger().Debug("legacy window state unreadable", "window", i, "err", ws.err)
				win.Placement.State = windowState
				win.VirtualDesktop = schema.NoVirtualDesktop
			}
		} else {
			win.Placement.State = windowState
		}

		ts := newReader(tabsState)
		tabs := ts.count("tab", minRecordSize)
		win.Tabs = make([]schema.TabRecord, 0, tabs)
		for j := 0; j < tabs && ts.err == nil; j++ {
			win.Tabs = append(win.Tabs, readRecord(ts, opts.DefaultZoomLevel))
		}
		win.CurrentTab = int(ts.int32())
		if ts.err != nil {
			rd.err = ts.err
			break
		}
		windows = append(windows, win)
	}
	return windows
}

func writeVersion3(wr *writer, session schema.Session, virtualDesktops bool) {
	wr.int32(Version3)
	wr.int(len(session.Windows))
	for _, win := range session.Windows {
		var tabs bytes.Buffer
		tw := newWriter(&tabs)
		tw.int(len(win.Tabs))
		for _, tab := range win.Tabs {
			writeRecord(tw, tab)
		}
		tw.int(win.CurrentTab)

		var state bytes.Buffer
		sw := newWriter(&state)
		if virtualDesktops {
			sw.bytes(win.Placement.State)
			sw.int(win.VirtualDesktop)
		} else {
			sw.write(win.Placement.State)
		}
		if tw.err != nil {
			wr.err = tw.err
			return
		}
		if sw.err != nil {
			wr.err = sw.err
			return
		}
		wr.bytes(tabs.Bytes())
		wr.bytes(state.Bytes())
	}
}
