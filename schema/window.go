package schema

// NoVirtualDesktop marks a window without a virtual desktop hint.
const NoVirtualDesktop = -1

// Placement describes window geometry plus an opaque platform state blob.
type Placement struct {
	X          int    `json:"x"`
	Y          int    `json:"y"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	Maximized  bool   `json:"maximized,omitempty"`
	Fullscreen bool   `json:"fullscreen,omitempty"`
	State      []byte `json:"state,omitempty"`
}

// WindowSnapshot captures one window for the session file.
type WindowSnapshot struct {
	Placement      Placement
	VirtualDesktop int
	CurrentTab     int
	Tabs           []TabRecord
}

// NewWindowSnapshot returns a snapshot with no tabs and no desktop hint.
func NewWindowSnapshot() WindowSnapshot {
	return WindowSnapshot{VirtualDesktop: NoVirtualDesktop}
}

// Session is an ordered list of window snapshots.
type Session struct {
	// Version is the on-disk format the session was decoded from.
	Version int
	Windows []WindowSnapshot
}

// IsValid reports whether the session has anything to restore.
func (s Session) IsValid() bool {
	return len(s.Windows) > 0
}

// TabCount returns the number of tabs across all windows.
func (s Session) TabCount() int {
	n := 0
	for _, w := range s.Windows {
		n += len(w.Tabs)
	}
	return n
}
