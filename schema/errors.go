package schema

import "errors"

var (
	// ErrTabNotFound indicates a node handle is unknown or stale.
	ErrTabNotFound = errors.New("tab not found")
	// ErrWindowNotFound indicates an unknown window.
	ErrWindowNotFound = errors.New("window not found")
	// ErrSelfParent indicates an attempt to make a tab its own parent.
	ErrSelfParent = errors.New("tab cannot be its own parent")
	// ErrCycle indicates the requested parent is a descendant of the child.
	ErrCycle = errors.New("tab hierarchy cycle")
	// ErrAlreadyUnloaded indicates unload was requested on an unloaded tab.
	ErrAlreadyUnloaded = errors.New("tab already unloaded")
	// ErrAlreadyRestored indicates activation was requested on a restored tab.
	ErrAlreadyRestored = errors.New("tab already restored")
	// ErrEmptySnapshot indicates the tab has nothing worth keeping when unloaded.
	ErrEmptySnapshot = errors.New("tab snapshot is empty")
	// ErrNotAttached indicates the tab is not in any window strip.
	ErrNotAttached = errors.New("tab is not attached to a window")
	// ErrAlreadyAttached indicates the tab is already in a window strip.
	ErrAlreadyAttached = errors.New("tab is already attached to a window")
	// ErrUnsupportedVersion indicates an unknown session file version.
	ErrUnsupportedVersion = errors.New("unsupported session version")
	// ErrCorruptSession indicates truncated or malformed session data.
	ErrCorruptSession = errors.New("corrupt session data")
	// ErrInvalidArgument indicates a malformed identifier or request field.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNoViewFactory indicates content cannot be recreated.
	ErrNoViewFactory = errors.New("view factory not configured")
)
