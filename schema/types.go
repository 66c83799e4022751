package schema

import (
	"fmt"
	"strconv"
	"strings"
)

// NodeID is a handle into the tab node arena. The zero value refers to no node.
type NodeID struct {
	Index uint32
	Gen   uint32
}

// IsZero reports whether the handle refers to no node.
func (id NodeID) IsZero() bool {
	return id.Gen == 0
}

// String renders the handle as index.generation.
func (id NodeID) String() string {
	if id.IsZero() {
		return "none"
	}
	return fmt.Sprintf("%d.%d", id.Index, id.Gen)
}

// ParseNodeID parses the String form. "none" and "" yield the zero handle.
func ParseNodeID(raw string) (NodeID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "none" {
		return NodeID{}, nil
	}
	idx, gen, ok := strings.Cut(raw, ".")
	if !ok {
		return NodeID{}, fmt.Errorf("%w: malformed tab id %q", ErrInvalidArgument, raw)
	}
	index, err := strconv.ParseUint(idx, 10, 32)
	if err != nil {
		return NodeID{}, fmt.Errorf("%w: tab id index %q", ErrInvalidArgument, idx)
	}
	generation, err := strconv.ParseUint(gen, 10, 32)
	if err != nil || generation == 0 {
		return NodeID{}, fmt.Errorf("%w: tab id generation %q", ErrInvalidArgument, gen)
	}
	return NodeID{Index: uint32(index), Gen: uint32(generation)}, nil
}

// MarshalText implements encoding.TextMarshaler.
func (id NodeID) MarshalText() ([]byte, error) {
	if id.IsZero() {
		return []byte{}, nil
	}
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *NodeID) UnmarshalText(text []byte) error {
	parsed, err := ParseNodeID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// WindowID identifies a browser window.
type WindowID string

// TabMode is the materialization state of a tab node.
type TabMode int

const (
	// ModeRestored means the tab has live content.
	ModeRestored TabMode = iota
	// ModeUnloaded means the content was discarded and a TabRecord holds the snapshot.
	ModeUnloaded
)

func (m TabMode) String() string {
	switch m {
	case ModeRestored:
		return "restored"
	case ModeUnloaded:
		return "unloaded"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}
