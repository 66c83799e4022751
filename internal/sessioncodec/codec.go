// Package sessioncodec reads and writes the binary session-recovery file.
//
// The file starts with an int32 format version. The window list that
// follows is laid out per that version, and every tab inside it is a
// nested record carrying its own version, so tab records can evolve
// without touching the outer format.
package sessioncodec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"pkt.systems/pslog"
	"pkt.systems/tabkeeper/schema"
)

const (
	// CurrentVersion is the outer format written by Encode.
	CurrentVersion = 0x0004
	// Version3 is the legacy window-blob format, still readable.
	Version3 = 0x0003
	// version3Qt5 is Version3 tagged with the stream revision used by older writers.
	version3Qt5 = Version3 | 0x050000

	// windowRecordVersion is the per-window layout inside CurrentVersion.
	windowRecordVersion = 1
)

// Options tune decoding.
type Options struct {
	// DefaultZoomLevel fills records that predate the zoom field.
	DefaultZoomLevel int
	// VirtualDesktops decodes legacy window state into placement plus a
	// virtual desktop index. Without it the legacy blob is kept raw.
	VirtualDesktops bool
	Logger          pslog.Logger
}

func (o Options) logger() pslog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return pslog.Ctx(context.Background())
}

// IsSupported reports whether version can be decoded.
func IsSupported(version int) bool {
	switch version {
	case CurrentVersion, Version3, version3Qt5:
		return true
	default:
		return false
	}
}

// IsLegacy reports whether version is a readable pre-current format.
func IsLegacy(version int) bool {
	return IsSupported(version) && version != CurrentVersion
}

// Decode reads a session. Empty input is an empty session. An unsupported
// version or corrupt data logs a diagnostic and returns an empty session
// together with an error wrapping ErrUnsupportedVersion or ErrCorruptSession.
func Decode(r io.Reader, opts Options) (schema.Session, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return schema.Session{}, err
	}
	return DecodeBytes(data, opts)
}

// DecodeBytes is Decode over an in-memory buffer.
func DecodeBytes(data []byte, opts Options) (schema.Session, error) {
	log := opts.logger()
	if len(data) == 0 {
		log.Debug("session decode empty input")
		return schema.Session{}, nil
	}
	rd := newReader(data)
	version := int(rd.int32())
	if rd.err != nil {
		log.Warn("session decode failed", "err", rd.err)
		return schema.Session{}, rd.err
	}

	var windows []schema.WindowSnapshot
	switch version {
	case CurrentVersion:
		windows = readCurrent(rd, opts)
	case Version3, version3Qt5:
		windows = readVersion3(rd, opts)
	default:
		err := fmt.Errorf("%w: %#x", schema.ErrUnsupportedVersion, version)
		log.Warn("unsupported session file version", "version", version)
		return schema.Session{}, err
	}
	if rd.err != nil {
		log.Warn("session decode failed", "version", version, "err", rd.err)
		return schema.Session{}, rd.err
	}
	log.Debug("session decode ok", "version", version, "windows", len(windows))
	return schema.Session{Version: version, Windows: windows}, nil
}

// PeekVersion returns the outer version of an encoded session without
// decoding it. Empty input reports ok=false.
func PeekVersion(data []byte) (int, bool) {
	if len(data) < 4 {
		return 0, false
	}
	rd := newReader(data[:4])
	return int(rd.int32()), true
}

func readCurrent(rd *reader, opts Options) []schema.WindowSnapshot {
	count := rd.count("window", 4)
	windows := make([]schema.WindowSnapshot, 0, count)
	for i := 0; i < count && rd.err == nil; i++ {
		windows = append(windows, readWindow(rd, opts))
	}
	return windows
}

func readWindow(rd *reader, opts Options) schema.WindowSnapshot {
	win := schema.NewWindowSnapshot()
	version := rd.int32()
	if rd.err != nil {
		return win
	}
	if version < 1 {
		rd.fail("window record version %d", version)
		return win
	}
	placement, desktop, err := unmarshalPlacement(rd.bytes())
	if err != nil {
		if rd.err == nil {
			rd.err = err
		}
		return win
	}
	win.Placement = placement
	win.VirtualDesktop = desktop
	win.CurrentTab = int(rd.int32())
	tabs := rd.count("tab", minRecordSize)
	win.Tabs = make([]schema.TabRecord, 0, tabs)
	for i := 0; i < tabs && rd.err == nil; i++ {
		win.Tabs = append(win.Tabs, readRecord(rd, opts.DefaultZoomLevel))
	}
	return win
}

// Encode writes session in CurrentVersion.
func Encode(w io.Writer, session schema.Session) error {
	return EncodeVersion(w, CurrentVersion, session)
}

// EncodeBytes is Encode into a new buffer.
func EncodeBytes(session schema.Session) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, session); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeVersion writes session in the given outer version, which must be
// CurrentVersion or Version3.
func EncodeVersion(w io.Writer, version int, session schema.Session) error {
	wr := newWriter(w)
	switch version {
	case CurrentVersion:
		wr.int32(CurrentVersion)
		wr.int(len(session.Windows))
		for _, win := range session.Windows {
			writeWindow(wr, win)
		}
	case Version3:
		writeVersion3(wr, session, true)
	default:
		return fmt.Errorf("%w: cannot encode %#x", schema.ErrUnsupportedVersion, version)
	}
	return wr.err
}

func writeWindow(wr *writer, win schema.WindowSnapshot) {
	wr.int32(windowRecordVersion)
	wr.bytes(marshalPlacement(win.Placement, win.VirtualDesktop))
	wr.int(win.CurrentTab)
	wr.int(len(win.Tabs))
	for _, tab := range win.Tabs {
		writeRecord(wr, tab)
	}
}

// IsUnreadable reports whether err means "nothing to restore" rather than
// an I/O failure.
func IsUnreadable(err error) bool {
	return errors.Is(err, schema.ErrUnsupportedVersion) || errors.Is(err, schema.ErrCorruptSession)
}
