package sessioncodec

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"reflect"
	"strings"
	"testing"

	"pkt.systems/pslog"
	"pkt.systems/tabkeeper/schema"
)

func sampleSession() schema.Session {
	return schema.Session{
		Windows: []schema.WindowSnapshot{
			{
				Placement: schema.Placement{
					X: -20, Y: 40, Width: 1280, Height: 800,
					Maximized: true,
					State:     []byte{0xde, 0xad},
				},
				VirtualDesktop: 2,
				CurrentTab:     1,
				Tabs: []schema.TabRecord{
					{Title: "Example", URL: "https://example.com/", Icon: []byte{1, 2, 3}, History: []byte{9, 8, 7}, IsPinned: true, ZoomLevel: 8},
					{Title: "Blank history", URL: "https://go.dev/", ZoomLevel: 6},
				},
			},
			{
				Placement:      schema.Placement{Width: 640, Height: 480, Fullscreen: true},
				VirtualDesktop: schema.NoVirtualDesktop,
				CurrentTab:     0,
				Tabs: []schema.TabRecord{
					{Title: "Ünïcode ✓", URL: "view-source:https://example.org/", History: []byte{}, ZoomLevel: 0},
				},
			},
		},
	}
}

func TestRoundTripCurrentVersion(t *testing.T) {
	session := sampleSession()
	data, err := EncodeBytes(session)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeBytes(data, Options{DefaultZoomLevel: schema.DefaultZoomLevel})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Version != CurrentVersion {
		t.Fatalf("expected version %#x, got %#x", CurrentVersion, got.Version)
	}
	session.Version = CurrentVersion
	if !reflect.DeepEqual(session, got) {
		t.Fatalf("session mismatch:\nwant: %+v\ngot:  %+v", session, got)
	}
}

// buildVersion3 lays out a legacy file by hand: two windows, the first
// with three tabs.
func buildVersion3(t *testing.T, withDesktop bool) []byte {
	t.Helper()
	var out bytes.Buffer
	w := newWriter(&out)
	w.int32(Version3)
	w.int32(2)
	windows := [][]schema.TabRecord{
		{
			{Title: "one", URL: "https://one.example/", ZoomLevel: 6},
			{Title: "two", URL: "https://two.example/", IsPinned: true, ZoomLevel: 7},
			{Title: "three", URL: "https://three.example/", ZoomLevel: 5},
		},
		{
			{Title: "solo", URL: "https://solo.example/", ZoomLevel: 6},
		},
	}
	current := []int32{2, 0}
	for i, tabs := range windows {
		var tabsState bytes.Buffer
		tw := newWriter(&tabsState)
		tw.int32(int32(len(tabs)))
		for _, tab := range tabs {
			writeRecord(tw, tab)
		}
		tw.int32(current[i])

		var windowState bytes.Buffer
		sw := newWriter(&windowState)
		sw.bytes([]byte{byte(i), 0xff})
		if withDesktop {
			sw.int32(int32(i + 3))
		}
		w.bytes(tabsState.Bytes())
		w.bytes(windowState.Bytes())
	}
	if w.err != nil {
		t.Fatalf("build legacy: %v", w.err)
	}
	return out.Bytes()
}

func TestDecodeVersion3(t *testing.T) {
	data := buildVersion3(t, true)
	got, err := DecodeBytes(data, Options{DefaultZoomLevel: schema.DefaultZoomLevel, VirtualDesktops: true})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Version != Version3 {
		t.Fatalf("expected legacy version, got %#x", got.Version)
	}
	if len(got.Windows) != 2 {
		t.Fatalf("expected 2 windows, got %d", len(got.Windows))
	}
	if len(got.Windows[0].Tabs) != 3 || len(got.Windows[1].Tabs) != 1 {
		t.Fatalf("unexpected tab counts: %d, %d", len(got.Windows[0].Tabs), len(got.Windows[1].Tabs))
	}
	if got.Windows[0].CurrentTab != 2 {
		t.Fatalf("expected current tab 2, got %d", got.Windows[0].CurrentTab)
	}
	if got.Windows[0].VirtualDesktop != 3 || got.Windows[1].VirtualDesktop != 4 {
		t.Fatalf("unexpected virtual desktops: %d, %d", got.Windows[0].VirtualDesktop, got.Windows[1].VirtualDesktop)
	}
	if !bytes.Equal(got.Windows[1].Placement.State, []byte{1, 0xff}) {
		t.Fatalf("unexpected window state %v", got.Windows[1].Placement.State)
	}
	if tab := got.Windows[0].Tabs[1]; !tab.IsPinned || tab.ZoomLevel != 7 || tab.URL != "https://two.example/" {
		t.Fatalf("unexpected tab %+v", tab)
	}
}

func TestDecodeVersion3WithoutVirtualDesktops(t *testing.T) {
	data := buildVersion3(t, false)
	got, err := DecodeBytes(data, Options{DefaultZoomLevel: schema.DefaultZoomLevel})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Windows) != 2 {
		t.Fatalf("expected 2 windows, got %d", len(got.Windows))
	}
	if got.Windows[0].VirtualDesktop != schema.NoVirtualDesktop {
		t.Fatalf("expected no desktop hint, got %d", got.Windows[0].VirtualDesktop)
	}
	// Raw blob: length prefix + two bytes.
	if len(got.Windows[0].Placement.State) != 6 {
		t.Fatalf("expected raw window state, got %v", got.Windows[0].Placement.State)
	}
}

func TestDecodeVersion3QtTagged(t *testing.T) {
	data := buildVersion3(t, true)
	tagged := append([]byte{}, data...)
	var hdr bytes.Buffer
	newWriter(&hdr).int32(version3Qt5)
	copy(tagged, hdr.Bytes())
	got, err := DecodeBytes(tagged, Options{VirtualDesktops: true})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Windows) != 2 {
		t.Fatalf("expected 2 windows, got %d", len(got.Windows))
	}
}

func TestEncodeVersion3RoundTrip(t *testing.T) {
	session := sampleSession()
	var buf bytes.Buffer
	if err := EncodeVersion(&buf, Version3, session); err != nil {
		t.Fatalf("encode v3: %v", err)
	}
	got, err := DecodeBytes(buf.Bytes(), Options{VirtualDesktops: true})
	if err != nil {
		t.Fatalf("decode v3: %v", err)
	}
	if len(got.Windows) != len(session.Windows) {
		t.Fatalf("expected %d windows, got %d", len(session.Windows), len(got.Windows))
	}
	for i := range session.Windows {
		if !reflect.DeepEqual(session.Windows[i].Tabs, got.Windows[i].Tabs) {
			t.Fatalf("window %d tabs mismatch:\nwant: %+v\ngot:  %+v", i, session.Windows[i].Tabs, got.Windows[i].Tabs)
		}
		if got.Windows[i].CurrentTab != session.Windows[i].CurrentTab {
			t.Fatalf("window %d current tab mismatch", i)
		}
		if got.Windows[i].VirtualDesktop != session.Windows[i].VirtualDesktop {
			t.Fatalf("window %d desktop mismatch", i)
		}
	}
}

func TestDecodeUnsupportedVersionLogs(t *testing.T) {
	capture := &bytes.Buffer{}
	logger := pslog.NewWithOptions(capture, pslog.Options{
		Mode:          pslog.ModeStructured,
		NoColor:       true,
		MinLevel:      pslog.DebugLevel,
		VerboseFields: true,
	})
	var buf bytes.Buffer
	w := newWriter(&buf)
	w.int32(0x7777)
	w.int32(1)
	got, err := DecodeBytes(buf.Bytes(), Options{Logger: logger})
	if !errors.Is(err, schema.ErrUnsupportedVersion) {
		t.Fatalf("expected unsupported version error, got %v", err)
	}
	if len(got.Windows) != 0 || got.IsValid() {
		t.Fatalf("expected empty session, got %+v", got)
	}
	if !strings.Contains(capture.String(), "unsupported session file version") {
		t.Fatalf("expected diagnostic, got %q", capture.String())
	}
}

func TestDecodeEmptyInput(t *testing.T) {
	got, err := DecodeBytes(nil, Options{})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.IsValid() {
		t.Fatalf("expected invalid session")
	}
}

func TestDecodeTruncated(t *testing.T) {
	data, err := EncodeBytes(sampleSession())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeBytes(data[:len(data)-5], Options{})
	if !errors.Is(err, schema.ErrCorruptSession) {
		t.Fatalf("expected corrupt session error, got %v", err)
	}
	if got.IsValid() {
		t.Fatalf("expected empty session on corruption")
	}
	if !IsUnreadable(err) {
		t.Fatalf("expected error to be classified unreadable")
	}
}

func TestDecodeHugeCountRejected(t *testing.T) {
	var buf bytes.Buffer
	w := newWriter(&buf)
	w.int32(CurrentVersion)
	w.int32(1 << 30)
	if _, err := DecodeBytes(buf.Bytes(), Options{}); !errors.Is(err, schema.ErrCorruptSession) {
		t.Fatalf("expected corrupt session error, got %v", err)
	}
}

func TestRecordVersionsDecodeDefaults(t *testing.T) {
	var buf bytes.Buffer
	w := newWriter(&buf)
	// Version 0: nothing follows.
	w.int32(0)
	// Version 1: no pinned flag, no zoom.
	w.int32(1)
	w.text("old")
	w.text("https://old.example/")
	w.bytes(nil)
	w.bytes([]byte{5})
	// Version 2: pinned but no zoom.
	w.int32(2)
	w.text("pinned")
	w.text("https://pinned.example/")
	w.bytes(nil)
	w.bytes(nil)
	w.bool(true)

	rd := newReader(buf.Bytes())
	empty := readRecord(rd, 4)
	if empty.IsValid() || empty.ZoomLevel != 4 {
		t.Fatalf("expected default record, got %+v", empty)
	}
	v1 := readRecord(rd, 4)
	if v1.URL != "https://old.example/" || v1.IsPinned || v1.ZoomLevel != 4 {
		t.Fatalf("unexpected v1 record %+v", v1)
	}
	v2 := readRecord(rd, 4)
	if !v2.IsPinned || v2.ZoomLevel != 4 || v2.Title != "pinned" {
		t.Fatalf("unexpected v2 record %+v", v2)
	}
	if rd.err != nil || rd.remaining() != 0 {
		t.Fatalf("expected clean read, err=%v remaining=%d", rd.err, rd.remaining())
	}
}

func TestPlacementSkipsUnknownFields(t *testing.T) {
	b := marshalPlacement(schema.Placement{X: 5, Height: 9}, 1)
	// Field 15, varint 42: written by a newer encoder.
	b = append(b, 0x78, 42)
	p, desktop, err := unmarshalPlacement(b)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if p.X != 5 || p.Height != 9 || desktop != 1 {
		t.Fatalf("unexpected placement %+v desktop %d", p, desktop)
	}
}

func TestPeekVersion(t *testing.T) {
	data, err := EncodeBytes(schema.Session{})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	v, ok := PeekVersion(data)
	if !ok || v != CurrentVersion {
		t.Fatalf("expected current version, got %#x ok=%v", v, ok)
	}
	if _, ok := PeekVersion([]byte{1}); ok {
		t.Fatalf("expected short input to be rejected")
	}
	if IsLegacy(CurrentVersion) || !IsLegacy(Version3) {
		t.Fatalf("unexpected legacy classification")
	}
}

func TestNormalizeIconScales(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 64, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 64; x++ {
			src.Set(x, y, color.NRGBA{R: 200, A: 255})
		}
	}
	var in bytes.Buffer
	if err := png.Encode(&in, src); err != nil {
		t.Fatalf("encode source: %v", err)
	}
	out, err := NormalizeIcon(in.Bytes())
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode normalized: %v", err)
	}
	if b := img.Bounds(); b.Dx() != IconSize || b.Dy() != IconSize {
		t.Fatalf("expected %dx%d icon, got %v", IconSize, IconSize, b)
	}
}

func TestNormalizeIconRejectsNonImage(t *testing.T) {
	if _, err := NormalizeIcon([]byte("<html></html>")); err == nil {
		t.Fatalf("expected error for non-image payload")
	}
	out, err := NormalizeIcon(nil)
	if err != nil || out != nil {
		t.Fatalf("expected empty icon to pass through, got %v %v", out, err)
	}
}
