package schema

import (
	"errors"
	"testing"
)

func TestTabRecordValidity(t *testing.T) {
	rec := NewTabRecord(DefaultZoomLevel)
	if rec.IsValid() {
		t.Fatalf("expected empty record to be invalid")
	}
	rec.URL = "https://example.com"
	if !rec.IsValid() {
		t.Fatalf("expected record with url to be valid")
	}
	rec = NewTabRecord(DefaultZoomLevel)
	rec.History = []byte{1}
	if !rec.IsValid() {
		t.Fatalf("expected record with history to be valid")
	}
}

func TestTabRecordClearResetsZoom(t *testing.T) {
	rec := TabRecord{
		Title:     "demo",
		URL:       "https://example.com",
		Icon:      []byte{1, 2},
		History:   []byte{3},
		IsPinned:  true,
		ZoomLevel: 12,
	}
	rec.Clear(4)
	if rec.IsValid() || rec.IsPinned || rec.Title != "" || rec.Icon != nil {
		t.Fatalf("expected cleared record, got %+v", rec)
	}
	if rec.ZoomLevel != 4 {
		t.Fatalf("expected default zoom 4, got %d", rec.ZoomLevel)
	}
}

func TestTabRecordCloneIsDeep(t *testing.T) {
	rec := TabRecord{URL: "a", History: []byte{1, 2}, Icon: []byte{9}}
	clone := rec.Clone()
	clone.History[0] = 7
	clone.Icon[0] = 7
	if rec.History[0] != 1 || rec.Icon[0] != 9 {
		t.Fatalf("clone shares backing arrays")
	}
}

func TestZoomFactorClamps(t *testing.T) {
	if got := ZoomFactor(DefaultZoomLevel); got != 1.0 {
		t.Fatalf("expected 1.0 at default zoom, got %v", got)
	}
	if got := ZoomFactor(-3); got != 0.3 {
		t.Fatalf("expected lowest factor, got %v", got)
	}
	if got := ZoomFactor(999); got != 3.0 {
		t.Fatalf("expected highest factor, got %v", got)
	}
}

func TestNodeIDZero(t *testing.T) {
	var id NodeID
	if !id.IsZero() || id.String() != "none" {
		t.Fatalf("expected zero handle, got %v", id)
	}
	id = NodeID{Index: 3, Gen: 1}
	if id.IsZero() || id.String() != "3.1" {
		t.Fatalf("unexpected handle rendering %q", id.String())
	}
}

func TestParseNodeID(t *testing.T) {
	id := NodeID{Index: 12, Gen: 4}
	got, err := ParseNodeID(id.String())
	if err != nil || got != id {
		t.Fatalf("expected %v, got %v (%v)", id, got, err)
	}
	if zero, err := ParseNodeID("none"); err != nil || !zero.IsZero() {
		t.Fatalf("expected zero handle, got %v (%v)", zero, err)
	}
	for _, raw := range []string{"12", "x.1", "1.0", "1.-2"} {
		if _, err := ParseNodeID(raw); !errors.Is(err, ErrInvalidArgument) {
			t.Fatalf("expected ErrInvalidArgument for %q, got %v", raw, err)
		}
	}
	var decoded NodeID
	if err := decoded.UnmarshalText([]byte("7.2")); err != nil || decoded != (NodeID{Index: 7, Gen: 2}) {
		t.Fatalf("unmarshal: %v (%v)", decoded, err)
	}
}
