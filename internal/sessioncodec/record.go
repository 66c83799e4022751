package sessioncodec

import "pkt.systems/tabkeeper/schema"

// RecordVersion is the TabRecord layout written by this package.
//
//	1: title, url, icon, history
//	2: + pinned
//	3: + zoom level
const RecordVersion = 3

func writeRecord(w *writer, rec schema.TabRecord) {
	w.int32(RecordVersion)
	w.text(rec.Title)
	w.text(rec.URL)
	w.bytes(rec.Icon)
	w.bytes(rec.History)
	w.bool(rec.IsPinned)
	w.int(rec.ZoomLevel)
}

// readRecord decodes one nested record. A record with version < 1 carries
// nothing after its version and decodes to defaults.
func readRecord(r *reader, defaultZoom int) schema.TabRecord {
	rec := schema.NewTabRecord(defaultZoom)
	version := r.int32()
	if r.err != nil || version < 1 {
		return rec
	}
	rec.Title = r.text()
	rec.URL = r.text()
	rec.Icon = r.bytes()
	rec.History = r.bytes()
	if version >= 2 {
		rec.IsPinned = r.bool()
	}
	if version >= 3 {
		rec.ZoomLevel = int(r.int32())
	}
	return rec
}

// minRecordSize is the smallest encoded record (a bare version).
const minRecordSize = 4
