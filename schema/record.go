package schema

// TabRecord is the persisted or lazy state of a tab that is not materialized.
type TabRecord struct {
	Title     string
	URL       string
	Icon      []byte
	History   []byte
	IsPinned  bool
	ZoomLevel int
}

// NewTabRecord returns an empty record carrying the default zoom level.
func NewTabRecord(defaultZoom int) TabRecord {
	return TabRecord{ZoomLevel: defaultZoom}
}

// IsValid reports whether the record holds enough to recreate a tab.
func (r TabRecord) IsValid() bool {
	return r.URL != "" || len(r.History) > 0
}

// Clear empties the record, marking the tab as materialized.
func (r *TabRecord) Clear(defaultZoom int) {
	*r = NewTabRecord(defaultZoom)
}

// Clone returns a deep copy of the record.
func (r TabRecord) Clone() TabRecord {
	out := r
	if r.Icon != nil {
		out.Icon = append([]byte(nil), r.Icon...)
	}
	if r.History != nil {
		out.History = append([]byte(nil), r.History...)
	}
	return out
}
