package core

import "context"

// View is the live content of a restored tab.
type View interface {
	Load(ctx context.Context, url string) error
	URL() string
	Title() string
	// Icon returns the encoded favicon, or nil when the page has none.
	Icon() []byte
	ZoomLevel() int
	SetZoomLevel(ctx context.Context, level int) error
	// History returns an opaque blob RestoreHistory accepts.
	History(ctx context.Context) ([]byte, error)
	RestoreHistory(ctx context.Context, data []byte) error
	Close() error
}

// ViewFactory creates views for tabs being restored.
type ViewFactory interface {
	NewView(ctx context.Context) (View, error)
}

// ViewFactoryFunc adapts a function to ViewFactory.
type ViewFactoryFunc func(ctx context.Context) (View, error)

// NewView calls f.
func (f ViewFactoryFunc) NewView(ctx context.Context) (View, error) {
	return f(ctx)
}
