package logx

import (
	"context"

	"pkt.systems/pslog"
	"pkt.systems/tabkeeper/schema"
)

type contextKey int

const (
	windowKey contextKey = iota
	tabKey
)

// Ctx returns the logger bound to the provided context.
func Ctx(ctx context.Context) pslog.Logger {
	if ctx == nil {
		ctx = context.Background()
	}
	return pslog.Ctx(ctx)
}

// WithWindow annotates the logger with the window id if present.
func WithWindow(ctx context.Context, windowID schema.WindowID) pslog.Logger {
	log := Ctx(ctx)
	if windowID != "" {
		if ctx != nil {
			if current, ok := ctx.Value(windowKey).(schema.WindowID); ok && current == windowID {
				return log
			}
		}
		log = log.With("window", windowID)
	}
	return log
}

// WithWindowTab annotates the logger with window and tab identifiers.
func WithWindowTab(ctx context.Context, windowID schema.WindowID, tabID schema.NodeID) pslog.Logger {
	log := WithWindow(ctx, windowID)
	if !tabID.IsZero() {
		if ctx != nil {
			if current, ok := ctx.Value(tabKey).(schema.NodeID); ok && current == tabID {
				return log
			}
		}
		log = log.With("tab", tabID.String())
	}
	return log
}

// WithRecord annotates the logger with the url of a tab record when available.
func WithRecord(log pslog.Logger, rec schema.TabRecord) pslog.Logger {
	if rec.URL != "" {
		log = log.With("url", rec.URL)
	}
	if rec.IsPinned {
		log = log.With("pinned", true)
	}
	return log
}

// ContextWithWindow stores the window marker on the context for log de-duplication.
func ContextWithWindow(ctx context.Context, windowID schema.WindowID) context.Context {
	if ctx == nil || windowID == "" {
		return ctx
	}
	return context.WithValue(ctx, windowKey, windowID)
}

// ContextWithTab stores the tab marker on the context for log de-duplication.
func ContextWithTab(ctx context.Context, tabID schema.NodeID) context.Context {
	if ctx == nil || tabID.IsZero() {
		return ctx
	}
	return context.WithValue(ctx, tabKey, tabID)
}

// ContextWithWindowTabLogger attaches the logger and window/tab markers to the context.
func ContextWithWindowTabLogger(ctx context.Context, log pslog.Logger, windowID schema.WindowID, tabID schema.NodeID) context.Context {
	ctx = pslog.ContextWithLogger(ctx, log)
	return ContextWithTab(ContextWithWindow(ctx, windowID), tabID)
}
