// Package chromeview drives tab content in headless Chrome through the
// DevTools protocol.
package chromeview

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/chromedp/chromedp"

	"pkt.systems/pslog"
	"pkt.systems/tabkeeper/core"
)

// Options configures the browser process.
type Options struct {
	Headless bool
	ExecPath string
	// Flags are extra command line switches; "true"/"false" values become
	// boolean switches.
	Flags  map[string]string
	Logger pslog.Logger
}

// Backend owns one browser process and creates a target per view.
type Backend struct {
	log           pslog.Logger
	browserCtx    context.Context
	cancelAlloc   context.CancelFunc
	cancelBrowser context.CancelFunc
}

var _ core.ViewFactory = (*Backend)(nil)

// Start launches the browser.
func Start(ctx context.Context, opts Options) (*Backend, error) {
	logger := opts.Logger
	if logger == nil {
		logger = pslog.Ctx(ctx)
	}
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.WithoutCancel(ctx), allocatorOptions(opts)...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx,
		chromedp.WithErrorf(func(format string, args ...any) {
			logger.Warn("chrome devtools error", "detail", fmt.Sprintf(format, args...))
		}),
		chromedp.WithDebugf(func(format string, args ...any) {
			logger.Trace("chrome devtools", "detail", fmt.Sprintf(format, args...))
		}),
	)
	if err := chromedp.Run(browserCtx); err != nil {
		cancelBrowser()
		cancelAlloc()
		return nil, fmt.Errorf("start chrome: %w", err)
	}
	logger.Info("chrome started", "headless", opts.Headless)
	return &Backend{
		log:           logger,
		browserCtx:    browserCtx,
		cancelAlloc:   cancelAlloc,
		cancelBrowser: cancelBrowser,
	}, nil
}

func allocatorOptions(opts Options) []chromedp.ExecAllocatorOption {
	out := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	out = append(out, chromedp.Flag("headless", opts.Headless))
	if opts.ExecPath != "" {
		out = append(out, chromedp.ExecPath(opts.ExecPath))
	}
	names := make([]string, 0, len(opts.Flags))
	for name := range opts.Flags {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		out = append(out, chromedp.Flag(strings.TrimLeft(name, "-"), flagValue(opts.Flags[name])))
	}
	return out
}

func flagValue(raw string) any {
	if b, err := strconv.ParseBool(raw); err == nil {
		return b
	}
	return raw
}

// NewView opens a blank target.
func (b *Backend) NewView(ctx context.Context) (core.View, error) {
	tabCtx, cancel := chromedp.NewContext(b.browserCtx)
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("open target: %w", err)
	}
	b.log.Trace("chrome target opened")
	return &View{ctx: tabCtx, cancel: cancel, zoom: -1}, nil
}

// Close shuts the browser down.
func (b *Backend) Close() error {
	b.cancelBrowser()
	b.cancelAlloc()
	b.log.Info("chrome stopped")
	return nil
}
