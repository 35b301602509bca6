// Package browser drives a dedicated Chrome process through the DevTools
// protocol and adapts it to the bot's Launcher, Browser and Page interfaces.
package browser

import (
	"context"
	"fmt"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"
	"github.com/zulandar/meetbot/internal/bot"
	"github.com/zulandar/meetbot/internal/config"
)

// defaultOpTimeout bounds a single DOM operation when the caller sets none.
const defaultOpTimeout = 10 * time.Second

// Options controls how Chrome is started.
type Options struct {
	ExecPath  string
	Headless  bool
	Width     int
	Height    int
	UserAgent string
	OpTimeout time.Duration
}

// OptionsFromConfig maps the browser section of the config file.
func OptionsFromConfig(c config.BrowserConfig) Options {
	return Options{
		ExecPath:  c.ExecPath,
		Headless:  c.Headless,
		Width:     c.WindowWidth,
		Height:    c.WindowHeight,
		UserAgent: c.UserAgent,
	}
}

// Launcher starts one Chrome process per Launch call.
type Launcher struct {
	opts Options
	log  zerolog.Logger
}

// NewLauncher returns a Launcher for opts.
func NewLauncher(opts Options, log zerolog.Logger) *Launcher {
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = defaultOpTimeout
	}
	return &Launcher{opts: opts, log: log.With().Str("component", "browser").Logger()}
}

// flags returns the Chrome command-line switches for opts. Media prompts are
// auto-accepted with fake devices so Meet never blocks on a permission
// dialog, and the automation infobar is suppressed.
func flags(opts Options) map[string]interface{} {
	f := map[string]interface{}{
		"headless":                               opts.Headless,
		"no-sandbox":                             true,
		"disable-setuid-sandbox":                 true,
		"disable-infobars":                       true,
		"disable-dev-shm-usage":                  true,
		"disable-blink-features":                 "AutomationControlled",
		"disable-features":                       "IsolateOrigins,site-per-process",
		"use-fake-ui-for-media-stream":           true,
		"use-fake-device-for-media-stream":       true,
		"autoplay-policy":                        "no-user-gesture-required",
		"disable-background-timer-throttling":    true,
		"disable-backgrounding-occluded-windows": true,
		"disable-renderer-backgrounding":         true,
		"enable-automation":                      false,
	}
	if opts.Headless {
		f["hide-scrollbars"] = true
		f["mute-audio"] = true
	}
	return f
}

func allocatorOptions(opts Options) []chromedp.ExecAllocatorOption {
	out := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	for name, value := range flags(opts) {
		out = append(out, chromedp.Flag(name, value))
	}
	if opts.Width > 0 && opts.Height > 0 {
		out = append(out, chromedp.WindowSize(opts.Width, opts.Height))
	}
	if opts.ExecPath != "" {
		out = append(out, chromedp.ExecPath(opts.ExecPath))
	}
	if opts.UserAgent != "" {
		out = append(out, chromedp.UserAgent(opts.UserAgent))
	}
	return out
}

// Launch starts Chrome, opens the first tab and installs the stealth
// scripts. The browser outlives ctx; only Close stops it.
func (l *Launcher) Launch(ctx context.Context) (bot.Browser, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocatorOptions(l.opts)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...interface{}) { l.log.Debug().Msgf(format, args...) }),
		chromedp.WithErrorf(func(format string, args ...interface{}) { l.log.Debug().Msgf(format, args...) }),
	)

	b := &Browser{
		opts:        l.opts,
		log:         l.log,
		ctx:         browserCtx,
		cancel:      browserCancel,
		allocCancel: allocCancel,
		attached:    make(map[target.ID]*Page),
	}

	// The first Run allocates the browser and binds it to the context it is
	// given, so it must run on browserCtx itself.
	stop := context.AfterFunc(ctx, browserCancel)
	err := chromedp.Run(browserCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, err := page.AddScriptToEvaluateOnNewDocument(stealthScript).Do(ctx)
		return err
	}))
	stop()
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("browser: start chrome: %w", err)
	}

	c := chromedp.FromContext(browserCtx)
	b.main = newPage(browserCtx, nil, l.opts.OpTimeout)
	if c != nil && c.Target != nil {
		b.attached[c.Target.TargetID] = b.main
	}
	if c != nil && c.Browser != nil {
		if proc := c.Browser.Process(); proc != nil {
			l.log.Info().Int("pid", proc.Pid).Msg("chrome started")
		}
	}
	return b, nil
}

// Browser is one running Chrome process.
type Browser struct {
	opts        Options
	log         zerolog.Logger
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc

	mu       sync.Mutex
	main     *Page
	attached map[target.ID]*Page

	closeOnce sync.Once
	closeErr  error
}

// bind derives a context from the browser context that is also cancelled
// when caller is done and, if timeout > 0, after timeout.
func (b *Browser) bind(caller context.Context, timeout time.Duration) (context.Context, func()) {
	return bindContext(b.ctx, caller, timeout)
}

// Page returns the tab the session was launched with.
func (b *Browser) Page() bot.Page {
	return b.main
}

// Pages lists every open tab, attaching to tabs the meeting opened itself.
func (b *Browser) Pages(ctx context.Context) ([]bot.Page, error) {
	runCtx, stop := b.bind(ctx, b.opts.OpTimeout)
	defer stop()

	infos, err := chromedp.Targets(runCtx)
	if err != nil {
		return nil, classify(err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	var pages []bot.Page
	for _, info := range infos {
		if info.Type != "page" {
			continue
		}
		p, ok := b.attached[info.TargetID]
		if !ok {
			tabCtx, tabCancel := chromedp.NewContext(b.ctx, chromedp.WithTargetID(info.TargetID))
			p = newPage(tabCtx, tabCancel, b.opts.OpTimeout)
			b.attached[info.TargetID] = p
		}
		pages = append(pages, p)
	}
	return pages, nil
}

// Alive reports whether the Chrome process is still running.
func (b *Browser) Alive() bool {
	if b.ctx.Err() != nil {
		return false
	}
	c := chromedp.FromContext(b.ctx)
	if c == nil || c.Browser == nil {
		return false
	}
	proc := c.Browser.Process()
	if proc == nil {
		return false
	}
	return processRunning(proc)
}

func processRunning(proc *os.Process) bool {
	return proc.Signal(syscall.Signal(0)) == nil
}

// Close shuts the browser down gracefully, then tears down the allocator,
// which kills the process if it is still running.
func (b *Browser) Close() error {
	b.closeOnce.Do(func() {
		b.closeErr = chromedp.Cancel(b.ctx)
		b.mu.Lock()
		for _, p := range b.attached {
			if p.cancel != nil {
				p.cancel()
			}
		}
		b.mu.Unlock()
		b.cancel()
		b.allocCancel()
		if b.closeErr != nil {
			b.log.Debug().Err(b.closeErr).Msg("graceful browser close")
		}
	})
	return b.closeErr
}

// bindContext returns a child of base that is also cancelled when caller is
// done and after timeout when timeout > 0. The returned func releases it.
func bindContext(base, caller context.Context, timeout time.Duration) (context.Context, func()) {
	ctx, cancel := context.WithCancel(base)
	if timeout > 0 {
		var tcancel context.CancelFunc
		ctx, tcancel = context.WithTimeout(ctx, timeout)
		prev := cancel
		cancel = func() { tcancel(); prev() }
	}
	stop := func() bool { return true }
	if caller != nil {
		stop = context.AfterFunc(caller, cancel)
	}
	return ctx, func() {
		stop()
		cancel()
	}
}
