package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/inspector"
	"github.com/chromedp/chromedp"
	"github.com/zulandar/meetbot/internal/bot"
)

// waitPoll is how often WaitAny re-checks the DOM.
const waitPoll = 250 * time.Millisecond

// Page is one Chrome tab.
type Page struct {
	ctx     context.Context
	cancel  context.CancelFunc
	timeout time.Duration
	closed  atomic.Bool
}

func newPage(ctx context.Context, cancel context.CancelFunc, timeout time.Duration) *Page {
	p := &Page{ctx: ctx, cancel: cancel, timeout: timeout}
	chromedp.ListenTarget(ctx, func(ev interface{}) {
		switch ev.(type) {
		case *inspector.EventDetached, *inspector.EventTargetCrashed:
			p.closed.Store(true)
		}
	})
	return p
}

// run executes actions on the tab, bounded by the caller's context and the
// per-operation timeout.
func (p *Page) run(caller context.Context, actions ...chromedp.Action) error {
	ctx, stop := bindContext(p.ctx, caller, p.timeout)
	defer stop()
	err := chromedp.Run(ctx, actions...)
	if err == nil {
		return nil
	}
	if caller != nil && caller.Err() != nil {
		return caller.Err()
	}
	return p.classify(err)
}

// classify maps err for callers. Only a dead tab context marks the page
// closed; a detached-frame error from one query leaves it usable for others.
func (p *Page) classify(err error) error {
	if p.ctx.Err() != nil {
		p.closed.Store(true)
		return fmt.Errorf("%w: %v", bot.ErrDetached, err)
	}
	return classify(err)
}

// eval evaluates a JavaScript expression and decodes the result into out.
func (p *Page) eval(ctx context.Context, expr string, out interface{}) error {
	return p.run(ctx, chromedp.Evaluate(expr, out))
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	return p.run(ctx, chromedp.Navigate(url))
}

func (p *Page) URL(ctx context.Context) (string, error) {
	var u string
	if err := p.run(ctx, chromedp.Location(&u)); err != nil {
		return "", err
	}
	return u, nil
}

func (p *Page) Closed() bool {
	return p.closed.Load() || p.ctx.Err() != nil
}

func (p *Page) Exists(ctx context.Context, selector string) (bool, error) {
	var ok bool
	err := p.eval(ctx, fmt.Sprintf(`document.querySelector(%s) !== null`, jsString(selector)), &ok)
	return ok, err
}

// WaitAny polls until one of selectors matches. A non-positive timeout
// checks once.
func (p *Page) WaitAny(ctx context.Context, selectors []string, timeout time.Duration) (string, error) {
	if len(selectors) == 0 {
		return "", errors.New("browser: no selectors to wait for")
	}
	deadline := time.Now().Add(timeout)
	for {
		var idx int
		if err := p.eval(ctx, firstMatchJS(selectors), &idx); err != nil {
			if errors.Is(err, bot.ErrDetached) || ctx.Err() != nil {
				return "", err
			}
		} else if idx >= 0 && idx < len(selectors) {
			return selectors[idx], nil
		}
		if !time.Now().Before(deadline) {
			return "", fmt.Errorf("browser: none of %d selectors appeared within %s", len(selectors), timeout)
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(waitPoll):
		}
	}
}

func (p *Page) Click(ctx context.Context, selector string) error {
	var ok bool
	expr := fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (!el) return false;
		el.click();
		return true;
	})()`, jsString(selector))
	if err := p.eval(ctx, expr, &ok); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("browser: no element matches %s", selector)
	}
	return nil
}

func (p *Page) ClickText(ctx context.Context, tag string, needles []string) (bool, error) {
	var ok bool
	err := p.eval(ctx, clickTextJS(tag, needles), &ok)
	return ok, err
}

func (p *Page) Type(ctx context.Context, selector, text string) error {
	var ok bool
	focus := fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (!el) return false;
		el.focus();
		el.value = "";
		return true;
	})()`, jsString(selector))
	if err := p.eval(ctx, focus, &ok); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("browser: no element matches %s", selector)
	}
	return p.run(ctx, chromedp.SendKeys(selector, text, chromedp.ByQuery))
}

func (p *Page) Text(ctx context.Context, selector string) (string, error) {
	var text string
	expr := fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		return el ? (el.textContent || "") : "";
	})()`, jsString(selector))
	if err := p.eval(ctx, expr, &text); err != nil {
		return "", err
	}
	return text, nil
}

func (p *Page) BodyText(ctx context.Context) (string, error) {
	var text string
	if err := p.eval(ctx, `document.body ? document.body.innerText : ""`, &text); err != nil {
		return "", err
	}
	return text, nil
}

func (p *Page) FirstText(ctx context.Context, selectors []string) (string, bool, error) {
	var res struct {
		Found bool   `json:"found"`
		Text  string `json:"text"`
	}
	if err := p.eval(ctx, firstTextJS(selectors), &res); err != nil {
		return "", false, err
	}
	return res.Text, res.Found, nil
}

// jsString encodes s as a JavaScript string literal.
func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func jsArray(items []string) string {
	if items == nil {
		items = []string{}
	}
	b, _ := json.Marshal(items)
	return string(b)
}

// firstMatchJS returns the index of the first selector that matches, or -1.
func firstMatchJS(selectors []string) string {
	return fmt.Sprintf(`%s.findIndex(s => document.querySelector(s) !== null)`, jsArray(selectors))
}

func clickTextJS(tag string, needles []string) string {
	return fmt.Sprintf(`(() => {
		const needles = %s;
		for (const el of document.querySelectorAll(%s)) {
			const text = el.textContent || "";
			if (needles.some(n => n && text.includes(n))) {
				el.click();
				return true;
			}
		}
		return false;
	})()`, jsArray(needles), jsString(tag))
}

func firstTextJS(selectors []string) string {
	return fmt.Sprintf(`(() => {
		for (const s of %s) {
			const el = document.querySelector(s);
			if (el) return {found: true, text: el.textContent || ""};
		}
		return {found: false, text: ""};
	})()`, jsArray(selectors))
}

// detachedMarkers are DevTools error fragments meaning the tab or frame is
// gone and further queries cannot succeed. Lost execution contexts during an
// in-page navigation are not listed; the next query gets a fresh context.
var detachedMarkers = []string{
	"detached",
	"target closed",
	"no target with given id",
	"session with given id not found",
}

// classify maps DevTools errors that mean the tab is gone to bot.ErrDetached.
func classify(err error) error {
	if err == nil || errors.Is(err, bot.ErrDetached) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	msg := strings.ToLower(err.Error())
	for _, m := range detachedMarkers {
		if strings.Contains(msg, m) {
			return fmt.Errorf("%w: %v", bot.ErrDetached, err)
		}
	}
	return err
}

var _ bot.Page = (*Page)(nil)
var _ bot.Browser = (*Browser)(nil)
var _ bot.Launcher = (*Launcher)(nil)
