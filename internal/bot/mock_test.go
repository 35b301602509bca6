package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// ---------------------------------------------------------------------------
// Fake page / browser / launcher
// ---------------------------------------------------------------------------

type fakePage struct {
	mu sync.Mutex

	closed      bool
	navigateErr error
	panicOnNav  bool
	waitAnyErr  error

	captionSel   string
	captions     []string // consumed one per Text call on captionSel
	captionErr   error
	captionCalls int

	body            string
	bodyErr         error
	bodyCalls       int
	participantText string
	participantOK   bool

	texts   map[string]string
	exists  map[string]bool
	buttons []string // visible button labels for ClickText

	clicks   []string
	typed    map[string]string
	urlCalls int
}

func newFakePage() *fakePage {
	return &fakePage{
		captionSel: DefaultConfig().Selectors.Caption,
		texts:      make(map[string]string),
		exists:     make(map[string]bool),
		typed:      make(map[string]string),
	}
}

func (p *fakePage) Navigate(ctx context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.panicOnNav {
		panic("navigation exploded")
	}
	return p.navigateErr
}

func (p *fakePage) URL(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.urlCalls++
	return "https://meet.google.com/abc-defg-hij", nil
}

func (p *fakePage) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *fakePage) Exists(ctx context.Context, selector string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, part := range strings.Split(selector, ", ") {
		if p.exists[part] {
			return true, nil
		}
	}
	return false, nil
}

func (p *fakePage) WaitAny(ctx context.Context, selectors []string, timeout time.Duration) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.waitAnyErr != nil {
		return "", p.waitAnyErr
	}
	for _, s := range selectors {
		if p.exists[s] {
			return s, nil
		}
	}
	return "", errors.New("timeout waiting for selectors")
}

func (p *fakePage) Click(ctx context.Context, selector string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clicks = append(p.clicks, selector)
	return nil
}

func (p *fakePage) ClickText(ctx context.Context, tag string, needles []string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, b := range p.buttons {
		if ContainsAny(b, needles) {
			p.clicks = append(p.clicks, tag+":"+b)
			return true, nil
		}
	}
	return false, nil
}

func (p *fakePage) Type(ctx context.Context, selector, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.typed[selector] = text
	return nil
}

func (p *fakePage) Text(ctx context.Context, selector string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if selector == p.captionSel {
		p.captionCalls++
		if p.captionErr != nil {
			return "", p.captionErr
		}
		if len(p.captions) == 0 {
			return "", nil
		}
		next := p.captions[0]
		p.captions = p.captions[1:]
		return next, nil
	}
	return p.texts[selector], nil
}

func (p *fakePage) BodyText(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bodyCalls++
	return p.body, p.bodyErr
}

func (p *fakePage) FirstText(ctx context.Context, selectors []string) (string, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.participantText, p.participantOK, nil
}

func (p *fakePage) setBody(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.body = s
}

func (p *fakePage) clicked(selector string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.clicks {
		if c == selector {
			return true
		}
	}
	return false
}

func (p *fakePage) counts() (captions, body, urls int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.captionCalls, p.bodyCalls, p.urlCalls
}

type fakeBrowser struct {
	mu         sync.Mutex
	page       *fakePage
	alive      bool
	closeCount int
}

func (b *fakeBrowser) Page() Page { return b.page }

func (b *fakeBrowser) Pages(ctx context.Context) ([]Page, error) {
	return []Page{b.page}, nil
}

func (b *fakeBrowser) Alive() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.alive
}

func (b *fakeBrowser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closeCount++
	b.alive = false
	return nil
}

func (b *fakeBrowser) closes() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closeCount
}

type fakeLauncher struct {
	mu       sync.Mutex
	browser  *fakeBrowser
	err      error
	launches int
}

func (l *fakeLauncher) Launch(ctx context.Context) (Browser, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.launches++
	if l.err != nil {
		return nil, l.err
	}
	return l.browser, nil
}

func (l *fakeLauncher) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.launches
}

// ---------------------------------------------------------------------------
// In-memory store
// ---------------------------------------------------------------------------

type storedRecord struct {
	Record
	Status       Status
	Transcript   string
	ErrorMessage string
	ExitReason   string
	LastUpdated  time.Time
	EndTime      time.Time
}

type memStore struct {
	mu          sync.Mutex
	records     map[string]*storedRecord
	saves       int
	finishes    int
	writesTotal int
	saveErr     error
}

func newMemStore() *memStore {
	return &memStore{records: make(map[string]*storedRecord)}
}

func (m *memStore) Begin(ctx context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writesTotal++
	m.records[rec.MeetingID] = &storedRecord{Record: rec, Status: StatusStarting, LastUpdated: rec.StartTime}
	return nil
}

func (m *memStore) MarkInProgress(ctx context.Context, meetingID, runID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writesTotal++
	if r, ok := m.records[meetingID]; ok && r.RunID == runID {
		r.Status = StatusInProgress
		r.LastUpdated = at
	}
	return nil
}

func (m *memStore) SaveTranscript(ctx context.Context, meetingID, runID, transcript string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writesTotal++
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	if r, ok := m.records[meetingID]; ok && r.RunID == runID {
		r.Transcript = transcript
		r.LastUpdated = at
	}
	return nil
}

func (m *memStore) Finish(ctx context.Context, meetingID, runID string, f Final) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writesTotal++
	m.finishes++
	if r, ok := m.records[meetingID]; ok && r.RunID == runID {
		r.Status = f.Status
		r.Transcript = f.Transcript
		r.ErrorMessage = f.ErrorMessage
		r.ExitReason = f.ExitReason
		r.EndTime = f.EndTime
		r.LastUpdated = f.EndTime
	}
	return nil
}

func (m *memStore) get(meetingID string) (storedRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[meetingID]
	if !ok {
		return storedRecord{}, false
	}
	return *r, true
}

func (m *memStore) stats() (saves, finishes, writes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves, m.finishes, m.writesTotal
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

const testMeetingURL = "https://meet.google.com/abc-defg-hij"

// testConfig uses millisecond timings so loops tick many times per test.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.CaptionInterval = 5 * time.Millisecond
	cfg.ExitCheckInterval = 20 * time.Millisecond
	cfg.PersistInterval = 10 * time.Millisecond
	cfg.HeartbeatInterval = 10 * time.Millisecond
	cfg.LeaveGrace = 0
	cfg.UIWaitTimeout = 0
	cfg.CaptionsWaitTimeout = 0
	cfg.JoinSettle = 0
	return cfg
}

type harness struct {
	page     *fakePage
	browser  *fakeBrowser
	launcher *fakeLauncher
	store    *memStore
	deps     Deps
}

func newHarness() *harness {
	page := newFakePage()
	page.exists[`button[aria-label="Join now"]`] = true
	browser := &fakeBrowser{page: page, alive: true}
	launcher := &fakeLauncher{browser: browser}
	store := newMemStore()
	return &harness{
		page:     page,
		browser:  browser,
		launcher: launcher,
		store:    store,
		deps: Deps{
			Launcher: launcher,
			Store:    store,
			Log:      zerolog.Nop(),
		},
	}
}

func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out after %s waiting for %s", timeout, what)
}

func waitDone(t *testing.T, s *Session, timeout time.Duration) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(timeout):
		t.Fatalf("session %s not done after %s", s.MeetingID, timeout)
	}
}
