package bot

import (
	"context"
	"fmt"
)

// JoinMatcher is one strategy for finding and clicking the join control.
// Matchers are tried in order until one reports a click.
type JoinMatcher interface {
	Name() string
	TryJoin(ctx context.Context, page Page) (bool, error)
}

// SelectorMatcher clicks an element matched by an exact CSS selector.
type SelectorMatcher struct {
	Selector string
}

func (m SelectorMatcher) Name() string { return "selector " + m.Selector }

func (m SelectorMatcher) TryJoin(ctx context.Context, page Page) (bool, error) {
	ok, err := page.Exists(ctx, m.Selector)
	if err != nil || !ok {
		return false, err
	}
	if err := page.Click(ctx, m.Selector); err != nil {
		return false, fmt.Errorf("click %s: %w", m.Selector, err)
	}
	return true, nil
}

// TextMatcher clicks the first button whose text contains any needle.
type TextMatcher struct {
	Needles []string
}

func (m TextMatcher) Name() string { return fmt.Sprintf("button text %q", m.Needles) }

func (m TextMatcher) TryJoin(ctx context.Context, page Page) (bool, error) {
	return page.ClickText(ctx, "button", m.Needles)
}

// DefaultJoinMatchers tries the exact aria labels first, then any button
// mentioning "join".
func DefaultJoinMatchers() []JoinMatcher {
	return JoinMatchers(
		[]string{
			`button[aria-label="Join now"]`,
			`button[aria-label="Join"]`,
			`button[aria-label="Ask to join"]`,
		},
		[]string{"Join", "join", "Ask to join"},
	)
}

// JoinMatchers builds selector matchers followed by one text matcher.
func JoinMatchers(selectors, texts []string) []JoinMatcher {
	matchers := make([]JoinMatcher, 0, len(selectors)+1)
	for _, s := range selectors {
		matchers = append(matchers, SelectorMatcher{Selector: s})
	}
	if len(texts) > 0 {
		matchers = append(matchers, TextMatcher{Needles: texts})
	}
	return matchers
}
