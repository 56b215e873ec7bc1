package action

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/entrhq/webpilot/pkg/browser"
	"github.com/entrhq/webpilot/pkg/logging"
	"github.com/entrhq/webpilot/pkg/metrics"
)

// DefaultSettle is how long the pipeline waits after an action before
// capturing state.
const DefaultSettle = 500 * time.Millisecond

// State is what every action reports back.
type State struct {
	URL        string
	Screenshot []byte
}

// Options configures a Pipeline.
type Options struct {
	Settle    time.Duration
	Highlight bool
	SearchURL string
	Logger    *logging.Logger
}

// Pipeline executes actions against a session.
type Pipeline struct {
	settle    time.Duration
	highlight bool
	searchURL string
	logger    *logging.Logger

	lastX, lastY int
	pointerSeen  bool
}

// New creates a pipeline. A zero Settle uses DefaultSettle; a negative one
// disables settling.
func New(opts Options) *Pipeline {
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Settle == 0 {
		opts.Settle = DefaultSettle
	}
	return &Pipeline{
		settle:    opts.Settle,
		highlight: opts.Highlight,
		searchURL: opts.SearchURL,
		logger:    opts.Logger,
	}
}

// Run validates and executes a, waits for the page to settle and captures
// the URL and a screenshot. The state is returned even when the action
// failed; failures without a more specific kind wrap
// browser.ErrActionExecution.
func (p *Pipeline) Run(ctx context.Context, s browser.Session, a Action) (State, error) {
	start := time.Now()
	defer func() {
		metrics.ActionDuration.WithLabelValues(string(a.Kind)).Observe(time.Since(start).Seconds())
	}()

	if err := a.Validate(); err != nil {
		state, _ := p.Capture(ctx, s)
		return state, browser.NewError(browser.ErrActionExecution, string(a.Kind), err)
	}

	err := p.execute(ctx, s, a)
	if err != nil {
		p.logger.Warnf("%s failed: %v", a.Kind, err)
		err = classify(string(a.Kind), err)
	} else {
		p.wait(ctx, p.settle)
	}

	state, captureErr := p.Capture(ctx, s)
	if err == nil && captureErr != nil {
		err = captureErr
	}
	return state, err
}

// Capture reads the URL and takes a screenshot of the current tab.
func (p *Pipeline) Capture(ctx context.Context, s browser.Session) (State, error) {
	if p.highlight && p.pointerSeen {
		if _, err := s.Evaluate(ctx, highlightScript(p.lastX, p.lastY)); err != nil {
			p.logger.Debugf("pointer highlight failed: %v", err)
		}
	}

	var state State
	var errs []error
	url, err := s.URL(ctx)
	if err != nil {
		errs = append(errs, err)
	}
	state.URL = url

	png, err := s.Screenshot(ctx)
	if err != nil {
		errs = append(errs, err)
	}
	state.Screenshot = png

	if len(errs) > 0 {
		return state, classify("capture", errors.Join(errs...))
	}
	return state, nil
}

// classify keeps errors that already carry a kind and marks the rest as
// action failures.
func classify(op string, err error) error {
	if browser.KindOf(err) != nil {
		return err
	}
	return browser.NewError(browser.ErrActionExecution, op, err)
}

func (p *Pipeline) wait(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

func (p *Pipeline) execute(ctx context.Context, s browser.Session, a Action) error {
	switch a.Kind {
	case Click:
		if err := p.requireElement(ctx, s, a.X, a.Y); err != nil {
			return err
		}
		return p.pointer(ctx, s, browser.PointerInput{Kind: browser.PointerClick, X: a.X, Y: a.Y})

	case Hover:
		if tag, _ := p.probeElement(ctx, s, a.X, a.Y); tag == "" {
			p.logger.Debugf("hovering over empty point (%d, %d)", a.X, a.Y)
		}
		return p.pointer(ctx, s, browser.PointerInput{Kind: browser.PointerMove, X: a.X, Y: a.Y})

	case Type:
		return p.typeText(ctx, s, a)

	case ScrollDocument:
		_, err := s.Evaluate(ctx, scrollDocumentScript(a.Direction))
		return err

	case ScrollAt:
		magnitude := a.Magnitude
		if magnitude == 0 {
			magnitude = DefaultScrollMagnitude
		}
		dx, dy := scrollDelta(a.Direction, magnitude)
		return p.pointer(ctx, s, browser.PointerInput{Kind: browser.PointerWheel, X: a.X, Y: a.Y, DeltaX: dx, DeltaY: dy})

	case KeyCombination:
		chord, err := browser.NormalizeChord(a.Keys)
		if err != nil {
			return err
		}
		return s.Keyboard(ctx, browser.KeyInput{Chord: chord})

	case DragAndDrop:
		if err := p.requireElement(ctx, s, a.X, a.Y); err != nil {
			return err
		}
		steps := []browser.PointerInput{
			{Kind: browser.PointerDown, X: a.X, Y: a.Y},
			{Kind: browser.PointerMove, X: a.DestX, Y: a.DestY},
			{Kind: browser.PointerUp, X: a.DestX, Y: a.DestY},
		}
		for _, in := range steps {
			if err := p.pointer(ctx, s, in); err != nil {
				return err
			}
		}
		return nil

	case Back:
		return s.Back(ctx)

	case Forward:
		return s.Forward(ctx)

	case Navigate:
		return s.Navigate(ctx, NormalizeURL(a.URL))

	case Search:
		if p.searchURL == "" {
			return fmt.Errorf("no search engine configured")
		}
		return s.Navigate(ctx, NormalizeURL(p.searchURL))

	case Wait:
		p.wait(ctx, a.Duration)
		return ctx.Err()

	case CurrentState:
		return nil
	}
	return fmt.Errorf("unknown action %q", a.Kind)
}

func (p *Pipeline) typeText(ctx context.Context, s browser.Session, a Action) error {
	if err := p.requireElement(ctx, s, a.X, a.Y); err != nil {
		return err
	}
	if err := p.pointer(ctx, s, browser.PointerInput{Kind: browser.PointerClick, X: a.X, Y: a.Y}); err != nil {
		return fmt.Errorf("focusing element: %w", err)
	}
	if a.ClearBeforeTyping {
		if err := s.Keyboard(ctx, browser.KeyInput{Chord: []string{browser.KeyControl, "a"}}); err != nil {
			return fmt.Errorf("selecting existing text: %w", err)
		}
		if err := s.Keyboard(ctx, browser.KeyInput{Chord: []string{browser.KeyDelete}}); err != nil {
			return fmt.Errorf("clearing existing text: %w", err)
		}
	}
	if a.Text != "" {
		if err := s.Keyboard(ctx, browser.KeyInput{Text: a.Text}); err != nil {
			return err
		}
	}
	if a.PressEnter {
		return s.Keyboard(ctx, browser.KeyInput{Chord: []string{browser.KeyEnter}})
	}
	return nil
}

func (p *Pipeline) pointer(ctx context.Context, s browser.Session, in browser.PointerInput) error {
	if err := s.Pointer(ctx, in); err != nil {
		return err
	}
	p.lastX, p.lastY, p.pointerSeen = in.X, in.Y, true
	return nil
}

// probeElement returns the tag name of the element at (x, y), or "".
func (p *Pipeline) probeElement(ctx context.Context, s browser.Session, x, y int) (string, error) {
	v, err := s.Evaluate(ctx, hitTestScript(x, y))
	if err != nil {
		return "", err
	}
	tag, _ := v.(string)
	return tag, nil
}

func (p *Pipeline) requireElement(ctx context.Context, s browser.Session, x, y int) error {
	tag, err := p.probeElement(ctx, s, x, y)
	if err != nil {
		return fmt.Errorf("hit test at (%d, %d): %w", x, y, err)
	}
	if tag == "" {
		return fmt.Errorf("no element at (%d, %d)", x, y)
	}
	p.logger.Debugf("element at (%d, %d): <%s>", x, y, tag)
	return nil
}
