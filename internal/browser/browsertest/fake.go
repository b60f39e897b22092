// Package browsertest provides scripted fakes of browser.Page and
// browser.Launcher.
package browsertest

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/raphaelgruber/fbparty-go/internal/browser"
)

// Page is a scripted browser.Page. Zero values behave like an empty tab
// that navigates successfully.
type Page struct {
	// Landed overrides the location reported after navigation.
	Landed string
	// NavigateErr is returned by every Navigate call.
	NavigateErr error
	// Observed are the request URLs reported by Requests.
	Observed []string
	// Document is returned by HTML.
	Document string
	// Eval answers Evaluate. Its result is JSON round-tripped into out,
	// the way a real page result is decoded.
	Eval func(expr string) (any, error)
	// Shot and ShotErr answer Screenshot.
	Shot    []byte
	ShotErr error

	mu        sync.Mutex
	location  string
	navigated []string
	evaluated []string
	closed    int
}

var _ browser.Page = (*Page)(nil)

func (p *Page) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.navigated = append(p.navigated, url)
	if p.NavigateErr != nil {
		return p.NavigateErr
	}
	p.location = url
	if p.Landed != "" {
		p.location = p.Landed
	}
	return nil
}

func (p *Page) Location(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.location, nil
}

func (p *Page) Evaluate(ctx context.Context, expr string, out any) error {
	p.mu.Lock()
	p.evaluated = append(p.evaluated, expr)
	eval := p.Eval
	p.mu.Unlock()

	if eval == nil {
		return nil
	}
	v, err := eval(expr)
	if err != nil {
		return err
	}
	if v == nil || out == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func (p *Page) HTML(ctx context.Context) (string, error) {
	return p.Document, nil
}

func (p *Page) Screenshot(ctx context.Context, quality int) ([]byte, error) {
	return p.Shot, p.ShotErr
}

func (p *Page) Requests() []string {
	return append([]string(nil), p.Observed...)
}

func (p *Page) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed++
	return nil
}

// Navigated returns the URLs passed to Navigate.
func (p *Page) Navigated() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.navigated...)
}

// Evaluated returns the expressions passed to Evaluate.
func (p *Page) Evaluated() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.evaluated...)
}

// Closed returns how often Close was called.
func (p *Page) Closed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Launcher hands out Page, or fails with Err.
type Launcher struct {
	Page *Page
	Err  error

	mu      sync.Mutex
	opens   int
	options []browser.Options
}

var _ browser.Launcher = (*Launcher)(nil)

func (l *Launcher) Open(ctx context.Context, opts browser.Options) (browser.Page, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.opens++
	l.options = append(l.options, opts)
	if l.Err != nil {
		return nil, l.Err
	}
	if l.Page == nil {
		l.Page = &Page{}
	}
	return l.Page, nil
}

// Opens returns how many pages were requested.
func (l *Launcher) Opens() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.opens
}

// Options returns the options of every Open call.
func (l *Launcher) Options() []browser.Options {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]browser.Options(nil), l.options...)
}
