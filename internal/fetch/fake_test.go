package fetch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sells-group/earnings-cli/internal/browser"
)

type fakeElement struct {
	clickErr error
	progErr  error
	clicks   int
	progs    int
}

func (e *fakeElement) ScrollIntoView() error { return nil }
func (e *fakeElement) Hover() error          { return nil }
func (e *fakeElement) Click() error          { e.clicks++; return e.clickErr }
func (e *fakeElement) ProgrammaticClick() error {
	e.progs++
	return e.progErr
}

type fakeSession struct {
	mu       sync.Mutex
	pages    map[string]string
	navErr   map[string]error
	elements map[string]*fakeElement
	heights  []int
	heightAt int
	current  string

	visited   []string
	lookups   map[string]int
	scrolls   int
	closed    int
	heightErr error
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		pages:    map[string]string{},
		navErr:   map[string]error{},
		elements: map[string]*fakeElement{},
		lookups:  map[string]int{},
	}
}

func (s *fakeSession) Navigate(_ context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visited = append(s.visited, url)
	if err := s.navErr[url]; err != nil {
		return err
	}
	s.current = url
	return nil
}

func (s *fakeSession) Content() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pages[s.current], nil
}

func (s *fakeSession) ScrollHeight() (int, error) {
	if s.heightErr != nil {
		return 0, s.heightErr
	}
	if len(s.heights) == 0 {
		return 1000, nil
	}
	h := s.heights[min(s.heightAt, len(s.heights)-1)]
	s.heightAt++
	return h, nil
}

func (s *fakeSession) ScrollToBottom() error {
	s.scrolls++
	return nil
}

func (s *fakeSession) Element(selector string, _ time.Duration) (browser.Element, error) {
	s.lookups[selector]++
	if el, ok := s.elements[selector]; ok {
		return el, nil
	}
	return nil, browser.ErrElementNotFound
}

func (s *fakeSession) Close() error {
	s.closed++
	return nil
}

type fakeLauncher struct {
	sess     *fakeSession
	err      error
	sessions int
}

func (l *fakeLauncher) NewSession(context.Context) (browser.Session, error) {
	l.sessions++
	if l.err != nil {
		return nil, l.err
	}
	return l.sess, nil
}

type sleepRecorder struct {
	calls []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.calls = append(r.calls, d)
	return ctx.Err()
}

var errNav = errors.New("net::ERR_TIMED_OUT")
