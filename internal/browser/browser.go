// Package browser renders JavaScript-heavy pages through a headless browser.
package browser

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
)

// ErrElementNotFound is returned by Session.Element when nothing matching
// the selector became clickable before the timeout.
var ErrElementNotFound = eris.New("browser: element not found")

// Launcher opens browsing sessions.
type Launcher interface {
	NewSession(ctx context.Context) (Session, error)
}

// Session is a single browser tab reused across navigations.
type Session interface {
	// Navigate loads url, waits for the load event and a settle delay, and
	// fails after the configured timeout.
	Navigate(ctx context.Context, url string) error
	// Content returns the current document as HTML.
	Content() (string, error)
	// ScrollHeight returns document.body.scrollHeight.
	ScrollHeight() (int, error)
	// ScrollToBottom scrolls the window to the end of the body.
	ScrollToBottom() error
	// Element waits up to timeout for a visible element matching selector.
	// Selectors use playwright syntax; prefix XPath with "xpath=".
	Element(selector string, timeout time.Duration) (Element, error)
	Close() error
}

// Element is an interactive handle to a located node.
type Element interface {
	ScrollIntoView() error
	Hover() error
	Click() error
	// ProgrammaticClick dispatches a click event without pointer checks,
	// for elements covered by overlays.
	ProgrammaticClick() error
}
