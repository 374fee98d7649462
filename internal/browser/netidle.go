// internal/browser/netidle.go
package browser

import (
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
)

// idleInflightLimit is how many requests may still be open while the page
// counts as settled. Login pages keep a long-poll or two open indefinitely.
const idleInflightLimit = 2

// inflightTracker follows the network events of one tab and remembers when
// request activity last changed.
type inflightTracker struct {
	mu           sync.Mutex
	inflight     map[network.RequestID]struct{}
	lastActivity time.Time
	now          func() time.Time
}

func newInflightTracker() *inflightTracker {
	return &inflightTracker{
		inflight:     make(map[network.RequestID]struct{}),
		lastActivity: time.Now(),
		now:          time.Now,
	}
}

// handle is a chromedp target listener.
func (t *inflightTracker) handle(ev interface{}) {
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		// Redirects reuse the request ID, so the entry simply stays open.
		t.mu.Lock()
		t.inflight[e.RequestID] = struct{}{}
		t.lastActivity = t.now()
		t.mu.Unlock()
	case *network.EventLoadingFinished:
		t.finish(e.RequestID)
	case *network.EventLoadingFailed:
		t.finish(e.RequestID)
	}
}

func (t *inflightTracker) finish(id network.RequestID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.inflight[id]; ok {
		delete(t.inflight, id)
		t.lastActivity = t.now()
	}
}

// quietFor reports whether at most idleInflightLimit requests are open and
// nothing has started or finished for the last quiet period.
func (t *inflightTracker) quietFor(quiet time.Duration) (bool, int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := len(t.inflight)
	if n > idleInflightLimit {
		return false, n
	}
	return t.now().Sub(t.lastActivity) >= quiet, n
}
