package canvas

import "time"

// DefaultDebounceWindow is how long a reaction toggle on the same memo by the
// same session is ignored after an accepted one.
const DefaultDebounceWindow = time.Second

type debounceKey struct {
	sessionID string
	memoID    string
}

// Debouncer drops repeated reaction toggles. It only remembers the last
// accepted toggle per (session, memo) pair; there is no backoff.
type Debouncer struct {
	window time.Duration
	last   map[debounceKey]time.Time
}

func NewDebouncer(window time.Duration) *Debouncer {
	if window <= 0 {
		window = DefaultDebounceWindow
	}
	return &Debouncer{window: window, last: make(map[debounceKey]time.Time)}
}

// ShouldSuppress reports whether a toggle at now must be dropped. When it is
// not dropped the toggle is recorded as the new last accepted one.
func (d *Debouncer) ShouldSuppress(sessionID, memoID string, now time.Time) bool {
	key := debounceKey{sessionID: sessionID, memoID: memoID}
	if last, ok := d.last[key]; ok && now.Sub(last) < d.window {
		return true
	}
	d.last[key] = now
	return false
}

// Forget discards every entry recorded for a session.
func (d *Debouncer) Forget(sessionID string) {
	for key := range d.last {
		if key.sessionID == sessionID {
			delete(d.last, key)
		}
	}
}

func (d *Debouncer) Window() time.Duration {
	return d.window
}
