package cascade

import "time"

// limiter tracks one tier's quota window. The exact window semantics of the
// upstream providers are not documented uniformly, so the limiter is kept
// behind this interface; fixedWindow is the default. Implementations are
// called with the strategy mutex held and must be O(1).
type limiter interface {
	// allow consumes one slot if the tier has quota left.
	allow(now time.Time) bool
	// reset clears the window (tier recovery).
	reset(now time.Time)
	// used reports calls consumed in the current window and the limit
	// (limit <= 0 means unlimited).
	used() (calls, limit int)
}

// fixedWindow allows up to limit calls per window, resetting when a full
// window has elapsed since the window started.
type fixedWindow struct {
	limit       int
	window      time.Duration
	calls       int
	windowStart time.Time
}

func newFixedWindow(limit int, window time.Duration) *fixedWindow {
	return &fixedWindow{limit: limit, window: window}
}

func (w *fixedWindow) allow(now time.Time) bool {
	if w.windowStart.IsZero() || now.Sub(w.windowStart) >= w.window {
		w.windowStart = now
		w.calls = 0
	}
	if w.limit > 0 && w.calls >= w.limit {
		return false
	}
	w.calls++
	return true
}

func (w *fixedWindow) reset(now time.Time) {
	w.windowStart = now
	w.calls = 0
}

func (w *fixedWindow) used() (int, int) {
	return w.calls, w.limit
}
