package cascade

import (
	"fmt"
	"strings"
	"time"
)

// Snapshot is a point-in-time view of cascade state, rendered in the
// end-of-run report.
type Snapshot struct {
	Strategy string
	Active   []string
	Cooling  []CoolingStatus
	Tiers    []TierStatus
}

// CoolingStatus describes one member of the error-driven cooldown queue.
type CoolingStatus struct {
	Model                string
	FailureCount         int
	AttemptsSinceFailure int
	Threshold            int
}

// Remaining returns the estimated attempts left before the model is probed.
func (c CoolingStatus) Remaining() int {
	if c.AttemptsSinceFailure >= c.Threshold {
		return 0
	}
	return c.Threshold - c.AttemptsSinceFailure
}

// TierStatus describes one tier's quota state.
type TierStatus struct {
	Name              string
	CallsInWindow     int
	WindowLimit       int
	FallbackRemaining time.Duration
}

func (s Snapshot) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "=== cascade state (%s) ===\n", s.Strategy)

	if len(s.Active) > 0 {
		b.WriteString("active:\n")
		for _, m := range s.Active {
			fmt.Fprintf(&b, "  %s\n", m)
		}
	}
	if len(s.Cooling) > 0 {
		b.WriteString("cooling (FIFO):\n")
		for _, c := range s.Cooling {
			fmt.Fprintf(&b, "  %-40s failures=%-3d eligible in %d attempts\n", c.Model, c.FailureCount, c.Remaining())
		}
	}
	for _, t := range s.Tiers {
		limit := fmt.Sprintf("%d", t.WindowLimit)
		if t.WindowLimit <= 0 {
			limit = "∞"
		}
		line := fmt.Sprintf("tier %-20s window %d/%s", t.Name, t.CallsInWindow, limit)
		if t.FallbackRemaining > 0 {
			line += fmt.Sprintf("  exhausted, recovers in %s", t.FallbackRemaining.Round(time.Second))
		}
		b.WriteString(line + "\n")
	}

	return b.String()
}
