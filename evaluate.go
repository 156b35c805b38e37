package followerwatch

import (
	"fmt"
	"sort"
)

// DefaultMilestones are the follower counts that get their own message when
// no milestones are configured.
var DefaultMilestones = []int{100, 500, 1000, 5000}

// EventKind identifies why a notification is being sent.
type EventKind int

const (
	// EventGrowth is sent whenever the count goes up.
	EventGrowth EventKind = iota + 1
	// EventTarget is sent once, when the count reaches the configured target.
	EventTarget
	// EventMilestone is sent once per milestone, when the count passes it.
	EventMilestone
)

func (k EventKind) String() string {
	switch k {
	case EventGrowth:
		return "growth"
	case EventTarget:
		return "target"
	case EventMilestone:
		return "milestone"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// MarshalText lets an EventKind show up by name in JSON status output.
func (k EventKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText is the inverse of MarshalText.
func (k *EventKind) UnmarshalText(b []byte) error {
	for _, c := range []EventKind{EventGrowth, EventTarget, EventMilestone} {
		if string(b) == c.String() {
			*k = c
			return nil
		}
	}
	return fmt.Errorf("unknown event kind %q", b)
}

// Event is a single notification warranted by a cycle.
type Event struct {
	Kind     EventKind `json:"kind"`
	Previous int       `json:"previous"`
	Current  int       `json:"current"`

	// Delta is only set for growth events.
	Delta int `json:"delta,omitempty"`

	// Threshold is the target or milestone that was crossed.
	Threshold int `json:"threshold,omitempty"`
}

// Message renders the event as the plain text that gets delivered.
func (e Event) Message(account, platform string) string {
	switch e.Kind {
	case EventGrowth:
		return fmt.Sprintf("🎉 Followers increased from %d to %d (+%d)",
			e.Previous, e.Current, e.Delta)
	case EventTarget:
		return fmt.Sprintf("🏆 Congratulations! %s reached %d followers on %s!",
			account, e.Current, platform)
	case EventMilestone:
		return fmt.Sprintf("🎉 Congratulations! %s passed %d followers on %s!",
			account, e.Threshold, platform)
	default:
		return ""
	}
}

// Evaluate returns the events warranted by the count moving from previous to
// current, in order: growth, then target, then milestones ascending.
//
// A count that stays the same or goes down produces nothing. Target and
// milestone events only fire on the cycle that crosses them, so once the
// new count has been saved as the next cycle's previous they cannot fire
// again unless the count first drops back below them.
func Evaluate(previous, current, target int, milestones []int) []Event {
	var events []Event
	if current > previous {
		events = append(events, Event{
			Kind:     EventGrowth,
			Previous: previous,
			Current:  current,
			Delta:    current - previous,
		})
	}
	if crossed(previous, current, target) {
		events = append(events, Event{
			Kind:      EventTarget,
			Previous:  previous,
			Current:   current,
			Threshold: target,
		})
	}
	for _, m := range NormalizeMilestones(milestones) {
		if crossed(previous, current, m) {
			events = append(events, Event{
				Kind:      EventMilestone,
				Previous:  previous,
				Current:   current,
				Threshold: m,
			})
		}
	}
	return events
}

func crossed(previous, current, threshold int) bool {
	return previous < threshold && current >= threshold
}

// NormalizeMilestones returns a sorted copy of milestones with duplicates and
// non-positive values removed.
func NormalizeMilestones(milestones []int) []int {
	out := make([]int, 0, len(milestones))
	for _, m := range milestones {
		if m > 0 {
			out = append(out, m)
		}
	}
	sort.Ints(out)
	uniq := out[:0]
	for i, m := range out {
		if i > 0 && m == out[i-1] {
			continue
		}
		uniq = append(uniq, m)
	}
	return uniq
}
