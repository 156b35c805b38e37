package followerwatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func kinds(events []Event) []EventKind {
	var ks []EventKind
	for _, e := range events {
		ks = append(ks, e.Kind)
	}
	return ks
}

func TestEvaluateGrowth(t *testing.T) {
	for _, tc := range []struct{ previous, current int }{
		{0, 0}, {0, 1}, {10, 10}, {10, 11}, {10, 42}, {4999, 4999},
	} {
		events := Evaluate(tc.previous, tc.current, 1_000_000, nil)
		if tc.current > tc.previous {
			require.Len(t, events, 1, "%d -> %d", tc.previous, tc.current)
			assert.Equal(t, EventGrowth, events[0].Kind)
			assert.Equal(t, tc.current-tc.previous, events[0].Delta)
			assert.Equal(t, tc.previous, events[0].Previous)
			assert.Equal(t, tc.current, events[0].Current)
		} else {
			assert.Empty(t, events, "%d -> %d", tc.previous, tc.current)
		}
	}
}

func TestEvaluateDecreaseIsSilent(t *testing.T) {
	for _, tc := range []struct{ previous, current int }{
		{1, 0}, {300, 0}, {1001, 999}, {6000, 50}, {500, 499},
	} {
		assert.Empty(t, Evaluate(tc.previous, tc.current, 1000, DefaultMilestones),
			"%d -> %d", tc.previous, tc.current)
	}
}

func TestEvaluateTarget(t *testing.T) {
	t.Run("fires on crossing", func(t *testing.T) {
		events := Evaluate(900, 1200, 1000, nil)
		assert.Equal(t, []EventKind{EventGrowth, EventTarget}, kinds(events))
		assert.Equal(t, 1000, events[1].Threshold)
	})
	t.Run("fires when first observation is past target", func(t *testing.T) {
		assert.Contains(t, kinds(Evaluate(0, 1500, 1000, nil)), EventTarget)
	})
	t.Run("never fires again on later cycles", func(t *testing.T) {
		previous := 0
		fired := 0
		for _, current := range []int{999, 1000, 1000, 1001, 1500} {
			for _, e := range Evaluate(previous, current, 1000, nil) {
				if e.Kind == EventTarget {
					fired++
				}
			}
			previous = current
		}
		assert.Equal(t, 1, fired)
	})
	t.Run("below target", func(t *testing.T) {
		assert.NotContains(t, kinds(Evaluate(10, 999, 1000, nil)), EventTarget)
	})
}

func TestEvaluateMilestones(t *testing.T) {
	t.Run("several in one jump, ascending", func(t *testing.T) {
		events := Evaluate(50, 600, 1_000_000, []int{100, 500, 1000, 5000})
		require.Len(t, events, 3)
		assert.Equal(t, EventGrowth, events[0].Kind)
		assert.Equal(t, EventMilestone, events[1].Kind)
		assert.Equal(t, 100, events[1].Threshold)
		assert.Equal(t, EventMilestone, events[2].Kind)
		assert.Equal(t, 500, events[2].Threshold)
	})
	t.Run("unsorted input", func(t *testing.T) {
		events := Evaluate(50, 600, 1_000_000, []int{500, 5000, 100, 100})
		require.Len(t, events, 3)
		assert.Equal(t, 100, events[1].Threshold)
		assert.Equal(t, 500, events[2].Threshold)
	})
	t.Run("exact hit counts", func(t *testing.T) {
		events := Evaluate(99, 100, 1_000_000, DefaultMilestones)
		assert.Equal(t, []EventKind{EventGrowth, EventMilestone}, kinds(events))
	})
	t.Run("already past", func(t *testing.T) {
		assert.Equal(t, []EventKind{EventGrowth}, kinds(Evaluate(100, 499, 1_000_000, DefaultMilestones)))
	})
	t.Run("recovery after a drop fires again", func(t *testing.T) {
		events := Evaluate(90, 120, 1_000_000, DefaultMilestones)
		assert.Equal(t, []EventKind{EventGrowth, EventMilestone}, kinds(events))
	})
}

func TestEvaluateScenarios(t *testing.T) {
	t.Run("90 to 150", func(t *testing.T) {
		events := Evaluate(90, 150, 1000, DefaultMilestones)
		assert.Equal(t, []Event{
			{Kind: EventGrowth, Previous: 90, Current: 150, Delta: 60},
			{Kind: EventMilestone, Previous: 90, Current: 150, Threshold: 100},
		}, events)
	})
	t.Run("999 to 1000", func(t *testing.T) {
		events := Evaluate(999, 1000, 1000, DefaultMilestones)
		assert.Equal(t, []Event{
			{Kind: EventGrowth, Previous: 999, Current: 1000, Delta: 1},
			{Kind: EventTarget, Previous: 999, Current: 1000, Threshold: 1000},
			{Kind: EventMilestone, Previous: 999, Current: 1000, Threshold: 1000},
		}, events)
	})
	t.Run("1000 to 1000", func(t *testing.T) {
		assert.Empty(t, Evaluate(1000, 1000, 1000, DefaultMilestones))
	})
}

func TestEventMessage(t *testing.T) {
	assert.Equal(t, "🎉 Followers increased from 90 to 150 (+60)",
		Event{Kind: EventGrowth, Previous: 90, Current: 150, Delta: 60}.Message("dancer", "TikTok"))
	assert.Equal(t, "🏆 Congratulations! dancer reached 1003 followers on TikTok!",
		Event{Kind: EventTarget, Current: 1003, Threshold: 1000}.Message("dancer", "TikTok"))
	assert.Equal(t, "🎉 Congratulations! dancer passed 500 followers on TikTok!",
		Event{Kind: EventMilestone, Current: 600, Threshold: 500}.Message("dancer", "TikTok"))
}

func TestNormalizeMilestones(t *testing.T) {
	in := []int{5000, 0, 100, -3, 500, 100}
	assert.Equal(t, []int{100, 500, 5000}, NormalizeMilestones(in))
	assert.Equal(t, []int{5000, 0, 100, -3, 500, 100}, in, "input must not be modified")
	assert.Empty(t, NormalizeMilestones(nil))
}
