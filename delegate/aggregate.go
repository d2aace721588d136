package delegate

import (
	"fmt"
	"strings"
)

// Strategy selects the shape the aggregator reduces a batch into.
type Strategy string

const (
	// StrategySummary lists every task's terminal state and output in a
	// compact report. The default.
	StrategySummary Strategy = "summary"
	// StrategyMerge concatenates the succeeded results into one body,
	// with failures noted at the end.
	StrategyMerge Strategy = "merge"
	// StrategyCompare renders each result as its own titled section for
	// side-by-side reading.
	StrategyCompare Strategy = "compare"
	// StrategyAnalyze prefixes the compare layout with batch statistics.
	StrategyAnalyze Strategy = "analyze"
	// StrategyCustom delegates reduction to a caller-supplied function.
	StrategyCustom Strategy = "custom"
)

// CustomAggregator reduces outcomes under StrategyCustom. It must be
// deterministic over its input to preserve idempotent aggregation.
type CustomAggregator func(outcomes []Outcome) (string, error)

// Aggregate reduces a terminal batch's outcomes, given in batch order,
// into one report. It is a pure function of its inputs: aggregating the
// same outcomes twice yields byte-identical output. Non-succeeded tasks
// appear as failure summaries rather than being dropped, so partial
// success stays visible.
func Aggregate(outcomes []Outcome, strategy Strategy, custom CustomAggregator) (string, error) {
	if len(outcomes) == 0 {
		return "", fmt.Errorf("no outcomes to aggregate")
	}
	for _, o := range outcomes {
		if !o.State.Terminal() {
			return "", fmt.Errorf("task %s is not terminal (state %s)", o.TaskID, o.State)
		}
	}

	switch strategy {
	case StrategySummary, "":
		return aggregateSummary(outcomes), nil
	case StrategyMerge:
		return aggregateMerge(outcomes), nil
	case StrategyCompare:
		return aggregateCompare(outcomes), nil
	case StrategyAnalyze:
		return aggregateAnalyze(outcomes), nil
	case StrategyCustom:
		if custom == nil {
			return "", fmt.Errorf("custom strategy requires an aggregator function")
		}
		return custom(outcomes)
	default:
		return "", fmt.Errorf("unknown aggregation strategy %q", strategy)
	}
}

type tally struct {
	succeeded, failed, timedOut, cancelled int
}

func count(outcomes []Outcome) tally {
	var t tally
	for _, o := range outcomes {
		switch o.State {
		case StateSucceeded:
			t.succeeded++
		case StateFailed:
			t.failed++
		case StateTimedOut:
			t.timedOut++
		case StateCancelled:
			t.cancelled++
		}
	}
	return t
}

func (t tally) line(total int) string {
	return fmt.Sprintf("Delegated %d task(s): %d succeeded, %d failed, %d timed out, %d cancelled.",
		total, t.succeeded, t.failed, t.timedOut, t.cancelled)
}

func failureLine(o Outcome) string {
	if o.Err != nil {
		return fmt.Sprintf("%s: %v", o.State, o.Err)
	}
	return string(o.State)
}

func aggregateSummary(outcomes []Outcome) string {
	var b strings.Builder
	b.WriteString(count(outcomes).line(len(outcomes)))
	b.WriteString("\n")
	for i, o := range outcomes {
		fmt.Fprintf(&b, "\n%d. [%s] %s\n", i+1, o.State, o.Description)
		if o.State == StateSucceeded {
			fmt.Fprintf(&b, "   %s\n", strings.ReplaceAll(strings.TrimSpace(o.Result), "\n", "\n   "))
		} else {
			fmt.Fprintf(&b, "   %s\n", failureLine(o))
		}
	}
	return b.String()
}

func aggregateMerge(outcomes []Outcome) string {
	var parts []string
	var failures []string
	for _, o := range outcomes {
		if o.State == StateSucceeded {
			parts = append(parts, strings.TrimSpace(o.Result))
			continue
		}
		failures = append(failures, fmt.Sprintf("- %s: %s", o.Description, failureLine(o)))
	}

	var b strings.Builder
	b.WriteString(strings.Join(parts, "\n\n"))
	if len(failures) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("Not included:\n")
		b.WriteString(strings.Join(failures, "\n"))
	}
	return b.String()
}

func aggregateCompare(outcomes []Outcome) string {
	var b strings.Builder
	for i, o := range outcomes {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "### %d. %s (%s)\n\n", i+1, o.Description, o.State)
		if o.State == StateSucceeded {
			b.WriteString(strings.TrimSpace(o.Result))
		} else {
			b.WriteString(failureLine(o))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func aggregateAnalyze(outcomes []Outcome) string {
	var b strings.Builder
	b.WriteString(count(outcomes).line(len(outcomes)))
	b.WriteString("\n\n")
	b.WriteString(aggregateCompare(outcomes))
	return b.String()
}
