package recurrence

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

// ErrInvalidRecurrenceRule is returned when a recurrence rule cannot be
// parsed. It fails the write that carried the rule.
var ErrInvalidRecurrenceRule = errors.New("invalid recurrence rule")

// Limits bounds the expansion of unbounded rules.
type Limits struct {
	// MaxInstances caps the number of occurrences, the first included.
	MaxInstances int

	// HorizonYears stops rule expansion this many years after the start.
	HorizonYears int
}

// DefaultLimits returns the limits used when none are configured.
func DefaultLimits() Limits {
	return Limits{
		MaxInstances: 1000,
		HorizonYears: 10,
	}
}

// Input is the recurrence definition of one master entry.
type Input struct {
	Rule    string
	Start   time.Time
	ExDates []time.Time
	RDates  []time.Time
}

func parseRule(rule string, loc *time.Location) (*rrule.ROption, error) {
	rule = strings.TrimSpace(rule)
	rule = strings.TrimPrefix(rule, "RRULE:")
	if !strings.Contains(strings.ToUpper(rule), "FREQ=") {
		return nil, fmt.Errorf("%w: %q has no FREQ", ErrInvalidRecurrenceRule, rule)
	}
	opt, err := rrule.StrToROptionInLocation(rule, loc)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidRecurrenceRule, rule, err)
	}
	return opt, nil
}

// Validate reports whether rule is a parsable RRULE value. An empty rule is
// valid.
func Validate(rule string) error {
	if strings.TrimSpace(rule) == "" {
		return nil
	}
	opt, err := parseRule(rule, time.UTC)
	if err != nil {
		return err
	}
	opt.Dtstart = time.Unix(0, 0).UTC()
	if _, err := rrule.NewRRule(*opt); err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidRecurrenceRule, rule, err)
	}
	return nil
}

// Expand returns the ordered occurrence set of in: the rule's occurrences
// from Start, plus RDates, minus ExDates. Rule occurrences keep the
// sub-second part of Start. Occurrences are compared at second precision.
// Without a rule the set is Start plus RDates.
func Expand(in Input, limits Limits) ([]time.Time, error) {
	if limits.MaxInstances <= 0 {
		limits.MaxInstances = DefaultLimits().MaxInstances
	}
	if limits.HorizonYears <= 0 {
		limits.HorizonYears = DefaultLimits().HorizonYears
	}

	loc := in.Start.Location()
	seen := make(map[int64]time.Time)

	if strings.TrimSpace(in.Rule) == "" {
		seen[in.Start.Unix()] = in.Start
	} else {
		opt, err := parseRule(in.Rule, loc)
		if err != nil {
			return nil, err
		}
		// rrule works in whole seconds.
		frac := in.Start.Sub(in.Start.Truncate(time.Second))
		opt.Dtstart = in.Start
		r, err := rrule.NewRRule(*opt)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRecurrenceRule, err)
		}

		horizon := in.Start.AddDate(limits.HorizonYears, 0, 0)
		next := r.Iterator()
		for len(seen) < limits.MaxInstances {
			t, ok := next()
			if !ok {
				break
			}
			t = t.Add(frac)
			if t.After(horizon) {
				break
			}
			seen[t.Unix()] = t
		}
	}

	for _, t := range in.RDates {
		seen[t.Unix()] = t.In(loc)
	}
	for _, t := range in.ExDates {
		delete(seen, t.Unix())
	}

	out := make([]time.Time, 0, len(seen))
	for _, t := range seen {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	if len(out) > limits.MaxInstances {
		out = out[:limits.MaxInstances]
	}
	return out, nil
}
