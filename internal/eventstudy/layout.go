// Package eventstudy builds the event-study regressors from a panel, selects
// the estimation sample, and turns fitted coefficients into an event-time path.
//
// Periods are numbered 1..P. Period R is the omitted reference: it gets no
// interaction column and its effect is pinned to zero. Period p sits at event
// time p-R-1, so with P=18 and R=6 the path runs from -6 to 11 and the
// reference is the last pre-treatment year, -1.
package eventstudy

import (
	"fmt"
	"strconv"
	"strings"
)

// Layout describes the period structure and the column naming scheme.
type Layout struct {
	Periods           int
	Reference         int
	IndicatorPrefix   string // e.g. _Texp_ for _Texp_1.._Texp_18
	InteractionPrefix string // e.g. exp_Mpre_
	Baseline          string // baseline-intensity column
}

// DefaultLayout is the measles study: 18 periods, period 6 omitted.
func DefaultLayout() Layout {
	return Layout{
		Periods:           18,
		Reference:         6,
		IndicatorPrefix:   "_Texp_",
		InteractionPrefix: "exp_Mpre_",
		Baseline:          "avg_12yr_measles_rate",
	}
}

// Validate checks the layout is usable.
func (l Layout) Validate() error {
	if l.Periods < 2 {
		return fmt.Errorf("periods must be at least 2, got %d", l.Periods)
	}
	if l.Reference < 1 || l.Reference > l.Periods {
		return fmt.Errorf("reference period %d outside 1..%d", l.Reference, l.Periods)
	}
	if l.IndicatorPrefix == "" || l.InteractionPrefix == "" || l.Baseline == "" {
		return fmt.Errorf("indicator prefix, interaction prefix and baseline are required")
	}
	return nil
}

// IndicatorName is the event-time dummy for period p.
func (l Layout) IndicatorName(p int) string {
	return l.IndicatorPrefix + strconv.Itoa(p)
}

// InteractionName is the regressor built for period p.
func (l Layout) InteractionName(p int) string {
	return l.InteractionPrefix + strconv.Itoa(p)
}

// ReferenceName is the name the omitted period would have had.
func (l Layout) ReferenceName() string {
	return l.InteractionName(l.Reference)
}

// InteractionPeriods lists every period except the reference, ascending.
func (l Layout) InteractionPeriods() []int {
	out := make([]int, 0, l.Periods-1)
	for p := 1; p <= l.Periods; p++ {
		if p == l.Reference {
			continue
		}
		out = append(out, p)
	}
	return out
}

// InteractionNames lists the regressors BuildInteractions creates.
func (l Layout) InteractionNames() []string {
	periods := l.InteractionPeriods()
	out := make([]string, len(periods))
	for i, p := range periods {
		out[i] = l.InteractionName(p)
	}
	return out
}

// EventTime converts a period index to years relative to vaccine availability.
func (l Layout) EventTime(p int) int {
	return p - l.Reference - 1
}

// EventTimes is the lookup from regressor name to event time. It has one entry
// per constructed interaction plus the reference period.
func (l Layout) EventTimes() map[string]int {
	m := make(map[string]int, l.Periods)
	for p := 1; p <= l.Periods; p++ {
		m[l.InteractionName(p)] = l.EventTime(p)
	}
	return m
}

// IsInteraction reports whether a regressor name is one of the event-time interactions.
func (l Layout) IsInteraction(name string) bool {
	return strings.HasPrefix(name, l.InteractionPrefix)
}
