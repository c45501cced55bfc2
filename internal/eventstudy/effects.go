package eventstudy

import (
	"fmt"
	"sort"

	"github.com/rewired-gh/eventstudy/internal/models"
	"github.com/rewired-gh/eventstudy/internal/ols"
)

// ExtractEffects keeps the interaction coefficients, appends the zero-effect
// reference row, places every row at its event time and sorts ascending.
func ExtractEffects(res *ols.Result, l Layout) ([]models.EventEffect, error) {
	times := l.EventTimes()
	ref := l.ReferenceName()

	var effects []models.EventEffect
	for _, e := range res.Estimates {
		if !l.IsInteraction(e.Var) {
			continue
		}
		if e.Var == ref {
			return nil, fmt.Errorf("reference regressor %s must not be estimated", ref)
		}
		t, ok := times[e.Var]
		if !ok {
			return nil, fmt.Errorf("no event time for regressor %s", e.Var)
		}
		effects = append(effects, models.EventEffect{Estimate: e, EventTime: t})
	}

	effects = append(effects, models.EventEffect{
		Estimate:  models.ReferenceEstimate(ref, res.N),
		EventTime: times[ref],
	})

	sort.SliceStable(effects, func(i, j int) bool {
		return effects[i].EventTime < effects[j].EventTime
	})
	return effects, nil
}

// PlotWindow keeps effects whose event time lies strictly between lo and hi.
func PlotWindow(effects []models.EventEffect, lo, hi int) []models.EventEffect {
	out := make([]models.EventEffect, 0, len(effects))
	for _, e := range effects {
		if e.EventTime > lo && e.EventTime < hi {
			out = append(out, e)
		}
	}
	return out
}
