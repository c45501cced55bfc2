package eventstudy

import (
	"fmt"

	"github.com/rewired-gh/eventstudy/internal/logger"
	"github.com/rewired-gh/eventstudy/internal/panel"
)

// BuildInteractions adds indicator × baseline for every non-reference period to
// the frame and returns the new column names in period order. NaN in either
// source propagates to the product.
func BuildInteractions(f *panel.Frame, l Layout) ([]string, error) {
	if err := l.Validate(); err != nil {
		return nil, fmt.Errorf("invalid layout: %w", err)
	}

	baseline, err := f.Column(l.Baseline)
	if err != nil {
		return nil, fmt.Errorf("baseline: %w", err)
	}

	names := make([]string, 0, l.Periods-1)
	for _, p := range l.InteractionPeriods() {
		indicator, err := f.Column(l.IndicatorName(p))
		if err != nil {
			return nil, fmt.Errorf("period %d: %w", p, err)
		}

		product := make([]float64, len(indicator))
		for i := range indicator {
			product[i] = indicator[i] * baseline[i]
		}

		name := l.InteractionName(p)
		if err := f.AddColumn(name, product); err != nil {
			return nil, fmt.Errorf("period %d: %w", p, err)
		}
		names = append(names, name)
	}

	logger.Debug("Built %d interaction regressors (reference period %d omitted)", len(names), l.Reference)
	return names, nil
}
