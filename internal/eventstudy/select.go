package eventstudy

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/rewired-gh/eventstudy/internal/logger"
	"github.com/rewired-gh/eventstudy/internal/ols"
	"github.com/rewired-gh/eventstudy/internal/panel"
)

// ErrTooFewRows is returned when fewer than two complete rows remain.
var ErrTooFewRows = errors.New("too few complete rows")

// Selection names the regression variables. Regressors are assembled as
// Interactions, state fixed effects, Controls, time fixed effects, Baseline.
type Selection struct {
	Outcome      string
	Cluster      string
	Interactions []string
	StatePrefix  string
	TimePrefix   string
	Controls     []string
	// Baseline is appended last when non-empty.
	Baseline string
	// Columns whose sample standard deviation is below VarianceThreshold are dropped.
	VarianceThreshold float64
}

// Regressors resolves the full regressor list against the frame, in order and
// without duplicates. Prefix matches follow the frame's column order.
func (s Selection) Regressors(f *panel.Frame) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(names ...string) {
		for _, n := range names {
			if n == "" || seen[n] {
				continue
			}
			seen[n] = true
			out = append(out, n)
		}
	}

	add(s.Interactions...)
	if s.StatePrefix != "" {
		add(f.ColumnsWithPrefix(s.StatePrefix)...)
	}
	add(s.Controls...)
	if s.TimePrefix != "" {
		add(f.ColumnsWithPrefix(s.TimePrefix)...)
	}
	add(s.Baseline)
	return out
}

// SelectDesign builds the estimation input: rows with a missing outcome,
// regressor or cluster id are removed, then near-constant regressors are
// dropped. It returns the dropped column names alongside the design.
func SelectDesign(f *panel.Frame, s Selection) (*ols.Design, []string, error) {
	regressors := s.Regressors(f)
	if len(regressors) == 0 {
		return nil, nil, errors.New("no regressors selected")
	}

	all := make([]string, 0, len(regressors)+2)
	all = append(all, s.Outcome)
	all = append(all, regressors...)
	all = append(all, s.Cluster)

	rows, err := f.CompleteRows(all)
	if err != nil {
		return nil, nil, fmt.Errorf("select columns: %w", err)
	}
	if len(rows) < 2 {
		return nil, nil, fmt.Errorf("%w: %d of %d", ErrTooFewRows, len(rows), f.Rows())
	}
	if dropped := f.Rows() - len(rows); dropped > 0 {
		logger.Info("Dropped %d rows with missing values (%d remain)", dropped, len(rows))
	}

	y, err := gather(f, s.Outcome, rows)
	if err != nil {
		return nil, nil, err
	}
	clusters, err := gather(f, s.Cluster, rows)
	if err != nil {
		return nil, nil, err
	}

	var (
		kept    []string
		columns [][]float64
		dropped []string
	)
	for _, name := range regressors {
		col, err := gather(f, name, rows)
		if err != nil {
			return nil, nil, err
		}
		if sd := stat.StdDev(col, nil); sd < s.VarianceThreshold {
			dropped = append(dropped, name)
			continue
		}
		kept = append(kept, name)
		columns = append(columns, col)
	}
	if len(dropped) > 0 {
		logger.Info("Dropped %d zero-variance regressors: %v", len(dropped), dropped)
	}
	if len(kept) == 0 {
		return nil, dropped, errors.New("every regressor has zero variance")
	}

	x := mat.NewDense(len(rows), len(kept), nil)
	for j, col := range columns {
		x.SetCol(j, col)
	}

	return &ols.Design{
		Y:        y,
		X:        x,
		Names:    kept,
		Clusters: clusters,
	}, dropped, nil
}

func gather(f *panel.Frame, name string, rows []int) ([]float64, error) {
	col, err := f.Column(name)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(rows))
	for i, r := range rows {
		out[i] = col[r]
	}
	return out, nil
}
