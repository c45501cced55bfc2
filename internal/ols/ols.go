// Package ols fits a no-intercept least-squares regression with cluster-robust
// standard errors, which is all the event study needs from an estimator.
//
// The covariance is the usual sandwich
//
//	c · (X'X)⁻¹ (Σ_g X_g'u_g u_g'X_g) (X'X)⁻¹,   c = G/(G−1) · (N−1)/(N−K)
//
// with G clusters, N rows and K regressors. Inference uses the standard normal
// by default, or Student's t with G−1 degrees of freedom.
package ols

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/rewired-gh/eventstudy/internal/logger"
	"github.com/rewired-gh/eventstudy/internal/models"
)

var (
	// ErrRankDeficient is returned when the design matrix does not have full column rank.
	ErrRankDeficient = errors.New("design matrix is rank deficient")
	// ErrNoResidualDF is returned when there are no more rows than regressors.
	ErrNoResidualDF = errors.New("no residual degrees of freedom")
	// ErrTooFewClusters is returned when fewer than two clusters remain.
	ErrTooFewClusters = errors.New("cluster-robust covariance needs at least two clusters")
)

// Inference selects the reference distribution for p-values and intervals.
type Inference string

const (
	// Normal uses the standard normal distribution, as statsmodels does for
	// cluster-robust covariance.
	Normal Inference = "normal"
	// StudentT uses Student's t with G−1 degrees of freedom.
	StudentT Inference = "t"
)

// defaultCollinearityTol is the relative residual norm under which a column is
// treated as a linear combination of the columns before it.
const defaultCollinearityTol = 1e-9

// Design is the estimation input: response, regressors and cluster ids, all
// restricted to complete rows.
type Design struct {
	Y        []float64
	X        *mat.Dense
	Names    []string
	Clusters []float64
}

// Options controls Fit.
type Options struct {
	ConfidenceLevel float64
	Inference       Inference
	// DropCollinear removes columns that are linear combinations of earlier
	// columns instead of failing with ErrRankDeficient.
	DropCollinear   bool
	CollinearityTol float64
}

// Result holds the fitted coefficients in regressor order.
type Result struct {
	Estimates []models.Estimate
	N         int
	Clusters  int
	DFResid   int
	// Collinear lists columns removed because DropCollinear was set.
	Collinear []string
}

// Estimate returns the named coefficient.
func (r *Result) Estimate(name string) (models.Estimate, bool) {
	for _, e := range r.Estimates {
		if e.Var == name {
			return e, true
		}
	}
	return models.Estimate{}, false
}

// Fit estimates y = Xb + u by least squares without adding an intercept.
func Fit(d *Design, opts Options) (*Result, error) {
	if d == nil || d.X == nil {
		return nil, errors.New("design must not be nil")
	}
	n, k := d.X.Dims()
	if len(d.Y) != n {
		return nil, fmt.Errorf("response has %d rows, design has %d", len(d.Y), n)
	}
	if len(d.Clusters) != n {
		return nil, fmt.Errorf("cluster ids have %d rows, design has %d", len(d.Clusters), n)
	}
	if len(d.Names) != k {
		return nil, fmt.Errorf("%d names for %d regressors", len(d.Names), k)
	}
	if k == 0 {
		return nil, errors.New("design has no regressors")
	}
	if opts.ConfidenceLevel <= 0 || opts.ConfidenceLevel >= 1 {
		opts.ConfidenceLevel = 0.95
	}
	if opts.CollinearityTol <= 0 {
		opts.CollinearityTol = defaultCollinearityTol
	}

	x, names := d.X, d.Names
	keep, collinear := independentColumns(x, opts.CollinearityTol)
	var dropped []string
	if len(collinear) > 0 {
		for _, j := range collinear {
			dropped = append(dropped, names[j])
		}
		if !opts.DropCollinear {
			return nil, fmt.Errorf("%w: %s", ErrRankDeficient, strings.Join(dropped, ", "))
		}
		logger.Debug("Dropping %d collinear regressors: %v", len(dropped), dropped)
		x, names = selectColumns(x, names, keep)
		k = len(keep)
	}

	if n <= k {
		return nil, fmt.Errorf("%w: %d rows, %d regressors", ErrNoResidualDF, n, k)
	}

	groups := groupRows(d.Clusters)
	g := len(groups)
	if g < 2 {
		return nil, fmt.Errorf("%w: got %d", ErrTooFewClusters, g)
	}

	y := mat.NewVecDense(n, d.Y)

	sol, err := solve(x, names, y, opts.CollinearityTol)
	if err != nil {
		return nil, err
	}

	// Scores and meat stay in the equilibrated coordinates; only the diagonal
	// of the covariance is mapped back.
	meat := mat.NewSymDense(k, nil)
	score := mat.NewVecDense(k, nil)
	for _, rows := range groups {
		score.Zero()
		for _, i := range rows {
			score.AddScaledVec(score, sol.resid.AtVec(i), sol.xs.RowView(i))
		}
		meat.SymRankOne(meat, 1, score)
	}

	var tmp, cov mat.Dense
	tmp.Mul(sol.bread, meat)
	cov.Mul(&tmp, sol.bread)

	correction := float64(g) / float64(g-1) * float64(n-1) / float64(n-k)
	dist := reference(opts.Inference, g)
	crit := dist.Quantile(1 - (1-opts.ConfidenceLevel)/2)

	estimates := make([]models.Estimate, k)
	for j := 0; j < k; j++ {
		coef := sol.beta.AtVec(j) / sol.scale[j]
		se := math.Sqrt(math.Max(0, correction*cov.At(j, j))) / sol.scale[j]
		estimates[j] = models.Estimate{
			Var:     names[j],
			Coef:    coef,
			StdErr:  se,
			PValue:  2 * dist.Survival(math.Abs(coef/se)),
			CILower: coef - crit*se,
			CIUpper: coef + crit*se,
			N:       n,
		}
	}

	logger.Debug("OLS fit: N=%d K=%d clusters=%d correction=%.6f", n, k, g, correction)

	return &Result{
		Estimates: estimates,
		N:         n,
		Clusters:  g,
		DFResid:   n - k,
		Collinear: dropped,
	}, nil
}

type distribution interface {
	Quantile(p float64) float64
	Survival(x float64) float64
}

func reference(inf Inference, clusters int) distribution {
	if inf == StudentT {
		return distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(clusters - 1)}
	}
	return distuv.UnitNormal
}

// groupRows maps each cluster id to its row indices, in order of first appearance.
func groupRows(ids []float64) [][]int {
	index := make(map[float64]int)
	var groups [][]int
	for i, id := range ids {
		gi, ok := index[id]
		if !ok {
			gi = len(groups)
			index[id] = gi
			groups = append(groups, nil)
		}
		groups[gi] = append(groups[gi], i)
	}
	return groups
}
