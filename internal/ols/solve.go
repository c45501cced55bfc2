package ols

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// solution is a least-squares fit in equilibrated coordinates: every column of
// xs has unit norm, xs = X·diag(1/scale), and the coefficients of X are
// beta[j]/scale[j].
type solution struct {
	xs    *mat.Dense
	scale []float64
	beta  *mat.VecDense
	resid *mat.VecDense
	bread *mat.Dense // (xs'xs)⁻¹ = R⁻¹R⁻ᵀ
}

// solve fits y on x with a QR factorisation of the column-scaled design.
// X'X is never formed, so regressors of very different magnitude (population
// next to 0/1 dummies) keep full precision. A diagonal entry of R at or below
// tol means the column adds no new direction.
func solve(x *mat.Dense, names []string, y *mat.VecDense, tol float64) (*solution, error) {
	n, k := x.Dims()

	xs := mat.NewDense(n, k, nil)
	scale := make([]float64, k)
	for j := 0; j < k; j++ {
		col := mat.Col(nil, j, x)
		norm := floats.Norm(col, 2)
		if norm == 0 {
			return nil, fmt.Errorf("%w: %s is all zero", ErrRankDeficient, names[j])
		}
		floats.Scale(1/norm, col)
		xs.SetCol(j, col)
		scale[j] = norm
	}

	var qr mat.QR
	qr.Factorize(xs)

	var r mat.Dense
	qr.RTo(&r)
	rt := mat.NewTriDense(k, mat.Upper, nil)
	for i := 0; i < k; i++ {
		for j := i; j < k; j++ {
			rt.SetTri(i, j, r.At(i, j))
		}
	}
	for j := 0; j < k; j++ {
		if math.Abs(rt.At(j, j)) <= tol {
			return nil, fmt.Errorf("%w: %s", ErrRankDeficient, names[j])
		}
	}

	var beta mat.VecDense
	if err := qr.SolveVecTo(&beta, false, y); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRankDeficient, err)
	}

	var fitted, resid mat.VecDense
	fitted.MulVec(xs, &beta)
	resid.SubVec(y, &fitted)

	var rinv mat.TriDense
	if err := rinv.InverseTri(rt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRankDeficient, err)
	}
	var bread mat.Dense
	bread.Mul(&rinv, rinv.T())

	return &solution{
		xs:    xs,
		scale: scale,
		beta:  &beta,
		resid: &resid,
		bread: &bread,
	}, nil
}
