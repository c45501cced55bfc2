package ols

import (
	"gonum.org/v1/gonum/mat"
)

// independentColumns walks the columns of x in order and splits them into those
// that add a new direction and those that lie (within tol, relative to the
// column norm) in the span of the columns kept so far. Earlier columns win,
// which is how Stata's regress chooses what to omit.
func independentColumns(x *mat.Dense, tol float64) (keep, collinear []int) {
	_, k := x.Dims()
	basis := make([]*mat.VecDense, 0, k)

	for j := 0; j < k; j++ {
		v := mat.VecDenseCopyOf(x.ColView(j))

		norm := mat.Norm(v, 2)
		if norm == 0 {
			collinear = append(collinear, j)
			continue
		}

		// Two passes of modified Gram-Schmidt keep the residual accurate.
		for pass := 0; pass < 2; pass++ {
			for _, q := range basis {
				v.AddScaledVec(v, -mat.Dot(q, v), q)
			}
		}

		r := mat.Norm(v, 2)
		if r <= tol*norm {
			collinear = append(collinear, j)
			continue
		}
		v.ScaleVec(1/r, v)
		basis = append(basis, v)
		keep = append(keep, j)
	}
	return keep, collinear
}

// selectColumns copies the listed columns of x into a new matrix.
func selectColumns(x *mat.Dense, names []string, cols []int) (*mat.Dense, []string) {
	n, _ := x.Dims()
	out := mat.NewDense(n, len(cols), nil)
	outNames := make([]string, len(cols))
	for dst, src := range cols {
		out.SetCol(dst, mat.Col(nil, src, x))
		outNames[dst] = names[src]
	}
	return out, outNames
}
