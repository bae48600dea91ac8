package photometry

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// lmStatus mirrors the MINPACK lmdif info codes.
type lmStatus int

const (
	lmImproperInput lmStatus = iota
	lmConvergedF
	lmConvergedX
	lmConvergedBoth
	lmOrthogonal
	lmMaxEvaluations
	lmFTolTooSmall
	lmXTolTooSmall
)

func (s lmStatus) converged() bool {
	return s == lmConvergedF || s == lmConvergedX || s == lmConvergedBoth
}

var machEpsilon = math.Nextafter(1, 2) - 1

// residualFunc fills fvec with the residuals at x.
type residualFunc func(x, fvec []float64)

// levenbergMarquardt minimizes the sum of squares of m residuals over x in
// place, with a forward-difference Jacobian and at most 200*(n+1) function
// evaluations. tol bounds both the relative reduction of the sum of squares
// and the relative step size.
func levenbergMarquardt(fcn residualFunc, m int, x []float64, tol float64) lmStatus {
	n := len(x)
	if n == 0 || m < n || tol < 0 {
		return lmImproperInput
	}
	maxEvaluations := 200 * (n + 1)

	f := make([]float64, m)
	fcn(x, f)
	evaluations := 1
	fnorm := floats.Norm(f, 2)
	if math.IsNaN(fnorm) || math.IsInf(fnorm, 0) {
		return lmImproperInput
	}

	jac := mat.NewDense(m, n, nil)
	work := make([]float64, m)
	diag := make([]float64, n)
	xNew := make([]float64, n)
	fNew := make([]float64, m)
	var jtj mat.SymDense
	damped := mat.NewSymDense(n, nil)
	var grad, delta, negGrad, jd mat.VecDense
	var chol mat.Cholesky

	lambda := -1.0
	nu := 2.0

	for {
		forwardDifference(fcn, x, f, jac, work)
		evaluations += n

		jtj.SymOuterK(1, jac.T())
		grad.MulVec(jac.T(), mat.NewVecDense(m, f))
		if fnorm == 0 {
			return lmConvergedF
		}

		maxDiag := 0.0
		orthogonal := true
		for j := 0; j < n; j++ {
			norm := math.Sqrt(jtj.At(j, j))
			diag[j] = math.Max(diag[j], norm)
			if diag[j] == 0 {
				diag[j] = 1
			}
			maxDiag = math.Max(maxDiag, jtj.At(j, j))
			if grad.AtVec(j) != 0 {
				orthogonal = false
			}
		}
		if orthogonal {
			return lmOrthogonal
		}
		if lambda < 0 {
			lambda = 1e-3 * maxDiag
			if lambda == 0 {
				lambda = 1e-3
			}
		}
		xnorm := scaledNorm(diag, x)
		negGrad.ScaleVec(-1, &grad)

		for {
			damped.CopySym(&jtj)
			for j := 0; j < n; j++ {
				damped.SetSym(j, j, jtj.At(j, j)+lambda*diag[j]*diag[j])
			}
			if ok := chol.Factorize(damped); !ok {
				lambda *= 10
				if lambda > 1e32 {
					return lmFTolTooSmall
				}
				continue
			}
			if err := chol.SolveVecTo(&delta, &negGrad); err != nil {
				lambda *= 10
				if lambda > 1e32 {
					return lmFTolTooSmall
				}
				continue
			}

			for j := 0; j < n; j++ {
				xNew[j] = x[j] + delta.AtVec(j)
			}
			fcn(xNew, fNew)
			evaluations++
			fnormNew := floats.Norm(fNew, 2)

			pnorm := scaledNorm(diag, delta.RawVector().Data)
			jd.MulVec(jac, &delta)
			temp1 := mat.Norm(&jd, 2) / fnorm
			temp2 := math.Sqrt(lambda) * pnorm / fnorm
			predicted := temp1*temp1 + 2*temp2*temp2
			actual := -1.0
			if 0.1*fnormNew < fnorm {
				actual = 1 - (fnormNew/fnorm)*(fnormNew/fnorm)
			}
			ratio := 0.0
			if predicted != 0 {
				ratio = actual / predicted
			}

			accepted := ratio > 1e-4
			if accepted {
				copy(x, xNew)
				copy(f, fNew)
				fnorm = fnormNew
				xnorm = scaledNorm(diag, x)
				lambda *= math.Max(1.0/3, 1-math.Pow(2*ratio-1, 3))
				nu = 2
			} else {
				lambda *= nu
				nu *= 2
			}

			fConverged := math.Abs(actual) <= tol && predicted <= tol && 0.5*ratio <= 1
			xConverged := pnorm <= tol*xnorm
			switch {
			case fConverged && xConverged:
				return lmConvergedBoth
			case fConverged:
				return lmConvergedF
			case xConverged:
				return lmConvergedX
			case evaluations >= maxEvaluations:
				return lmMaxEvaluations
			case math.Abs(actual) <= machEpsilon && predicted <= machEpsilon && 0.5*ratio <= 1:
				return lmFTolTooSmall
			case pnorm <= machEpsilon*xnorm:
				return lmXTolTooSmall
			}
			if accepted {
				break
			}
		}
	}
}

// forwardDifference approximates the Jacobian of fcn at x, where f holds the
// residuals at x. A column that is not finite is retried with a backward
// step and zeroed if that fails too.
func forwardDifference(fcn residualFunc, x, f []float64, jac *mat.Dense, work []float64) {
	eps := math.Sqrt(machEpsilon)
	for j := range x {
		h := eps * math.Abs(x[j])
		if h == 0 {
			h = eps
		}
		saved := x[j]
		ok := false
		for _, step := range []float64{h, -h} {
			x[j] = saved + step
			fcn(x, work)
			ok = true
			for i, v := range work {
				d := (v - f[i]) / step
				if math.IsNaN(d) || math.IsInf(d, 0) {
					ok = false
					break
				}
				jac.Set(i, j, d)
			}
			if ok {
				break
			}
		}
		x[j] = saved
		if !ok {
			for i := range work {
				jac.Set(i, j, 0)
			}
		}
	}
}

func scaledNorm(diag, v []float64) float64 {
	var sum float64
	for j, d := range diag {
		sum += (d * v[j]) * (d * v[j])
	}
	return math.Sqrt(sum)
}
