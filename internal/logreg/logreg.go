// SPDX-License-Identifier: MIT

// Package logreg fits penalised binary logistic regression models.
//
// Fit minimises
//
//	penalty(w) + C * sum_i s_i * logloss(y_i, x_i.w + b)
//
// where s_i are class weights and the intercept b is not penalised. The
// problem is solved with FISTA (accelerated proximal gradient) using
// backtracking and adaptive restart. For a given input the result is fully
// deterministic.
package logreg

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

var (
	// ErrSingleClass is returned when the targets contain only one class.
	ErrSingleClass = errors.New("logreg: targets contain a single class")
	// ErrShape is returned for inconsistent input dimensions.
	ErrShape = errors.New("logreg: inconsistent input shape")
)

// powerIterations bounds the Lipschitz estimate used as the initial step.
const powerIterations = 20

// Model is a fitted binary classifier.
type Model struct {
	Coef       []float64 `json:"coef"`
	Intercept  float64   `json:"intercept"`
	Params     Params    `json:"params"`
	Iterations int       `json:"iterations"`
	Converged  bool      `json:"converged"`
}

// Decision returns x.w + b.
func (m *Model) Decision(x []float64) float64 {
	return floats.Dot(x, m.Coef) + m.Intercept
}

// Proba returns P(y=1 | x).
func (m *Model) Proba(x []float64) float64 {
	return sigmoid(m.Decision(x))
}

// PredictProba scores every row of X.
func (m *Model) PredictProba(X [][]float64) ([]float64, error) {
	out := make([]float64, len(X))
	for i, row := range X {
		if len(row) != len(m.Coef) {
			return nil, fmt.Errorf("%w: row %d has %d features, model has %d", ErrShape, i, len(row), len(m.Coef))
		}
		out[i] = m.Proba(row)
	}
	return out, nil
}

// NonZero counts the features with a non-zero coefficient.
func (m *Model) NonZero() int {
	n := 0
	for _, c := range m.Coef {
		if c != 0 {
			n++
		}
	}
	return n
}

// Validate checks a deserialised model against an expected feature count.
func (m *Model) Validate(features int) error {
	if len(m.Coef) != features {
		return fmt.Errorf("%w: %d coefficients for %d features", ErrShape, len(m.Coef), features)
	}
	return nil
}

type problem struct {
	X       [][]float64
	y       []float64
	weights []float64
	lambda  float64
	penalty string
	d       int
}

// Fit trains a model on rows X with 0/1 targets y.
func Fit(ctx context.Context, X [][]float64, y []float64, p Params) (*Model, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	n := len(X)
	if n == 0 || len(y) != n {
		return nil, fmt.Errorf("%w: %d rows, %d targets", ErrShape, n, len(y))
	}
	d := len(X[0])
	for i, row := range X {
		if len(row) != d {
			return nil, fmt.Errorf("%w: row %d has %d features, expected %d", ErrShape, i, len(row), d)
		}
	}

	var pos int
	for _, v := range y {
		if v > 0.5 {
			pos++
		}
	}
	if pos == 0 || pos == n {
		return nil, ErrSingleClass
	}

	pr := &problem{X: X, y: y, d: d, penalty: p.Penalty, weights: make([]float64, n)}
	wPos, wNeg := 1.0, 1.0
	if p.ClassWeight == ClassWeightBalanced {
		wPos = float64(n) / (2 * float64(pos))
		wNeg = float64(n) / (2 * float64(n-pos))
	}
	for i, v := range y {
		if v > 0.5 {
			pr.weights[i] = wPos
		} else {
			pr.weights[i] = wNeg
		}
	}
	// Dividing the objective by C*n keeps the argmin and gives the smooth part
	// an O(1) Lipschitz constant.
	if p.Penalty != PenaltyNone {
		pr.lambda = 1 / (p.C * float64(n))
	}

	theta, iters, converged, err := pr.solve(ctx, p.Tol, p.MaxIter)
	if err != nil {
		return nil, err
	}
	return &Model{
		Coef:       theta[:d],
		Intercept:  theta[d],
		Params:     p,
		Iterations: iters,
		Converged:  converged,
	}, nil
}

// smooth returns the weighted mean log loss at theta and, if grad is non-nil,
// writes its gradient.
func (pr *problem) smooth(theta, grad []float64) float64 {
	if grad != nil {
		for j := range grad {
			grad[j] = 0
		}
	}
	w, b := theta[:pr.d], theta[pr.d]
	var loss float64
	for i, row := range pr.X {
		z := floats.Dot(row, w) + b
		loss += pr.weights[i] * (softplus(z) - pr.y[i]*z)
		if grad != nil {
			r := pr.weights[i] * (sigmoid(z) - pr.y[i])
			floats.AddScaled(grad[:pr.d], r, row)
			grad[pr.d] += r
		}
	}
	inv := 1 / float64(len(pr.X))
	if grad != nil {
		floats.Scale(inv, grad)
	}
	return loss * inv
}

// prox applies the proximal operator of step*penalty in place. The intercept
// (last element) is left untouched.
func (pr *problem) prox(theta []float64, step float64) {
	t := step * pr.lambda
	if t == 0 {
		return
	}
	for j := 0; j < pr.d; j++ {
		switch pr.penalty {
		case PenaltyL1:
			v := theta[j]
			switch {
			case v > t:
				theta[j] = v - t
			case v < -t:
				theta[j] = v + t
			default:
				theta[j] = 0
			}
		case PenaltyL2:
			theta[j] /= 1 + t
		}
	}
}

// lipschitz estimates the largest eigenvalue of the loss Hessian bound
// 0.25/n * X'SX (with an intercept column) by power iteration.
func (pr *problem) lipschitz() float64 {
	v := make([]float64, pr.d+1)
	for j := range v {
		v[j] = 1
	}
	floats.Scale(1/floats.Norm(v, 2), v)
	w := make([]float64, pr.d+1)
	est := 1.0
	for k := 0; k < powerIterations; k++ {
		for j := range w {
			w[j] = 0
		}
		for i, row := range pr.X {
			u := floats.Dot(row, v[:pr.d]) + v[pr.d]
			u *= pr.weights[i]
			floats.AddScaled(w[:pr.d], u, row)
			w[pr.d] += u
		}
		floats.Scale(0.25/float64(len(pr.X)), w)
		norm := floats.Norm(w, 2)
		if norm == 0 {
			return 1
		}
		est = norm
		copy(v, w)
		floats.Scale(1/norm, v)
	}
	return est
}

func (pr *problem) solve(ctx context.Context, tol float64, maxIter int) ([]float64, int, bool, error) {
	size := pr.d + 1
	beta := make([]float64, size)
	yv := make([]float64, size)
	grad := make([]float64, size)
	cand := make([]float64, size)
	diff := make([]float64, size)
	prev := make([]float64, size)

	L := pr.lipschitz()
	t := 1.0
	for it := 1; it <= maxIter; it++ {
		if it%100 == 1 {
			if err := ctx.Err(); err != nil {
				return nil, it, false, err
			}
		}

		fy := pr.smooth(yv, grad)
		for {
			copy(cand, yv)
			floats.AddScaled(cand, -1/L, grad)
			pr.prox(cand, 1/L)
			floats.SubTo(diff, cand, yv)
			fc := pr.smooth(cand, nil)
			bound := fy + floats.Dot(grad, diff) + 0.5*L*floats.Dot(diff, diff)
			if fc <= bound+1e-12*math.Abs(fy) || L > 1e12 {
				break
			}
			L *= 2
		}

		copy(prev, beta)
		copy(beta, cand)
		floats.SubTo(diff, beta, prev)
		maxDelta := floats.Norm(diff, math.Inf(1))

		tNext := (1 + math.Sqrt(1+4*t*t)) / 2
		// Adaptive restart: drop momentum when it points uphill.
		restart := 0.0
		for j := range yv {
			restart += (yv[j] - beta[j]) * diff[j]
		}
		if restart > 0 {
			t = 1
			copy(yv, beta)
		} else {
			mom := (t - 1) / tNext
			for j := range yv {
				yv[j] = beta[j] + mom*diff[j]
			}
			t = tNext
		}

		if maxDelta < tol {
			return beta, it, true, nil
		}
	}
	return beta, maxIter, false, nil
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

func softplus(z float64) float64 {
	if z > 0 {
		return z + math.Log1p(math.Exp(-z))
	}
	return math.Log1p(math.Exp(z))
}
