// SPDX-License-Identifier: MIT

package logreg

import (
	"context"
	"math"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tallsorts/tallsorts/internal/tabular"
)

// synthetic returns rows whose first feature separates the classes (with
// overlap) and whose remaining features are low-amplitude noise.
func synthetic(nPos, nNeg, noise int, seed int64) ([][]float64, []float64) {
	rng := rand.New(rand.NewPCG(uint64(seed), 0))
	var X [][]float64
	var y []float64
	add := func(label float64, centre float64) {
		row := make([]float64, noise+1)
		row[0] = centre + rng.NormFloat64()*0.8
		for j := 1; j <= noise; j++ {
			row[j] = (rng.Float64() - 0.5) * 0.3
		}
		X = append(X, row)
		y = append(y, label)
	}
	for range nPos {
		add(1, 1.5)
	}
	for range nNeg {
		add(0, -1.5)
	}
	return X, y
}

func TestFit_L1SelectsInformativeFeature(t *testing.T) {
	X, y := synthetic(20, 20, 4, 1)
	m, err := Fit(context.Background(), X, y, DefaultParams())
	require.NoError(t, err)

	assert.True(t, m.Converged)
	assert.Greater(t, m.Coef[0], 0.0)
	for j := 1; j < len(m.Coef); j++ {
		assert.InDelta(t, 0, m.Coef[j], 1e-6, "noise feature %d", j)
	}
	assert.Equal(t, 1, m.NonZero())

	probs, err := m.PredictProba([][]float64{{3, 0, 0, 0, 0}, {-3, 0, 0, 0, 0}})
	require.NoError(t, err)
	assert.Greater(t, probs[0], 0.5)
	assert.Less(t, probs[1], 0.5)
}

func TestFit_BalancedWeightsHandleImbalance(t *testing.T) {
	X, y := synthetic(4, 36, 0, 2)
	m, err := Fit(context.Background(), X, y, DefaultParams())
	require.NoError(t, err)

	assert.Greater(t, m.Proba([]float64{1.5}), 0.5)
	assert.Less(t, m.Proba([]float64{-1.5}), 0.5)
}

func TestFit_StrongerPenaltyShrinks(t *testing.T) {
	X, y := synthetic(15, 15, 0, 3)

	loose := DefaultParams()
	loose.C = 10
	tight := DefaultParams()
	tight.C = 0.05

	mLoose, err := Fit(context.Background(), X, y, loose)
	require.NoError(t, err)
	mTight, err := Fit(context.Background(), X, y, tight)
	require.NoError(t, err)
	assert.Greater(t, math.Abs(mLoose.Coef[0]), math.Abs(mTight.Coef[0]))
}

func TestFit_OrderIndependent(t *testing.T) {
	X, y := synthetic(12, 18, 2, 4)
	m1, err := Fit(context.Background(), X, y, DefaultParams())
	require.NoError(t, err)

	// reverse sample order
	Xr := make([][]float64, len(X))
	yr := make([]float64, len(y))
	for i := range X {
		Xr[len(X)-1-i] = X[i]
		yr[len(y)-1-i] = y[i]
	}
	m2, err := Fit(context.Background(), Xr, yr, DefaultParams())
	require.NoError(t, err)

	for j := range m1.Coef {
		assert.InDelta(t, m1.Coef[j], m2.Coef[j], 1e-4)
	}
	assert.InDelta(t, m1.Intercept, m2.Intercept, 1e-4)
}

func TestFit_Errors(t *testing.T) {
	_, err := Fit(context.Background(), [][]float64{{1}, {2}}, []float64{1, 1}, DefaultParams())
	assert.ErrorIs(t, err, ErrSingleClass)

	_, err = Fit(context.Background(), [][]float64{{1}, {2, 3}}, []float64{0, 1}, DefaultParams())
	assert.ErrorIs(t, err, ErrShape)

	bad := DefaultParams()
	bad.Penalty = "elasticnet"
	_, err = Fit(context.Background(), [][]float64{{1}, {2}}, []float64{0, 1}, bad)
	assert.Error(t, err)
}

func TestFit_Cancelled(t *testing.T) {
	X, y := synthetic(20, 20, 50, 5)
	p := DefaultParams()
	p.Tol = 1e-300
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Fit(ctx, X, y, p)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPredictProba_ShapeMismatch(t *testing.T) {
	m := &Model{Coef: []float64{1, 2}}
	_, err := m.PredictProba([][]float64{{1}})
	assert.ErrorIs(t, err, ErrShape)
	assert.Error(t, m.Validate(3))
	assert.NoError(t, m.Validate(2))
}

func TestParamsTable(t *testing.T) {
	in := "label,C,max_iter,penalty,class_weight\nTAL1,0.5,,,\nNKX2,,200.0,l2,None\nOTHER,9,,,\n"
	tbl, err := tabular.Read(strings.NewReader(in), ',')
	require.NoError(t, err)

	params, err := ParamsTable(tbl, []string{"TAL1", "NKX2", "TLX3"})
	require.NoError(t, err)

	assert.Equal(t, 0.5, params["TAL1"].C)
	assert.Equal(t, 10000, params["TAL1"].MaxIter)
	assert.Equal(t, 200, params["NKX2"].MaxIter)
	assert.Equal(t, PenaltyL2, params["NKX2"].Penalty)
	assert.Equal(t, ClassWeightNone, params["NKX2"].ClassWeight)
	assert.Equal(t, DefaultParams(), params["TLX3"])
	assert.NotContains(t, params, "OTHER")
}

func TestParamsTable_Errors(t *testing.T) {
	tbl, err := tabular.Read(strings.NewReader("label,alpha\nTAL1,1\n"), ',')
	require.NoError(t, err)
	_, err = ParamsTable(tbl, []string{"TAL1"})
	assert.ErrorIs(t, err, ErrUnknownParam)

	tbl, err = tabular.Read(strings.NewReader("label,max_iter\nTAL1,1.5\n"), ',')
	require.NoError(t, err)
	_, err = ParamsTable(tbl, []string{"TAL1"})
	assert.Error(t, err)

	tbl, err = tabular.Read(strings.NewReader("label,C\nTAL1,-1\n"), ',')
	require.NoError(t, err)
	_, err = ParamsTable(tbl, []string{"TAL1"})
	assert.Error(t, err)
}
