// SPDX-License-Identifier: MIT

package training

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tallsorts/tallsorts/internal/hierarchy"
	"github.com/tallsorts/tallsorts/internal/logreg"
	"github.com/tallsorts/tallsorts/internal/matrix"
	"github.com/tallsorts/tallsorts/internal/model"
	"github.com/tallsorts/tallsorts/internal/samplesheet"
)

var genes = []string{"H", "GA", "GB", "GA1", "GA2", "NOISE"}

// fixture builds 24 samples: 6 A1, 6 A2 (both A) and 12 B. Each group
// over-expresses its marker gene; NOISE varies with the sample index only.
func fixture(t *testing.T) Inputs {
	t.Helper()
	var (
		samples []string
		values  [][]float64
		labels  [][]float64
	)
	add := func(prefix string, n int, a, b, a1, a2 float64) {
		for i := range n {
			id := fmt.Sprintf("%s_%02d", prefix, i)
			jitter := float64(i % 3)
			samples = append(samples, id)
			values = append(values, []float64{
				5000 + 10*jitter,
				a + 7*jitter,
				b + 5*jitter,
				a1 + 3*jitter,
				a2 + 4*jitter,
				100 + float64(7*i%11),
			})
			labels = append(labels, []float64{flag(a >= 500), flag(b >= 500), flag(a1 >= 500), flag(a2 >= 500)})
		}
	}
	add("A1", 6, 1000, 10, 800, 10)
	add("A2", 6, 1000, 10, 10, 800)
	add("B", 12, 10, 1000, 10, 10)

	counts, err := matrix.New(samples, genes, values)
	require.NoError(t, err)
	sheetM, err := matrix.New(samples, []string{"A", "B", "A1", "A2"}, labels)
	require.NoError(t, err)
	h, err := hierarchy.FromEdges([]hierarchy.Edge{
		{Label: "A"}, {Label: "B"},
		{Label: "A1", Parent: "A"}, {Label: "A2", Parent: "A"},
	})
	require.NoError(t, err)

	return Inputs{Counts: counts, Sheet: samplesheet.New(sheetM), Hierarchy: h}
}

func flag(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func TestTrain_Predicts(t *testing.T) {
	in := fixture(t)
	m, err := Train(context.Background(), in, Options{Workers: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"Level_1", "Level_2_A"}, m.Levels())
	assert.False(t, m.IsDefault)

	res, err := m.Predict(context.Background(), in.Counts)
	require.NoError(t, err)

	l1, ok := res.Level("Level_1")
	require.True(t, ok)
	for _, id := range in.Counts.Samples {
		c, ok := l1.Call(id)
		require.True(t, ok)
		want := "B"
		if in.Sheet.Positive(id, "A") {
			want = "A"
		}
		assert.Equal(t, want, c.Pred, "sample %s", id)
	}

	l2, ok := res.Level("Level_2_A")
	require.True(t, ok)
	assert.Len(t, l2.Samples, 12)
	for _, id := range l2.Samples {
		c, _ := l2.Call(id)
		want := "A2"
		if in.Sheet.Positive(id, "A1") {
			want = "A1"
		}
		assert.Equal(t, want, c.Pred, "sample %s", id)
	}
}

func TestTrain_WorkerIndependent(t *testing.T) {
	in := fixture(t)
	serial, err := Train(context.Background(), in, Options{Workers: 1})
	require.NoError(t, err)
	parallel, err := Train(context.Background(), in, Options{Workers: 8})
	require.NoError(t, err)

	if diff := cmp.Diff(serial.Scalers, parallel.Scalers); diff != "" {
		t.Errorf("scalers differ (-serial +parallel):\n%s", diff)
	}
	if diff := cmp.Diff(serial.Classifiers, parallel.Classifiers); diff != "" {
		t.Errorf("classifiers differ (-serial +parallel):\n%s", diff)
	}
}

type dropGenes map[string]bool

func (d dropGenes) FilterCandidates(genes []string) []string {
	var out []string
	for _, g := range genes {
		if !d[g] {
			out = append(out, g)
		}
	}
	return out
}

func TestTrain_Filter(t *testing.T) {
	in := fixture(t)
	in.Filter = true
	in.Candidates = dropGenes{"NOISE": true}

	m, err := Train(context.Background(), in, Options{})
	require.NoError(t, err)
	for parent, s := range m.Scalers {
		assert.NotContains(t, s.Genes, "NOISE", "parent %s", parent)
		assert.Contains(t, s.Genes, "H", "parent %s", parent)
	}
	assert.IsIncreasing(t, m.Scalers[hierarchy.RootParent].Genes)
}

func TestTrain_Params(t *testing.T) {
	in := fixture(t)
	p := logreg.DefaultParams()
	p.MaxIter = 1
	in.Params = map[string]logreg.Params{"B": p}

	m, err := Train(context.Background(), in, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, m.Classifiers["B"].Params.MaxIter)
	assert.Equal(t, logreg.DefaultParams().MaxIter, m.Classifiers["A"].Params.MaxIter)
}

func TestTrain_Errors(t *testing.T) {
	t.Run("missing inputs", func(t *testing.T) {
		_, err := Train(context.Background(), Inputs{}, Options{})
		assert.Error(t, err)
	})

	t.Run("sample not in sheet", func(t *testing.T) {
		in := fixture(t)
		extra, err := matrix.New(
			append(append([]string(nil), in.Counts.Samples...), "X"),
			in.Counts.Genes,
			append(append([][]float64(nil), in.Counts.Values...), make([]float64, len(genes))),
		)
		require.NoError(t, err)
		in.Counts = extra
		_, err = Train(context.Background(), in, Options{})
		assert.ErrorIs(t, err, samplesheet.ErrSampleNotInSheet)
	})

	t.Run("parent negative", func(t *testing.T) {
		in := fixture(t)
		h, err := hierarchy.FromEdges([]hierarchy.Edge{
			{Label: "A"}, {Label: "B"},
			{Label: "A1", Parent: "A"}, {Label: "A2", Parent: "A1"},
		})
		require.NoError(t, err)
		in.Hierarchy = h
		_, err = Train(context.Background(), in, Options{})
		assert.ErrorIs(t, err, samplesheet.ErrParentNegative)
	})

	t.Run("single class", func(t *testing.T) {
		in := fixture(t)
		var rows [][]float64
		for _, id := range in.Counts.Samples {
			a := flag(in.Sheet.Positive(id, "A"))
			rows = append(rows, []float64{a, flag(in.Sheet.Positive(id, "B")), a})
		}
		sheetM, err := matrix.New(in.Counts.Samples, []string{"A", "B", "A1"}, rows)
		require.NoError(t, err)
		h, err := hierarchy.FromEdges([]hierarchy.Edge{{Label: "A"}, {Label: "B"}, {Label: "A1", Parent: "A"}})
		require.NoError(t, err)
		in.Sheet, in.Hierarchy = samplesheet.New(sheetM), h

		_, err = Train(context.Background(), in, Options{})
		assert.ErrorIs(t, err, logreg.ErrSingleClass)
		assert.ErrorContains(t, err, `label "A1"`)
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := Train(ctx, fixture(t), Options{Workers: 1})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestTrain_SaveLoad(t *testing.T) {
	in := fixture(t)
	m, err := Train(context.Background(), in, Options{})
	require.NoError(t, err)

	path := t.TempDir() + "/custom.json.gz"
	require.NoError(t, m.Save(path))
	loaded, err := model.Load(path)
	require.NoError(t, err)
	assert.Equal(t, m.Labels(), loaded.Labels())
}
