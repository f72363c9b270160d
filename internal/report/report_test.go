// SPDX-License-Identifier: MIT

package report

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tallsorts/tallsorts/internal/model"
)

func testLevel() *model.Level {
	return &model.Level{
		Name:    "Level_2_TAL/LMO",
		Parent:  "TAL/LMO",
		Labels:  []string{"TAL1", "LMO2"},
		Samples: []string{"S2", "S1", "S3"},
		Probs: [][]float64{
			{0.91234, 0.70001},
			{0.1, 0.2},
			{0.0004, 0.9996},
		},
		Calls: []model.Call{
			{Sample: "S2", Highest: "TAL1", ProbaRaw: 0.91234, ProbaAdj: 0.566, Pred: "TAL1", MultiCall: true,
				Calls: []model.LabelProb{{Label: "TAL1", Prob: 0.91234}, {Label: "LMO2", Prob: 0.70001}}},
			{Sample: "S1", Highest: "LMO2", ProbaRaw: 0.2, ProbaAdj: 0.667, Pred: model.Unclassified,
				Calls: []model.LabelProb{{Label: "LMO2", Prob: 0.2}}},
			{Sample: "S3", Highest: "LMO2", ProbaRaw: 0.9996, ProbaAdj: 0.9996, Pred: "LMO2",
				Calls: []model.LabelProb{{Label: "LMO2", Prob: 0.9996}}},
		},
	}
}

func TestFormatProb(t *testing.T) {
	for in, want := range map[float64]string{
		0.91234: "0.912",
		0.9996:  "1",
		0.0004:  "0",
		-0.0001: "0",
		0.5:     "0.5",
	} {
		assert.Equal(t, want, FormatProb(in), "input %v", in)
	}
}

func TestTables(t *testing.T) {
	level := testLevel()

	var buf bytes.Buffer
	require.NoError(t, WriteProbabilities(&buf, level))
	assert.Equal(t, "Sample,TAL1,LMO2\nS2,0.912,0.7\nS1,0.1,0.2\nS3,0,1\n", buf.String())

	buf.Reset()
	require.NoError(t, WritePredictions(&buf, level))
	assert.Equal(t, "Sample,Predictions\nS2,TAL1\nS1,Unclassified\nS3,LMO2\n", buf.String())

	buf.Reset()
	wrote, err := WriteMultiCalls(&buf, level)
	require.NoError(t, err)
	assert.True(t, wrote)
	want := ",call_1,proba,call_2,proba\n" +
		"S2,TAL1,0.912,LMO2,0.7\n" +
		"S1,LMO2,0.2,,\n" +
		"S3,LMO2,1,,\n"
	if diff := cmp.Diff(want, buf.String()); diff != "" {
		t.Errorf("multi calls mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteMultiCalls_Empty(t *testing.T) {
	var buf bytes.Buffer
	wrote, err := WriteMultiCalls(&buf, &model.Level{})
	require.NoError(t, err)
	assert.False(t, wrote)
	assert.Zero(t, buf.Len())
}

func TestColours(t *testing.T) {
	c := Colours([]string{"TAL/LMO", "X", "Unclassified", "Y", "Z"})
	assert.Equal(t, "#DF3524", c["TAL/LMO"])
	assert.Equal(t, "#808080", c["Unclassified"])
	assert.Equal(t, "#FF0000", c["X"])
	assert.Equal(t, "#00FF00", c["Y"])
	assert.Equal(t, "#0000FF", c["Z"])
}

func TestWaterfallOrder(t *testing.T) {
	level := testLevel()
	var got []string
	for _, c := range WaterfallOrder(level) {
		got = append(got, c.Sample)
	}
	assert.Equal(t, []string{"S2", "S3", "S1"}, got)
	assert.Equal(t, "S2", level.Calls[0].Sample, "input order is untouched")
}

func TestScatterSVG_Deterministic(t *testing.T) {
	level := testLevel()
	a, err := ScatterSVG(level, 0.5, 7)
	require.NoError(t, err)
	b, err := ScatterSVG(level, 0.5, 7)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := ScatterSVG(level, 0.5, 8)
	require.NoError(t, err)
	assert.NotEqual(t, a, c)

	s := string(a)
	assert.True(t, strings.HasPrefix(s, "<svg"))
	assert.Equal(t, 6, strings.Count(s, "<circle"))
	assert.Contains(t, s, "TAL1")
	assert.Contains(t, s, "Highest: LMO2")
}

func TestWrite(t *testing.T) {
	dest := t.TempDir()
	res := &model.Results{
		Samples:   []string{"S2", "S1", "S3"},
		Threshold: 0.5,
		Levels:    []*model.Level{testLevel(), {Name: "Level_3_TAL1"}},
	}

	dirs, err := Write(context.Background(), dest, res, Options{Seed: 1})
	require.NoError(t, err)
	require.Equal(t, []string{filepath.Join(dest, "Level_2_TAL_LMO")}, dirs)

	for _, name := range []string{
		ProbabilitiesFile, PredictionsFile, MultiCallsFile,
		ScatterSVGFile, ScatterHTMLFile, WaterfallSVGFile, WaterfallHTMLFile,
	} {
		assert.FileExists(t, filepath.Join(dirs[0], name))
	}
	page, err := os.ReadFile(filepath.Join(dirs[0], WaterfallHTMLFile))
	require.NoError(t, err)
	assert.Contains(t, string(page), "<svg")
	assert.Contains(t, string(page), "Highest subtype call")
	assert.NoDirExists(t, filepath.Join(dest, "Level_3_TAL1"))
}

func TestWrite_NoFigures(t *testing.T) {
	dest := t.TempDir()
	res := &model.Results{Threshold: 0.5, Levels: []*model.Level{testLevel()}}
	dirs, err := Write(context.Background(), dest, res, Options{NoFigures: true})
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dirs[0], PredictionsFile))
	assert.NoFileExists(t, filepath.Join(dirs[0], ScatterSVGFile))
}
