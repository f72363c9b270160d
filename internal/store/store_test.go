// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tallsorts/tallsorts/internal/model"
)

func openTest(t *testing.T) *SqliteStore {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "runs.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRunLifecycle(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { clock = clock.Add(time.Second); return clock }

	ok, err := s.BeginRun(ctx, "predict", "/models/m.json.gz", "/out")
	require.NoError(t, err)
	_, err = uuid.Parse(ok.ID)
	require.NoError(t, err)
	require.NoError(t, s.FinishRun(ctx, ok.ID, 3, nil))

	bad, err := s.BeginRun(ctx, "train", "", "/out")
	require.NoError(t, err)
	require.NoError(t, s.FinishRun(ctx, bad.ID, 0, errors.New("boom")))

	runs, err := s.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, bad.ID, runs[0].ID, "newest first")
	assert.Equal(t, StatusFailed, runs[0].Status)
	assert.Equal(t, "boom", runs[0].Error)
	assert.Equal(t, StatusSucceeded, runs[1].Status)
	assert.Equal(t, 3, runs[1].Samples)
	assert.True(t, runs[1].FinishedAt.After(runs[1].StartedAt))

	got, err := s.GetRun(ctx, ok.ID)
	require.NoError(t, err)
	assert.Equal(t, "/models/m.json.gz", got.ModelPath)
}

func TestUnknownRun(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)
	_, err := s.GetRun(ctx, "nope")
	assert.ErrorIs(t, err, ErrRunNotFound)
	assert.ErrorIs(t, s.FinishRun(ctx, "nope", 0, nil), ErrRunNotFound)
}

func TestRecordCalls(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)
	run, err := s.BeginRun(ctx, "predict", "", "")
	require.NoError(t, err)

	res := &model.Results{Levels: []*model.Level{{
		Name: "Level_1",
		Calls: []model.Call{
			{Sample: "S2", Highest: "A", ProbaRaw: 0.9, ProbaAdj: 0.8, Pred: "A", MultiCall: true},
			{Sample: "S1", Highest: "B", ProbaRaw: 0.3, ProbaAdj: 0.6, Pred: model.Unclassified},
		},
	}}}
	require.NoError(t, s.RecordCalls(ctx, run.ID, res))
	require.NoError(t, s.RecordCalls(ctx, run.ID, res), "re-recording upserts")

	calls, err := s.Calls(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, calls, 2)
	assert.Equal(t, "S1", calls[0].Sample)
	assert.Equal(t, model.Unclassified, calls[0].Pred)
	assert.True(t, calls[1].MultiCall)
	assert.InDelta(t, 0.9, calls[1].ProbaRaw, 1e-12)
}

func TestReopenAndVerify(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "runs.sqlite")
	s, err := Open(ctx, path)
	require.NoError(t, err)
	_, err = s.BeginRun(ctx, "train", "", "")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(ctx, path)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	runs, err := s.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	issues, err := s.Verify(ctx, "quick")
	require.NoError(t, err)
	assert.Empty(t, issues)
}
