// Copyright 2026 LatticeQ Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package repo

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latticeq/latticeq/internal/engine/model"
	"github.com/latticeq/latticeq/pkg/database"
)

func newTestRepo(t *testing.T) IJobRepository {
	t.Helper()
	mgr, err := database.NewManager(database.Config{
		Path: filepath.Join(t.TempDir(), "jobs.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Close() })
	require.NoError(t, Migrate(mgr))
	return NewJobRepo(mgr)
}

func newTestRecord(id string) *model.JobRecord {
	return &model.JobRecord{
		ID:            id,
		MaterialKey:   "mp-149",
		Formula:       "Si",
		DirectoryPath: "/scratch/vasp/Si",
		Pipeline:      model.StageList{model.StageRelaxation, model.StageStatic, model.StageBands},
		Status:        model.StatusCreated,
		Parameters:    model.ParameterSet{"ENCUT": "520"},
	}
}

func TestJobRepo_CreateGetRoundTrip(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, r.Create(ctx, newTestRecord("job-1")))

	got, err := r.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCreated, got.Status)
	assert.Equal(t, int64(1), got.Version)
	assert.Equal(t, model.StageList{"relaxation", "static", "bands"}, got.Pipeline)
	assert.Equal(t, "520", got.Parameters["ENCUT"])

	_, err = r.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestJobRepo_CreateRejectsUnknownStage(t *testing.T) {
	r := newTestRepo(t)
	rec := newTestRecord("job-bad")
	rec.Pipeline = model.StageList{"relaxation", "phonons"}
	err := r.Create(context.Background(), rec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "phonons")
}

func TestJobRepo_ListActionable(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, r.Create(ctx, newTestRecord("job-a")))
	require.NoError(t, r.Create(ctx, newTestRecord("job-b")))

	// Drive job-b to a terminal state.
	rec, err := r.Get(ctx, "job-b")
	require.NoError(t, err)
	rec.Status = model.StatusPending
	require.NoError(t, r.CompareAndSwap(ctx, 1, rec))
	rec.Status = model.StatusFailed
	rec.FailureReason = "submission rejected"
	require.NoError(t, r.CompareAndSwap(ctx, 2, rec))

	actionable, err := r.ListActionable(ctx)
	require.NoError(t, err)
	require.Len(t, actionable, 1)
	assert.Equal(t, "job-a", actionable[0].ID)
}

func TestJobRepo_CompareAndSwapSingleWinner(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	require.NoError(t, r.Create(ctx, newTestRecord("job-cas")))

	base, err := r.Get(ctx, "job-cas")
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec := *base
			rec.Status = model.StatusPending
			errs[i] = r.CompareAndSwap(ctx, base.Version, &rec)
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else {
			assert.ErrorIs(t, err, ErrVersionConflict)
		}
	}
	assert.Equal(t, 1, winners, "exactly one concurrent CAS must win")

	got, err := r.Get(ctx, "job-cas")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)
}

func TestJobRepo_CompareAndSwapMissingRecord(t *testing.T) {
	r := newTestRepo(t)
	rec := newTestRecord("ghost")
	rec.Status = model.StatusPending
	err := r.CompareAndSwap(context.Background(), 1, rec)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestJobRepo_TerminalRecordImmutable(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	require.NoError(t, r.Create(ctx, newTestRecord("job-term")))

	rec, err := r.Get(ctx, "job-term")
	require.NoError(t, err)
	rec.Status = model.StatusFailed
	rec.FailureReason = "UNKNOWN: unrecognized failure signature"
	require.NoError(t, r.CompareAndSwap(ctx, rec.Version, rec))

	// A matching version is not enough to move a terminal record.
	stale := *rec
	stale.Status = model.StatusPending
	assert.ErrorIs(t, r.CompareAndSwap(ctx, rec.Version, &stale), ErrImmutable)

	// The operator override may.
	requeued := *rec
	requeued.Status = model.StatusPending
	requeued.FailureReason = ""
	require.NoError(t, r.Requeue(ctx, rec.Version, &requeued))

	got, err := r.Get(ctx, "job-term")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, got.Status)
	assert.Equal(t, rec.Version+1, got.Version)
	assert.Empty(t, got.FailureReason)
}

func TestJobRepo_AppendMetadata(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	require.NoError(t, r.Create(ctx, newTestRecord("job-meta")))

	require.NoError(t, r.AppendMetadata(ctx, "job-meta", map[string]any{"band_gap_ev": 1.12}))
	require.NoError(t, r.AppendMetadata(ctx, "job-meta", map[string]any{"analyzed_by": "bands-tool"}))

	got, err := r.Get(ctx, "job-meta")
	require.NoError(t, err)
	assert.Equal(t, 1.12, got.Metadata["band_gap_ev"])
	assert.Contains(t, got.Metadata, "analyzed_by")
}

func TestJobRepo_ListPaged(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	for _, id := range []string{"j1", "j2", "j3"} {
		require.NoError(t, r.Create(ctx, newTestRecord(id)))
	}

	recs, total, err := r.List(ctx, &JobQuery{Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, recs, 2)

	recs, total, err = r.List(ctx, &JobQuery{Status: model.StatusFailed})
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)
	assert.Empty(t, recs)
}
