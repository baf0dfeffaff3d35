package postgres_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/videoforge/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/videoforge/internal/domain"
)

func TestRenderJobRepo_Create(t *testing.T) {
	t.Parallel()
	pool := &poolStub{execTag: pgconn.NewCommandTag("INSERT 0 1")}
	repo := postgres.NewRenderJobRepo(pool)

	id, err := repo.Create(context.Background(), domain.RenderJob{
		ProjectID:     "pr-1",
		SegmentsTotal: 2,
		SegmentIDs:    []string{"s-1", "s-2"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	require.Len(t, pool.execs, 1)
	assert.Contains(t, pool.execs[0].sql, "INSERT INTO render_jobs")
	// Status defaults to pending when unset.
	assert.Equal(t, domain.RenderJobPending, pool.execs[0].args[2])
}

func TestRenderJobRepo_Create_DBError(t *testing.T) {
	t.Parallel()
	pool := &poolStub{execErr: assert.AnError}
	repo := postgres.NewRenderJobRepo(pool)
	_, err := repo.Create(context.Background(), domain.RenderJob{ProjectID: "pr-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "op=render_job.create")
}

func TestRenderJobRepo_Get(t *testing.T) {
	t.Parallel()
	ids, _ := json.Marshal([]string{"s-1", "s-2"})
	pool := &poolStub{row: rowStub{scan: func(dest ...any) error {
		*(dest[0].(*string)) = "rj-1"
		*(dest[1].(*string)) = "pr-1"
		*(dest[2].(*domain.RenderJobStatus)) = domain.RenderJobProcessing
		*(dest[3].(*[]byte)) = ids
		*(dest[4].(*int)) = 2
		*(dest[5].(*int)) = 1
		*(dest[6].(**string)) = nil
		*(dest[7].(**string)) = nil
		*(dest[8].(*time.Time)) = time.Now().UTC()
		*(dest[9].(*time.Time)) = time.Now().UTC()
		return nil
	}}}
	repo := postgres.NewRenderJobRepo(pool)

	job, err := repo.Get(context.Background(), "rj-1")
	require.NoError(t, err)
	assert.Equal(t, "rj-1", job.ID)
	assert.Equal(t, []string{"s-1", "s-2"}, job.SegmentIDs)
	assert.Equal(t, 1, job.SegmentsCompleted)
}

func TestRenderJobRepo_Get_NotFound(t *testing.T) {
	t.Parallel()
	pool := &poolStub{row: rowStub{scan: func(_ ...any) error { return pgx.ErrNoRows }}}
	repo := postgres.NewRenderJobRepo(pool)
	_, err := repo.Get(context.Background(), "rj-absent")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRenderJobRepo_LastCompleted_NotFound(t *testing.T) {
	t.Parallel()
	pool := &poolStub{row: rowStub{scan: func(_ ...any) error { return pgx.ErrNoRows }}}
	repo := postgres.NewRenderJobRepo(pool)
	_, err := repo.LastCompleted(context.Background(), "pr-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRenderJobRepo_IncrementProgress_BelowThreshold(t *testing.T) {
	t.Parallel()
	tx := &txStub{row: rowStub{scan: func(dest ...any) error {
		*(dest[0].(*int)) = 1
		*(dest[1].(*int)) = 3
		return nil
	}}}
	pool := &poolStub{tx: tx}
	repo := postgres.NewRenderJobRepo(pool)

	p, err := repo.IncrementProgress(context.Background(), "rj-1")
	require.NoError(t, err)
	assert.Equal(t, 1, p.Completed)
	assert.Equal(t, 3, p.Total)
	assert.False(t, p.Compositing)
	assert.True(t, tx.committed)
	assert.Empty(t, tx.execs, "no status flip below threshold")
}

func TestRenderJobRepo_IncrementProgress_CrossesThreshold(t *testing.T) {
	t.Parallel()
	tx := &txStub{
		row: rowStub{scan: func(dest ...any) error {
			*(dest[0].(*int)) = 3
			*(dest[1].(*int)) = 3
			return nil
		}},
		execTag: pgconn.NewCommandTag("UPDATE 1"),
	}
	pool := &poolStub{tx: tx}
	repo := postgres.NewRenderJobRepo(pool)

	p, err := repo.IncrementProgress(context.Background(), "rj-1")
	require.NoError(t, err)
	assert.True(t, p.Compositing)
	require.Len(t, tx.execs, 1)
	assert.Contains(t, tx.execs[0].sql, "status='compositing'")
	assert.True(t, tx.committed)
}

func TestRenderJobRepo_IncrementProgress_ThresholdRace(t *testing.T) {
	t.Parallel()
	// The guarded status flip matched no row: another caller already moved the
	// job to compositing.
	tx := &txStub{
		row: rowStub{scan: func(dest ...any) error {
			*(dest[0].(*int)) = 3
			*(dest[1].(*int)) = 3
			return nil
		}},
		execTag: pgconn.NewCommandTag("UPDATE 0"),
	}
	pool := &poolStub{tx: tx}
	repo := postgres.NewRenderJobRepo(pool)

	p, err := repo.IncrementProgress(context.Background(), "rj-1")
	require.NoError(t, err)
	assert.False(t, p.Compositing)
}

func TestRenderJobRepo_IncrementProgress_AlreadyAtTotal(t *testing.T) {
	t.Parallel()
	tx := &txStub{row: rowStub{scan: func(_ ...any) error { return pgx.ErrNoRows }}}
	pool := &poolStub{tx: tx}
	repo := postgres.NewRenderJobRepo(pool)

	_, err := repo.IncrementProgress(context.Background(), "rj-1")
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.True(t, tx.rolledBack)
}

func TestRenderJobRepo_MarkCompositing_Conflict(t *testing.T) {
	t.Parallel()
	pool := &poolStub{execTag: pgconn.NewCommandTag("UPDATE 0")}
	repo := postgres.NewRenderJobRepo(pool)
	err := repo.MarkCompositing(context.Background(), "rj-1")
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestRenderJobRepo_MarkCompleted_Conditional(t *testing.T) {
	t.Parallel()
	pool := &poolStub{execTag: pgconn.NewCommandTag("UPDATE 1")}
	repo := postgres.NewRenderJobRepo(pool)
	changed, err := repo.MarkCompleted(context.Background(), "rj-1", "s3://bucket/final.mp4")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Contains(t, pool.execs[0].sql, "NOT IN ('completed','failed')")

	pool2 := &poolStub{execTag: pgconn.NewCommandTag("UPDATE 0")}
	repo2 := postgres.NewRenderJobRepo(pool2)
	changed, err = repo2.MarkCompleted(context.Background(), "rj-1", "s3://bucket/final.mp4")
	require.NoError(t, err)
	assert.False(t, changed)
}
