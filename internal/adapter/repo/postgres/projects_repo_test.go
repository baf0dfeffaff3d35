package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/videoforge/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/videoforge/internal/domain"
)

func TestProjectRepo_Create(t *testing.T) {
	t.Parallel()
	pool := &poolStub{execTag: pgconn.NewCommandTag("INSERT 0 1")}
	repo := postgres.NewProjectRepo(pool)

	id, err := repo.Create(context.Background(), domain.Project{OwnerID: "u-1", Name: "Demo"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	require.Len(t, pool.execs, 1)
	assert.Contains(t, pool.execs[0].sql, "INSERT INTO projects")
}

func TestProjectRepo_Create_KeepsProvidedID(t *testing.T) {
	t.Parallel()
	pool := &poolStub{execTag: pgconn.NewCommandTag("INSERT 0 1")}
	repo := postgres.NewProjectRepo(pool)
	id, err := repo.Create(context.Background(), domain.Project{ID: "pr-given", Name: "Demo"})
	require.NoError(t, err)
	assert.Equal(t, "pr-given", id)
}

func TestProjectRepo_Get(t *testing.T) {
	t.Parallel()
	pool := &poolStub{row: rowStub{scan: func(dest ...any) error {
		*(dest[0].(*string)) = "pr-1"
		*(dest[1].(*string)) = "u-1"
		*(dest[2].(*string)) = "Demo"
		*(dest[3].(*time.Time)) = time.Now().UTC()
		*(dest[4].(*time.Time)) = time.Now().UTC()
		return nil
	}}}
	repo := postgres.NewProjectRepo(pool)

	p, err := repo.Get(context.Background(), "pr-1")
	require.NoError(t, err)
	assert.Equal(t, "Demo", p.Name)
}

func TestProjectRepo_Get_NotFound(t *testing.T) {
	t.Parallel()
	pool := &poolStub{row: rowStub{scan: func(_ ...any) error { return pgx.ErrNoRows }}}
	repo := postgres.NewProjectRepo(pool)
	_, err := repo.Get(context.Background(), "pr-absent")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestProjectRepo_Delete_NotFound(t *testing.T) {
	t.Parallel()
	pool := &poolStub{execTag: pgconn.NewCommandTag("DELETE 0")}
	repo := postgres.NewProjectRepo(pool)
	err := repo.Delete(context.Background(), "pr-absent")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
