package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/glekoz/resize-service/internal/models"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type execCall struct {
	sql  string
	args []any
}

type fakeDB struct {
	calls []execCall
	tag   pgconn.CommandTag
	err   error
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.calls = append(f.calls, execCall{sql: sql, args: args})
	return f.tag, f.err
}

func TestUpdateThumbnail_SingleFieldUpdate(t *testing.T) {
	db := &fakeDB{tag: pgconn.NewCommandTag("UPDATE 1")}
	repo := New(db, "posts_post")

	err := repo.UpdateThumbnail(context.Background(), 42, "posts/thumbnails/a.jpg")
	require.NoError(t, err)

	require.Len(t, db.calls, 1)
	assert.Equal(t, `UPDATE "posts_post" SET thumbnail = $1 WHERE id = $2`, db.calls[0].sql)
	assert.Equal(t, []any{"posts/thumbnails/a.jpg", int64(42)}, db.calls[0].args)
}

func TestUpdateThumbnail_SchemaQualifiedTable(t *testing.T) {
	db := &fakeDB{tag: pgconn.NewCommandTag("UPDATE 1")}
	repo := New(db, "public.posts_post")

	require.NoError(t, repo.UpdateThumbnail(context.Background(), 1, "k"))
	assert.Equal(t, `UPDATE "public"."posts_post" SET thumbnail = $1 WHERE id = $2`, db.calls[0].sql)
}

func TestUpdateThumbnail_HostileTableNameIsQuoted(t *testing.T) {
	db := &fakeDB{tag: pgconn.NewCommandTag("UPDATE 1")}
	repo := New(db, `posts"; DROP TABLE users; --`)

	require.NoError(t, repo.UpdateThumbnail(context.Background(), 1, "k"))
	assert.Equal(t, `UPDATE "posts""; DROP TABLE users; --" SET thumbnail = $1 WHERE id = $2`, db.calls[0].sql)
}

func TestUpdateThumbnail_RecordGone(t *testing.T) {
	db := &fakeDB{tag: pgconn.NewCommandTag("UPDATE 0")}
	repo := New(db, "posts_post")

	err := repo.UpdateThumbnail(context.Background(), 404, "posts/thumbnails/a.jpg")
	assert.ErrorIs(t, err, models.ErrRecordNotFound)
	assert.False(t, models.Retryable(err))
}

func TestUpdateThumbnail_Errors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind error
	}{
		{"unreachable", errors.New("failed to connect to `host=db`: dial error"), models.ErrTransport},
		{"server error", &pgconn.PgError{Code: "42P01", Message: `relation "posts_post" does not exist`}, models.ErrDoRetry},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := New(&fakeDB{err: tt.err}, "posts_post")
			err := repo.UpdateThumbnail(context.Background(), 1, "k")
			assert.ErrorIs(t, err, tt.kind)
			assert.ErrorIs(t, err, tt.err)
			assert.True(t, models.Retryable(err))
		})
	}
}
