package repository

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/glekoz/resize-service/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

type Repository struct {
	db          DBTX
	pool        *pgxpool.Pool
	updateThumb string
}

func NewRepository(ctx context.Context, dsn, table string) (*Repository, error) {
	loc := "Repository.NewRepository"
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, models.NewError(loc, "pool", models.ErrTransport, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, models.NewError(loc, "ping", models.ErrTransport, err)
	}
	r := New(pool, table)
	r.pool = pool
	return r, nil
}

// New binds the repository to db and the posts table name, which may be
// schema-qualified ("public.posts_post").
func New(db DBTX, table string) *Repository {
	ident := pgx.Identifier(strings.Split(table, "."))
	return &Repository{
		db:          db,
		updateThumb: "UPDATE " + ident.Sanitize() + " SET thumbnail = $1 WHERE id = $2",
	}
}

// UpdateThumbnail sets the thumbnail column of one post and nothing else.
// A missing post yields models.ErrRecordNotFound.
func (r *Repository) UpdateThumbnail(ctx context.Context, postID int64, thumbnailKey string) error {
	loc := "Repository.UpdateThumbnail"
	detail := "post " + strconv.FormatInt(postID, 10)
	tag, err := r.db.Exec(ctx, r.updateThumb, thumbnailKey, postID)
	if err != nil {
		return models.NewError(loc, detail, classify(err), err)
	}
	if tag.RowsAffected() == 0 {
		return models.NewError(loc, detail, models.ErrRecordNotFound, nil)
	}
	return nil
}

func (r *Repository) Close() {
	if r.pool != nil {
		r.pool.Close()
	}
}

// classify separates "the server said no" from "the server was not reached".
// Both are redelivered.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return models.ErrDoRetry
	}
	return models.ErrTransport
}
