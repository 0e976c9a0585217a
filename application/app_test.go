package application

import (
	"context"
	"errors"
	"testing"

	"github.com/glekoz/resize-service/internal/logging"
	"github.com/glekoz/resize-service/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStorage struct {
	objects map[string][]byte
	types   map[string]string
	getErr  error
	putErr  error
	puts    int
}

func newMemStorage() *memStorage {
	return &memStorage{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memStorage) Get(_ context.Context, key string) ([]byte, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	data, ok := m.objects[key]
	if !ok {
		return nil, models.NewError("memStorage.Get", key, models.ErrNotFound, nil)
	}
	return data, nil
}

func (m *memStorage) Put(_ context.Context, key string, data []byte, contentType string) (string, error) {
	if m.putErr != nil {
		return "", m.putErr
	}
	m.puts++
	m.objects[key] = data
	m.types[key] = contentType
	return key, nil
}

func (m *memStorage) URL(key string) string { return "http://minio/images/" + key }

type memRepo struct {
	posts map[int64]string
	err   error
	calls int
}

func (m *memRepo) UpdateThumbnail(_ context.Context, postID int64, key string) error {
	m.calls++
	if m.err != nil {
		return m.err
	}
	if _, ok := m.posts[postID]; !ok {
		return models.NewError("memRepo.UpdateThumbnail", "", models.ErrRecordNotFound, nil)
	}
	m.posts[postID] = key
	return nil
}

type stubThumbnailer struct {
	err   error
	calls int
}

func (s *stubThumbnailer) Make(_ context.Context, data []byte) ([]byte, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return append([]byte("thumb:"), data...), nil
}

type memCache struct {
	done    map[string]bool
	seenErr error
}

func (m *memCache) Seen(_ context.Context, _ int64, imagePath string) (bool, error) {
	if m.seenErr != nil {
		return false, m.seenErr
	}
	return m.done[imagePath], nil
}

func (m *memCache) Mark(_ context.Context, _ int64, imagePath string) error {
	m.done[imagePath] = true
	return nil
}

type fixture struct {
	storage *memStorage
	repo    *memRepo
	thumbs  *stubThumbnailer
	app     *App
}

func newFixture() *fixture {
	f := &fixture{
		storage: newMemStorage(),
		repo:    &memRepo{posts: map[int64]string{42: ""}},
		thumbs:  &stubThumbnailer{},
	}
	f.storage.objects["posts/abc.jpg"] = []byte("original")
	f.app = NewApp(f.storage, f.repo, f.thumbs, logging.Discard())
	return f
}

var task = models.ResizeTask{ImagePath: "posts/abc.jpg", PostID: 42}

func TestApp_Process_Success(t *testing.T) {
	f := newFixture()

	res := f.app.Process(context.Background(), task)

	require.NoError(t, res.Err)
	assert.Equal(t, VerdictDone, res.Verdict)
	assert.Equal(t, StageUpdating, res.Stage)
	assert.Equal(t, []byte("thumb:original"), f.storage.objects["posts/thumbnails/abc.jpg"])
	assert.Equal(t, "image/jpeg", f.storage.types["posts/thumbnails/abc.jpg"])
	assert.Equal(t, "posts/thumbnails/abc.jpg", f.repo.posts[42])
	require.NotNil(t, res.Thumbnail)
	assert.Equal(t, "http://minio/images/posts/thumbnails/abc.jpg", res.Thumbnail.URL)
	assert.Equal(t, len("thumb:original"), res.Thumbnail.Size)
	assert.Equal(t, []byte("original"), f.storage.objects["posts/abc.jpg"], "original is kept")
}

func TestApp_Process_RedeliveryOverwrites(t *testing.T) {
	f := newFixture()

	first := f.app.Process(context.Background(), task)
	second := f.app.Process(context.Background(), task)

	assert.Equal(t, VerdictDone, first.Verdict)
	assert.Equal(t, VerdictDone, second.Verdict)
	assert.Equal(t, 2, f.storage.puts)
	assert.Len(t, f.storage.objects, 2)
	assert.Equal(t, "posts/thumbnails/abc.jpg", f.repo.posts[42])
}

func TestApp_Process_Failures(t *testing.T) {
	transport := models.NewError("x", "", models.ErrTransport, errors.New("connection reset"))

	tests := []struct {
		name    string
		setup   func(f *fixture)
		task    models.ResizeTask
		verdict Verdict
		stage   Stage
		kind    error
		updates int
	}{
		{
			name:    "missing original",
			task:    models.ResizeTask{ImagePath: "posts/missing.jpg", PostID: 42},
			verdict: VerdictRetry,
			stage:   StageDownloading,
			kind:    models.ErrNotFound,
		},
		{
			name:    "download transport error",
			setup:   func(f *fixture) { f.storage.getErr = transport },
			task:    task,
			verdict: VerdictRetry,
			stage:   StageDownloading,
			kind:    models.ErrTransport,
		},
		{
			name:    "undecodable original",
			setup:   func(f *fixture) { f.thumbs.err = models.NewError("t", "", models.ErrDecode, nil) },
			task:    task,
			verdict: VerdictRetry,
			stage:   StageTransforming,
			kind:    models.ErrDecode,
		},
		{
			name:    "upload rejected",
			setup:   func(f *fixture) { f.storage.putErr = models.NewError("p", "", models.ErrCapacity, nil) },
			task:    task,
			verdict: VerdictRetry,
			stage:   StageUploading,
			kind:    models.ErrCapacity,
		},
		{
			name:    "database down",
			setup:   func(f *fixture) { f.repo.err = transport },
			task:    task,
			verdict: VerdictRetry,
			stage:   StageUpdating,
			kind:    models.ErrTransport,
			updates: 1,
		},
		{
			name:    "post deleted",
			task:    models.ResizeTask{ImagePath: "posts/abc.jpg", PostID: 7},
			verdict: VerdictSkip,
			stage:   StageUpdating,
			kind:    models.ErrRecordNotFound,
			updates: 1,
		},
		{
			name:    "invalid input",
			setup:   func(f *fixture) { f.storage.getErr = models.NewError("g", "", models.ErrInvalidInput, nil) },
			task:    task,
			verdict: VerdictReject,
			stage:   StageDownloading,
			kind:    models.ErrInvalidInput,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			if tt.setup != nil {
				tt.setup(f)
			}

			res := f.app.Process(context.Background(), tt.task)

			assert.Equal(t, tt.verdict, res.Verdict)
			assert.Equal(t, tt.stage, res.Stage)
			assert.ErrorIs(t, res.Err, tt.kind)
			assert.Nil(t, res.Thumbnail)
			assert.Equal(t, tt.updates, f.repo.calls)
		})
	}
}

func TestApp_Process_NothingWrittenBeforeUploadFails(t *testing.T) {
	f := newFixture()
	f.thumbs.err = models.NewError("t", "", models.ErrDecode, nil)

	f.app.Process(context.Background(), task)

	assert.Zero(t, f.storage.puts)
	assert.Zero(t, f.repo.calls)
	assert.Empty(t, f.repo.posts[42])
}

func TestApp_Process_Cache(t *testing.T) {
	f := newFixture()
	c := &memCache{done: map[string]bool{}}
	f.app.Cache = c

	res := f.app.Process(context.Background(), task)
	assert.Equal(t, VerdictDone, res.Verdict)
	assert.False(t, res.Duplicate)
	assert.True(t, c.done["posts/abc.jpg"])

	res = f.app.Process(context.Background(), task)
	assert.Equal(t, VerdictDone, res.Verdict)
	assert.True(t, res.Duplicate)
	assert.Equal(t, 1, f.thumbs.calls)
	assert.Equal(t, 1, f.storage.puts)
}

func TestApp_Process_CacheUnavailable(t *testing.T) {
	f := newFixture()
	f.app.Cache = &memCache{done: map[string]bool{}, seenErr: errors.New("redis down")}

	res := f.app.Process(context.Background(), task)

	assert.Equal(t, VerdictDone, res.Verdict)
	assert.False(t, res.Duplicate)
	assert.Equal(t, 1, f.thumbs.calls)
}

func TestVerdictAndStageNames(t *testing.T) {
	assert.Equal(t, "retry", VerdictRetry.String())
	assert.Equal(t, "transforming", StageTransforming.String())
	assert.Equal(t, "unknown", Stage(99).String())
}
