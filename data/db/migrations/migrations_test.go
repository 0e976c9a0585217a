package migrations

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrations(t *testing.T) {
	files, err := fs.Glob(FS, dir+"/*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	var sawThumbnail bool
	for _, name := range files {
		body, err := fs.ReadFile(FS, name)
		require.NoError(t, err)
		text := string(body)
		assert.Contains(t, text, "-- +goose Up", name)
		assert.Contains(t, text, "-- +goose Down", name)
		if strings.Contains(text, "thumbnail") {
			sawThumbnail = true
		}
	}
	assert.True(t, sawThumbnail, "posts table must carry a thumbnail column")
}
