package application

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestThumbnailKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"posts/abc.jpg", "posts/thumbnails/abc.jpg"},
		{"abc.jpg", "thumbnails/abc.jpg"},
		{"a/b/c.png", "a/thumbnails/b/c.png"},
		{"posts/", "posts/thumbnails/"},
		{"/abs.jpg", "/thumbnails/abs.jpg"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ThumbnailKey(tt.in))
			assert.Equal(t, ThumbnailKey(tt.in), ThumbnailKey(tt.in))
		})
	}
}
