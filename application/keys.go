package application

import "strings"

// ThumbnailKey derives where the thumbnail of original lives:
// "posts/a.jpg" -> "posts/thumbnails/a.jpg", "a.jpg" -> "thumbnails/a.jpg".
// The result depends on original only, so a redelivered task overwrites
// the same object.
func ThumbnailKey(original string) string {
	folder, rest, found := strings.Cut(original, "/")
	if !found {
		return "thumbnails/" + original
	}
	return folder + "/thumbnails/" + rest
}
