package models

// ResizeTask is a decoded resize request: one uploaded original that needs
// a thumbnail attached to the post that owns it.
type ResizeTask struct {
	ImagePath string
	PostID    int64
}

// Thumbnail is what a finished task leaves behind.
type Thumbnail struct {
	PostID int64
	Key    string
	URL    string
	Size   int
}
