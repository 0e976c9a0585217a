package models

// ResizeTaskMessage is the queue body published by the posts API
// whenever it stores an original image.
// Pointers let validation tell a missing field from a zero value.
type ResizeTaskMessage struct {
	ImagePath *string `json:"image_path" validate:"required,min=1"`
	PostID    *int64  `json:"post_id" validate:"required,gt=0"`
}

func (m ResizeTaskMessage) Task() ResizeTask {
	var t ResizeTask
	if m.ImagePath != nil {
		t.ImagePath = *m.ImagePath
	}
	if m.PostID != nil {
		t.PostID = *m.PostID
	}
	return t
}

// NewResizeTaskMessage is used on the publishing side.
func NewResizeTaskMessage(imagePath string, postID int64) ResizeTaskMessage {
	return ResizeTaskMessage{ImagePath: &imagePath, PostID: &postID}
}
