package feedback

import "errors"

// Feedback errors
var (
	ErrBoardNotFound      = errors.New("board not found")
	ErrItemNotFound       = errors.New("feedback item not found")
	ErrAttachmentNotFound = errors.New("attachment not found")
	ErrEmptyTitle         = errors.New("title cannot be empty")
	ErrTitleTooLong       = errors.New("title cannot exceed 255 characters")
	ErrDescriptionTooLong = errors.New("description cannot exceed 10000 characters")
	ErrAttachmentTooLarge = errors.New("attachment exceeds the upload size limit")
	ErrEmptyAttachment    = errors.New("attachment is empty")
)

const (
	maxTitleLength       = 255
	maxDescriptionLength = 10000
	maxFileNameLength    = 255
)
