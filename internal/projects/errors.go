package projects

import "errors"

var (
	ErrNotFound          = errors.New("project not found")
	ErrInvalidSubmission = errors.New("invalid submission: after image is required")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidTimestamp  = errors.New("invalid timestamp")
)
