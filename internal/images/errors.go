package images

import (
	"errors"
	"fmt"
)

// Image failure kinds
const (
	KindFetchFailed = "fetch_failed"
	KindWriteFailed = "write_failed"
	KindCollision   = "collision"
)

// ErrCollision is returned when a filename was already used in this run
var ErrCollision = errors.New("filename already used in this run")

// ImageError describes a figure that was omitted from its question
type ImageError struct {
	Ref      string
	Filename string
	Kind     string
	Err      error
}

func (e *ImageError) Error() string {
	ref := e.Ref
	if len(ref) > 64 {
		ref = ref[:64] + "..."
	}
	if e.Err != nil {
		return fmt.Sprintf("image %s (%s): %s: %v", e.Filename, ref, e.Kind, e.Err)
	}
	return fmt.Sprintf("image %s (%s): %s", e.Filename, ref, e.Kind)
}

func (e *ImageError) Unwrap() error {
	return e.Err
}
