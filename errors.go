package cktools

import (
	"fmt"
)

// ParseError is returned when a file can be parsed neither as JSON nor as a literal structure.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse %q: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ReferenceError is returned when an annotation refers to an image id that does not exist.
type ReferenceError struct {
	Path         string // The source file, if known.
	AnnotationID int64
	ImageID      int64
}

func (e *ReferenceError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("dangling image reference: annotation %d refers to unknown image %d",
			e.AnnotationID, e.ImageID)
	}
	return fmt.Sprintf("dangling image reference in %q: annotation %d refers to unknown image %d",
		e.Path, e.AnnotationID, e.ImageID)
}
