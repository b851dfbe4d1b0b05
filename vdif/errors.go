package vdif

import "errors"

var (
	// ErrFrameMismatch is returned when a payload does not agree with the
	// geometry its header declares.
	ErrFrameMismatch = errors.New("vdif: frame header/payload mismatch")

	// ErrIncompleteFrameSet is returned when a time slot ends before all
	// requested threads were found.
	ErrIncompleteFrameSet = errors.New("vdif: incomplete frame set")

	// ErrDuplicateThread is returned when one time slot carries two frames
	// with the same thread ID.
	ErrDuplicateThread = errors.New("vdif: duplicate thread in frame set")
)
