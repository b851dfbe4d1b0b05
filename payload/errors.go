package payload

import "errors"

var (
	// ErrUnsupportedBitDepth is returned when bits-per-sample is not a
	// supported power of two.
	ErrUnsupportedBitDepth = errors.New("unsupported bits per sample")

	// ErrSizeMismatch is returned when a word buffer does not divide into
	// whole multi-channel samples.
	ErrSizeMismatch = errors.New("payload size mismatch")
)
