package bitfield

import "errors"

var (
	// ErrUnknownVariant is returned when a discriminant value has no
	// registered schema.
	ErrUnknownVariant = errors.New("unknown header variant")

	// ErrTruncatedHeader is returned when fewer bytes are available than
	// the schema requires.
	ErrTruncatedHeader = errors.New("truncated header")

	// ErrImmutableHeader is returned by Set on a frozen header.
	ErrImmutableHeader = errors.New("header is immutable")

	// ErrFieldOverflow is returned when a value does not fit the field's
	// bit width.
	ErrFieldOverflow = errors.New("value exceeds field width")

	// ErrUnknownField is returned for a field name absent from the schema.
	ErrUnknownField = errors.New("unknown header field")

	// ErrDuplicateVariant is returned when a discriminant value is
	// registered twice.
	ErrDuplicateVariant = errors.New("duplicate variant registration")

	// ErrFixedFieldMismatch is returned when a fixed-value field (such as
	// a sync pattern) carries a different value on the wire.
	ErrFixedFieldMismatch = errors.New("fixed field mismatch")
)
