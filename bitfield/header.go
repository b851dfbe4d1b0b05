package bitfield

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Header is one decoded (or built) header: a fixed-length word array
// interpreted through its schema's field table. Headers parsed off the wire
// are immutable; headers produced by Build, and copies, are mutable until
// frozen.
type Header struct {
	words   []uint32
	schema  *Schema
	mutable bool
}

// Schema returns the variant schema this header was resolved to.
func (h *Header) Schema() *Schema { return h.schema }

// Words returns a copy of the raw header words.
func (h *Header) Words() []uint32 { return append([]uint32(nil), h.words...) }

// Size returns the header size in bytes.
func (h *Header) Size() int { return len(h.words) * 4 }

// Mutable reports whether Set is allowed.
func (h *Header) Mutable() bool { return h.mutable }

// Freeze marks the header immutable. There is no way back; use Copy to
// obtain a writable header.
func (h *Header) Freeze() { h.mutable = false }

// Copy returns an independent, mutable copy of the header.
func (h *Header) Copy() *Header {
	return &Header{
		words:   append([]uint32(nil), h.words...),
		schema:  h.schema,
		mutable: true,
	}
}

// Get reads the named field.
func (h *Header) Get(name string) (uint32, error) {
	f, ok := h.schema.Field(name)
	if !ok {
		return 0, fmt.Errorf("header %s: %w: %q", h.schema.Name(), ErrUnknownField, name)
	}
	return f.extract(h.words), nil
}

// Set writes the named field. It fails on immutable headers and on values
// wider than the field.
func (h *Header) Set(name string, v uint32) error {
	if !h.mutable {
		return fmt.Errorf("header %s: %w", h.schema.Name(), ErrImmutableHeader)
	}
	f, ok := h.schema.Field(name)
	if !ok {
		return fmt.Errorf("header %s: %w: %q", h.schema.Name(), ErrUnknownField, name)
	}
	if v&^f.mask() != 0 {
		return fmt.Errorf("header %s: field %q: %w: %#x does not fit %d bits",
			h.schema.Name(), name, ErrFieldOverflow, v, f.Length)
	}
	f.insert(h.words, v)
	return nil
}

// Bytes serializes the header words in little-endian order.
func (h *Header) Bytes() []byte {
	out := make([]byte, len(h.words)*4)
	for i, w := range h.words {
		binary.LittleEndian.PutUint32(out[i*4:], w)
	}
	return out
}

// WriteTo writes the serialized header to w.
func (h *Header) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(h.Bytes())
	return int64(n), err
}

// EqualValues reports whether two headers share a schema and agree on every
// field value. Mutability is ignored, so a parsed header compares equal to
// a built one carrying the same values.
func (h *Header) EqualValues(o *Header) bool {
	if h == nil || o == nil {
		return h == o
	}
	if h.schema != o.schema {
		return false
	}
	for _, f := range h.schema.fields {
		if f.extract(h.words) != f.extract(o.words) {
			return false
		}
	}
	return true
}

// verifyFixed checks every fixed-value field against the wire contents.
func (h *Header) verifyFixed() error {
	for _, f := range h.schema.fields {
		if f.Fixed && f.extract(h.words) != f.Default {
			return fmt.Errorf("header %s: field %q: %w: got %#x, want %#x",
				h.schema.Name(), f.Name, ErrFixedFieldMismatch, f.extract(h.words), f.Default)
		}
	}
	return nil
}
