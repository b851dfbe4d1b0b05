// Package bitfield implements schema-driven codecs for fixed-layout binary
// headers: ordered arrays of little-endian 32-bit words whose named fields
// occupy fixed bit ranges. A Registry maps a discriminant value read from a
// well-known field to the full field schema for that header variant.
package bitfield

import "fmt"

// Field describes one named bit range inside a header word array.
type Field struct {
	Name    string
	Word    int    // word index the field lives in
	Offset  uint   // bit offset from the least significant bit
	Length  uint   // width in bits, 1..32
	Default uint32 // value applied by Build when the caller omits the field
	Fixed   bool   // wire value must equal Default (e.g. sync patterns)
}

// mask returns the field mask, right-aligned.
func (f Field) mask() uint32 {
	if f.Length >= 32 {
		return ^uint32(0)
	}
	return (uint32(1) << f.Length) - 1
}

func (f Field) extract(words []uint32) uint32 {
	return (words[f.Word] >> f.Offset) & f.mask()
}

func (f Field) insert(words []uint32, v uint32) {
	words[f.Word] = words[f.Word]&^(f.mask()<<f.Offset) | (v&f.mask())<<f.Offset
}

// Schema is the fixed field table of one header variant. Schemas are
// immutable after construction and safe to share.
type Schema struct {
	name   string
	nwords int
	fields []Field
	index  map[string]int
}

// NewSchema validates the field table and returns a Schema covering nwords
// 32-bit words. Fields must lie inside the word array and must not overlap.
func NewSchema(name string, nwords int, fields []Field) (*Schema, error) {
	if nwords <= 0 {
		return nil, fmt.Errorf("schema %q: word count must be positive", name)
	}
	used := make([]uint32, nwords)
	index := make(map[string]int, len(fields))
	for i, f := range fields {
		if f.Name == "" {
			return nil, fmt.Errorf("schema %q: field %d has no name", name, i)
		}
		if _, dup := index[f.Name]; dup {
			return nil, fmt.Errorf("schema %q: duplicate field %q", name, f.Name)
		}
		if f.Length < 1 || f.Length > 32 || f.Offset+f.Length > 32 {
			return nil, fmt.Errorf("schema %q: field %q: bad bit range offset=%d length=%d",
				name, f.Name, f.Offset, f.Length)
		}
		if f.Word < 0 || f.Word >= nwords {
			return nil, fmt.Errorf("schema %q: field %q: word %d outside header of %d words",
				name, f.Name, f.Word, nwords)
		}
		m := f.mask() << f.Offset
		if used[f.Word]&m != 0 {
			return nil, fmt.Errorf("schema %q: field %q overlaps an earlier field", name, f.Name)
		}
		if f.Default&^f.mask() != 0 {
			return nil, fmt.Errorf("schema %q: field %q: default %#x exceeds %d bits",
				name, f.Name, f.Default, f.Length)
		}
		used[f.Word] |= m
		index[f.Name] = i
	}
	s := &Schema{
		name:   name,
		nwords: nwords,
		fields: append([]Field(nil), fields...),
		index:  index,
	}
	return s, nil
}

// MustSchema is NewSchema for startup-time tables; it panics on error.
func MustSchema(name string, nwords int, fields []Field) *Schema {
	s, err := NewSchema(name, nwords, fields)
	if err != nil {
		panic(err)
	}
	return s
}

// Extend returns a new schema whose field table is this schema's table
// followed by extra entries. This is plain data composition: the derived
// variant shares no behavior with the base, only its layout.
func (s *Schema) Extend(name string, nwords int, extra []Field) (*Schema, error) {
	combined := make([]Field, 0, len(s.fields)+len(extra))
	combined = append(combined, s.fields...)
	combined = append(combined, extra...)
	return NewSchema(name, nwords, combined)
}

// MustExtend is Extend for startup-time tables; it panics on error.
func (s *Schema) MustExtend(name string, nwords int, extra []Field) *Schema {
	out, err := s.Extend(name, nwords, extra)
	if err != nil {
		panic(err)
	}
	return out
}

// Name returns the schema name.
func (s *Schema) Name() string { return s.name }

// WordCount returns the fixed number of 32-bit words in this variant.
func (s *Schema) WordCount() int { return s.nwords }

// Size returns the header size in bytes.
func (s *Schema) Size() int { return s.nwords * 4 }

// Fields returns a copy of the field table in declaration order.
func (s *Schema) Fields() []Field { return append([]Field(nil), s.fields...) }

// Field looks up one field by name.
func (s *Schema) Field(name string) (Field, bool) {
	i, ok := s.index[name]
	if !ok {
		return Field{}, false
	}
	return s.fields[i], true
}

// HasField reports whether the schema defines the named field.
func (s *Schema) HasField(name string) bool {
	_, ok := s.index[name]
	return ok
}
