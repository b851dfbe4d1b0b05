package bitfield

import (
	"strings"
	"testing"
)

func TestNewSchemaValidation(t *testing.T) {
	cases := []struct {
		name   string
		nwords int
		fields []Field
		want   string // substring of the error, empty means ok
	}{
		{"ok", 2, []Field{
			{Name: "a", Word: 0, Offset: 0, Length: 16},
			{Name: "b", Word: 0, Offset: 16, Length: 16},
			{Name: "c", Word: 1, Offset: 0, Length: 32},
		}, ""},
		{"zero words", 0, nil, "word count"},
		{"unnamed", 1, []Field{{Word: 0, Offset: 0, Length: 8}}, "no name"},
		{"dup", 1, []Field{
			{Name: "a", Word: 0, Offset: 0, Length: 8},
			{Name: "a", Word: 0, Offset: 8, Length: 8},
		}, "duplicate"},
		{"zero length", 1, []Field{{Name: "a", Word: 0, Offset: 0, Length: 0}}, "bad bit range"},
		{"past word end", 1, []Field{{Name: "a", Word: 0, Offset: 24, Length: 16}}, "bad bit range"},
		{"word out of range", 1, []Field{{Name: "a", Word: 1, Offset: 0, Length: 8}}, "outside header"},
		{"overlap", 1, []Field{
			{Name: "a", Word: 0, Offset: 0, Length: 8},
			{Name: "b", Word: 0, Offset: 4, Length: 8},
		}, "overlaps"},
		{"default too wide", 1, []Field{
			{Name: "a", Word: 0, Offset: 0, Length: 4, Default: 0x1f},
		}, "exceeds"},
	}
	for _, c := range cases {
		_, err := NewSchema(c.name, c.nwords, c.fields)
		if c.want == "" {
			if err != nil {
				t.Errorf("%s: unexpected error %v", c.name, err)
			}
			continue
		}
		if err == nil || !strings.Contains(err.Error(), c.want) {
			t.Errorf("%s: got %v, want error containing %q", c.name, err, c.want)
		}
	}
}

func TestSchemaAccessors(t *testing.T) {
	s := MustSchema("demo", 2, []Field{
		{Name: "lo", Word: 0, Offset: 0, Length: 12},
		{Name: "hi", Word: 1, Offset: 20, Length: 12},
	})
	if s.Name() != "demo" || s.WordCount() != 2 || s.Size() != 8 {
		t.Fatalf("bad accessors: %q %d %d", s.Name(), s.WordCount(), s.Size())
	}
	if !s.HasField("hi") || s.HasField("mid") {
		t.Fatalf("HasField lookup wrong")
	}
	f, ok := s.Field("hi")
	if !ok || f.Word != 1 || f.Offset != 20 || f.Length != 12 {
		t.Fatalf("Field(hi) = %+v, %v", f, ok)
	}
	fields := s.Fields()
	fields[0].Name = "mutated"
	if _, ok := s.Field("lo"); !ok {
		t.Fatalf("Fields() must return a copy")
	}
}

func TestSchemaExtend(t *testing.T) {
	base := MustSchema("base", 1, []Field{
		{Name: "a", Word: 0, Offset: 0, Length: 16},
	})
	ext, err := base.Extend("ext", 2, []Field{
		{Name: "b", Word: 1, Offset: 0, Length: 32},
	})
	if err != nil {
		t.Fatalf("extend: %v", err)
	}
	if !ext.HasField("a") || !ext.HasField("b") || ext.WordCount() != 2 {
		t.Fatalf("extended schema missing fields")
	}
	if base.HasField("b") {
		t.Fatalf("extend mutated the base schema")
	}
	if _, err := base.Extend("clash", 1, []Field{
		{Name: "c", Word: 0, Offset: 8, Length: 16},
	}); err == nil {
		t.Fatalf("expected overlap error for clashing extension")
	}
}

func TestFieldInsertExtractRoundTrip(t *testing.T) {
	f := Field{Name: "x", Word: 1, Offset: 7, Length: 9}
	words := []uint32{0xffffffff, 0xffffffff}
	f.insert(words, 0x123)
	if got := f.extract(words); got != 0x123 {
		t.Fatalf("extract = %#x, want 0x123", got)
	}
	// bits outside the field survive
	if words[1]&0x7f != 0x7f || words[1]>>16 != 0xffff {
		t.Fatalf("insert clobbered neighbouring bits: %#x", words[1])
	}
	if words[0] != 0xffffffff {
		t.Fatalf("insert touched the wrong word")
	}
}
