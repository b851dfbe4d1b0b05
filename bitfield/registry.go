package bitfield

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// WordResolver maps raw header words to a variant code. It is handed the
// probe words first; returning need > 0 asks the caller to supply that many
// additional words before resolving again (for formats whose discriminant
// sits past a variable-length prefix).
type WordResolver func(words []uint32) (code uint32, need int, err error)

// ValueResolver maps a set of named field values to a variant code. Build
// uses it to decide which schema a caller-supplied field set belongs to.
type ValueResolver func(get func(name string) (uint32, bool)) (uint32, error)

// Registry maps discriminant values to header schemas for one format
// family. Registries are populated at startup and read-only afterwards;
// duplicate registration is an error, never a silent overwrite.
type Registry struct {
	name          string
	probeWords    int
	resolveWords  WordResolver
	resolveValues ValueResolver
	variants      map[uint32]*Schema
}

// NewRegistry creates an empty registry. probeWords is the number of words
// that must be read before resolveWords can run for the first time.
func NewRegistry(name string, probeWords int, rw WordResolver, rv ValueResolver) *Registry {
	return &Registry{
		name:          name,
		probeWords:    probeWords,
		resolveWords:  rw,
		resolveValues: rv,
		variants:      make(map[uint32]*Schema),
	}
}

// Name returns the registry (format family) name.
func (r *Registry) Name() string { return r.name }

// Register binds a discriminant value to a schema.
func (r *Registry) Register(code uint32, s *Schema) error {
	if s == nil {
		return fmt.Errorf("registry %s: nil schema for variant %#x", r.name, code)
	}
	if s.nwords < r.probeWords {
		return fmt.Errorf("registry %s: variant %#x schema shorter than probe (%d < %d words)",
			r.name, code, s.nwords, r.probeWords)
	}
	if _, dup := r.variants[code]; dup {
		return fmt.Errorf("registry %s: %w: variant %#x", r.name, ErrDuplicateVariant, code)
	}
	r.variants[code] = s
	return nil
}

// MustRegister is Register for startup-time tables; it panics on error.
func (r *Registry) MustRegister(code uint32, s *Schema) {
	if err := r.Register(code, s); err != nil {
		panic(err)
	}
}

// Schema returns the schema registered for code.
func (r *Registry) Schema(code uint32) (*Schema, error) {
	s, ok := r.variants[code]
	if !ok {
		return nil, fmt.Errorf("registry %s: %w: %#x", r.name, ErrUnknownVariant, code)
	}
	return s, nil
}

// Read decodes one header from rd: the probe words first, then whatever
// the resolved schema requires. A clean end of stream before the first
// byte returns io.EOF; short reads yield ErrTruncatedHeader wrapping the
// underlying EOF condition. The returned header is immutable.
func (r *Registry) Read(rd io.Reader) (*Header, error) {
	words := make([]uint32, 0, 8)
	grow := func(n int) error {
		buf := make([]byte, n*4)
		if _, err := io.ReadFull(rd, buf); err != nil {
			if len(words) == 0 && errors.Is(err, io.EOF) {
				return io.EOF // clean end of stream before the header
			}
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return fmt.Errorf("registry %s: %w: need %d more words: %w",
					r.name, ErrTruncatedHeader, n, err)
			}
			return fmt.Errorf("registry %s: read header: %w", r.name, err)
		}
		for i := 0; i < n; i++ {
			words = append(words, binary.LittleEndian.Uint32(buf[i*4:]))
		}
		return nil
	}
	if err := grow(r.probeWords); err != nil {
		return nil, err
	}
	schema, err := r.resolve(&words, grow)
	if err != nil {
		return nil, err
	}
	if rest := schema.nwords - len(words); rest > 0 {
		if err := grow(rest); err != nil {
			return nil, err
		}
	}
	return r.finish(words, schema)
}

// Parse decodes one header from a byte slice. The slice may be longer than
// the header; excess bytes are ignored.
func (r *Registry) Parse(b []byte) (*Header, error) {
	words := make([]uint32, 0, 8)
	grow := func(n int) error {
		if len(b) < (len(words)+n)*4 {
			return fmt.Errorf("registry %s: %w: have %d bytes, need %d",
				r.name, ErrTruncatedHeader, len(b), (len(words)+n)*4)
		}
		for i := 0; i < n; i++ {
			words = append(words, binary.LittleEndian.Uint32(b[len(words)*4:]))
		}
		return nil
	}
	if err := grow(r.probeWords); err != nil {
		return nil, err
	}
	schema, err := r.resolve(&words, grow)
	if err != nil {
		return nil, err
	}
	if rest := schema.nwords - len(words); rest > 0 {
		if err := grow(rest); err != nil {
			return nil, err
		}
	}
	return r.finish(words, schema)
}

func (r *Registry) resolve(words *[]uint32, grow func(int) error) (*Schema, error) {
	for {
		code, need, err := r.resolveWords(*words)
		if err != nil {
			return nil, fmt.Errorf("registry %s: %w", r.name, err)
		}
		if need <= 0 {
			return r.Schema(code)
		}
		if err := grow(need); err != nil {
			return nil, err
		}
	}
}

func (r *Registry) finish(words []uint32, schema *Schema) (*Header, error) {
	h := &Header{words: words[:schema.nwords], schema: schema}
	if err := h.verifyFixed(); err != nil {
		return nil, err
	}
	return h, nil
}

// Build constructs a mutable header from named field values. The values
// must resolve to exactly one registered schema; omitted fields take their
// schema-declared defaults.
func (r *Registry) Build(values map[string]uint32) (*Header, error) {
	code, err := r.resolveValues(func(name string) (uint32, bool) {
		v, ok := values[name]
		return v, ok
	})
	if err != nil {
		return nil, fmt.Errorf("registry %s: %w", r.name, err)
	}
	schema, err := r.Schema(code)
	if err != nil {
		return nil, err
	}
	h := &Header{
		words:   make([]uint32, schema.nwords),
		schema:  schema,
		mutable: true,
	}
	for _, f := range schema.fields {
		if f.Default != 0 {
			f.insert(h.words, f.Default)
		}
	}
	for name, v := range values {
		if err := h.Set(name, v); err != nil {
			return nil, err
		}
	}
	return h, nil
}
