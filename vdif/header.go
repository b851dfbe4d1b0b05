// Package vdif implements the VLBI Data Interchange Format: multi-variant
// 32-bit-word headers, bit-packed payloads, frames multiplexed over
// concurrent threads, and seekable sample streams built on top of them.
//
// Header variants are selected by the 8-bit extended-data-version (EDV)
// code in word 4, or by the legacy-mode bit for 16-byte headers. The
// variant table is fixed at startup; unknown EDVs fail parsing rather than
// falling back to a default layout.
package vdif

import (
	"fmt"
	"io"
	"math"
	"time"

	"github.com/vlbitools/baseband/bitfield"
)

// SyncPattern is the fixed word-5 value of EDV 1 and EDV 3 headers.
const SyncPattern = 0xACABFEED

// KeyLegacy is the registry key for 4-word legacy headers, which carry no
// EDV field. Regular variants are keyed by their EDV value (0-255).
const KeyLegacy = 0x100

func baseFields(legacy bool) []bitfield.Field {
	var legacyBit uint32
	if legacy {
		legacyBit = 1
	}
	return []bitfield.Field{
		{Name: "invalid_data", Word: 0, Offset: 31, Length: 1},
		{Name: "legacy_mode", Word: 0, Offset: 30, Length: 1, Default: legacyBit, Fixed: true},
		{Name: "seconds", Word: 0, Offset: 0, Length: 30},
		{Name: "ref_epoch", Word: 1, Offset: 24, Length: 6},
		{Name: "frame_nr", Word: 1, Offset: 0, Length: 24},
		{Name: "vdif_version", Word: 2, Offset: 29, Length: 3},
		{Name: "lg2_nchan", Word: 2, Offset: 24, Length: 5},
		{Name: "frame_length", Word: 2, Offset: 0, Length: 24},
		{Name: "complex_data", Word: 3, Offset: 31, Length: 1},
		{Name: "bits_per_sample", Word: 3, Offset: 26, Length: 5},
		{Name: "thread_id", Word: 3, Offset: 16, Length: 10},
		{Name: "station_id", Word: 3, Offset: 0, Length: 16},
	}
}

func edvField(edv uint32) bitfield.Field {
	return bitfield.Field{Name: "edv", Word: 4, Offset: 24, Length: 8, Default: edv, Fixed: true}
}

var (
	schemaLegacy = bitfield.MustSchema("vdif-legacy", 4, baseFields(true))

	schemaEDV0 = bitfield.MustSchema("vdif-edv0", 8, append(baseFields(false), edvField(0)))

	schemaEDV1 = bitfield.MustSchema("vdif-edv1", 8, append(baseFields(false),
		edvField(1),
		bitfield.Field{Name: "sampling_unit", Word: 4, Offset: 23, Length: 1},
		bitfield.Field{Name: "sample_rate", Word: 4, Offset: 0, Length: 23},
		bitfield.Field{Name: "sync_pattern", Word: 5, Offset: 0, Length: 32, Default: SyncPattern, Fixed: true},
		bitfield.Field{Name: "das_id", Word: 6, Offset: 0, Length: 32},
	))

	schemaEDV3 = bitfield.MustSchema("vdif-edv3", 8, append(baseFields(false),
		edvField(3),
		bitfield.Field{Name: "sampling_unit", Word: 4, Offset: 23, Length: 1},
		bitfield.Field{Name: "sample_rate", Word: 4, Offset: 0, Length: 23},
		bitfield.Field{Name: "sync_pattern", Word: 5, Offset: 0, Length: 32, Default: SyncPattern, Fixed: true},
		bitfield.Field{Name: "loif_tuning", Word: 6, Offset: 0, Length: 32},
		bitfield.Field{Name: "dbe_unit", Word: 7, Offset: 24, Length: 4},
		bitfield.Field{Name: "if_nr", Word: 7, Offset: 20, Length: 4},
		bitfield.Field{Name: "subband", Word: 7, Offset: 17, Length: 3},
		bitfield.Field{Name: "sideband", Word: 7, Offset: 16, Length: 1},
		bitfield.Field{Name: "major_rev", Word: 7, Offset: 12, Length: 4},
		bitfield.Field{Name: "minor_rev", Word: 7, Offset: 8, Length: 4},
		bitfield.Field{Name: "personality", Word: 7, Offset: 0, Length: 8},
	))
)

// Registry resolves VDIF header variants. Additional EDVs can be bound at
// startup with Registry.Register; duplicates are rejected.
var Registry = newRegistry()

func newRegistry() *bitfield.Registry {
	r := bitfield.NewRegistry("vdif", 4,
		func(words []uint32) (uint32, int, error) {
			if words[0]>>30&1 == 1 {
				return KeyLegacy, 0, nil
			}
			if len(words) < 5 {
				return 0, 1, nil // need word 4 for the EDV
			}
			return words[4] >> 24 & 0xff, 0, nil
		},
		func(get func(string) (uint32, bool)) (uint32, error) {
			if v, ok := get("legacy_mode"); ok && v == 1 {
				return KeyLegacy, nil
			}
			edv, _ := get("edv")
			return edv, nil
		})
	r.MustRegister(KeyLegacy, schemaLegacy)
	r.MustRegister(0, schemaEDV0)
	r.MustRegister(1, schemaEDV1)
	r.MustRegister(3, schemaEDV3)
	return r
}

// Header wraps a decoded VDIF header with typed accessors for the fields
// every variant shares.
type Header struct {
	*bitfield.Header
}

// ParseHeader decodes one header from a byte slice.
func ParseHeader(b []byte) (Header, error) {
	h, err := Registry.Parse(b)
	if err != nil {
		return Header{}, err
	}
	return Header{h}, nil
}

// ReadHeader decodes one header from r.
func ReadHeader(r io.Reader) (Header, error) {
	h, err := Registry.Read(r)
	if err != nil {
		return Header{}, err
	}
	return Header{h}, nil
}

// NewHeader builds a mutable header from named field values. Supplying
// "legacy_mode": 1 selects the 4-word layout; otherwise "edv" picks the
// variant (default 0).
func NewHeader(values map[string]uint32) (Header, error) {
	h, err := Registry.Build(values)
	if err != nil {
		return Header{}, err
	}
	return Header{h}, nil
}

// Copy returns an independent, mutable copy.
func (h Header) Copy() Header { return Header{h.Header.Copy()} }

// Equal reports field-by-field equality, ignoring mutability.
func (h Header) Equal(o Header) bool { return h.EqualValues(o.Header) }

func (h Header) u(name string) uint32 {
	v, _ := h.Get(name)
	return v
}

// Legacy reports whether this is a 4-word legacy header.
func (h Header) Legacy() bool { return h.u("legacy_mode") == 1 }

// EDV returns the extended-data-version code; ok is false for legacy
// headers, which have none.
func (h Header) EDV() (uint8, bool) {
	if h.Legacy() {
		return 0, false
	}
	return uint8(h.u("edv")), true
}

// Invalid reports the invalid-data flag: the payload is padding, not data.
func (h Header) Invalid() bool { return h.u("invalid_data") == 1 }

// SetInvalid sets or clears the invalid-data flag.
func (h Header) SetInvalid(invalid bool) error {
	v := uint32(0)
	if invalid {
		v = 1
	}
	return h.Set("invalid_data", v)
}

// Seconds returns the whole seconds elapsed since the reference epoch.
func (h Header) Seconds() uint32 { return h.u("seconds") }

// RefEpoch returns the reference epoch code: half-years since 2000.
func (h Header) RefEpoch() int { return int(h.u("ref_epoch")) }

// FrameNr returns the frame number within the current second.
func (h Header) FrameNr() int { return int(h.u("frame_nr")) }

// ThreadID returns the thread identifier.
func (h Header) ThreadID() uint16 { return uint16(h.u("thread_id")) }

// StationID returns the two-character or numeric station code.
func (h Header) StationID() uint16 { return uint16(h.u("station_id")) }

// NumChannels returns the channel (sub-band) count, 2^lg2_nchan.
func (h Header) NumChannels() int { return 1 << h.u("lg2_nchan") }

// BitsPerSample returns the per-component bit depth (field value plus one).
func (h Header) BitsPerSample() int { return int(h.u("bits_per_sample")) + 1 }

// IsComplex reports whether samples carry quadrature components.
func (h Header) IsComplex() bool { return h.u("complex_data") == 1 }

// FrameLength returns the total frame size in bytes, header included. The
// wire field counts 8-byte units.
func (h Header) FrameLength() int { return int(h.u("frame_length")) * 8 }

// PayloadSize returns the payload size in bytes.
func (h Header) PayloadSize() int { return h.FrameLength() - h.Size() }

// SamplesPerFrame returns the number of complete time samples per frame.
func (h Header) SamplesPerFrame() int {
	bits := h.BitsPerSample() * h.NumChannels()
	if h.IsComplex() {
		bits *= 2
	}
	return h.PayloadSize() * 8 / bits
}

// SampleRate returns the per-channel sample rate declared by EDV 1 or
// EDV 3 headers, in samples per second; ok is false when the variant does
// not carry one or the field is zero.
func (h Header) SampleRate() (float64, bool) {
	if !h.Schema().HasField("sample_rate") {
		return 0, false
	}
	rate := float64(h.u("sample_rate"))
	if rate == 0 {
		return 0, false
	}
	if h.u("sampling_unit") == 1 {
		rate *= 1e6
	} else {
		rate *= 1e3
	}
	return rate, true
}

// epochStart returns the instant a reference epoch code denotes: January or
// July 1st, half a year per code step from 2000.
func epochStart(refEpoch int) time.Time {
	return time.Date(2000+refEpoch/2, time.Month(1+6*(refEpoch%2)), 1, 0, 0, 0, 0, time.UTC)
}

// Time returns the frame time at whole-second resolution. Sub-second frame
// numbering needs the frame rate and is resolved by the stream layer.
func (h Header) Time() time.Time {
	return epochStart(h.RefEpoch()).Add(time.Duration(h.Seconds()) * time.Second)
}

// SetTime stamps ref_epoch and seconds from t, which must be aligned to a
// whole second. The frame number is reset to zero.
func (h Header) SetTime(t time.Time) error {
	t = t.UTC()
	if t.Nanosecond() != 0 {
		return fmt.Errorf("vdif: header time %v is not second-aligned", t)
	}
	ep := (t.Year()-2000)*2
	if t.Month() >= time.July {
		ep++
	}
	if ep < 0 || ep > 63 {
		return fmt.Errorf("vdif: time %v outside the representable epoch range", t)
	}
	secs := t.Sub(epochStart(ep)).Seconds()
	if secs >= float64(uint32(1)<<30) {
		return fmt.Errorf("vdif: time %v overflows the seconds field", t)
	}
	if err := h.Set("ref_epoch", uint32(ep)); err != nil {
		return err
	}
	if err := h.Set("seconds", uint32(math.Round(secs))); err != nil {
		return err
	}
	return h.Set("frame_nr", 0)
}
