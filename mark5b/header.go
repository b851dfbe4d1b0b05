// Package mark5b implements the Mark 5B baseband format: fixed 16-byte
// headers with a sync pattern, BCD-coded day-of-MJD timestamps and a CRC,
// followed by 10000-byte bit-packed payloads. It exercises the same header
// registry, payload codec and stream engine as the vdif package, with the
// trivial single-variant discriminant.
package mark5b

import (
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/vlbitools/baseband/bitfield"
)

// Fixed Mark 5B geometry.
const (
	SyncPattern = 0xABADDEED
	HeaderSize  = 16
	PayloadSize = 10000
	FrameSize   = HeaderSize + PayloadSize
)

// ErrBadCRC is returned when a header's CRC does not match its contents.
var ErrBadCRC = errors.New("mark5b: header CRC mismatch")

var schema = bitfield.MustSchema("mark5b", 4, []bitfield.Field{
	{Name: "sync_pattern", Word: 0, Offset: 0, Length: 32, Default: SyncPattern, Fixed: true},
	{Name: "year", Word: 1, Offset: 28, Length: 4},
	{Name: "user", Word: 1, Offset: 16, Length: 12},
	{Name: "internal_tvg", Word: 1, Offset: 15, Length: 1},
	{Name: "frame_nr", Word: 1, Offset: 0, Length: 15},
	{Name: "bcd_jday", Word: 2, Offset: 20, Length: 12},
	{Name: "bcd_seconds", Word: 2, Offset: 0, Length: 20},
	{Name: "bcd_fraction", Word: 3, Offset: 16, Length: 16},
	{Name: "crc", Word: 3, Offset: 0, Length: 16},
})

// Registry resolves the single Mark 5B header layout; the format has no
// variant discriminant.
var Registry = newRegistry()

func newRegistry() *bitfield.Registry {
	r := bitfield.NewRegistry("mark5b", 4,
		func([]uint32) (uint32, int, error) { return 0, 0, nil },
		func(func(string) (uint32, bool)) (uint32, error) { return 0, nil })
	r.MustRegister(0, schema)
	return r
}

// Header wraps a decoded Mark 5B header with typed accessors.
type Header struct {
	*bitfield.Header
}

// ParseHeader decodes one header from a byte slice and checks its CRC.
func ParseHeader(b []byte) (Header, error) {
	h, err := Registry.Parse(b)
	if err != nil {
		return Header{}, err
	}
	return Header{h}, verifyCRC(h)
}

// ReadHeader decodes one header from r and checks its CRC.
func ReadHeader(r io.Reader) (Header, error) {
	h, err := Registry.Read(r)
	if err != nil {
		return Header{}, err
	}
	return Header{h}, verifyCRC(h)
}

func verifyCRC(h *bitfield.Header) error {
	words := h.Words()
	if want := crc16(words); uint16(words[3]&0xffff) != want {
		return fmt.Errorf("%w: got %#04x, want %#04x", ErrBadCRC, words[3]&0xffff, want)
	}
	return nil
}

// NewHeader builds a mutable header; the sync pattern is filled in.
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

// FrameNr returns the frame number within the current second.
func (h Header) FrameNr() int { return int(h.u("frame_nr")) }

// User returns the 12-bit user field.
func (h Header) User() uint16 { return uint16(h.u("user")) }

// JDay returns the decoded three-digit truncated day of MJD.
func (h Header) JDay() (int, error) {
	d, err := bcdDecode(h.u("bcd_jday"))
	return int(d), err
}

// SecondsOfDay returns the decoded BCD seconds within the day.
func (h Header) SecondsOfDay() (int, error) {
	s, err := bcdDecode(h.u("bcd_seconds"))
	return int(s), err
}

// Fraction returns the decoded sub-second field in units of 0.1 ms.
func (h Header) Fraction() (int, error) {
	f, err := bcdDecode(h.u("bcd_fraction"))
	return int(f), err
}

// CRC returns the stored header CRC.
func (h Header) CRC() uint16 { return uint16(h.u("crc")) }

// StampCRC recomputes and stores the CRC over the other header fields.
func (h Header) StampCRC() error {
	words := h.Header.Words()
	words[3] &^= 0xffff
	return h.Set("crc", uint32(crc16(words)))
}

// kday resolves the truncated day against a reference MJD: the thousands
// digits that put the result within 500 days of the reference.
func kday(refMJD float64, jday int) int {
	return int(math.Floor((refMJD-float64(jday)+500)/1000)) * 1000
}

func mjdToTime(mjd int) time.Time {
	// MJD 40587 is the Unix epoch.
	return time.Unix(int64(mjd-40587)*86400, 0).UTC()
}

func timeToMJD(t time.Time) (mjd int, secOfDay int) {
	days := t.Unix() / 86400
	return int(days) + 40587, int(t.Unix() % 86400)
}

// Time reconstructs the frame time from the BCD fields. refMJD resolves
// the three-digit truncated day; any MJD within 500 days of the true time
// will do.
func (h Header) Time(refMJD float64) (time.Time, error) {
	jday, err := h.JDay()
	if err != nil {
		return time.Time{}, err
	}
	secs, err := h.SecondsOfDay()
	if err != nil {
		return time.Time{}, err
	}
	frac, err := h.Fraction()
	if err != nil {
		return time.Time{}, err
	}
	t := mjdToTime(kday(refMJD, jday) + jday).
		Add(time.Duration(secs) * time.Second).
		Add(time.Duration(frac) * 100 * time.Microsecond)
	return t, nil
}

// SetTime stamps the BCD day and second fields from t (truncated to a
// whole second), the frame number, and the fraction field derived from
// frameNr at the given frame rate. The CRC is restamped.
func (h Header) SetTime(t time.Time, frameNr int, framesPerSec int) error {
	t = t.UTC().Truncate(time.Second)
	mjd, secOfDay := timeToMJD(t)
	if err := h.Set("bcd_jday", bcdEncode(uint32(mjd%1000))); err != nil {
		return err
	}
	if err := h.Set("bcd_seconds", bcdEncode(uint32(secOfDay))); err != nil {
		return err
	}
	if err := h.Set("frame_nr", uint32(frameNr)); err != nil {
		return err
	}
	// 0.1 ms units, truncated: frame 3 of 6400/s stamps 4, not 5
	frac := uint32(math.Floor(float64(frameNr) / float64(framesPerSec) * 1e4))
	if err := h.Set("bcd_fraction", bcdEncode(frac)); err != nil {
		return err
	}
	return h.StampCRC()
}
