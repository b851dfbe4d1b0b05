package mark5b

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/vlbitools/baseband/bitfield"
)

func TestBCDRoundTrip(t *testing.T) {
	cases := []struct {
		dec uint32
		bcd uint32
	}{
		{0, 0x0},
		{7, 0x7},
		{56, 0x56},
		{821, 0x821},
		{86399, 0x86399},
		{4687, 0x4687},
	}
	for _, c := range cases {
		if got := bcdEncode(c.dec); got != c.bcd {
			t.Errorf("bcdEncode(%d) = %#x, want %#x", c.dec, got, c.bcd)
		}
		got, err := bcdDecode(c.bcd)
		if err != nil || got != c.dec {
			t.Errorf("bcdDecode(%#x) = %d, %v", c.bcd, got, err)
		}
	}
	if _, err := bcdDecode(0x8a3); err == nil {
		t.Errorf("nibble above 9 accepted")
	}
}

func stampedHeader(t *testing.T, at time.Time, frameNr, fps int) Header {
	t.Helper()
	h, err := NewHeader(map[string]uint32{"user": 0x3ea})
	if err != nil {
		t.Fatalf("NewHeader: %v", err)
	}
	if err := h.SetTime(at, frameNr, fps); err != nil {
		t.Fatalf("SetTime: %v", err)
	}
	return h
}

// 2014-06-13 is MJD 56821; a reference anywhere within 500 days resolves
// the truncated day 821 back to it.
var (
	jun13    = time.Date(2014, 6, 13, 5, 30, 1, 0, time.UTC)
	refMJD   = 56809.5 // 2014-06-01
	wantJDay = 821
	wantKDay = 56000
)

func TestHeaderTimeFields(t *testing.T) {
	h := stampedHeader(t, jun13, 3, 6400)
	jday, err := h.JDay()
	if err != nil || jday != wantJDay {
		t.Fatalf("JDay = %d, %v", jday, err)
	}
	secs, err := h.SecondsOfDay()
	if err != nil || secs != 5*3600+30*60+1 {
		t.Fatalf("SecondsOfDay = %d, %v", secs, err)
	}
	// frame 3 of 6400/s is 468.75 us; the 0.1 ms field truncates to 4
	frac, err := h.Fraction()
	if err != nil || frac != 4 {
		t.Fatalf("Fraction = %d, %v", frac, err)
	}
	if h.FrameNr() != 3 || h.User() != 0x3ea {
		t.Fatalf("FrameNr/User wrong: %d %#x", h.FrameNr(), h.User())
	}

	if kday(refMJD, jday) != wantKDay {
		t.Fatalf("kday = %d, want %d", kday(refMJD, jday), wantKDay)
	}
	got, err := h.Time(refMJD)
	if err != nil {
		t.Fatalf("Time: %v", err)
	}
	if !got.Truncate(time.Second).Equal(jun13) {
		t.Fatalf("Time = %v, want %v plus fraction", got, jun13)
	}
	if got.Sub(jun13) != 400*time.Microsecond {
		t.Fatalf("sub-second part = %v", got.Sub(jun13))
	}
	// a reference a few hundred days off still resolves the same day
	late, _ := h.Time(refMJD + 400)
	if !late.Equal(got) {
		t.Fatalf("reference 400 days late changed the time to %v", late)
	}
}

func TestHeaderRoundTripAndCRC(t *testing.T) {
	h := stampedHeader(t, jun13, 3, 6400)
	raw := h.Bytes()
	if len(raw) != HeaderSize {
		t.Fatalf("header is %d bytes", len(raw))
	}
	// sync pattern occupies word 0
	if raw[0] != 0xed || raw[1] != 0xde || raw[2] != 0xad || raw[3] != 0xab {
		t.Fatalf("sync pattern bytes % x", raw[:4])
	}
	back, err := ParseHeader(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !back.Equal(h) {
		t.Fatalf("round trip changed fields")
	}
	if back.CRC() != h.CRC() || h.CRC() == 0 {
		t.Fatalf("CRC not carried: %#x vs %#x", back.CRC(), h.CRC())
	}

	// flip one payload-relevant bit: the CRC check must catch it
	raw[4] ^= 0x01
	if _, err := ParseHeader(raw); !errors.Is(err, ErrBadCRC) {
		t.Fatalf("corrupted header: got %v", err)
	}

	// a wrong sync pattern fails before the CRC runs
	raw[4] ^= 0x01
	raw[0] ^= 0xff
	if _, err := ParseHeader(raw); !errors.Is(err, bitfield.ErrFixedFieldMismatch) {
		t.Fatalf("bad sync: got %v", err)
	}
}

func TestReadHeader(t *testing.T) {
	h := stampedHeader(t, jun13, 0, 6400)
	var buf bytes.Buffer
	if _, err := h.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	back, err := ReadHeader(&buf)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if !back.Equal(h) {
		t.Fatalf("read back changed fields")
	}
}

func TestStampCRCIdempotent(t *testing.T) {
	h := stampedHeader(t, jun13, 7, 6400)
	was := h.CRC()
	if err := h.StampCRC(); err != nil {
		t.Fatalf("StampCRC: %v", err)
	}
	if h.CRC() != was {
		t.Fatalf("restamping changed the CRC: %#x -> %#x", was, h.CRC())
	}
}

func TestSetTimeTruncatesToSecond(t *testing.T) {
	h := stampedHeader(t, jun13.Add(123*time.Millisecond), 0, 6400)
	secs, err := h.SecondsOfDay()
	if err != nil || secs != 5*3600+30*60+1 {
		t.Fatalf("SecondsOfDay = %d, %v", secs, err)
	}
	if frac, _ := h.Fraction(); frac != 0 {
		t.Fatalf("frame 0 fraction = %d", frac)
	}
}
