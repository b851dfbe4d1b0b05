package mark5b

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/vlbitools/baseband/payload"
)

// rampSamples fills a whole 10000-byte payload at 2 bits over nchan
// channels with cycling quantization levels.
func rampSamples(nchan int) payload.Samples {
	levels := [4]float32{-3.3359, -1, 1, 3.3359}
	flat := make([]float32, PayloadSize*8/2)
	for i := range flat {
		flat[i] = levels[i%4]
	}
	return payload.Samples{Flat: flat, Channels: nchan}
}

func TestFrameRoundTrip(t *testing.T) {
	h := stampedHeader(t, jun13, 2, 6400)
	f, err := FrameFromData(rampSamples(8), 2, h)
	if err != nil {
		t.Fatalf("FrameFromData: %v", err)
	}
	raw := f.Bytes()
	if len(raw) != FrameSize {
		t.Fatalf("frame is %d bytes, want %d", len(raw), FrameSize)
	}
	back, err := ReadFrame(bytes.NewReader(raw), 8, 2)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if !back.Equal(f) {
		t.Fatalf("round trip changed the frame")
	}
	want := rampSamples(8)
	got := back.Data()
	if got.Channels != 8 || got.Count() != want.Count() {
		t.Fatalf("decoded shape %d channels, %d samples", got.Channels, got.Count())
	}
	for i := range want.Flat {
		if got.Flat[i] != want.Flat[i] {
			t.Fatalf("sample %d = %v, want %v", i, got.Flat[i], want.Flat[i])
		}
	}
}

func TestFrameSizeEnforced(t *testing.T) {
	h := stampedHeader(t, jun13, 0, 6400)
	p, err := payload.NewWithScheme(make([]uint32, 4), 2, 8, false, payload.SchemeMark5B)
	if err != nil {
		t.Fatalf("payload: %v", err)
	}
	if _, err := NewFrame(h, p); !errors.Is(err, ErrFrameMismatch) {
		t.Fatalf("short payload: got %v", err)
	}
}

func TestInvalidFrameFillPattern(t *testing.T) {
	h := stampedHeader(t, jun13, 0, 6400)
	f, err := FrameFromData(rampSamples(4), 2, h)
	if err != nil {
		t.Fatalf("frame: %v", err)
	}
	f.Valid = false
	raw := f.Bytes()
	for off := HeaderSize; off < FrameSize; off += 4 {
		if w := binary.LittleEndian.Uint32(raw[off:]); w != invalidFill {
			t.Fatalf("invalid payload word at %d = %#x, want %#x", off, w, invalidFill)
		}
	}
	for i, v := range f.Data().Flat {
		if v != 0 {
			t.Fatalf("invalid frame sample %d = %v, want 0", i, v)
		}
	}
}

func TestReadFrameEOF(t *testing.T) {
	if _, err := ReadFrame(bytes.NewReader(nil), 8, 2); err != io.EOF {
		t.Fatalf("empty stream: got %v, want io.EOF", err)
	}
	h := stampedHeader(t, jun13, 0, 6400)
	f, _ := FrameFromData(rampSamples(8), 2, h)
	raw := f.Bytes()
	if _, err := ReadFrame(bytes.NewReader(raw[:5000]), 8, 2); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("short frame: got %v", err)
	}
}

func TestFileReaderSequence(t *testing.T) {
	var buf bytes.Buffer
	fw := NewFileWriter(&buf)
	for nr := 0; nr < 3; nr++ {
		h := stampedHeader(t, jun13, nr, 6400)
		f, err := FrameFromData(rampSamples(8), 2, h)
		if err != nil {
			t.Fatalf("frame %d: %v", nr, err)
		}
		if err := fw.WriteFrame(f); err != nil {
			t.Fatalf("write %d: %v", nr, err)
		}
	}

	fr := NewFileReader(bytes.NewReader(buf.Bytes()), 8, 2, refMJD)
	for nr := 0; nr < 3; nr++ {
		f, err := fr.ReadFrame()
		if err != nil {
			t.Fatalf("read %d: %v", nr, err)
		}
		if f.Header.FrameNr() != nr {
			t.Fatalf("frame number = %d, want %d", f.Header.FrameNr(), nr)
		}
		ft, err := fr.Time(f.Header)
		if err != nil {
			t.Fatalf("time %d: %v", nr, err)
		}
		if !ft.Truncate(time.Second).Equal(jun13) {
			t.Fatalf("frame %d time = %v", nr, ft)
		}
	}
	if _, err := fr.ReadFrame(); err != io.EOF {
		t.Fatalf("exhausted reader: got %v", err)
	}
	if off, _ := fr.Offset(); off != int64(3*FrameSize) {
		t.Fatalf("offset = %d", off)
	}
}
