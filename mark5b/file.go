package mark5b

import (
	"fmt"
	"io"
	"time"
)

// FileReader reads headers and frames sequentially. Mark 5B files do not
// record their channel count or bit depth, so both are fixed at
// construction.
type FileReader struct {
	rs     io.ReadSeeker
	nchan  int
	bps    int
	refMJD float64
}

// NewFileReader wraps a byte stream positioned at a frame boundary. refMJD
// resolves the header's truncated day field; any MJD within 500 days of
// the recording works.
func NewFileReader(rs io.ReadSeeker, nchan, bps int, refMJD float64) *FileReader {
	return &FileReader{rs: rs, nchan: nchan, bps: bps, refMJD: refMJD}
}

// Offset returns the current byte position.
func (fr *FileReader) Offset() (int64, error) {
	return fr.rs.Seek(0, io.SeekCurrent)
}

// Seek repositions the underlying byte stream.
func (fr *FileReader) Seek(offset int64, whence int) (int64, error) {
	return fr.rs.Seek(offset, whence)
}

// ReadHeader decodes the next header, consuming exactly its bytes.
func (fr *FileReader) ReadHeader() (Header, error) {
	return ReadHeader(fr.rs)
}

// ReadFrame decodes the next frame.
func (fr *FileReader) ReadFrame() (*Frame, error) {
	return ReadFrame(fr.rs, fr.nchan, fr.bps)
}

// Time resolves a header's timestamp against the reader's reference MJD.
func (fr *FileReader) Time(h Header) (time.Time, error) {
	return h.Time(fr.refMJD)
}

// FileWriter writes frames to an underlying byte stream.
type FileWriter struct {
	w io.Writer
}

// NewFileWriter wraps a byte stream.
func NewFileWriter(w io.Writer) *FileWriter {
	return &FileWriter{w: w}
}

// WriteFrame serializes one frame.
func (fw *FileWriter) WriteFrame(f *Frame) error {
	if _, err := f.WriteTo(fw.w); err != nil {
		return fmt.Errorf("mark5b: write frame: %w", err)
	}
	return nil
}
