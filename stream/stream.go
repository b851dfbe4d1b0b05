// Package stream presents a sequence of equally sized frame blocks read
// from (or written to) a byte stream as one continuous, seekable array of
// samples. The format-specific work (header parsing, payload decoding,
// thread multiplexing) is delegated to a BlockCodec; this package owns
// only the pointer arithmetic between samples, bytes, elapsed time and
// absolute time.
//
// Readers and writers are strictly single-goroutine: they buffer at most
// one decoded block and hold exclusive ownership of the underlying byte
// handle from open to close.
package stream

import (
	"errors"
	"io"
	"time"

	"github.com/vlbitools/baseband/internal/logging"
	"github.com/vlbitools/baseband/payload"
)

// BlockCodec decodes and encodes one fixed-size block (a frame, or a
// frame set covering several threads) at a given block index.
type BlockCodec interface {
	// SamplesPerBlock is the number of time samples one block covers.
	SamplesPerBlock() int
	// BlockBytes is the encoded size of one block.
	BlockBytes() int
	// Channels is the stacked channel count of the decoded samples.
	Channels() int
	// IsComplex reports whether samples carry quadrature components.
	IsComplex() bool
	// DecodeBlock reads exactly BlockBytes from r and decodes block index.
	DecodeBlock(r io.Reader, index int64) (payload.Samples, error)
	// EncodeBlock writes exactly BlockBytes to w for block index. A block
	// with valid == false is stamped with the invalid-data flag.
	EncodeBlock(w io.Writer, index int64, flat []float32, valid bool) error
}

// Config carries the stream-level parameters a codec cannot know.
type Config struct {
	// Start is the absolute time of sample zero.
	Start time.Time
	// SampleRate is complete time samples per second.
	SampleRate float64
	// Base is the byte offset of block zero in the underlying stream.
	Base int64
	// Logger receives diagnostics; nil means the process default.
	Logger logging.Logger
}

// ErrClosed is returned by operations on a closed reader or writer.
var ErrClosed = errors.New("stream: closed")

func (c *Config) logger() logging.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return logging.Default()
}
