package vdif

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/vlbitools/baseband/payload"
)

// FrameSet is the ordered collection of frames sharing one time slot
// (seconds + frame number) across distinct threads. Member frames are kept
// in ascending thread order; the reference header depends on how the set
// was built (see ReadFrameSet and NewFrameSetFromData).
type FrameSet struct {
	frames     []*Frame
	ref        Header
	incomplete bool
}

// ReadFrameSet collects frames from fr while they share the time slot of
// the first frame read. The reference header is the first frame in file
// order, deliberately not the thread-sorted order, so that a corrupted
// leading frame stays visible to the caller.
//
// With a non-empty threads list only those threads are kept, and a time
// slot that ends before every requested thread appeared is an error
// (ErrIncompleteFrameSet). End of stream mid-slot is not an error: the set
// is returned with Incomplete reporting true.
func ReadFrameSet(fr *FileReader, threads ...uint16) (*FrameSet, error) {
	first, err := fr.ReadFrame()
	if err != nil {
		return nil, err
	}
	wantSec, wantNr := first.Header.Seconds(), first.Header.FrameNr()

	var want map[uint16]bool
	if len(threads) > 0 {
		want = make(map[uint16]bool, len(threads))
		for _, t := range threads {
			want[t] = true
		}
	}

	fs := &FrameSet{ref: first.Header}
	seen := map[uint16]bool{}
	keep := func(f *Frame) error {
		id := f.ThreadID()
		if seen[id] {
			return fmt.Errorf("%w: thread %d", ErrDuplicateThread, id)
		}
		seen[id] = true
		if want == nil || want[id] {
			fs.frames = append(fs.frames, f)
		}
		return nil
	}
	if err := keep(first); err != nil {
		return nil, err
	}

	for {
		mark, err := fr.Offset()
		if err != nil {
			return nil, err
		}
		f, err := fr.ReadFrame()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				fs.incomplete = true
				break
			}
			return nil, err
		}
		if f.Header.Seconds() != wantSec || f.Header.FrameNr() != wantNr {
			// next time slot; rewind so the caller sees it again
			if _, err := fr.rs.Seek(mark, io.SeekStart); err != nil {
				return nil, fmt.Errorf("vdif: rewind to frame set end: %w", err)
			}
			break
		}
		if err := keep(f); err != nil {
			return nil, err
		}
	}

	if want != nil && !fs.incomplete && len(fs.frames) < len(want) {
		return nil, fmt.Errorf("%w: found %d of %d requested threads in slot %d/%d",
			ErrIncompleteFrameSet, len(fs.frames), len(want), wantSec, wantNr)
	}
	sort.Slice(fs.frames, func(i, j int) bool {
		return fs.frames[i].ThreadID() < fs.frames[j].ThreadID()
	})
	return fs, nil
}

// NewFrameSetFromData synthesizes one frame per thread from decoded sample
// blocks. headers carries either one template, copied and stamped with a
// thread ID per block, or exactly one header per block. threadIDs may be
// nil, in which case per-thread headers keep their IDs and a template gets
// IDs 0..n-1. The reference header is the first frame in thread-sorted
// order; contrast ReadFrameSet.
func NewFrameSetFromData(data []payload.Samples, headers []Header, threadIDs []uint16) (*FrameSet, error) {
	n := len(data)
	if n == 0 {
		return nil, fmt.Errorf("vdif: frame set needs at least one thread")
	}
	if len(headers) != 1 && len(headers) != n {
		return nil, fmt.Errorf("vdif: got %d headers for %d threads, want 1 or %d",
			len(headers), n, n)
	}
	if threadIDs != nil && len(threadIDs) != n {
		return nil, fmt.Errorf("vdif: got %d thread IDs for %d threads", len(threadIDs), n)
	}

	fs := &FrameSet{frames: make([]*Frame, 0, n)}
	seen := map[uint16]bool{}
	for i, block := range data {
		var h Header
		if len(headers) == 1 {
			h = headers[0].Copy()
		} else {
			h = headers[i].Copy()
		}
		switch {
		case threadIDs != nil:
			if err := h.Set("thread_id", uint32(threadIDs[i])); err != nil {
				return nil, err
			}
		case len(headers) == 1:
			if err := h.Set("thread_id", uint32(i)); err != nil {
				return nil, err
			}
		}
		if seen[h.ThreadID()] {
			return nil, fmt.Errorf("%w: thread %d", ErrDuplicateThread, h.ThreadID())
		}
		seen[h.ThreadID()] = true
		f, err := FrameFromData(block, h)
		if err != nil {
			return nil, fmt.Errorf("vdif: thread %d: %w", h.ThreadID(), err)
		}
		fs.frames = append(fs.frames, f)
	}
	sort.Slice(fs.frames, func(i, j int) bool {
		return fs.frames[i].ThreadID() < fs.frames[j].ThreadID()
	})
	fs.ref = fs.frames[0].Header
	return fs, nil
}

// Frames returns the member frames in ascending thread order.
func (fs *FrameSet) Frames() []*Frame { return append([]*Frame(nil), fs.frames...) }

// ThreadIDs returns the member thread identifiers in ascending order.
func (fs *FrameSet) ThreadIDs() []uint16 {
	ids := make([]uint16, len(fs.frames))
	for i, f := range fs.frames {
		ids[i] = f.ThreadID()
	}
	return ids
}

// RefHeader returns the reference header for this set; which frame it
// belongs to depends on the construction path.
func (fs *FrameSet) RefHeader() Header { return fs.ref }

// Incomplete reports whether the underlying stream ended mid-slot.
func (fs *FrameSet) Incomplete() bool { return fs.incomplete }

// Seconds returns the shared seconds-from-epoch of the slot.
func (fs *FrameSet) Seconds() uint32 { return fs.ref.Seconds() }

// FrameNr returns the shared frame number of the slot.
func (fs *FrameSet) FrameNr() int { return fs.ref.FrameNr() }

// SampleCount returns the time samples per member frame.
func (fs *FrameSet) SampleCount() int {
	if len(fs.frames) == 0 {
		return 0
	}
	return fs.frames[0].Payload.SampleCount()
}

// Samples stacks the member frames' decoded payloads into one block whose
// channels are thread-major: all channels of the lowest thread first. The
// result copies every frame's data and never aliases the payload buffers.
func (fs *FrameSet) Samples() (payload.Samples, error) {
	if len(fs.frames) == 0 {
		return payload.Samples{}, fmt.Errorf("vdif: empty frame set")
	}
	per := make([]payload.Samples, len(fs.frames))
	count := -1
	for i, f := range fs.frames {
		per[i] = f.Data()
		if count == -1 {
			count = per[i].Count()
		} else if per[i].Count() != count {
			return payload.Samples{}, fmt.Errorf("%w: thread %d has %d samples, want %d",
				ErrFrameMismatch, f.ThreadID(), per[i].Count(), count)
		}
	}
	nchan := per[0].Channels
	out := payload.Samples{
		Flat:     make([]float32, 0, count*len(per)*per[0].Width()),
		Channels: nchan * len(per),
		Complex:  per[0].Complex,
	}
	w := per[0].Width()
	for s := 0; s < count; s++ {
		for _, block := range per {
			out.Flat = append(out.Flat, block.Flat[s*w:(s+1)*w]...)
		}
	}
	return out, nil
}

// WriteTo writes the member frames in thread order.
func (fs *FrameSet) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for _, f := range fs.frames {
		n, err := f.WriteTo(w)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
