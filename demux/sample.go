package demux

import (
	"io"

	"github.com/tetsuo/isobox"
)

// ReadSampleData reads s's bytes from r into dst. dst must be at least
// s.Size bytes; a smaller buffer returns a BufferExhausted error without
// reading, per the query layer's buffer-too-small policy (spec.md §4.5).
func ReadSampleData(r io.ReaderAt, s Sample, dst []byte) (int, error) {
	if uint64(len(dst)) < s.Size {
		return 0, isobox.NewError(isobox.KindBufferExhausted, "demux.ReadSampleData", nil)
	}
	n, err := r.ReadAt(dst[:s.Size], int64(s.Offset))
	if err != nil {
		return n, isobox.NewError(isobox.KindIoError, "demux.ReadSampleData", err)
	}
	return n, nil
}
