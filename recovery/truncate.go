package recovery

import (
	"os"

	"github.com/tetsuo/isobox"
	"github.com/tetsuo/isobox/mux"
)

// truncateToDisk walks every replayed track's accumulated sample rows
// and drops any row whose bytes fall beyond the media file's actual
// on-disk length (rows were journaled before their payload bytes were
// guaranteed flushed), then truncates the media file itself to the
// greatest offset+size that still fits, per spec.md §4.9.
func truncateToDisk(ms *mux.MuxState, mediaFile *os.File) error {
	info, err := mediaFile.Stat()
	if err != nil {
		return isobox.NewError(isobox.KindIoError, "recovery.truncateToDisk", err)
	}
	fileSize := uint64(info.Size())

	var maxEnd uint64
	for _, t := range ms.Tracks() {
		sizes, offsets := ms.SampleOffsets(t)
		keep := len(sizes)
		for i := range sizes {
			end := offsets[i] + sizes[i]
			if end > fileSize {
				keep = i
				break
			}
			if end > maxEnd {
				maxEnd = end
			}
		}
		if keep < len(sizes) {
			ms.TruncateTrack(t, keep)
		}
	}

	if maxEnd > 0 && maxEnd < fileSize {
		if err := mediaFile.Truncate(int64(maxEnd)); err != nil {
			return isobox.NewError(isobox.KindIoError, "recovery.truncateToDisk", err)
		}
	}

	return nil
}
