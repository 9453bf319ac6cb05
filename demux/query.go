package demux

import (
	"sort"

	"github.com/tetsuo/isobox"
	"github.com/tetsuo/isobox/track"
)

// CompareMode selects how FindSampleByTime matches a target DTS against
// sample timestamps.
type CompareMode int

const (
	CompareExact CompareMode = iota
	CompareLT
	CompareLTEq
	CompareGT
	CompareGTEq
)

// SeekMethod selects how Seek adjusts a time-matched sample index to
// land on a sync sample.
type SeekMethod int

const (
	SeekPrevious SeekMethod = iota
	SeekPreviousSync
	SeekNearestSync
	SeekNextSync
)

// Sample is the result of a GetSample query: enough to read the
// sample's bytes from the file and to know its place in decode order.
type Sample struct {
	Size           uint64
	Offset         uint64
	MetadataSize   uint32
	Silent         bool
	Sync           bool
	DTS            uint64
	NextDTS        uint64
	PrevSyncDTS    uint64
	NextSyncDTS    uint64
}

// FindSampleByTime returns the 1-based sample index in t whose DTS
// matches targetDTS under mode, or (0, false) if no sample qualifies.
func FindSampleByTime(t *track.Track, targetDTS uint64, mode CompareMode) (uint32, bool) {
	dts := t.Samples.DTS
	n := len(dts)
	if n == 0 {
		return 0, false
	}

	// dts is non-decreasing by construction (mux enforces monotonicity;
	// demux trusts a well-formed stts), so a binary search finds the
	// first index >= targetDTS.
	i := sort.Search(n, func(i int) bool { return dts[i] >= targetDTS })

	switch mode {
	case CompareExact:
		if i < n && dts[i] == targetDTS {
			return uint32(i + 1), true
		}
		return 0, false
	case CompareGTEq:
		if i < n {
			return uint32(i + 1), true
		}
		return 0, false
	case CompareGT:
		if i < n && dts[i] == targetDTS {
			i++
		}
		if i < n {
			return uint32(i + 1), true
		}
		return 0, false
	case CompareLTEq:
		if i < n && dts[i] == targetDTS {
			return uint32(i + 1), true
		}
		fallthrough
	case CompareLT:
		if i == 0 {
			return 0, false
		}
		return uint32(i), true
	default:
		return 0, false
	}
}

// IsSyncSample reports whether the 1-based sample index in t is a sync
// sample.
func IsSyncSample(t *track.Track, index uint32) bool {
	return t.Samples.IsSync(index)
}

// seekSync adjusts a 1-based index to satisfy method, searching for a
// sync sample among t.Samples.SyncIndices. A track with no stss box (nil
// SyncIndices) treats every sample as sync, so the index is returned
// unchanged.
func seekSync(t *track.Track, index uint32, method SeekMethod) uint32 {
	sync := t.Samples.SyncIndices
	n := uint32(t.Samples.Len())
	if index < 1 {
		index = 1
	}
	if index > n {
		index = n
	}
	if sync == nil || method == SeekPrevious {
		return index
	}

	prev, next := nearestSyncBounds(sync, index)

	switch method {
	case SeekPreviousSync:
		if prev != 0 {
			return prev
		}
		return index
	case SeekNextSync:
		if next != 0 {
			return next
		}
		if prev != 0 {
			return prev
		}
		return index
	case SeekNearestSync:
		switch {
		case prev == 0:
			return next
		case next == 0:
			return prev
		case index-prev <= next-index:
			return prev
		default:
			return next
		}
	default:
		return index
	}
}

func nearestSyncBounds(sync []uint32, index uint32) (prev, next uint32) {
	i := sort.Search(len(sync), func(i int) bool { return sync[i] >= index })
	if i < len(sync) && sync[i] == index {
		return sync[i], sync[i]
	}
	if i > 0 {
		prev = sync[i-1]
	}
	if i < len(sync) {
		next = sync[i]
	}
	return prev, next
}

// Seek locates the sample nearest targetDTS and adjusts it to a sync
// sample per method, tagging the gap between the original time match and
// the sync sample landed on as requiring silent decode (the caller must
// decode-but-discard frames from the returned index's sync point up to
// the originally requested time). A chapters track never seeks; it
// returns its first sample unconditionally.
func Seek(t *track.Track, targetDTS uint64, method SeekMethod) (index uint32, silentFrom uint32, ok bool) {
	if t.Kind == track.KindChapters {
		if t.Samples.Len() == 0 {
			return 0, 0, false
		}
		return 1, 0, true
	}

	matched, ok := FindSampleByTime(t, targetDTS, CompareLTEq)
	if !ok {
		matched, ok = FindSampleByTime(t, targetDTS, CompareGTEq)
		if !ok {
			return 0, 0, false
		}
	}

	landed := seekSync(t, matched, method)
	if landed == matched {
		return landed, 0, true
	}
	return landed, matched, true
}

// SeekPrevSample returns the 1-based index immediately before index,
// clamped to 1.
func SeekPrevSample(index uint32) uint32 {
	if index <= 1 {
		return 1
	}
	return index - 1
}

// SeekNextSample returns the 1-based index immediately after index in a
// track with n samples. If index is already the last sample, it is
// returned unchanged (callers detect end-of-track via GetSample's
// zero-size return, not an error).
func SeekNextSample(index uint32, n int) uint32 {
	if int(index) >= n {
		return index
	}
	return index + 1
}

// GetSample returns the full query result for the 1-based sample index
// in t. An index past the last sample returns a zero-size Sample and a
// nil error — running out of samples is not an error, per the "end of
// data" design note carried from spec.md §7.
func GetSample(t *track.Track, index uint32, silentBelow uint32) (Sample, error) {
	n := uint32(t.Samples.Len())
	if index < 1 {
		return Sample{}, isobox.NewError(isobox.KindInvalidArgument, "demux.GetSample", nil)
	}
	if index > n {
		return Sample{}, nil
	}

	i := index - 1
	s := Sample{
		Size:   t.Samples.Sizes[i],
		Offset: t.Samples.Offsets[i],
		DTS:    t.Samples.DTS[i],
		Sync:   t.Samples.IsSync(index),
		Silent: silentBelow != 0 && index < silentBelow,
	}
	if int(index) < int(n) {
		s.NextDTS = t.Samples.DTS[i+1]
	} else {
		s.NextDTS = s.DTS
	}

	if t.Samples.SyncIndices == nil {
		// No stss box: every sample is sync, so the nearest sync
		// neighbors are simply the adjacent samples.
		if index > 1 {
			s.PrevSyncDTS = t.Samples.DTS[i-1]
		} else {
			s.PrevSyncDTS = s.DTS
		}
		if index < n {
			s.NextSyncDTS = t.Samples.DTS[i+1]
		} else {
			s.NextSyncDTS = s.DTS
		}
	} else {
		if prev, _ := nearestSyncBounds(t.Samples.SyncIndices, index); prev != 0 {
			s.PrevSyncDTS = t.Samples.DTS[prev-1]
		}
		if _, next := nearestSyncBounds(t.Samples.SyncIndices, index); next != 0 {
			s.NextSyncDTS = t.Samples.DTS[next-1]
		}
	}

	return s, nil
}
