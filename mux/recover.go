package mux

import (
	"os"

	"github.com/tetsuo/isobox/meta"
	"github.com/tetsuo/isobox/track"
)

// NewForRecovery creates an empty MuxState bound to an already-open
// media file, for package recovery to replay journaled records into.
// Recovered sample offsets are absolute positions already present on
// disk (they were written before the crash), so unlike New there is no
// mdatOffset to thread through; ReplaySamples takes offsets as given.
func NewForRecovery(file *os.File, opts Options) *MuxState {
	return &MuxState{
		file:   file,
		opts:   opts,
		logger: opts.logger(),
		nextID: 1,
		meta:   meta.NewScopes(),
	}
}

// ReplayTrack re-creates a track from a journaled trak+stsd record pair
// and registers it, returning it for use with ReplaySamples.
func (ms *MuxState) ReplayTrack(id uint32, kind track.Kind, flags uint32, timescale uint32, duration uint64, name string, refs []track.TrackReference, codec track.CodecConfig) *track.Track {
	t := &track.Track{
		ID:            id,
		Kind:          kind,
		Timescale:     timescale,
		DurationTicks: duration,
		Enabled:       flags&0x1 != 0,
		InMovie:       flags&0x2 != 0,
		InPreview:     flags&0x4 != 0,
		Name:          name,
		References:    refs,
		Codec:         codec,
	}
	ms.tracks = append(ms.tracks, &trackState{t: t})
	if id >= ms.nextID {
		ms.nextID = id + 1
	}
	return t
}

// ReplaySamples appends a journaled batch of sample rows directly to
// t's accumulator without touching the media file, since the sample
// bytes were already flushed to disk before the crash. offsets are
// absolute file positions, exactly as GetSample would report them.
func (ms *MuxState) ReplaySamples(t *track.Track, sizes, dts, offsets []uint64, comp []int64, hasComp bool, syncIdx []uint32) {
	ts := ms.trackState(t)
	if ts == nil {
		return
	}
	base := uint32(len(ts.acc.sizes))
	for i := range sizes {
		var c int64
		has := false
		if hasComp && i < len(comp) {
			c = comp[i]
			has = true
		}
		ts.acc.append(sizes[i], dts[i], offsets[i], c, has, false)
	}
	for _, idx := range syncIdx {
		ts.acc.sync = append(ts.acc.sync, base+idx)
		ts.acc.hasSync = true
	}
	if len(dts) > 0 {
		ts.lastDTS = dts[len(dts)-1]
		ts.hasDTS = true
	}
}

// ReplayMeta sets one journaled metadata entry directly, bypassing
// SetWellKnown mirroring since the journal already recorded the
// per-scope value the mirror would have produced.
func (ms *MuxState) ReplayMeta(scope meta.Scope, key string, v meta.Value) {
	ms.meta.Set(scope, key, v)
}

// ReplayCover sets the journaled file-level cover image.
func (ms *MuxState) ReplayCover(kind meta.ValueKind, data []byte) {
	ms.cover = &meta.CoverBytes{Kind: kind, Bytes: data}
}

// Tracks returns the tracks registered so far, in registration order.
// Used by package recovery to walk sample tables for truncation before
// the final Close.
func (ms *MuxState) Tracks() []*track.Track {
	out := make([]*track.Track, len(ms.tracks))
	for i, ts := range ms.tracks {
		out[i] = ts.t
	}
	return out
}

// SampleOffsets returns copies of t's accumulated sample sizes and
// offsets, for package recovery to compute the truncation point before
// the final Close builds t.Samples.
func (ms *MuxState) SampleOffsets(t *track.Track) (sizes, offsets []uint64) {
	ts := ms.trackState(t)
	if ts == nil {
		return nil, nil
	}
	sizes = append([]uint64(nil), ts.acc.sizes...)
	offsets = append([]uint64(nil), ts.acc.offsets...)
	return sizes, offsets
}

// TruncateTrack drops every sample at or past keep in t's accumulator,
// the in-memory half of recovery's truncation step (spec.md §4.9); the
// caller truncates the on-disk media file separately.
func (ms *MuxState) TruncateTrack(t *track.Track, keep int) {
	ts := ms.trackState(t)
	if ts == nil || keep >= len(ts.acc.sizes) {
		return
	}
	ts.acc.sizes = ts.acc.sizes[:keep]
	ts.acc.dts = ts.acc.dts[:keep]
	ts.acc.offsets = ts.acc.offsets[:keep]
	if ts.acc.hasComp && len(ts.acc.comp) > keep {
		ts.acc.comp = ts.acc.comp[:keep]
	}
	if ts.acc.hasSync {
		n := 0
		for _, idx := range ts.acc.sync {
			if int(idx) > keep {
				break
			}
			n++
		}
		ts.acc.sync = ts.acc.sync[:n]
	}
}
